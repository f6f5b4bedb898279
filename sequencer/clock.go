package sequencer

import (
	"time"

	"github.com/qdrn/massa/types"
)

// Clock derives the current wall-clock Slot from a genesis instant and a
// fixed slot duration. Grounded on the teacher's
// consensus.PhaseTimer.slotAtTime algorithm (pkg/consensus/phase_timer.go),
// generalized from a flat slot counter to the spec's (period, thread) pair.
type Clock struct {
	genesisMs   int64
	slotMs      uint64
	threadCount uint8
	now         func() time.Time
}

// NewClock builds a Clock. genesisUnix is a unix-seconds timestamp.
func NewClock(genesisUnix int64, slotDurationMs uint64, threadCount uint8) *Clock {
	return &Clock{
		genesisMs:   genesisUnix * 1000,
		slotMs:      slotDurationMs,
		threadCount: threadCount,
		now:         time.Now,
	}
}

// CurrentSlot returns the slot wall-clock time currently falls within.
func (c *Clock) CurrentSlot() types.Slot {
	return c.slotAt(c.now())
}

func (c *Clock) slotAt(t time.Time) types.Slot {
	nowMs := t.UnixMilli()
	if nowMs < c.genesisMs {
		return types.NewSlot(0, 0)
	}
	elapsed := uint64(nowMs-c.genesisMs) / c.slotMs
	period := elapsed / uint64(c.threadCount)
	thread := uint8(elapsed % uint64(c.threadCount))
	return types.NewSlot(period, thread)
}

// TimeToNextSlot returns the duration until the slot after the current one
// begins, used to size the sequencer loop's deadline timer.
func (c *Clock) TimeToNextSlot() time.Duration {
	now := c.now()
	next := c.slotAt(now).Next(c.threadCount)
	nextIdx := next.Period*uint64(c.threadCount) + uint64(next.Thread)
	nextMs := c.genesisMs + int64(nextIdx*c.slotMs)
	d := time.UnixMilli(nextMs).Sub(now)
	if d <= 0 {
		return time.Millisecond
	}
	return d
}
