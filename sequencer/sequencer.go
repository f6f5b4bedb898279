// Package sequencer implements the Slot Sequencer (spec.md §4.7): the
// single-goroutine loop that drives candidate and final slot execution,
// switching block-cliques and reconciling speculative history with
// finality.
package sequencer

import (
	"context"
	"sort"
	"time"

	"github.com/qdrn/massa/activehistory"
	"github.com/qdrn/massa/executor"
	"github.com/qdrn/massa/finalstate"
	"github.com/qdrn/massa/internal/config"
	"github.com/qdrn/massa/internal/massaerrors"
	"github.com/qdrn/massa/internal/metrics"
	"github.com/qdrn/massa/internal/xlog"
	"github.com/qdrn/massa/selector"
	"github.com/qdrn/massa/types"
)

// cmdQueueDepth bounds the sequencer's input command channel (spec.md §5:
// "Input command channels are bounded; a full channel causes the producer
// to fail fast with a logged warning").
const cmdQueueDepth = 16

// NotificationKind discriminates the two notification shapes downstream
// consumers receive.
type NotificationKind int

const (
	// NotifyFinalized announces a new finalized period on one thread.
	NotifyFinalized NotificationKind = iota
	// NotifyBlockcliqueDelta announces a candidate slot was re-executed.
	NotifyBlockcliqueDelta
)

// Notification is emitted on every finalized period and every block-clique
// delta, per spec.md §4.7's "Downstream consumers are told: new finalized
// periods (one per thread), block-clique delta."
type Notification struct {
	Kind NotificationKind
	Slot types.Slot
}

// blockcliqueUpdate is one update_blockclique call queued for the
// sequencer's main loop.
type blockcliqueUpdate struct {
	finalized   map[types.Slot]types.BlockId
	blockclique map[types.Slot]types.BlockId
	storage     map[types.BlockId]*types.BlockPayload
}

// Sequencer drives (final_cursor, active_cursor) against a FinalState +
// ActiveHistory pair, executing slots through a SlotExecutor as the block
// graph feeds it finalized and candidate block-clique updates.
type Sequencer struct {
	fs  *finalstate.FinalState
	ah  *activehistory.ActiveHistory
	se  *executor.SlotExecutor
	cfg config.Config
	sel selector.Selector
	clk *Clock
	log *xlog.Logger
	met *metrics.Metrics

	// finalCursor/activeCursor/blockclique/storage are owned exclusively by
	// the goroutine running Run; they are never touched from
	// UpdateBlockclique, which only ever sends on cmdCh.
	finalCursor  types.Slot
	activeCursor types.Slot
	blockclique  map[types.Slot]types.BlockId
	storage      map[types.BlockId]*types.BlockPayload

	cmdCh    chan blockcliqueUpdate
	notifyCh chan Notification
}

// New constructs a Sequencer. If fs has not yet been attached to a slot, it
// is bootstrapped by finalizing an empty synthetic genesis slot
// (0, cfg.ThreadCount-1) so that every subsequent AH.Push (which always
// derives its expected slot via Slot.Next) has a well-defined predecessor
// from the very first candidate slot (1,0) onward.
func New(fs *finalstate.FinalState, ah *activehistory.ActiveHistory, cfg config.Config, sel selector.Selector, clk *Clock, met *metrics.Metrics) *Sequencer {
	if _, ok := fs.Slot(); !ok {
		genesis := types.NewSlot(0, cfg.ThreadCount-1)
		_ = fs.Finalize(genesis, types.NewStateChanges())
	}
	cursor, _ := fs.Slot()

	se := executor.New(fs, ah, cfg, sel)
	if met != nil {
		se.SetMetrics(met)
	}

	return &Sequencer{
		fs:           fs,
		ah:           ah,
		se:           se,
		cfg:          cfg,
		sel:          sel,
		clk:          clk,
		log:          xlog.Default().Module("sequencer"),
		met:          met,
		finalCursor:  cursor,
		activeCursor: cursor,
		blockclique:  make(map[types.Slot]types.BlockId),
		storage:      make(map[types.BlockId]*types.BlockPayload),
		cmdCh:        make(chan blockcliqueUpdate, cmdQueueDepth),
		notifyCh:     make(chan Notification, cmdQueueDepth),
	}
}

// reportGauges refreshes the AH-depth and final_cursor-period gauges. Called
// at the end of every policy run so scrapers always see a consistent pair.
func (sq *Sequencer) reportGauges() {
	if sq.met == nil {
		return
	}
	sq.met.ActiveHistoryDepth.Set(float64(sq.ah.Len()))
	sq.met.FinalCursorPeriod.Set(float64(sq.finalCursor.Period))
}

// Notifications returns the channel Run publishes Notification values on.
func (sq *Sequencer) Notifications() <-chan Notification {
	return sq.notifyCh
}

// FinalCursor returns the slot FS is currently attached to.
func (sq *Sequencer) FinalCursor() types.Slot {
	return sq.finalCursor
}

// ActiveCursor returns the newest slot with a speculative output in AH (or
// FinalCursor if AH is empty).
func (sq *Sequencer) ActiveCursor() types.Slot {
	return sq.activeCursor
}

// UpdateBlockclique queues a block-graph update for the sequencer's main
// loop. It never blocks: if the command channel is full it returns
// ErrSequencerBusy immediately, matching spec.md §5's backpressure
// contract.
func (sq *Sequencer) UpdateBlockclique(finalized, blockclique map[types.Slot]types.BlockId, storage map[types.BlockId]*types.BlockPayload) error {
	select {
	case sq.cmdCh <- blockcliqueUpdate{finalized: finalized, blockclique: blockclique, storage: storage}:
		return nil
	default:
		sq.log.Warn("update_blockclique dropped: command channel full")
		return massaerrors.ErrSequencerBusy
	}
}

// Run drives the sequencer's single-writer loop until ctx is cancelled.
// Channel closure (ctx.Done()) triggers graceful shutdown: the loop simply
// returns, leaving FS and AH in their last consistent state.
func (sq *Sequencer) Run(ctx context.Context) {
	timer := time.NewTimer(sq.clk.TimeToNextSlot())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			sq.log.Info("sequencer shutting down")
			return
		case upd := <-sq.cmdCh:
			sq.applyUpdate(upd)
		case <-timer.C:
			sq.runCandidatePolicy()
			timer.Reset(sq.clk.TimeToNextSlot())
		}
	}
}

// applyUpdate merges a block-graph update's blockclique/storage view and
// runs both policies of spec.md §4.7 against it.
func (sq *Sequencer) applyUpdate(upd blockcliqueUpdate) {
	if upd.blockclique != nil {
		sq.blockclique = upd.blockclique
	}
	for id, payload := range upd.storage {
		sq.storage[id] = payload
	}
	sq.runFinalizationPolicy(upd.finalized)
	sq.runCandidatePolicy()
}

// runCandidatePolicy executes spec.md §4.7's candidate execution policy for
// every slot strictly after final_cursor up to the current wall-clock slot.
func (sq *Sequencer) runCandidatePolicy() {
	defer sq.reportGauges()

	now := sq.clk.CurrentSlot()
	s := sq.finalCursor.Next(sq.cfg.ThreadCount)
	for !now.Less(s) {
		blockID, hasBlock := sq.blockclique[s]

		if existing, found := sq.findInAH(s); found && blockIdsMatch(existing, blockID, hasBlock) {
			s = s.Next(sq.cfg.ThreadCount)
			continue
		}

		sq.ah.TruncateFrom(s)
		sq.activeCursor = s.Prev(sq.cfg.ThreadCount)

		var blockIDPtr *types.BlockId
		var payload *types.BlockPayload
		if hasBlock {
			b := blockID
			blockIDPtr = &b
			payload = sq.storage[b]
		}

		out, err := sq.se.ExecuteSlot(s, blockIDPtr, payload)
		if err != nil {
			sq.log.Warn("candidate slot execution failed", "slot", s, "err", err)
			return
		}
		if err := sq.ah.Push(out, sq.finalCursor, sq.cfg.ThreadCount); err != nil {
			sq.log.Warn("candidate slot push failed", "slot", s, "err", err)
			return
		}
		sq.activeCursor = s
		sq.notify(NotifyBlockcliqueDelta, s)

		s = s.Next(sq.cfg.ThreadCount)
	}
}

// runFinalizationPolicy executes spec.md §4.7's finalization policy for
// every (slot, blockID) pair in finalized, in increasing slot order.
func (sq *Sequencer) runFinalizationPolicy(finalized map[types.Slot]types.BlockId) {
	defer sq.reportGauges()

	slots := make([]types.Slot, 0, len(finalized))
	for s := range finalized {
		if sq.finalCursor.Less(s) {
			slots = append(slots, s)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Less(slots[j]) })

	for _, s := range slots {
		b := finalized[s]

		front, ok := sq.ah.Front()
		if ok && front.Slot.Equal(s) && blockIdsMatch(front, b, true) {
			out, err := sq.ah.PopFront()
			if err != nil {
				sq.log.Warn("finalize pop_front failed", "slot", s, "err", err)
				continue
			}
			if err := sq.finalize(s, out.StateChanges, out.Events); err != nil {
				sq.log.Warn("finalize failed", "slot", s, "err", err)
				continue
			}
		} else {
			sq.ah.Clear()
			sq.activeCursor = sq.finalCursor

			out, err := sq.se.ExecuteSlot(s, &b, sq.storage[b])
			if err != nil {
				sq.log.Warn("finalization replay failed", "slot", s, "err", err)
				continue
			}
			if err := sq.finalize(s, out.StateChanges, out.Events); err != nil {
				sq.log.Warn("finalize failed", "slot", s, "err", err)
				continue
			}
		}

		sq.finalCursor = s
		if sq.activeCursor.Less(s) {
			sq.activeCursor = s
		}
		sq.notify(NotifyFinalized, s)
	}
}

// finalize applies changes and events to FS, timing the call when metrics
// are enabled.
func (sq *Sequencer) finalize(s types.Slot, changes types.StateChanges, events []types.Event) error {
	if sq.met == nil {
		return sq.fs.FinalizeWithEvents(s, changes, events)
	}
	start := time.Now()
	err := sq.fs.FinalizeWithEvents(s, changes, events)
	sq.met.FinalizeLatency.Observe(time.Since(start).Seconds())
	return err
}

// findInAH returns the AH output recorded for slot s, if any.
func (sq *Sequencer) findInAH(s types.Slot) (types.ExecutionOutput, bool) {
	var found types.ExecutionOutput
	var ok bool
	sq.ah.ForEachNewestFirst(func(out types.ExecutionOutput) bool {
		if out.Slot.Equal(s) {
			found, ok = out, true
			return false
		}
		return s.Less(out.Slot)
	})
	return found, ok
}

// blockIdsMatch reports whether an existing AH output's recorded block
// matches the candidate block (or both are absent).
func blockIdsMatch(existing types.ExecutionOutput, b types.BlockId, hasBlock bool) bool {
	if existing.OptBlockId == nil {
		return !hasBlock
	}
	return hasBlock && *existing.OptBlockId == b
}

// notify publishes a Notification, dropping it if the channel is full
// rather than blocking the main loop (same backpressure rule as the
// command channel).
func (sq *Sequencer) notify(kind NotificationKind, slot types.Slot) {
	select {
	case sq.notifyCh <- Notification{Kind: kind, Slot: slot}:
	default:
		sq.log.Warn("notification dropped: channel full", "slot", slot)
	}
}
