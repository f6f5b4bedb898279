// Package config holds the tunable constants of the execution pipeline:
// thread count, journal depth, pool capacity, bootstrap part size, economic
// constants and cycle timing. Modeled on the teacher's node.Config /
// DefaultConfig pattern.
package config

import (
	"errors"
	"fmt"

	"github.com/qdrn/massa/internal/amount"
)

// Config holds every tunable constant the execution pipeline depends on.
type Config struct {
	// ThreadCount is T, the number of parallel execution threads.
	ThreadCount uint8

	// JournalDepth is K, the number of (slot, StateChanges) entries kept in
	// the FinalState's bounded change journal for bootstrap streaming.
	JournalDepth int

	// AsyncPoolCapacity is L, the maximum number of messages held in the
	// asynchronous message pool before the lowest-priority entry is evicted.
	AsyncPoolCapacity int

	// BootstrapPartBytes is P, the approximate byte budget of a single
	// ledger bootstrap streaming part.
	BootstrapPartBytes int

	// MaxDatastoreKeyBytes is K_max, the maximum datastore key length.
	MaxDatastoreKeyBytes int
	// MaxDatastoreValueBytes is V_max, the maximum datastore value length.
	MaxDatastoreValueBytes int
	// MaxBytecodeBytes is B_max, the maximum bytecode length.
	MaxBytecodeBytes int

	// MaxAsyncGasPerSlot bounds the async-message batch drained per slot.
	MaxAsyncGasPerSlot uint64
	// MaxBlockGas bounds the operations executed per block.
	MaxBlockGas uint64
	// OpValidityPeriods is the number of periods an operation remains valid
	// before its expire_period.
	OpValidityPeriods uint64

	// RollPrice is the coin cost of a single roll.
	RollPrice amount.Amount
	// PeriodsPerCycle is the fixed length of a cycle in periods.
	PeriodsPerCycle uint64
	// SellRefundDelayCycles is the number of cycles between a roll sale and
	// its deferred credit becoming payable.
	SellRefundDelayCycles uint64
	// SlashRefundDelayCycles is the number of cycles between a miss-ratio
	// slash and its deferred credit becoming payable.
	SlashRefundDelayCycles uint64
	// MaxMissRatio is the production-miss ratio above which an address is
	// slashed at cycle end.
	MaxMissRatio float64
	// CycleHistoryLength bounds how many past cycles' roll_counts snapshots
	// are retained (the selector lookback needs 3).
	CycleHistoryLength int
	// SelectorLookbackCycles is the fixed 3-cycle lag between a cycle's
	// active rolls and the roll_counts snapshot it is drawn from.
	SelectorLookbackCycles uint64
}

// DefaultConfig returns a Config with values matching the Massa mainnet
// constants referenced by original_source (32 threads, 3 deferred-credit
// cycle delay, 3-cycle selector lookback).
func DefaultConfig() Config {
	return Config{
		ThreadCount:            32,
		JournalDepth:           10,
		AsyncPoolCapacity:      10_000,
		BootstrapPartBytes:     1 << 20,
		MaxDatastoreKeyBytes:   255,
		MaxDatastoreValueBytes: 10 << 20,
		MaxBytecodeBytes:       10 << 20,
		MaxAsyncGasPerSlot:     1_000_000_000,
		MaxBlockGas:            3_300_000_000,
		OpValidityPeriods:      10,
		RollPrice:              amount.FromUnits(100),
		PeriodsPerCycle:        128,
		SellRefundDelayCycles:  3,
		SlashRefundDelayCycles: 3,
		MaxMissRatio:           0.7,
		CycleHistoryLength:     6,
		SelectorLookbackCycles: 3,
	}
}

// Validate checks the configuration for internally-inconsistent values.
func (c Config) Validate() error {
	if c.ThreadCount == 0 {
		return errors.New("config: thread count must be positive")
	}
	if c.JournalDepth <= 0 {
		return errors.New("config: journal depth must be positive")
	}
	if c.AsyncPoolCapacity <= 0 {
		return errors.New("config: async pool capacity must be positive")
	}
	if c.PeriodsPerCycle == 0 {
		return errors.New("config: periods per cycle must be positive")
	}
	if c.CycleHistoryLength < int(c.SelectorLookbackCycles)+1 {
		return fmt.Errorf("config: cycle history length %d too short for lookback %d",
			c.CycleHistoryLength, c.SelectorLookbackCycles)
	}
	if c.MaxMissRatio <= 0 || c.MaxMissRatio > 1 {
		return errors.New("config: max miss ratio must be in (0, 1]")
	}
	return nil
}
