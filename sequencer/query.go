package sequencer

import (
	"github.com/qdrn/massa/execution"
	"github.com/qdrn/massa/internal/amount"
	"github.com/qdrn/massa/internal/massaerrors"
	"github.com/qdrn/massa/specview"
	"github.com/qdrn/massa/types"
	"github.com/qdrn/massa/vm"
)

// FinalBalance returns addr's balance as of final_cursor.
func (sq *Sequencer) FinalBalance(addr types.Address) (amount.Amount, bool) {
	return sq.fs.GetBalance(addr)
}

// CandidateBalance returns addr's balance as of active_cursor.
func (sq *Sequencer) CandidateBalance(addr types.Address) (amount.Amount, bool) {
	return specview.New(sq.fs, sq.ah, sq.cfg).Ledger.GetBalance(addr)
}

// FinalRolls returns addr's roll count as of final_cursor.
func (sq *Sequencer) FinalRolls(addr types.Address) uint64 {
	return sq.fs.Roll.RollCount(addr)
}

// CandidateRolls returns addr's roll count as of active_cursor.
func (sq *Sequencer) CandidateRolls(addr types.Address) uint64 {
	return specview.New(sq.fs, sq.ah, sq.cfg).Roll.RollCount(addr)
}

// FinalDatastoreEntry returns addr's datastore value at key as of
// final_cursor.
func (sq *Sequencer) FinalDatastoreEntry(addr types.Address, key string) ([]byte, bool) {
	return sq.fs.Ledger.GetDatastoreEntry(addr, key)
}

// CandidateDatastoreEntry returns addr's datastore value at key as of
// active_cursor.
func (sq *Sequencer) CandidateDatastoreEntry(addr types.Address, key string) ([]byte, bool) {
	return specview.New(sq.fs, sq.ah, sq.cfg).Ledger.GetDatastoreEntry(addr, key)
}

// CycleActiveRolls returns the roll_counts snapshot for cycle - 3 (or the
// initial snapshot if that underflows), per spec.md §6.1.
func (sq *Sequencer) CycleActiveRolls(cycle uint64) map[types.Address]uint64 {
	return sq.fs.Roll.CycleActiveRolls(cycle)
}

// FinalEvents returns every event still retained in FS's bounded journal,
// oldest first.
func (sq *Sequencer) FinalEvents() []types.Event {
	return sq.fs.RecentEvents()
}

// CandidateEvents returns every event emitted by a slot currently held in
// Active History (not yet finalized), oldest first.
func (sq *Sequencer) CandidateEvents() []types.Event {
	var out []types.Event
	for _, o := range sq.ah.Snapshot() {
		out = append(out, o.Events...)
	}
	return out
}

// ExecuteReadonly runs a BytecodeExecution (targetAddr == nil, a throwaway
// contract deployed and invoked once) or a FunctionCall (targetAddr set, an
// existing contract's stored bytecode is invoked) at active_cursor.next(),
// against a fresh, discarded set of speculative views — FS and AH are never
// mutated (spec.md §6.1).
func (sq *Sequencer) ExecuteReadonly(sender types.Address, targetAddr *types.Address, bytecode []byte, maxGas uint64) (types.ExecutionOutput, error) {
	slot := sq.activeCursor.Next(sq.cfg.ThreadCount)
	views := specview.New(sq.fs, sq.ah, sq.cfg)
	ec := execution.NewReadOnlySlot(slot, views, sq.cfg)

	ec.PushFrame(sender, amount.Zero, []types.Address{sender})
	defer ec.PopFrame()

	target := sender
	code := bytecode
	if targetAddr != nil {
		target = *targetAddr
		stored, ok := ec.GetBytecode(target)
		if !ok {
			return types.ExecutionOutput{}, massaerrors.ErrMissingEntry
		}
		code = stored
	} else {
		target = ec.CreateNewSCAddress(bytecode)
	}

	decoded, err := vm.Decode(code)
	if err != nil {
		return types.ExecutionOutput{}, err
	}

	ec.PushFrame(target, amount.Zero, []types.Address{target})
	runErr := vm.Run(ec, target, maxGas, decoded)
	ec.PopFrame()
	if runErr != nil {
		return types.ExecutionOutput{}, runErr
	}

	return ec.SettleSlot(), nil
}
