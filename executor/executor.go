// Package executor implements the Slot Executor (spec.md §4.4): the
// deterministic one-slot pipeline of async-message dispatch, block
// operation execution, reward distribution and settlement.
package executor

import (
	"time"
	"unicode/utf8"

	"github.com/qdrn/massa/activehistory"
	"github.com/qdrn/massa/execution"
	"github.com/qdrn/massa/finalstate"
	"github.com/qdrn/massa/internal/amount"
	"github.com/qdrn/massa/internal/config"
	"github.com/qdrn/massa/internal/massaerrors"
	"github.com/qdrn/massa/internal/metrics"
	"github.com/qdrn/massa/internal/xlog"
	"github.com/qdrn/massa/selector"
	"github.com/qdrn/massa/specview"
	"github.com/qdrn/massa/types"
	"github.com/qdrn/massa/vm"
)

// SlotExecutor drives one slot's deterministic execution from a
// FinalState + ActiveHistory pair, against an external Selector.
type SlotExecutor struct {
	fs  *finalstate.FinalState
	ah  *activehistory.ActiveHistory
	cfg config.Config
	sel selector.Selector
	log *xlog.Logger
	met *metrics.Metrics
}

// New constructs a SlotExecutor reading/speculating against fs and ah.
func New(fs *finalstate.FinalState, ah *activehistory.ActiveHistory, cfg config.Config, sel selector.Selector) *SlotExecutor {
	return &SlotExecutor{fs: fs, ah: ah, cfg: cfg, sel: sel, log: xlog.Default().Module("executor")}
}

// SetMetrics attaches m so every subsequent ExecuteSlot call reports its
// outcome and latency. A nil-metrics SlotExecutor runs unmonitored.
func (se *SlotExecutor) SetMetrics(m *metrics.Metrics) {
	se.met = m
}

// ExecuteSlot runs the algorithm of spec.md §4.4 for one slot. blockID and
// payload are both nil for a miss (no block produced at this slot).
func (se *SlotExecutor) ExecuteSlot(slot types.Slot, blockID *types.BlockId, payload *types.BlockPayload) (out types.ExecutionOutput, err error) {
	if se.met != nil {
		start := time.Now()
		defer func() {
			se.met.CandidateLatency.Observe(time.Since(start).Seconds())
			outcome := "miss"
			if payload != nil {
				outcome = "block"
			}
			if err != nil {
				outcome = "error"
			}
			se.met.SlotsExecuted.WithLabelValues(outcome).Inc()
		}()
	}

	views := specview.New(se.fs, se.ah, se.cfg)
	ec := execution.NewActiveSlot(slot, blockID, views, se.cfg)

	se.runAsyncBatch(ec, slot)

	if payload != nil {
		blockCredits, err := se.runBlockPhase(ec, slot, payload)
		if err != nil {
			return types.ExecutionOutput{}, err
		}
		se.distributeRewards(ec, payload, blockCredits)
	} else {
		ec.Views.Roll.MarkProduced(se.sel.Producer(slot), false)
	}

	return ec.SettleSlot(), nil
}

// runAsyncBatch drains and executes the speculative async pool's eligible
// batch for slot (spec.md §4.4 step 2).
func (se *SlotExecutor) runAsyncBatch(ec *execution.ExecutionContext, slot types.Slot) {
	batch := ec.Views.AsyncPool.TakeBatch(slot, se.cfg.MaxAsyncGasPerSlot, se.cfg.ThreadCount)
	for _, msg := range batch {
		snap := ec.GetSnapshot()

		bytecode, ok := ec.Views.Ledger.GetBytecode(msg.Destination)
		if !ok || !utf8.Valid(msg.Data) {
			ec.ResetToSnapshot(snap, "")
			if err := ec.Transfer(nil, &msg.Sender, msg.Coins, false); err != nil {
				se.log.Warn("async reimbursement failed", "err", err)
			}
			se.log.Info("async message skipped: missing bytecode or invalid data", "handler", msg.Handler)
			continue
		}

		code, err := vm.Decode(bytecode)
		if err != nil {
			ec.ResetToSnapshot(snap, "")
			if rerr := ec.Transfer(nil, &msg.Sender, msg.Coins, false); rerr != nil {
				se.log.Warn("async reimbursement failed", "err", rerr)
			}
			continue
		}

		ec.PushFrame(msg.Sender, amount.Zero, []types.Address{msg.Sender})
		ec.PushFrame(msg.Destination, msg.Coins, []types.Address{msg.Destination})
		if err := ec.Transfer(nil, &msg.Destination, msg.Coins, false); err != nil {
			se.log.Warn("async credit failed", "err", err)
		}

		runErr := vm.Run(ec, msg.Destination, msg.MaxGas, code)
		ec.PopFrame()
		ec.PopFrame()

		if runErr != nil {
			ec.ResetToSnapshot(snap, runErr.Error())
			if err := ec.Transfer(nil, &msg.Sender, msg.Coins, false); err != nil {
				se.log.Warn("async reimbursement failed", "err", err)
			}
		}
	}
}

// runBlockPhase validates and executes a candidate block's operations in
// order (spec.md §4.4 step 3).
func (se *SlotExecutor) runBlockPhase(ec *execution.ExecutionContext, slot types.Slot, payload *types.BlockPayload) (amount.Amount, error) {
	if !payload.Slot.Equal(slot) {
		return amount.Zero, massaerrors.ErrWrongSlot
	}
	if payload.ProducerAddr != se.sel.Producer(slot) {
		return amount.Zero, massaerrors.ErrWrongProducer
	}

	remainingGas := se.cfg.MaxBlockGas
	blockCredits := amount.Zero

	for _, op := range payload.Operations {
		if slot.Period < op.ValidityStart(se.cfg.OpValidityPeriods) || slot.Period >= op.ExpirePeriod {
			continue
		}
		if ec.IsOpExecuted(op.Id) {
			continue
		}
		if op.Thread(se.cfg.ThreadCount) != slot.Thread {
			continue
		}
		if remainingGas < op.MaxGas {
			continue
		}

		if err := ec.Transfer(&op.Sender, nil, op.Fee, false); err != nil {
			se.log.Info("operation fee debit failed, skipping", "op", op.Id, "err", err)
			continue
		}
		ec.InsertExecutedOp(op.Id, types.NewSlot(op.ExpirePeriod, slot.Thread))

		snap := ec.GetSnapshot()
		if err := executeOperation(ec, op); err != nil {
			ec.ResetToSnapshot(snap, err.Error())
		}

		remainingGas -= op.MaxGas
		blockCredits = blockCredits.SaturatingAdd(op.Fee)
	}

	ec.Views.Roll.MarkProduced(payload.ProducerAddr, true)
	return blockCredits, nil
}
