package executor

import (
	"fmt"

	"github.com/qdrn/massa/execution"
	"github.com/qdrn/massa/internal/amount"
	"github.com/qdrn/massa/internal/massaerrors"
	"github.com/qdrn/massa/types"
	"github.com/qdrn/massa/vm"
)

// executeOperation dispatches op to its typed handler, run with a
// sender-owned call frame pushed and popped around the call (spec.md
// §4.4 step 3's "execute the typed operation").
func executeOperation(ec *execution.ExecutionContext, op types.Operation) error {
	ec.PushFrame(op.Sender, amount.Zero, []types.Address{op.Sender})
	defer ec.PopFrame()

	switch op.Kind {
	case types.OpTransaction:
		return ec.Transfer(&op.Sender, &op.Recipient, op.Amount, true)
	case types.OpRollBuy:
		return executeRollBuy(ec, op)
	case types.OpRollSell:
		return ec.TrySellRolls(op.Sender, op.RollCount)
	case types.OpExecuteSC:
		return executeDeploy(ec, op)
	case types.OpCallSC:
		return executeCall(ec, op)
	default:
		return fmt.Errorf("%w: unknown operation kind %d", massaerrors.ErrRuntime, op.Kind)
	}
}

func executeRollBuy(ec *execution.ExecutionContext, op types.Operation) error {
	cfg := ec.Config()
	cost, err := cfg.RollPrice.CheckedMulUint64(op.RollCount)
	if err != nil {
		return fmt.Errorf("%w: %s", massaerrors.ErrRollPriceOverflow, err)
	}
	if err := ec.Transfer(&op.Sender, nil, cost, true); err != nil {
		return err
	}
	ec.AddRolls(op.Sender, int64(op.RollCount))
	return nil
}

// executeDeploy handles OpExecuteSC: derive a fresh contract address,
// install op.Bytecode, and run it once against the new address as an
// implicit constructor call.
func executeDeploy(ec *execution.ExecutionContext, op types.Operation) error {
	code, err := vm.Decode(op.Bytecode)
	if err != nil {
		return fmt.Errorf("%w: %s", massaerrors.ErrRuntime, err)
	}
	addr := ec.CreateNewSCAddress(op.Bytecode)
	ec.PushFrame(addr, amount.Zero, []types.Address{addr})
	defer ec.PopFrame()
	return vm.Run(ec, addr, op.MaxGas, code)
}

// executeCall handles OpCallSC: credit coins to an existing contract
// address and run its stored bytecode from the first instruction.
// op.TargetHandler and op.Param are not passed to the interpreter.
func executeCall(ec *execution.ExecutionContext, op types.Operation) error {
	bytecode, ok := ec.GetBytecode(op.TargetAddr)
	if !ok {
		return massaerrors.ErrMissingEntry
	}
	code, err := vm.Decode(bytecode)
	if err != nil {
		return fmt.Errorf("%w: %s", massaerrors.ErrRuntime, err)
	}
	if err := ec.Transfer(&op.Sender, &op.TargetAddr, op.Coins, true); err != nil {
		return err
	}
	ec.PushFrame(op.TargetAddr, op.Coins, []types.Address{op.TargetAddr})
	defer ec.PopFrame()
	return vm.Run(ec, op.TargetAddr, op.MaxGas, code)
}

// distributeRewards implements spec.md §4.4 step 4: share block_credits
// among endorsers/endorsed producers, credit the remainder to the block
// producer. Individual credit failures are logged, never aborting the
// slot.
func (se *SlotExecutor) distributeRewards(ec *execution.ExecutionContext, payload *types.BlockPayload, blockCredits amount.Amount) {
	denom := uint64(3 * (1 + len(payload.Endorsements)))
	share, err := blockCredits.CheckedDivUint64(denom)
	if err != nil {
		se.log.Warn("reward share computation failed", "err", err)
		share = amount.Zero
	}

	for _, e := range payload.Endorsements {
		creator, endorsed := e.Creator, e.EndorsedBlockCreator
		if err := ec.Transfer(nil, &creator, share, false); err != nil {
			se.log.Warn("endorser reward failed", "err", err)
		}
		if err := ec.Transfer(nil, &endorsed, share, false); err != nil {
			se.log.Warn("endorsed-producer reward failed", "err", err)
		}
	}

	distributed, err := share.CheckedMulUint64(denom)
	var remainder amount.Amount
	if err != nil {
		remainder = blockCredits
	} else if r, err := blockCredits.CheckedSub(distributed); err == nil {
		remainder = r
	} else {
		remainder = blockCredits
	}

	producer := payload.ProducerAddr
	if err := ec.Transfer(nil, &producer, remainder, false); err != nil {
		se.log.Warn("block producer reward failed", "err", err)
	}
}
