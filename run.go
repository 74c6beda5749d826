package tevm

import (
	"fmt"
	"slices"

	"github.com/sbip-sg/tevm/host"
	"github.com/sbip-sg/tevm/vm"
)

// Intrinsic transaction gas costs.
const (
	txGas                   = 21_000
	txGasContractCreation   = 53_000
	txDataNonZeroGasEIP2028 = 16
	txDataZeroGasEIP2028    = 4
)

// ErrBlockGasLimitExceeded is returned when the transaction gas limit
// exceeds the configured block gas limit.
const ErrBlockGasLimitExceeded = vm.ConstError("transaction exceeds block gas limit")

// ErrSenderNotEOA is returned per EIP-3607 when the sender has deployed
// code.
const ErrSenderNotEOA = vm.ConstError("sender is not an externally owned account")

// intrinsicGas computes the up-front cost of the invocation, following
// EIP-2028 calldata pricing.
func intrinsicGas(input []byte, isCreate bool) uint64 {
	var gas uint64 = txGas
	if isCreate {
		gas = txGasContractCreation
	}
	for _, b := range input {
		if b == 0 {
			gas += txDataZeroGasEIP2028
		} else {
			gas += txDataNonZeroGasEIP2028
		}
	}
	return gas
}

// invocation bundles the inputs of one top-level execution.
type invocation struct {
	kind      vm.CallKind
	sender    vm.Address
	recipient vm.Address
	input     []byte
	value     vm.Value
	gasLimit  uint64
	salt      vm.Hash

	addressOverrides   map[vm.Address]vm.Address
	overwriteCollision bool
}

// execute runs one top-level invocation to completion: it prepares the
// transaction scope, dispatches through a fresh host, applies the refund
// cap, finalizes the state, and assembles the execution record.
func (t *TinyEVM) execute(call invocation) (*Response, error) {
	if !t.config.DisableBlockGasLimit && call.gasLimit > t.config.BlockGasLimit {
		return nil, ErrBlockGasLimitExceeded
	}
	if !t.config.DisableEIP3607 && t.db.GetCodeSize(call.sender) > 0 {
		return nil, ErrSenderNotEOA
	}

	intrinsic := intrinsicGas(call.input, call.kind == vm.Create || call.kind == vm.Create2)
	if call.gasLimit < intrinsic {
		return &Response{
			Success:    false,
			ExitReason: ExitIntrinsicGas,
			GasUsed:    call.gasLimit,
		}, nil
	}

	t.recorder.ResetInvocation()
	t.db.BeginTransaction()

	origin := call.sender
	if t.origin != nil {
		origin = *t.origin
	}

	h := host.New(host.Options{
		DB:          t.db,
		Interpreter: t.interpreter,
		Recorder:    t.recorder,
		Logger:      t.logger,
		Block:       t.block,
		Transaction: vm.TransactionParameters{
			Origin:   origin,
			GasPrice: t.gasPrice,
		},
		AddressOverrides:   call.addressOverrides,
		OverwriteCollision: call.overwriteCollision,
	})

	// An outer checkpoint guards against partially applied state when the
	// invocation fails with a session-level error.
	outer := t.db.CreateSnapshot()

	if call.kind != vm.Create && call.kind != vm.Create2 {
		// Creation frames increment the sender nonce themselves.
		t.db.SetNonce(call.sender, t.db.GetNonce(call.sender)+1)
	}

	result, err := h.Call(call.kind, vm.CallParameters{
		Sender:      call.sender,
		Recipient:   call.recipient,
		CodeAddress: call.recipient,
		Value:       call.value,
		Input:       call.input,
		Gas:         vm.Gas(call.gasLimit - intrinsic),
		Salt:        call.salt,
	})
	if err == nil {
		err = t.db.RemoteError()
	}
	if err != nil {
		t.db.RestoreSnapshot(outer)
		if endErr := t.db.EndTransaction(); endErr != nil {
			return nil, endErr
		}
		return nil, fmt.Errorf("invocation failed: %w", err)
	}
	t.db.CommitSnapshot(outer)

	gasUsed := call.gasLimit - uint64(result.GasLeft)
	gasUsed -= uint64(cappedRefund(result.GasRefund, vm.Gas(gasUsed), t.block.Revision))

	events := slices.Clone(t.db.GetLogs())

	if err := t.db.EndTransaction(); err != nil {
		return nil, err
	}

	response := &Response{
		Success:          result.Success,
		ExitReason:       exitReason(result),
		Data:             result.Output,
		GasUsed:          gasUsed,
		Events:           events,
		Trace:            h.CallTrace(),
		StorageTrace:     slices.Clone(t.recorder.StorageTrace()),
		Bugs:             slices.Clone(t.recorder.Bugs()),
		Heuristics:       t.recorder.Heuristics(),
		Coverage:         t.recorder.Coverage(),
		SeenPcs:          t.recorder.PcsByAddress(),
		SeenAddresses:    slices.Clone(t.recorder.SeenAddresses()),
		CreatedAddresses: slices.Clone(t.recorder.CreatedAddresses()),
		IgnoredAddresses: t.db.IgnoredAddresses(),
	}
	if result.Success && (call.kind == vm.Create || call.kind == vm.Create2) {
		response.CreatedAddress = result.CreatedAddress
		response.Data = result.CreatedAddress[:]
	}
	return response, nil
}

// cappedRefund applies the refund cap: one fifth of the consumed gas since
// EIP-3529 (London), one half before.
func cappedRefund(refund, gasUsed vm.Gas, revision vm.Revision) vm.Gas {
	quotient := vm.Gas(5)
	if revision < vm.R10_London {
		quotient = 2
	}
	if refund < 0 {
		return 0
	}
	if cap := gasUsed / quotient; refund > cap {
		return cap
	}
	return refund
}

func exitReason(result vm.CallResult) string {
	if result.Success {
		return ExitSuccess
	}
	if result.Halt == "" {
		return ExitRevert
	}
	return string(result.Halt)
}
