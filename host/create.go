package host

import (
	"github.com/sbip-sg/tevm/instrument"
	"github.com/sbip-sg/tevm/vm"
)

// runCreate executes a CREATE or CREATE2 frame: it derives the new address,
// checks for collisions, runs the init code, and deploys the returned code.
func (h *Host) runCreate(kind vm.CallKind, params vm.CallParameters, static bool) (vm.CallResult, error) {
	sender := params.Sender

	nonce := h.DB.GetNonce(sender)
	if nonce+1 < nonce {
		return vm.CallResult{Success: false}, vm.ErrNonceOverflow
	}

	var addr vm.Address
	if kind == vm.Create2 {
		initCodeHash := keccak256(params.Input)
		addr = CreateAddress2(sender, params.Salt, initCodeHash)
	} else {
		addr = CreateAddress(sender, nonce)
	}

	// Deterministic deployment: the session may request new code to be
	// placed at a caller-specified address instead of the derived one.
	overridden := false
	if forced, found := h.addressOverrides[addr]; found {
		addr = forced
		overridden = true
	}

	h.DB.SetNonce(sender, nonce+1)

	h.traces.Enter(kind, sender, addr, params.Value, params.Input, params.Gas, static)

	// An account with a non-zero nonce or non-empty code blocks the address.
	// Deterministic deployments skip the check for the top-level creation
	// frame and overwrite the code while preserving the balance.
	skipCollision := overridden || (h.overwriteCollision && h.depth == 1)
	if !skipCollision {
		if h.DB.GetNonce(addr) > 0 || h.DB.GetCodeSize(addr) > 0 {
			h.logger.Debug("create collision", "address", addr)
			h.traces.Exit(nil, params.Gas, instrument.CallStatusHalted, haltCreateCollision)
			return vm.CallResult{Success: false, CreatedAddress: addr, Halt: haltCreateCollision}, nil
		}
	}

	mark := h.recorder.Mark()
	snapshot := h.DB.CreateSnapshot()

	h.DB.CreateAccount(addr)
	h.DB.SetNonce(addr, 1)
	if h.block.Revision >= vm.R09_Berlin {
		h.DB.AccessAccount(addr)
	}

	if err := h.transferValue(sender, addr, params.Value); err != nil {
		h.DB.RestoreSnapshot(snapshot)
		h.traces.Exit(nil, 0, instrument.CallStatusHalted, haltInsufficientBalance)
		return vm.CallResult{Success: false, GasLeft: params.Gas, Halt: haltInsufficientBalance}, nil
	}

	result, err := h.interpreter.Run(vm.Parameters{
		BlockParameters:       h.block,
		TransactionParameters: h.txCtx,
		Context:               h,
		Tracer:                h.tracer(),
		Kind:                  kind,
		Static:                static,
		Depth:                 h.depth,
		Gas:                   params.Gas,
		Recipient:             addr,
		Sender:                sender,
		Input:                 nil,
		Value:                 params.Value,
		Code:                  vm.Code(params.Input),
	})
	if err != nil {
		h.DB.RestoreSnapshot(snapshot)
		h.recorder.Truncate(mark)
		h.traces.Exit(nil, 0, instrument.CallStatusHalted, vm.HaltInternal)
		return vm.CallResult{}, err
	}

	if result.Success {
		result = h.deployCode(addr, result)
	}

	if !result.Success {
		h.DB.RestoreSnapshot(snapshot)
		h.recorder.Truncate(mark)
		h.traces.Exit(result.Output, params.Gas-result.GasLeft, callStatus(result), result.Halt)
		return vm.CallResult{
			Output:  result.Output,
			GasLeft: result.GasLeft,
			Success: false,
			Halt:    result.Halt,
		}, nil
	}

	h.recorder.NoteCreated(addr)
	h.traces.Exit(h.DB.GetCode(addr), params.Gas-result.GasLeft, instrument.CallStatusSuccess, "")
	return vm.CallResult{
		GasLeft:        result.GasLeft,
		GasRefund:      result.GasRefund,
		CreatedAddress: addr,
		Success:        true,
	}, nil
}

// deployCode validates the init code output and charges the per-byte code
// deposit cost before storing it as the account code.
func (h *Host) deployCode(addr vm.Address, result vm.Result) vm.Result {
	code := result.Output

	// EIP-3541: reject new code starting with the 0xEF byte.
	if h.block.Revision >= vm.R10_London && len(code) > 0 && code[0] == 0xEF {
		return vm.Result{Success: false, Halt: vm.HaltInvalidOpCode}
	}
	// EIP-170: limit the size of deployed code.
	if len(code) > maxCodeSize {
		return vm.Result{Success: false, Halt: vm.HaltInvalidOpCode}
	}
	depositCost := vm.Gas(len(code)) * createDataGas
	if result.GasLeft < depositCost {
		return vm.Result{Success: false, Halt: vm.HaltOutOfGas}
	}
	result.GasLeft -= depositCost
	result.Output = nil

	h.DB.SetCode(addr, vm.Code(code))
	return result
}

const (
	maxCodeSize   = 24576
	createDataGas = vm.Gas(200)
)
