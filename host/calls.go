package host

import (
	"github.com/sbip-sg/tevm/instrument"
	"github.com/sbip-sg/tevm/vm"
)

// runCall executes a CALL, CALLCODE, DELEGATECALL or STATICCALL frame.
func (h *Host) runCall(kind vm.CallKind, params vm.CallParameters, static bool) (vm.CallResult, error) {
	h.traces.Enter(kind, params.Sender, params.CodeAddress, params.Value, params.Input, params.Gas, static)

	mark := h.recorder.Mark()
	snapshot := h.DB.CreateSnapshot()

	// Value is transferred for plain calls only; CALLCODE keeps the value
	// with the caller, DELEGATECALL and STATICCALL transfer nothing.
	if kind == vm.Call && !static {
		if err := h.transferValue(params.Sender, params.Recipient, params.Value); err != nil {
			h.DB.RestoreSnapshot(snapshot)
			h.traces.Exit(nil, 0, instrument.CallStatusHalted, haltInsufficientBalance)
			return vm.CallResult{Success: false, GasLeft: params.Gas, Halt: haltInsufficientBalance}, nil
		}
	}

	if result, isPrecompiled := handlePrecompiled(h.block.Revision, params.Input, params.CodeAddress, params.Gas); isPrecompiled {
		if !result.Success {
			h.DB.RestoreSnapshot(snapshot)
			h.recorder.Truncate(mark)
			h.traces.Exit(nil, params.Gas-result.GasLeft, instrument.CallStatusHalted, result.Halt)
		} else {
			h.traces.Exit(result.Output, params.Gas-result.GasLeft, instrument.CallStatusSuccess, "")
		}
		return result, nil
	}

	codeHash := h.DB.GetCodeHash(params.CodeAddress)
	code := h.DB.GetCode(params.CodeAddress)

	result, err := h.interpreter.Run(vm.Parameters{
		BlockParameters:       h.block,
		TransactionParameters: h.txCtx,
		Context:               h,
		Tracer:                h.tracer(),
		Kind:                  kind,
		Static:                static,
		Depth:                 h.depth,
		Gas:                   params.Gas,
		Recipient:             params.Recipient,
		Sender:                params.Sender,
		Input:                 params.Input,
		Value:                 params.Value,
		CodeHash:              &codeHash,
		Code:                  code,
	})
	if err != nil {
		h.DB.RestoreSnapshot(snapshot)
		h.recorder.Truncate(mark)
		h.traces.Exit(nil, 0, instrument.CallStatusHalted, vm.HaltInternal)
		return vm.CallResult{}, err
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

	h.traces.Exit(result.Output, params.Gas-result.GasLeft, instrument.CallStatusSuccess, "")
	return vm.CallResult{
		Output:    result.Output,
		GasLeft:   result.GasLeft,
		GasRefund: result.GasRefund,
		Success:   true,
	}, nil
}

// callStatus labels an unsuccessful interpreter result for the call tree: a
// REVERT returns its unused gas, a halted frame consumed everything.
func callStatus(result vm.Result) instrument.CallStatus {
	if result.Halt == "" {
		return instrument.CallStatusReverted
	}
	return instrument.CallStatusHalted
}
