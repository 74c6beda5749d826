package evm

import (
	"errors"
	"fmt"

	"github.com/sbip-sg/tevm/vm"
)

// status is the enumeration of the execution state of an interpreter run.
type status byte

const (
	statusRunning        status = iota // < all fine, ops are processed
	statusStopped                      // < execution stopped with a STOP
	statusReverted                     // < execution stopped with a REVERT
	statusReturned                     // < execution stopped with a RETURN
	statusSelfDestructed               // < execution stopped with a SELFDESTRUCT
	statusFailed                       // < execution stopped with a logic error
)

// context is the execution environment of an interpreter run. It contains all
// the necessary state to execute a contract, including input parameters, the
// contract code, and internal execution state such as the program counter,
// stack, and memory. For each contract execution, a new context is created.
type context struct {
	// Inputs
	params   vm.Parameters
	context  vm.RunContext
	tracer   vm.Tracer
	code     Code
	codeHash vm.Hash

	// Execution state
	pc     int
	gas    vm.Gas
	refund vm.Gas
	stack  *stack
	memory *Memory

	// Intermediate data
	returnData []byte // < the result of the last nested contract call

	// Set when the execution stops with an error, for reporting purposes.
	haltError error
}

// useGas reduces the gas level by the given amount. If the gas level drops
// below zero, an out-of-gas error is returned and the caller should stop the
// execution.
func (c *context) useGas(amount vm.Gas) error {
	if c.gas < 0 || amount < 0 || c.gas < amount {
		return errOutOfGas
	}
	c.gas -= amount
	return nil
}

// isAtLeast returns true if the interpreter is running at least at the given
// revision or newer, false otherwise.
func (c *context) isAtLeast(revision vm.Revision) bool {
	return c.params.Revision >= revision
}

func (c *context) traceBug(kind vm.BugKind, op byte) {
	if c.tracer == nil {
		return
	}
	c.tracer.TraceBug(vm.Bug{
		Kind:    kind,
		OpCode:  op,
		PC:      c.pc,
		Address: c.params.Recipient,
		Depth:   c.params.Depth,
	})
}

func (c *context) traceStorage(op vm.StorageOp, key vm.Key, prev, value vm.Word) {
	if c.tracer == nil {
		return
	}
	c.tracer.TraceStorage(op, c.params.Recipient, key, prev, value, c.pc, c.params.Depth)
}

// Run executes the code defined by the given parameters against the analyzed
// code and returns the execution result.
func run(params vm.Parameters, code Code) (vm.Result, error) {
	// Don't bother with the execution if there's no code.
	if code.length() == 0 {
		return vm.Result{
			Output:  nil,
			GasLeft: params.Gas,
			Success: true,
		}, nil
	}

	var codeHash vm.Hash
	if params.CodeHash != nil {
		codeHash = *params.CodeHash
	} else {
		codeHash = Keccak256(params.Code)
	}

	var ctxt = context{
		params:   params,
		context:  params.Context,
		tracer:   params.Tracer,
		gas:      params.Gas,
		stack:    NewStack(),
		memory:   NewMemory(),
		code:     code,
		codeHash: codeHash,
	}
	defer ReturnStack(ctxt.stack)

	status := execute(&ctxt)
	return generateResult(status, &ctxt)
}

func generateResult(status status, ctxt *context) (vm.Result, error) {
	switch status {
	case statusStopped, statusSelfDestructed:
		return vm.Result{
			Success:   true,
			GasLeft:   ctxt.gas,
			GasRefund: ctxt.refund,
		}, nil
	case statusReturned:
		return vm.Result{
			Success:   true,
			Output:    ctxt.returnData,
			GasLeft:   ctxt.gas,
			GasRefund: ctxt.refund,
		}, nil
	case statusReverted:
		return vm.Result{
			Success: false,
			Output:  ctxt.returnData,
			GasLeft: ctxt.gas,
		}, nil
	case statusFailed:
		return vm.Result{
			Success: false,
			Halt:    haltReason(ctxt.haltError),
		}, nil
	default:
		return vm.Result{}, fmt.Errorf("unexpected error in interpreter, unknown status: %v", status)
	}
}

func haltReason(err error) vm.HaltReason {
	switch {
	case err == nil:
		return vm.HaltInternal
	case errors.Is(err, errOutOfGas), errors.Is(err, errGasUintOverflow),
		errors.Is(err, errOverflow):
		return vm.HaltOutOfGas
	case errors.Is(err, errInvalidJump):
		return vm.HaltInvalidJump
	case errors.Is(err, errStackUnderflow):
		return vm.HaltStackUnderflow
	case errors.Is(err, errStackOverflow):
		return vm.HaltStackOverflow
	case errors.Is(err, errWriteProtection):
		return vm.HaltStaticViolation
	case errors.Is(err, errInvalidOpCode), errors.Is(err, errInvalidRevision),
		errors.Is(err, errReturnDataOutOfBounds), errors.Is(err, errInitCodeTooLarge):
		return vm.HaltInvalidOpCode
	}
	return vm.HaltInternal
}

// execute runs the contract code in the given context to completion. Any
// execution violation (out of gas, stack underflow, ...) yields statusFailed
// with the triggering error retained in the context.
func execute(c *context) status {
	status, err := steps(c)
	if err != nil {
		c.haltError = err
		return statusFailed
	}
	return status
}

// steps executes the contract code in the given context one instruction at a
// time until the frame completes or faults.
func steps(c *context) (status, error) {
	gasPrices := getStaticGasPrices(c.params.Revision)

	status := statusRunning
	for status == statusRunning {
		if c.pc >= c.code.length() {
			return statusStopped, nil
		}

		op := OpCode(c.code.code[c.pc])

		// Check stack boundary for every instruction
		if err := checkStackLimits(c.stack.len(), op); err != nil {
			return status, err
		}

		// Consume static gas price for instruction before execution
		if err := c.useGas(gasPrices[op]); err != nil {
			return status, err
		}

		if c.tracer != nil {
			c.tracer.TraceOp(c.codeHash, c.params.Recipient, c.pc, byte(op))
			traceOpcodeHeuristics(c, op)
		}

		var err error

		// Execute instruction
		switch op {
		case STOP:
			status = opStop()
		case ADD:
			opAdd(c)
		case MUL:
			opMul(c)
		case SUB:
			opSub(c)
		case DIV:
			opDiv(c)
		case SDIV:
			opSDiv(c)
		case MOD:
			opMod(c)
		case SMOD:
			opSMod(c)
		case ADDMOD:
			opAddMod(c)
		case MULMOD:
			opMulMod(c)
		case EXP:
			err = opExp(c)
		case SIGNEXTEND:
			opSignExtend(c)
		case LT:
			opLt(c)
		case GT:
			opGt(c)
		case SLT:
			opSlt(c)
		case SGT:
			opSgt(c)
		case EQ:
			opEq(c)
		case ISZERO:
			opIszero(c)
		case AND:
			opAnd(c)
		case OR:
			opOr(c)
		case XOR:
			opXor(c)
		case NOT:
			opNot(c)
		case BYTE:
			opByte(c)
		case SHL:
			opShl(c)
		case SHR:
			opShr(c)
		case SAR:
			opSar(c)
		case SHA3:
			err = opSha3(c)
		case ADDRESS:
			opAddress(c)
		case BALANCE:
			err = opBalance(c)
		case ORIGIN:
			opOrigin(c)
		case CALLER:
			opCaller(c)
		case CALLVALUE:
			opCallvalue(c)
		case CALLDATALOAD:
			opCallDataload(c)
		case CALLDATASIZE:
			opCallDatasize(c)
		case CALLDATACOPY:
			err = genericDataCopy(c, c.params.Input)
		case CODESIZE:
			opCodeSize(c)
		case CODECOPY:
			err = genericDataCopy(c, c.params.Code)
		case GASPRICE:
			opGasPrice(c)
		case EXTCODESIZE:
			err = opExtcodesize(c)
		case EXTCODECOPY:
			err = opExtCodeCopy(c)
		case RETURNDATASIZE:
			opReturnDataSize(c)
		case RETURNDATACOPY:
			err = opReturnDataCopy(c)
		case EXTCODEHASH:
			err = opExtcodehash(c)
		case BLOCKHASH:
			opBlockhash(c)
		case COINBASE:
			opCoinbase(c)
		case TIMESTAMP:
			opTimestamp(c)
		case NUMBER:
			opNumber(c)
		case PREVRANDAO:
			opPrevRandao(c)
		case GASLIMIT:
			opGasLimit(c)
		case CHAINID:
			opChainId(c)
		case SELFBALANCE:
			opSelfbalance(c)
		case BASEFEE:
			err = opBaseFee(c)
		case POP:
			opPop(c)
		case MLOAD:
			err = opMload(c)
		case MSTORE:
			err = opMstore(c)
		case MSTORE8:
			err = opMstore8(c)
		case SLOAD:
			err = opSload(c)
		case SSTORE:
			err = opSstore(c)
		case JUMP:
			err = opJump(c)
		case JUMPI:
			err = opJumpi(c)
		case PC:
			opPc(c)
		case MSIZE:
			opMsize(c)
		case GAS:
			opGas(c)
		case JUMPDEST:
			// nothing
		case TLOAD:
			err = opTload(c)
		case TSTORE:
			err = opTstore(c)
		case MCOPY:
			err = opMcopy(c)
		case PUSH0:
			err = opPush0(c)
		case RETURN:
			err = opEndWithResult(c)
			status = statusReturned
		case REVERT:
			err = opEndWithResult(c)
			status = statusReverted
		case CREATE:
			err = genericCreate(c, vm.Create)
		case CALL:
			err = opCall(c)
		case CALLCODE:
			err = opCallCode(c)
		case DELEGATECALL:
			err = opDelegateCall(c)
		case CREATE2:
			err = genericCreate(c, vm.Create2)
		case STATICCALL:
			err = opStaticCall(c)
		case SELFDESTRUCT:
			status, err = opSelfdestruct(c)
		case LOG0:
			err = opLog(c, 0)
		case LOG1:
			err = opLog(c, 1)
		case LOG2:
			err = opLog(c, 2)
		case LOG3:
			err = opLog(c, 3)
		case LOG4:
			err = opLog(c, 4)
		default:
			switch {
			case op.isPush():
				opPush(c, op.pushSize())
			case DUP1 <= op && op <= DUP16:
				opDup(c, int(op)-int(DUP1)+1)
			case SWAP1 <= op && op <= SWAP16:
				opSwap(c, int(op)-int(SWAP1)+1)
			default:
				err = errInvalidOpCode
			}
		}

		if err != nil {
			return status, err
		}

		c.pc++
	}
	return status, nil
}

// traceOpcodeHeuristics reports the heuristic signals that depend only on the
// executed opcode, not on its operands.
func traceOpcodeHeuristics(c *context, op OpCode) {
	switch op {
	case TIMESTAMP:
		c.traceBug(vm.BugTimestampDependency, byte(op))
	case NUMBER:
		c.traceBug(vm.BugBlockNumberDependency, byte(op))
	case COINBASE, PREVRANDAO, GASLIMIT:
		c.traceBug(vm.BugBlockValueDependency, byte(op))
	case BLOCKHASH:
		c.traceBug(vm.BugBlockHashDependency, byte(op))
	case ORIGIN:
		c.traceBug(vm.BugTxOriginDependency, byte(op))
	case SELFDESTRUCT:
		c.traceBug(vm.BugSelfDestruct, byte(op))
	}
}
