package evm

import (
	"bytes"
	"math"

	"github.com/sbip-sg/tevm/vm"

	"github.com/holiman/uint256"
)

func opStop() status {
	return statusStopped
}

func opEndWithResult(c *context) error {
	offset := *c.stack.pop()
	size := *c.stack.pop()
	if err := checkSizeOffsetUint64Overflow(&offset, &size); err != nil {
		return err
	}
	data, err := c.memory.getSlice(offset.Uint64(), size.Uint64(), c)
	if err != nil {
		return err
	}
	c.returnData = bytes.Clone(data)
	return nil
}

func opPc(c *context) {
	c.stack.pushUndefined().SetUint64(uint64(c.pc))
}

func opJump(c *context) error {
	destination := c.stack.pop()
	if !destination.IsUint64() || destination.Uint64() > math.MaxInt32 {
		return errInvalidJump
	}
	dest := destination.Uint64()
	if !c.code.isValidJumpDest(dest) {
		return errInvalidJump
	}
	// The main loop increments the PC after each instruction.
	c.pc = int(dest) - 1
	return nil
}

func opJumpi(c *context) error {
	destination := c.stack.pop()
	condition := c.stack.pop()
	if condition.IsZero() {
		return nil
	}
	if !destination.IsUint64() || destination.Uint64() > math.MaxInt32 {
		return errInvalidJump
	}
	dest := destination.Uint64()
	if !c.code.isValidJumpDest(dest) {
		return errInvalidJump
	}
	c.pc = int(dest) - 1
	return nil
}

func opPop(c *context) {
	c.stack.pop()
}

// opPush reads the n immediate bytes following the PUSH opcode from the raw
// code, padding with zeros when the code ends early, and advances the PC
// past the immediate data.
func opPush(c *context, n int) {
	z := c.stack.pushUndefined()
	var value [32]byte
	start := c.pc + 1
	for i := 0; i < n; i++ {
		if start+i < c.code.length() {
			value[i] = c.code.code[start+i]
		}
	}
	z.SetBytes(value[:n])
	c.pc += n
}

func opPush0(c *context) error {
	if !c.isAtLeast(vm.R12_Shanghai) {
		return errInvalidRevision
	}
	z := c.stack.pushUndefined()
	z[3], z[2], z[1], z[0] = 0, 0, 0, 0
	return nil
}

func opDup(c *context, pos int) {
	c.stack.dup(pos - 1)
}

func opSwap(c *context, pos int) {
	c.stack.swap(pos)
}

func opMstore(c *context) error {
	var addr = c.stack.pop()
	var value = c.stack.pop()

	offset, overflow := addr.Uint64WithOverflow()
	if overflow {
		return errOverflow
	}
	data := value.Bytes32()
	return c.memory.set(offset, data[:], c)
}

func opMstore8(c *context) error {
	var addr = c.stack.pop()
	var value = c.stack.pop()

	offset, overflow := addr.Uint64WithOverflow()
	if overflow {
		return errOverflow
	}
	return c.memory.set(offset, []byte{byte(value.Uint64())}, c)
}

func opMload(c *context) error {
	var trg = c.stack.peek()
	var addr = *trg

	if !addr.IsUint64() {
		return errOverflow
	}
	return c.memory.readWord(addr.Uint64(), trg, c)
}

func opMsize(c *context) {
	c.stack.pushUndefined().SetUint64(c.memory.length())
}

func opMcopy(c *context) error {
	if !c.isAtLeast(vm.R13_Cancun) {
		return errInvalidRevision
	}
	var destAddr = c.stack.pop()
	var srcAddr = c.stack.pop()
	var sizeU256 = c.stack.pop()

	if sizeU256.IsZero() {
		// zero size skips expansions although offset may be off-bounds
		return nil
	}

	destOffset, destOverflow := destAddr.Uint64WithOverflow()
	srcOffset, srcOverflow := srcAddr.Uint64WithOverflow()
	if destOverflow || srcOverflow || !sizeU256.IsUint64() {
		return errOverflow
	}

	size := sizeU256.Uint64()
	price := vm.Gas(3 * vm.SizeInWords(size))
	if err := c.useGas(price); err != nil {
		return err
	}

	data, err := c.memory.getSlice(srcOffset, size, c)
	if err != nil {
		return err
	}
	data = bytes.Clone(data)
	return c.memory.set(destOffset, data, c)
}

func opSstore(c *context) error {
	// SSTORE is a write instruction, it shall not be executed in static mode.
	if c.params.Static {
		return errWriteProtection
	}

	var key = vm.Key(c.stack.pop().Bytes32())
	var value = vm.Word(c.stack.pop().Bytes32())

	cost, err := gasSStore(c, key, value)
	if err != nil {
		return err
	}
	if err := c.useGas(cost); err != nil {
		return err
	}

	prev := c.context.GetStorage(c.params.Recipient, key)
	c.context.SetStorage(c.params.Recipient, key, value)
	c.traceStorage(vm.StorageWrite, key, prev, value)
	return nil
}

func opSload(c *context) error {
	var top = c.stack.peek()

	addr := c.params.Recipient
	slot := vm.Key(top.Bytes32())
	if c.isAtLeast(vm.R09_Berlin) {
		// charge costs for warm/cold slot access
		costs := WarmStorageReadCostEIP2929
		if c.context.AccessStorage(addr, slot) == vm.ColdAccess {
			costs = ColdSloadCostEIP2929
		}
		if err := c.useGas(costs); err != nil {
			return err
		}
	}
	value := c.context.GetStorage(addr, slot)
	c.traceStorage(vm.StorageRead, slot, value, value)
	top.SetBytes32(value[:])
	return nil
}

func opTstore(c *context) error {
	if !c.isAtLeast(vm.R13_Cancun) {
		return errInvalidRevision
	}
	if c.params.Static {
		return errWriteProtection
	}
	key := vm.Key(c.stack.pop().Bytes32())
	value := vm.Word(c.stack.pop().Bytes32())
	c.context.SetTransientStorage(c.params.Recipient, key, value)
	return nil
}

func opTload(c *context) error {
	if !c.isAtLeast(vm.R13_Cancun) {
		return errInvalidRevision
	}
	top := c.stack.peek()
	key := vm.Key(top.Bytes32())
	value := c.context.GetTransientStorage(c.params.Recipient, key)
	top.SetBytes32(value[:])
	return nil
}

func opCaller(c *context) {
	c.stack.pushUndefined().SetBytes20(c.params.Sender[:])
}

func opCallvalue(c *context) {
	c.stack.pushUndefined().SetBytes32(c.params.Value[:])
}

func opCallDatasize(c *context) {
	c.stack.pushUndefined().SetUint64(uint64(len(c.params.Input)))
}

func opCallDataload(c *context) {
	top := c.stack.peek()
	if !top.IsUint64() {
		top.Clear()
		return
	}

	offset := top.Uint64()
	input := c.params.Input
	var value [32]byte
	for i := 0; i < 32; i++ {
		pos := i + int(offset)
		if pos < 0 {
			top.Clear()
			return
		}
		if pos < len(input) {
			value[i] = input[pos]
		}
	}
	top.SetBytes(value[:])
}

// genericDataCopy implements CALLDATACOPY and CODECOPY, copying a zero-padded
// view of the given data into memory.
func genericDataCopy(c *context, data []byte) error {
	var (
		memOffset  = c.stack.pop()
		dataOffset = c.stack.pop()
		length     = c.stack.pop()
	)
	dataOffset64, overflow := dataOffset.Uint64WithOverflow()
	if overflow {
		dataOffset64 = math.MaxUint64
	}

	if err := checkSizeOffsetUint64Overflow(memOffset, length); err != nil {
		return err
	}

	// Charge for the copy costs
	words := vm.SizeInWords(length.Uint64())
	if err := c.useGas(vm.Gas(3 * words)); err != nil {
		return err
	}

	trg, err := c.memory.getSlice(memOffset.Uint64(), length.Uint64(), c)
	if err != nil {
		return err
	}
	copy(trg, getData(data, dataOffset64, length.Uint64()))
	return nil
}

func opAnd(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.And(a, b)
}

func opOr(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.Or(a, b)
}

func opNot(c *context) {
	a := c.stack.peek()
	a.Not(a)
}

func opXor(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.Xor(a, b)
}

func opIszero(c *context) {
	top := c.stack.peek()
	if top.IsZero() {
		top.SetOne()
	} else {
		top.Clear()
	}
}

func opEq(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	if a.Eq(b) {
		b.SetOne()
	} else {
		b.Clear()
	}
}

func opLt(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	if a.Lt(b) {
		b.SetOne()
	} else {
		b.Clear()
	}
}

func opGt(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	if a.Gt(b) {
		b.SetOne()
	} else {
		b.Clear()
	}
}

func opSlt(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	if a.Slt(b) {
		b.SetOne()
	} else {
		b.Clear()
	}
}

func opSgt(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	if a.Sgt(b) {
		b.SetOne()
	} else {
		b.Clear()
	}
}

func opShr(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	if a.LtUint64(256) {
		b.Rsh(b, uint(a.Uint64()))
	} else {
		b.Clear()
	}
}

func opShl(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	if a.LtUint64(256) {
		b.Lsh(b, uint(a.Uint64()))
	} else {
		b.Clear()
	}
}

func opSar(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	if a.GtUint64(256) {
		if b.Sign() >= 0 {
			b.Clear()
		} else {
			b.SetAllOne()
		}
		return
	}
	b.SRsh(b, uint(a.Uint64()))
}

func opSignExtend(c *context) {
	back, num := c.stack.pop(), c.stack.peek()
	num.ExtendSign(num, back)
}

func opByte(c *context) {
	th, val := c.stack.pop(), c.stack.peek()
	val.Byte(th)
}

func opAdd(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	if c.tracer != nil {
		if _, overflow := new(uint256.Int).AddOverflow(a, b); overflow {
			c.traceBug(vm.BugIntegerOverflow, byte(ADD))
		}
	}
	b.Add(a, b)
}

func opSub(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	if c.tracer != nil && a.Lt(b) {
		c.traceBug(vm.BugIntegerSubUnderflow, byte(SUB))
	}
	b.Sub(a, b)
}

func opMul(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	if c.tracer != nil {
		if _, overflow := new(uint256.Int).MulOverflow(a, b); overflow {
			c.traceBug(vm.BugIntegerOverflow, byte(MUL))
		}
	}
	b.Mul(a, b)
}

func opDiv(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	if c.tracer != nil && b.IsZero() {
		c.traceBug(vm.BugIntegerDivByZero, byte(DIV))
	}
	b.Div(a, b)
}

func opSDiv(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	if c.tracer != nil && b.IsZero() {
		c.traceBug(vm.BugIntegerDivByZero, byte(SDIV))
	}
	b.SDiv(a, b)
}

func opMod(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	if c.tracer != nil && b.IsZero() {
		c.traceBug(vm.BugIntegerModByZero, byte(MOD))
	}
	b.Mod(a, b)
}

func opSMod(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	if c.tracer != nil && b.IsZero() {
		c.traceBug(vm.BugIntegerModByZero, byte(SMOD))
	}
	b.SMod(a, b)
}

func opAddMod(c *context) {
	a := c.stack.pop()
	b := c.stack.pop()
	n := c.stack.peek()
	if c.tracer != nil && n.IsZero() {
		c.traceBug(vm.BugIntegerModByZero, byte(ADDMOD))
	}
	n.AddMod(a, b, n)
}

func opMulMod(c *context) {
	a := c.stack.pop()
	b := c.stack.pop()
	n := c.stack.peek()
	if c.tracer != nil && n.IsZero() {
		c.traceBug(vm.BugIntegerModByZero, byte(MULMOD))
	}
	n.MulMod(a, b, n)
}

func opExp(c *context) error {
	base, exponent := c.stack.pop(), c.stack.peek()
	if err := c.useGas(vm.Gas(50 * exponent.ByteLen())); err != nil {
		return err
	}
	exponent.Exp(base, exponent)
	return nil
}

func opSha3(c *context) error {
	offset, size := c.stack.pop(), c.stack.peek()

	if checkSizeOffsetUint64Overflow(offset, size) != nil {
		return errOverflow
	}

	data, err := c.memory.getSlice(offset.Uint64(), size.Uint64(), c)
	if err != nil {
		return err
	}

	// charge dynamic gas price
	words := vm.SizeInWords(size.Uint64())
	if err := c.useGas(vm.Gas(6 * words)); err != nil {
		return err
	}
	hash := Keccak256(data)
	if c.tracer != nil {
		c.tracer.TraceSha3(bytes.Clone(data), hash)
	}

	size.SetBytes32(hash[:])
	return nil
}

func opGas(c *context) {
	c.stack.pushUndefined().SetUint64(uint64(c.gas))
}

func opPrevRandao(c *context) {
	prevRandao := c.params.PrevRandao
	c.stack.pushUndefined().SetBytes32(prevRandao[:])
}

func opTimestamp(c *context) {
	c.stack.pushUndefined().SetUint64(uint64(c.params.Timestamp))
}

func opNumber(c *context) {
	c.stack.pushUndefined().SetUint64(uint64(c.params.BlockNumber))
}

func opCoinbase(c *context) {
	coinbase := c.params.Coinbase
	c.stack.pushUndefined().SetBytes20(coinbase[:])
}

func opGasLimit(c *context) {
	c.stack.pushUndefined().SetUint64(uint64(c.params.GasLimit))
}

func opGasPrice(c *context) {
	price := c.params.GasPrice
	c.stack.pushUndefined().SetBytes32(price[:])
}

func opBalance(c *context) error {
	slot := c.stack.peek()
	address := vm.Address(slot.Bytes20())
	if c.isAtLeast(vm.R09_Berlin) {
		if err := c.useGas(getAccessCost(c.context.AccessAccount(address))); err != nil {
			return err
		}
	}
	balance := c.context.GetBalance(address)
	slot.SetBytes32(balance[:])
	return nil
}

func opSelfbalance(c *context) {
	balance := c.context.GetBalance(c.params.Recipient)
	c.stack.pushUndefined().SetBytes32(balance[:])
}

func opBaseFee(c *context) error {
	if !c.isAtLeast(vm.R10_London) {
		return errInvalidRevision
	}
	fee := c.params.BaseFee
	c.stack.pushUndefined().SetBytes32(fee[:])
	return nil
}

func opSelfdestruct(c *context) (status, error) {
	// SELFDESTRUCT is a write instruction, it shall not be executed in
	// static mode.
	if c.params.Static {
		return statusStopped, errWriteProtection
	}

	beneficiary := vm.Address(c.stack.pop().Bytes20())
	cost := vm.Gas(0)
	if c.isAtLeast(vm.R09_Berlin) {
		// per EIP-2929, selfdestruct does not charge for warm access
		if accessStatus := c.context.AccessAccount(beneficiary); accessStatus != vm.WarmAccess {
			cost += getAccessCost(accessStatus)
		}
	}
	cost += selfDestructNewAccountCost(c.context.AccountExists(beneficiary),
		c.context.GetBalance(c.params.Recipient))
	if err := c.useGas(cost); err != nil {
		return statusStopped, err
	}

	destructed := c.context.SelfDestruct(c.params.Recipient, beneficiary)
	c.refund += selfDestructRefund(destructed, c.params.Revision)
	return statusSelfDestructed, nil
}

func selfDestructNewAccountCost(accountExists bool, balance vm.Value) vm.Gas {
	if !accountExists && balance != (vm.Value{}) {
		// cost of creating an account, see EIP-150
		return CreateBySelfdestructGas
	}
	return 0
}

func selfDestructRefund(destructed bool, revision vm.Revision) vm.Gas {
	// Since London there is no more refund (see EIP-3529).
	if destructed && revision < vm.R10_London {
		return SelfdestructRefundGas
	}
	return 0
}

func opChainId(c *context) {
	id := c.params.ChainID
	c.stack.pushUndefined().SetBytes32(id[:])
}

func opBlockhash(c *context) {
	num := c.stack.peek()
	num64, overflow := num.Uint64WithOverflow()
	if overflow {
		num.Clear()
		return
	}
	var upper, lower uint64
	upper = uint64(c.params.BlockNumber)
	if upper < 257 {
		lower = 0
	} else {
		lower = upper - 256
	}
	if num64 >= lower && num64 < upper {
		hash := c.context.GetBlockHash(int64(num64))
		num.SetBytes(hash[:])
	} else {
		num.Clear()
	}
}

func opAddress(c *context) {
	c.stack.pushUndefined().SetBytes20(c.params.Recipient[:])
}

func opOrigin(c *context) {
	origin := c.params.Origin
	c.stack.pushUndefined().SetBytes20(origin[:])
}

func opCodeSize(c *context) {
	c.stack.pushUndefined().SetUint64(uint64(len(c.params.Code)))
}

func opExtcodesize(c *context) error {
	top := c.stack.peek()
	address := vm.Address(top.Bytes20())
	if c.isAtLeast(vm.R09_Berlin) {
		if err := c.useGas(getAccessCost(c.context.AccessAccount(address))); err != nil {
			return err
		}
	}
	top.SetUint64(uint64(c.context.GetCodeSize(address)))
	return nil
}

func opExtcodehash(c *context) error {
	slot := c.stack.peek()
	address := vm.Address(slot.Bytes20())
	if c.isAtLeast(vm.R09_Berlin) {
		if err := c.useGas(getAccessCost(c.context.AccessAccount(address))); err != nil {
			return err
		}
	}
	if !c.context.AccountExists(address) {
		slot.Clear()
	} else {
		hash := c.context.GetCodeHash(address)
		slot.SetBytes32(hash[:])
	}
	return nil
}

func opExtCodeCopy(c *context) error {
	var (
		stack      = c.stack
		a          = stack.pop()
		memOffset  = stack.pop()
		codeOffset = stack.pop()
		length     = stack.pop()
	)
	if err := checkSizeOffsetUint64Overflow(memOffset, length); err != nil {
		return err
	}

	// Charge for length of copied code
	words := vm.SizeInWords(length.Uint64())
	if err := c.useGas(vm.Gas(3 * words)); err != nil {
		return err
	}

	address := vm.Address(a.Bytes20())
	if c.isAtLeast(vm.R09_Berlin) {
		if err := c.useGas(getAccessCost(c.context.AccessAccount(address))); err != nil {
			return err
		}
	}
	var uint64CodeOffset uint64
	if codeOffset.IsUint64() {
		uint64CodeOffset = codeOffset.Uint64()
	} else {
		uint64CodeOffset = math.MaxUint64
	}

	data, err := c.memory.getSlice(memOffset.Uint64(), length.Uint64(), c)
	if err != nil {
		return err
	}
	copy(data, getData(c.context.GetCode(address), uint64CodeOffset, length.Uint64()))
	return nil
}

func opReturnDataSize(c *context) {
	c.stack.pushUndefined().SetUint64(uint64(len(c.returnData)))
}

func opReturnDataCopy(c *context) error {
	var (
		memOffset  = c.stack.pop()
		dataOffset = c.stack.pop()
		length     = c.stack.pop()
	)

	offset64, overflow := dataOffset.Uint64WithOverflow()
	if overflow {
		return errReturnDataOutOfBounds
	}
	var end = new(uint256.Int).Add(dataOffset, length)
	end64, overflow := end.Uint64WithOverflow()
	if overflow {
		return errReturnDataOutOfBounds
	}

	if uint64(len(c.returnData)) < end64 {
		return errReturnDataOutOfBounds
	}

	if err := checkSizeOffsetUint64Overflow(memOffset, length); err != nil {
		return err
	}

	words := vm.SizeInWords(length.Uint64())
	if err := c.useGas(vm.Gas(3 * words)); err != nil {
		return errOutOfGas
	}

	return c.memory.set(memOffset.Uint64(), c.returnData[offset64:end64], c)
}

func opLog(c *context, size int) error {
	// LogN op codes are write instructions, they shall not be executed in
	// static mode.
	if c.params.Static {
		return errWriteProtection
	}

	topics := make([]vm.Hash, size)
	stack := c.stack
	mStart, mSize := stack.pop(), stack.pop()

	if err := checkSizeOffsetUint64Overflow(mStart, mSize); err != nil {
		return err
	}

	for i := 0; i < size; i++ {
		addr := stack.pop()
		topics[i] = addr.Bytes32()
	}

	start := mStart.Uint64()
	logSize := mSize.Uint64()

	// charge for log size
	if err := c.useGas(vm.Gas(8 * logSize)); err != nil {
		return err
	}

	data, err := c.memory.getSlice(start, logSize, c)
	if err != nil {
		return err
	}

	// make a copy of the data to disconnect from memory
	c.context.EmitLog(vm.Log{
		Address: c.params.Recipient,
		Topics:  topics,
		Data:    bytes.Clone(data),
	})
	return nil
}

func genericCreate(c *context, kind vm.CallKind) error {
	// Create is a write instruction, it shall not be executed in static mode.
	if c.params.Static {
		return errWriteProtection
	}

	var (
		value  = c.stack.pop()
		offset = c.stack.pop()
		size   = c.stack.pop()
		salt   = vm.Hash{}
	)
	if kind == vm.Create2 {
		salt = c.stack.pop().Bytes32()
	}

	if checkSizeOffsetUint64Overflow(offset, size) != nil {
		return errOverflow
	}

	sizeU64 := size.Uint64()
	input, err := c.memory.getSlice(offset.Uint64(), sizeU64, c)
	if err != nil {
		return err
	}

	if c.isAtLeast(vm.R12_Shanghai) {
		initCodeCost, err := computeCodeSizeCost(sizeU64)
		if err != nil {
			return err
		}
		if err = c.useGas(initCodeCost); err != nil {
			return err
		}
	}

	if kind == vm.Create2 {
		// Charge for hashing the init code to compute the target address.
		words := vm.SizeInWords(sizeU64)
		if err := c.useGas(vm.Gas(6 * words)); err != nil {
			return err
		}
	}

	if !value.IsZero() {
		balance := c.context.GetBalance(c.params.Recipient)
		balanceU256 := new(uint256.Int).SetBytes(balance[:])
		if value.Gt(balanceU256) {
			c.stack.pushUndefined().Clear()
			c.returnData = nil
			return nil
		}
	}

	// Apply EIP-150: forward all but one 64th of the remaining gas.
	gas := c.gas
	gas -= gas / 64
	if err := c.useGas(gas); err != nil {
		return err
	}

	res, err := c.context.Call(kind, vm.CallParameters{
		Sender: c.params.Recipient,
		Value:  vm.Value(value.Bytes32()),
		Input:  bytes.Clone(input),
		Gas:    gas,
		Salt:   salt,
	})

	// Push item on the stack based on the returned error.
	success := c.stack.pushUndefined()
	if !res.Success || err != nil {
		success.Clear()
	} else {
		success.SetBytes20(res.CreatedAddress[:])
	}

	if !res.Success && err == nil {
		c.returnData = res.Output
	} else {
		c.returnData = nil
	}
	c.gas += res.GasLeft
	c.refund += res.GasRefund
	return nil
}

// computeCodeSizeCost charges for the size of the init code per EIP-3860.
// Returns an error if size is greater than MaxInitCodeSize.
func computeCodeSizeCost(size uint64) (vm.Gas, error) {
	if size > MaxInitCodeSize {
		return 0, errInitCodeTooLarge
	}
	// Once per word of the init code when creating a contract.
	const initCodeWordGas = 2
	return vm.Gas(initCodeWordGas * vm.SizeInWords(size)), nil
}

func getData(data []byte, start uint64, size uint64) []byte {
	length := uint64(len(data))
	if start > length {
		start = length
	}
	end := start + size
	if end > length {
		end = length
	}
	// Apply some right-padding to the result.
	res := make([]byte, int(size))
	copy(res, data[start:end])
	return res
}

func checkSizeOffsetUint64Overflow(offset, size *uint256.Int) error {
	if size.IsZero() {
		return nil
	}
	if !offset.IsUint64() || !size.IsUint64() || offset.Uint64()+size.Uint64() < offset.Uint64() {
		return errOverflow
	}
	return nil
}

func genericCall(c *context, kind vm.CallKind) error {
	stack := c.stack
	value := uint256.NewInt(0)

	// Pop call parameters.
	providedGas, addr := stack.pop(), stack.pop()
	if kind == vm.Call || kind == vm.CallCode {
		value = stack.pop()
	}
	inOffset, inSize, retOffset, retSize := stack.pop(), stack.pop(), stack.pop(), stack.pop()

	toAddr := vm.Address(addr.Bytes20())

	if checkSizeOffsetUint64Overflow(inOffset, inSize) != nil {
		return errOverflow
	}
	if checkSizeOffsetUint64Overflow(retOffset, retSize) != nil {
		return errOverflow
	}

	// Get arguments from the memory.
	args, err := c.memory.getSlice(inOffset.Uint64(), inSize.Uint64(), c)
	if err != nil {
		return err
	}
	output, err := c.memory.getSlice(retOffset.Uint64(), retSize.Uint64(), c)
	if err != nil {
		return err
	}

	// from Berlin onwards access cost changes depending on warm/cold access.
	if c.isAtLeast(vm.R09_Berlin) {
		if err := c.useGas(getAccessCost(c.context.AccessAccount(toAddr))); err != nil {
			return err
		}
	}

	// for static and delegate calls, the following value checks will always
	// be zero. Charge for transferring value to a new address.
	if !value.IsZero() {
		if err := c.useGas(CallValueTransferGas); err != nil {
			return err
		}
	}

	// EIP-158 states that non-zero value calls that create a new account
	// should be charged an additional gas fee.
	if kind == vm.Call && !value.IsZero() && !c.context.AccountExists(toAddr) {
		if err := c.useGas(CallNewAccountGas); err != nil {
			return err
		}
	}

	// EIP-150 defines that all but one 64th of the available gas in one
	// scope may be passed to a nested call.
	nestedCallGas := c.gas - c.gas/64
	if providedGas.IsUint64() && nestedCallGas >= vm.Gas(providedGas.Uint64()) {
		nestedCallGas = vm.Gas(providedGas.Uint64())
	}
	if err := c.useGas(nestedCallGas); err != nil {
		// this usage can never fail because the endowment is at most
		// 63/64 of the current gas level.
		return err
	}

	// A stipend is granted to the callee for non-zero value transfers.
	if !value.IsZero() {
		nestedCallGas += CallStipend
	}

	// Check that the caller has enough balance to transfer the requested
	// value.
	if (kind == vm.Call || kind == vm.CallCode) && !value.IsZero() {
		balance := c.context.GetBalance(c.params.Recipient)
		balanceU256 := new(uint256.Int).SetBytes32(balance[:])
		if balanceU256.Lt(value) {
			c.stack.pushUndefined().Clear()
			c.returnData = nil
			c.gas += nestedCallGas // the gas sent to the nested contract is returned
			return nil
		}
	}

	// Inside a static context, recursive calls are treated like static calls.
	if c.params.Static && kind == vm.Call {
		kind = vm.StaticCall
	}

	// Prepare arguments, depending on call kind.
	callParams := vm.CallParameters{
		Input: bytes.Clone(args),
		Gas:   nestedCallGas,
		Value: vm.Value(value.Bytes32()),
	}

	switch kind {
	case vm.Call, vm.StaticCall:
		callParams.Sender = c.params.Recipient
		callParams.Recipient = toAddr
		callParams.CodeAddress = toAddr

	case vm.CallCode:
		callParams.Sender = c.params.Recipient
		callParams.Recipient = c.params.Recipient
		callParams.CodeAddress = toAddr

	case vm.DelegateCall:
		callParams.Sender = c.params.Sender
		callParams.Recipient = c.params.Recipient
		callParams.CodeAddress = toAddr
		callParams.Value = c.params.Value
	}

	// Perform the call.
	ret, err := c.context.Call(kind, callParams)

	if err == nil {
		copy(output, ret.Output)
	}

	success := stack.pushUndefined()
	if err != nil || !ret.Success {
		success.Clear()
	} else {
		success.SetOne()
	}
	c.gas += ret.GasLeft
	c.refund += ret.GasRefund
	c.returnData = ret.Output
	return nil
}

func opCall(c *context) error {
	value := c.stack.peekN(2)
	// In a static call, no value must be transferred.
	if c.params.Static && !value.IsZero() {
		return errWriteProtection
	}
	return genericCall(c, vm.Call)
}

func opCallCode(c *context) error {
	return genericCall(c, vm.CallCode)
}

func opStaticCall(c *context) error {
	return genericCall(c, vm.StaticCall)
}

func opDelegateCall(c *context) error {
	return genericCall(c, vm.DelegateCall)
}
