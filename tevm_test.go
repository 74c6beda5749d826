package tevm

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/sbip-sg/tevm/vm"
)

// deployable wraps a runtime byte-code into a minimal constructor that
// copies the runtime code to memory and returns it.
func deployable(runtime []byte) string {
	size := byte(len(runtime))
	init := []byte{
		0x60, size, // PUSH1 <len>
		0x60, 0x0C, // PUSH1 12 (offset of the runtime code below)
		0x60, 0x00, // PUSH1 0
		0x39,       // CODECOPY
		0x60, size, // PUSH1 <len>
		0x60, 0x00, // PUSH1 0
		0xF3, // RETURN
	}
	return hex.EncodeToString(append(init, runtime...))
}

func word(tail ...byte) []byte {
	res := make([]byte, 32)
	copy(res[32-len(tail):], tail)
	return res
}

func newSession(t *testing.T) *TinyEVM {
	t.Helper()
	tevm, err := NewOffline()
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return tevm
}

func deploy(t *testing.T, tevm *TinyEVM, runtime []byte) string {
	t.Helper()
	resp, err := tevm.Deploy(deployable(runtime), "")
	if err != nil {
		t.Fatalf("deployment failed: %v", err)
	}
	if !resp.Success {
		t.Fatalf("deployment was not successful: %v", resp)
	}
	return resp.CreatedAddress.String()
}

func TestSession_GetSetBalance(t *testing.T) {
	tevm := newSession(t)
	target := "0x388C818CA8B9251b393131C08a736A67ccB19297"

	balance, err := tevm.GetBalance(target)
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Errorf("expected zero balance, got %v", balance)
	}

	if err := tevm.SetBalance(target, big.NewInt(9999)); err != nil {
		t.Fatalf("failed to set balance: %v", err)
	}
	balance, err = tevm.GetBalance(target)
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if balance.Cmp(big.NewInt(9999)) != 0 {
		t.Errorf("expected balance 9999, got %v", balance)
	}
}

func TestSession_GetSetCodeAndStorage(t *testing.T) {
	tevm := newSession(t)
	target := "0x388C818CA8B9251b393131C08a736A67ccB19297"

	if err := tevm.SetCode(target, "6001"); err != nil {
		t.Fatalf("failed to set code: %v", err)
	}
	code, err := tevm.GetCode(target)
	if err != nil {
		t.Fatalf("failed to read code: %v", err)
	}
	if code != "6001" {
		t.Errorf("expected code 6001, got %s", code)
	}

	if err := tevm.SetStorage(target, big.NewInt(1), big.NewInt(42)); err != nil {
		t.Fatalf("failed to set storage: %v", err)
	}
	value, err := tevm.GetStorage(target, big.NewInt(1))
	if err != nil {
		t.Fatalf("failed to read storage: %v", err)
	}
	if value.Cmp(big.NewInt(42)) != 0 {
		t.Errorf("expected storage value 42, got %v", value)
	}
}

func TestSession_BalanceReadContract(t *testing.T) {
	tevm := newSession(t)

	// Returns the balance of the address passed as the first call data word.
	balanceOf := []byte{
		0x60, 0x00, 0x35, // PUSH1 0, CALLDATALOAD
		0x31,             // BALANCE
		0x60, 0x00, 0x52, // MSTORE at 0
		0x60, 0x20, 0x60, 0x00, 0xF3, // RETURN 32 bytes
	}
	contract := deploy(t, tevm, balanceOf)

	target := "0x388C818CA8B9251b393131C08a736A67ccB19297"
	if err := tevm.SetBalance(target, big.NewInt(1234)); err != nil {
		t.Fatalf("failed to set balance: %v", err)
	}

	targetAddr, err := vm.AddressFromHex(target)
	if err != nil {
		t.Fatalf("failed to parse address: %v", err)
	}
	input := make([]byte, 32)
	copy(input[12:], targetAddr[:])

	resp, err := tevm.ContractCall(contract, "", hex.EncodeToString(input), nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if !resp.Success {
		t.Fatalf("call was not successful: %v", resp)
	}
	if !bytes.Equal(resp.Data, word(0x04, 0xD2)) {
		t.Errorf("expected 1234, got %x", resp.Data)
	}

	// The contract itself holds no funds.
	selfBalance := []byte{
		0x47,             // SELFBALANCE
		0x60, 0x00, 0x52, // MSTORE at 0
		0x60, 0x20, 0x60, 0x00, 0xF3,
	}
	other := deploy(t, tevm, selfBalance)
	resp, err = tevm.ContractCall(other, "", "", nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if !bytes.Equal(resp.Data, word()) {
		t.Errorf("expected zero self balance, got %x", resp.Data)
	}
}

func TestSession_EventEmission(t *testing.T) {
	tevm := newSession(t)

	topic1 := bytes.Repeat([]byte{0x11}, 32)
	topic2 := bytes.Repeat([]byte{0x22}, 32)

	runtime := []byte{0x60, 0x07, 0x60, 0x00, 0x52} // MSTORE 7 at 0
	runtime = append(runtime, 0x7F)                 // PUSH32 topic2
	runtime = append(runtime, topic2...)
	runtime = append(runtime, 0x7F) // PUSH32 topic1
	runtime = append(runtime, topic1...)
	runtime = append(runtime,
		0x60, 0x20, // size
		0x60, 0x00, // offset
		0xA2, // LOG2
		0x00, // STOP
	)

	contract := deploy(t, tevm, runtime)
	resp, err := tevm.ContractCall(contract, "", "", nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if !resp.Success {
		t.Fatalf("call was not successful: %v", resp)
	}
	if len(resp.Events) != 1 {
		t.Fatalf("expected one event, got %d", len(resp.Events))
	}
	event := resp.Events[0]
	if event.Address.String() != contract {
		t.Errorf("event address should be the contract, got %v", event.Address)
	}
	if len(event.Topics) != 2 {
		t.Fatalf("expected two topics, got %d", len(event.Topics))
	}
	if !bytes.Equal(event.Topics[0][:], topic1) || !bytes.Equal(event.Topics[1][:], topic2) {
		t.Errorf("unexpected topics: %v", event.Topics)
	}
	if !bytes.Equal(event.Data, word(0x07)) {
		t.Errorf("expected data 7, got %x", event.Data)
	}
}

func TestSession_TimestampAndBlockNumberHeuristics(t *testing.T) {
	tevm := newSession(t)

	timestampBug := deploy(t, tevm, []byte{0x42, 0x50, 0x00})   // TIMESTAMP POP STOP
	blockNumberBug := deploy(t, tevm, []byte{0x43, 0x50, 0x00}) // NUMBER POP STOP

	resp, err := tevm.ContractCall(timestampBug, "", "", nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if !resp.Heuristics.TimestampDependency {
		t.Errorf("expected timestamp dependency flag")
	}
	if resp.Heuristics.BlockNumberDependency {
		t.Errorf("unexpected block number flag")
	}

	resp, err = tevm.ContractCall(blockNumberBug, "", "", nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if !resp.Heuristics.BlockNumberDependency {
		t.Errorf("expected block number dependency flag")
	}
	if resp.Heuristics.TimestampDependency {
		t.Errorf("flags must be scoped to one invocation")
	}
}

func TestSession_SelfDestructDetection(t *testing.T) {
	tevm := newSession(t)

	beneficiary, err := vm.AddressFromHex("0x44Eadb1b1288F4883F2166846800335bfFa290be")
	if err != nil {
		t.Fatalf("failed to parse address: %v", err)
	}
	runtime := append([]byte{0x73}, beneficiary[:]...) // PUSH20 beneficiary
	runtime = append(runtime, 0xFF)                    // SELFDESTRUCT

	resp, err := tevm.DeterministicDeploy(deployable(runtime), DeployOptions{
		InitValue: big.NewInt(1000),
	})
	if err != nil {
		t.Fatalf("deployment failed: %v", err)
	}
	contract := resp.CreatedAddress.String()

	resp, err = tevm.ContractCall(contract, "", "", nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if !resp.Success {
		t.Fatalf("call was not successful: %v", resp)
	}
	if !resp.Heuristics.SelfDestruct {
		t.Errorf("expected selfdestruct flag")
	}

	got, err := tevm.GetBalance(beneficiary.String())
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if got.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("beneficiary should receive the contract balance, got %v", got)
	}
	contractBalance, err := tevm.GetBalance(contract)
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if contractBalance.Sign() != 0 {
		t.Errorf("destroyed contract must have no balance, got %v", contractBalance)
	}
}

func TestSession_DivisionByZero(t *testing.T) {
	tevm := newSession(t)

	// Computes 12 / 0 and returns the result.
	runtime := []byte{
		0x60, 0x00, 0x60, 0x0C, 0x04, // PUSH1 0, PUSH1 12, DIV
		0x60, 0x00, 0x52,
		0x60, 0x20, 0x60, 0x00, 0xF3,
	}
	contract := deploy(t, tevm, runtime)

	resp, err := tevm.ContractCall(contract, "", "", nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if !resp.Success {
		t.Fatalf("division by zero must not trap, got %v", resp)
	}
	if !bytes.Equal(resp.Data, word()) {
		t.Errorf("EVM division by zero yields zero, got %x", resp.Data)
	}
	if !resp.Heuristics.DivZero {
		t.Errorf("expected div-by-zero flag")
	}
}

// counterRuntime increments the value in slot 0 and returns the new value.
var counterRuntime = []byte{
	0x60, 0x00, 0x54, // PUSH1 0, SLOAD
	0x60, 0x01, 0x01, // PUSH1 1, ADD
	0x80,             // DUP1
	0x60, 0x00, 0x55, // PUSH1 0, SSTORE
	0x60, 0x00, 0x52, // MSTORE at 0
	0x60, 0x20, 0x60, 0x00, 0xF3,
}

func callCounter(t *testing.T, tevm *TinyEVM, contract string) uint64 {
	t.Helper()
	resp, err := tevm.ContractCall(contract, "", "", nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if !resp.Success {
		t.Fatalf("call was not successful: %v", resp)
	}
	return new(big.Int).SetBytes(resp.Data).Uint64()
}

func TestSession_SnapshotRestoresCounters(t *testing.T) {
	tevm := newSession(t)
	contract := deploy(t, tevm, counterRuntime)

	for i := uint64(1); i <= 5; i++ {
		if got := callCounter(t, tevm, contract); got != i {
			t.Fatalf("expected counter %d, got %d", i, got)
		}
	}

	id, err := tevm.TakeSnapshot()
	if err != nil {
		t.Fatalf("failed to take snapshot: %v", err)
	}

	for i := uint64(6); i <= 10; i++ {
		if got := callCounter(t, tevm, contract); got != i {
			t.Fatalf("expected counter %d, got %d", i, got)
		}
	}

	if err := tevm.RestoreSnapshot(id); err != nil {
		t.Fatalf("failed to restore snapshot: %v", err)
	}

	// The counter is back at the snapshot value; the next call produces the
	// same value as the first post-snapshot call did.
	if got := callCounter(t, tevm, contract); got != 6 {
		t.Errorf("expected counter 6 after restore, got %d", got)
	}
}

func TestSession_SnapshotKeepAllowsRepeatedRestores(t *testing.T) {
	tevm := newSession(t)
	contract := deploy(t, tevm, counterRuntime)
	callCounter(t, tevm, contract)

	id, err := tevm.TakeSnapshot()
	if err != nil {
		t.Fatalf("failed to take snapshot: %v", err)
	}
	for i := 0; i < 3; i++ {
		callCounter(t, tevm, contract)
		if err := tevm.RestoreSnapshotKeep(id, true); err != nil {
			t.Fatalf("restore %d failed: %v", i, err)
		}
		if got := callCounter(t, tevm, contract); got != 2 {
			t.Fatalf("restore %d: expected counter 2, got %d", i, got)
		}
		if err := tevm.RestoreSnapshotKeep(id, true); err != nil {
			t.Fatalf("failed to re-restore: %v", err)
		}
	}
}

func TestSession_RevertIsolation(t *testing.T) {
	tevm := newSession(t)

	// Stores 1 at slot 0, then reverts.
	runtime := []byte{
		0x60, 0x01, 0x60, 0x00, 0x55, // SSTORE
		0x60, 0x00, 0x60, 0x00, 0xFD, // REVERT
	}
	contract := deploy(t, tevm, runtime)

	resp, err := tevm.ContractCall(contract, "", "", nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if resp.Success {
		t.Fatalf("expected revert")
	}
	if resp.ExitReason != ExitRevert {
		t.Errorf("expected exit reason %q, got %q", ExitRevert, resp.ExitReason)
	}
	value, err := tevm.GetStorage(contract, big.NewInt(0))
	if err != nil {
		t.Fatalf("failed to read storage: %v", err)
	}
	if value.Sign() != 0 {
		t.Errorf("reverted storage write must be rolled back, got %v", value)
	}
	if len(resp.Events) != 0 {
		t.Errorf("reverted calls must not commit events")
	}
	if len(resp.StorageTrace) != 0 {
		t.Errorf("reverted storage accesses must be dropped from the trace")
	}
}

func TestSession_JumpIntoPushDataHalts(t *testing.T) {
	tevm := newSession(t)
	runtime := []byte{
		0x60, 0x04, 0x56, // PUSH1 4, JUMP
		0x61, 0x5B, 0x5B, // PUSH2 with JUMPDEST bytes as data
		0x00,
	}
	contract := deploy(t, tevm, runtime)
	resp, err := tevm.ContractCall(contract, "", "", nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if resp.Success {
		t.Fatalf("jump into push data must fail")
	}
	if resp.ExitReason != string(vm.HaltInvalidJump) {
		t.Errorf("expected invalid jump, got %q", resp.ExitReason)
	}
}

func TestSession_StaticCallPreventsWrites(t *testing.T) {
	tevm := newSession(t)

	// Writer stores 1 at slot 0.
	writer := deploy(t, tevm, []byte{0x60, 0x01, 0x60, 0x00, 0x55, 0x00})
	writerAddr, err := vm.AddressFromHex(writer)
	if err != nil {
		t.Fatalf("failed to parse address: %v", err)
	}

	// Caller STATICCALLs the writer and returns the success flag.
	caller := []byte{
		0x60, 0x00, // retSize
		0x60, 0x00, // retOffset
		0x60, 0x00, // inSize
		0x60, 0x00, // inOffset
	}
	caller = append(caller, 0x73) // PUSH20 writer
	caller = append(caller, writerAddr[:]...)
	caller = append(caller,
		0x61, 0xFF, 0xFF, // PUSH2 gas
		0xFA,             // STATICCALL
		0x60, 0x00, 0x52, // MSTORE flag at 0
		0x60, 0x20, 0x60, 0x00, 0xF3,
	)
	contract := deploy(t, tevm, caller)

	resp, err := tevm.ContractCall(contract, "", "", nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if !resp.Success {
		t.Fatalf("outer call should succeed, got %v", resp)
	}
	if !bytes.Equal(resp.Data, word()) {
		t.Errorf("static sub-call must fail, got flag %x", resp.Data)
	}
	value, err := tevm.GetStorage(writer, big.NewInt(0))
	if err != nil {
		t.Fatalf("failed to read storage: %v", err)
	}
	if value.Sign() != 0 {
		t.Errorf("no descendant of a static call may mutate storage, got %v", value)
	}
	if trace := resp.Trace; trace == nil || len(trace.Children) != 1 {
		t.Errorf("the failing sub-call must remain in the call tree")
	}
}

func TestSession_GasAccounting(t *testing.T) {
	tevm := newSession(t)
	contract := deploy(t, tevm, counterRuntime)

	resp, err := tevm.ContractCall(contract, "", "", nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if resp.GasUsed > tevm.TxGasLimit() {
		t.Errorf("gas used must not exceed the limit, got %d", resp.GasUsed)
	}
	if resp.GasUsed <= 21_000 {
		t.Errorf("gas used must include the intrinsic cost, got %d", resp.GasUsed)
	}
}

func TestSession_Create2AddressesAreDeterministic(t *testing.T) {
	first := newSession(t)
	second := newSession(t)

	a := deploy(t, first, counterRuntime)
	b := deploy(t, second, counterRuntime)
	if a != b {
		t.Errorf("identical deployments must yield identical addresses: %s vs %s", a, b)
	}

	// Distinct salts yield distinct addresses.
	resp, err := first.DeterministicDeploy(deployable(counterRuntime), DeployOptions{
		Salt: "0x1fff00000000000000000000000000000000000000000000000000000000eeff",
	})
	if err != nil {
		t.Fatalf("deployment failed: %v", err)
	}
	if !resp.Success {
		t.Fatalf("deployment was not successful: %v", resp)
	}
	if resp.CreatedAddress.String() == a {
		t.Errorf("distinct salts must yield distinct addresses")
	}
}

func TestSession_DeployToTargetAddress(t *testing.T) {
	tevm := newSession(t)
	target := "0x00000000000000000000000000000000deadbeef"
	if err := tevm.SetBalance(target, big.NewInt(777)); err != nil {
		t.Fatalf("failed to set balance: %v", err)
	}

	resp, err := tevm.DeterministicDeploy(deployable(counterRuntime), DeployOptions{
		TargetAddress: target,
	})
	if err != nil {
		t.Fatalf("deployment failed: %v", err)
	}
	if !resp.Success {
		t.Fatalf("deployment was not successful: %v", resp)
	}
	if resp.CreatedAddress.String() != target {
		t.Errorf("expected deployment at %s, got %v", target, resp.CreatedAddress)
	}
	code, err := tevm.GetCode(target)
	if err != nil || code == "" {
		t.Errorf("expected code at the target address, got %q (%v)", code, err)
	}
	balance, err := tevm.GetBalance(target)
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if balance.Cmp(big.NewInt(777)) != 0 {
		t.Errorf("deterministic deployment must preserve the balance, got %v", balance)
	}
}

func TestSession_RedeployOverwritesExistingContract(t *testing.T) {
	tevm := newSession(t)
	first := deploy(t, tevm, counterRuntime)
	callCounter(t, tevm, first)

	// The same code and salt land on the same address; the deployment
	// overwrites instead of failing with a collision.
	second := deploy(t, tevm, counterRuntime)
	if first != second {
		t.Fatalf("redeployment should reuse the address, got %s and %s", first, second)
	}
	if got := callCounter(t, tevm, second); got != 1 {
		t.Errorf("redeployment should reset storage, got counter %d", got)
	}
}

func TestSession_CoverageAndStorageTrace(t *testing.T) {
	tevm := newSession(t)
	contract := deploy(t, tevm, counterRuntime)

	resp, err := tevm.ContractCall(contract, "", "", nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}

	pcs, err := resp.PcsByAddress(contract)
	if err != nil {
		t.Fatalf("failed to read coverage: %v", err)
	}
	if len(pcs) == 0 {
		t.Errorf("expected program counter coverage for the contract")
	}
	if pcs[0] != 0 {
		t.Errorf("coverage should start at pc 0, got %d", pcs[0])
	}

	reads, writes := 0, 0
	for _, access := range resp.StorageTrace {
		switch access.Op {
		case vm.StorageRead:
			reads++
		case vm.StorageWrite:
			writes++
		}
	}
	if reads == 0 || writes == 0 {
		t.Errorf("expected storage reads and writes in the trace, got %d/%d", reads, writes)
	}
}

func TestSession_CallTreeRecordsNestedCalls(t *testing.T) {
	tevm := newSession(t)
	inner := deploy(t, tevm, []byte{0x00}) // STOP
	innerAddr, err := vm.AddressFromHex(inner)
	if err != nil {
		t.Fatalf("failed to parse address: %v", err)
	}

	// Outer contract CALLs the inner one.
	outer := []byte{
		0x60, 0x00, // retSize
		0x60, 0x00, // retOffset
		0x60, 0x00, // inSize
		0x60, 0x00, // inOffset
		0x60, 0x00, // value
	}
	outer = append(outer, 0x73)
	outer = append(outer, innerAddr[:]...)
	outer = append(outer, 0x61, 0xFF, 0xFF, 0xF1, 0x00) // PUSH2 gas, CALL, STOP
	contract := deploy(t, tevm, outer)

	resp, err := tevm.ContractCall(contract, "", "", nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if !resp.Success {
		t.Fatalf("call was not successful: %v", resp)
	}
	if resp.Trace == nil {
		t.Fatalf("expected a call tree")
	}
	if len(resp.Trace.Children) != 1 {
		t.Fatalf("expected one nested call, got %d", len(resp.Trace.Children))
	}
	child := resp.Trace.Children[0]
	if child.To != innerAddr || child.Depth != 1 {
		t.Errorf("unexpected child frame: %+v", child)
	}
}

func TestSession_IndependentSessionsDoNotShareState(t *testing.T) {
	first := newSession(t)
	second := newSession(t)

	if err := first.SetBalance("0x00000000000000000000000000000000deadbeef", big.NewInt(42)); err != nil {
		t.Fatalf("failed to set balance: %v", err)
	}
	balance, err := second.GetBalance("0x00000000000000000000000000000000deadbeef")
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Errorf("sessions must not share state, got %v", balance)
	}
}
