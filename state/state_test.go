package state

import (
	"testing"

	"github.com/sbip-sg/tevm/vm"
)

var (
	addr1 = vm.Address{0x01}
	addr2 = vm.Address{0x02}
	key1  = vm.Key{0x01}
	key2  = vm.Key{0x02}
)

func TestDB_DefaultsOnMiss(t *testing.T) {
	db := New()
	if db.AccountExists(addr1) {
		t.Errorf("unknown accounts must not exist")
	}
	if got := db.GetBalance(addr1); got != (vm.Value{}) {
		t.Errorf("expected zero balance, got %v", got)
	}
	if got := db.GetNonce(addr1); got != 0 {
		t.Errorf("expected zero nonce, got %v", got)
	}
	if got := db.GetCode(addr1); len(got) != 0 {
		t.Errorf("expected empty code, got %x", got)
	}
	if got := db.GetStorage(addr1, key1); got != (vm.Word{}) {
		t.Errorf("expected zero storage value, got %v", got)
	}
}

func TestDB_BalanceRoundTrip(t *testing.T) {
	db := New()
	db.SetBalance(addr1, vm.NewValue(1234))
	if got := db.GetBalance(addr1); got != vm.NewValue(1234) {
		t.Errorf("expected 1234, got %v", got)
	}
	db.AddBalance(addr1, vm.NewValue(1))
	db.SubBalance(addr1, vm.NewValue(35))
	if got := db.GetBalance(addr1); got != vm.NewValue(1200) {
		t.Errorf("expected 1200, got %v", got)
	}
}

func TestDB_CodeHashMatchesKeccak(t *testing.T) {
	db := New()
	code := vm.Code{0x60, 0x01}
	db.SetCode(addr1, code)
	if got, want := db.GetCodeHash(addr1), keccak256(code); got != want {
		t.Errorf("expected code hash %v, got %v", want, got)
	}
	if got := db.GetCodeSize(addr1); got != 2 {
		t.Errorf("expected code size 2, got %d", got)
	}
	if got, want := db.GetCodeHash(addr2), keccak256(nil); got != want {
		t.Errorf("missing accounts report the empty code hash, got %v", got)
	}
}

func TestDB_CheckpointRevertUndoesAllMutations(t *testing.T) {
	db := New()
	db.SetBalance(addr1, vm.NewValue(100))
	db.SetStorage(addr1, key1, vm.Word{31: 1})
	if err := db.EndTransaction(); err != nil {
		t.Fatalf("failed to finalize setup: %v", err)
	}

	snapshot := db.CreateSnapshot()
	db.SetBalance(addr1, vm.NewValue(5))
	db.SetNonce(addr1, 7)
	db.SetStorage(addr1, key1, vm.Word{31: 9})
	db.SetStorage(addr2, key2, vm.Word{31: 3})
	db.SetCode(addr2, vm.Code{0x00})
	db.EmitLog(vm.Log{Address: addr1})
	db.RestoreSnapshot(snapshot)

	if got := db.GetBalance(addr1); got != vm.NewValue(100) {
		t.Errorf("balance not reverted, got %v", got)
	}
	if got := db.GetNonce(addr1); got != 0 {
		t.Errorf("nonce not reverted, got %v", got)
	}
	if got := db.GetStorage(addr1, key1); got != (vm.Word{31: 1}) {
		t.Errorf("storage not reverted, got %v", got)
	}
	if db.AccountExists(addr2) {
		t.Errorf("account created in the frame must disappear on revert")
	}
	if got := len(db.GetLogs()); got != 0 {
		t.Errorf("logs not reverted, got %d entries", got)
	}
}

func TestDB_NestedCheckpointsRevertInLIFOOrder(t *testing.T) {
	db := New()
	db.SetBalance(addr1, vm.NewValue(1))

	outer := db.CreateSnapshot()
	db.SetBalance(addr1, vm.NewValue(2))
	inner := db.CreateSnapshot()
	db.SetBalance(addr1, vm.NewValue(3))

	db.RestoreSnapshot(inner)
	if got := db.GetBalance(addr1); got != vm.NewValue(2) {
		t.Errorf("inner revert should restore 2, got %v", got)
	}
	db.RestoreSnapshot(outer)
	if got := db.GetBalance(addr1); got != vm.NewValue(1) {
		t.Errorf("outer revert should restore 1, got %v", got)
	}
}

func TestDB_CommitKeepsMutationsRevertableByParent(t *testing.T) {
	db := New()
	db.SetBalance(addr1, vm.NewValue(1))

	outer := db.CreateSnapshot()
	inner := db.CreateSnapshot()
	db.SetBalance(addr1, vm.NewValue(3))
	db.CommitSnapshot(inner)

	if got := db.GetBalance(addr1); got != vm.NewValue(3) {
		t.Errorf("commit must keep the mutation, got %v", got)
	}
	db.RestoreSnapshot(outer)
	if got := db.GetBalance(addr1); got != vm.NewValue(1) {
		t.Errorf("parent revert must undo committed child mutations, got %v", got)
	}
}

func TestDB_StorageJournalsOnlyFirstPriorValuePerSlot(t *testing.T) {
	db := New()
	db.SetStorage(addr1, key1, vm.Word{31: 1})
	if err := db.EndTransaction(); err != nil {
		t.Fatalf("failed to finalize setup: %v", err)
	}

	snapshot := db.CreateSnapshot()
	before := db.journal.length()
	db.SetStorage(addr1, key1, vm.Word{31: 2})
	afterFirst := db.journal.length()
	db.SetStorage(addr1, key1, vm.Word{31: 3})
	db.SetStorage(addr1, key1, vm.Word{31: 4})
	afterMore := db.journal.length()

	if afterFirst != before+1 {
		t.Fatalf("first write should journal one entry, got %d", afterFirst-before)
	}
	if afterMore != afterFirst {
		t.Errorf("subsequent writes to the same slot must not journal, got %d extra", afterMore-afterFirst)
	}

	db.RestoreSnapshot(snapshot)
	if got := db.GetStorage(addr1, key1); got != (vm.Word{31: 1}) {
		t.Errorf("revert should restore the first prior value, got %v", got)
	}
}

func TestDB_CommittedStorageIsStableWithinInvocation(t *testing.T) {
	db := New()
	db.SetStorage(addr1, key1, vm.Word{31: 1})
	if err := db.EndTransaction(); err != nil {
		t.Fatalf("failed to finalize setup: %v", err)
	}

	db.SetStorage(addr1, key1, vm.Word{31: 2})
	db.SetStorage(addr1, key1, vm.Word{31: 3})
	if got := db.GetCommittedStorage(addr1, key1); got != (vm.Word{31: 1}) {
		t.Errorf("committed value should be the invocation start value, got %v", got)
	}
}

func TestDB_SelfDestructTransfersBalanceAndRemovesAccount(t *testing.T) {
	db := New()
	db.SetBalance(addr1, vm.NewValue(500))
	if err := db.EndTransaction(); err != nil {
		t.Fatalf("failed to finalize setup: %v", err)
	}

	if !db.SelfDestruct(addr1, addr2) {
		t.Errorf("first selfdestruct should report true")
	}
	if db.SelfDestruct(addr1, addr2) {
		t.Errorf("repeated selfdestruct should report false")
	}
	if !db.HasSelfDestructed(addr1) {
		t.Errorf("account should be marked as selfdestructed")
	}
	if got := db.GetBalance(addr2); got != vm.NewValue(500) {
		t.Errorf("beneficiary should receive the balance, got %v", got)
	}
	if err := db.EndTransaction(); err != nil {
		t.Fatalf("failed to finalize: %v", err)
	}
	if db.AccountExists(addr1) {
		t.Errorf("selfdestructed account must be removed at end of transaction")
	}
	if got := db.GetBalance(addr2); got != vm.NewValue(500) {
		t.Errorf("beneficiary balance must survive, got %v", got)
	}
}

func TestDB_SelfDestructRevertsWithCheckpoint(t *testing.T) {
	db := New()
	db.SetBalance(addr1, vm.NewValue(500))
	if err := db.EndTransaction(); err != nil {
		t.Fatalf("failed to finalize setup: %v", err)
	}

	snapshot := db.CreateSnapshot()
	db.SelfDestruct(addr1, addr2)
	db.RestoreSnapshot(snapshot)

	if db.HasSelfDestructed(addr1) {
		t.Errorf("selfdestruct flag must be reverted")
	}
	if got := db.GetBalance(addr1); got != vm.NewValue(500) {
		t.Errorf("balance must be restored, got %v", got)
	}
	if got := db.GetBalance(addr2); got != (vm.Value{}) {
		t.Errorf("beneficiary credit must be reverted, got %v", got)
	}
}

func TestDB_EmptyTouchedAccountsArePruned(t *testing.T) {
	db := New()
	db.AddBalance(addr1, vm.Value{}) // touch without funding
	if err := db.EndTransaction(); err != nil {
		t.Fatalf("failed to finalize: %v", err)
	}
	if _, found := db.accounts[addr1]; found {
		t.Errorf("touched empty account must be pruned")
	}
}

func TestDB_AccessListsAreRevertedWithCheckpoint(t *testing.T) {
	db := New()
	snapshot := db.CreateSnapshot()
	if got := db.AccessAccount(addr1); got != vm.ColdAccess {
		t.Errorf("first access should be cold")
	}
	if got := db.AccessAccount(addr1); got != vm.WarmAccess {
		t.Errorf("second access should be warm")
	}
	if got := db.AccessStorage(addr1, key1); got != vm.ColdAccess {
		t.Errorf("first slot access should be cold")
	}
	db.RestoreSnapshot(snapshot)
	if db.IsAddressInAccessList(addr1) {
		t.Errorf("account access must be reverted")
	}
	if _, slotPresent := db.IsSlotInAccessList(addr1, key1); slotPresent {
		t.Errorf("slot access must be reverted")
	}
}

func TestDB_TransientStorageIsRevertedAndClearedPerTransaction(t *testing.T) {
	db := New()
	snapshot := db.CreateSnapshot()
	db.SetTransientStorage(addr1, key1, vm.Word{31: 1})
	if got := db.GetTransientStorage(addr1, key1); got != (vm.Word{31: 1}) {
		t.Errorf("expected transient value, got %v", got)
	}
	db.RestoreSnapshot(snapshot)
	if got := db.GetTransientStorage(addr1, key1); got != (vm.Word{}) {
		t.Errorf("transient value must be reverted, got %v", got)
	}

	db.SetTransientStorage(addr1, key1, vm.Word{31: 2})
	if err := db.EndTransaction(); err != nil {
		t.Fatalf("failed to finalize: %v", err)
	}
	if got := db.GetTransientStorage(addr1, key1); got != (vm.Word{}) {
		t.Errorf("transient storage must be cleared per transaction, got %v", got)
	}
}

func TestDB_EndTransactionWithOpenCheckpointsFails(t *testing.T) {
	db := New()
	db.CreateSnapshot()
	if err := db.EndTransaction(); err == nil {
		t.Errorf("ending a transaction with open checkpoints must fail")
	}
}

func TestDB_BlockHashIsDerivedAndStable(t *testing.T) {
	db := New()
	first := db.GetBlockHash(42)
	second := db.GetBlockHash(42)
	if first == (vm.Hash{}) {
		t.Errorf("derived block hash must not be zero")
	}
	if first != second {
		t.Errorf("block hash must be stable, got %v and %v", first, second)
	}
	if db.GetBlockHash(43) == first {
		t.Errorf("different blocks must have different hashes")
	}
	db.SetBlockHash(7, vm.Hash{0x07})
	if got := db.GetBlockHash(7); got != (vm.Hash{0x07}) {
		t.Errorf("pinned hash must take precedence, got %v", got)
	}
}
