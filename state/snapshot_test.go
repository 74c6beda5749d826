package state

import (
	"errors"
	"testing"

	"github.com/sbip-sg/tevm/vm"
)

func TestGlobalSnapshot_RoundTripRestoresByteEqualState(t *testing.T) {
	db := New()
	db.SetBalance(addr1, vm.NewValue(100))
	db.SetNonce(addr1, 3)
	db.SetCode(addr1, vm.Code{0x60, 0x01})
	db.SetStorage(addr1, key1, vm.Word{31: 0x2A})
	if err := db.EndTransaction(); err != nil {
		t.Fatalf("failed to finalize setup: %v", err)
	}

	id, err := db.TakeGlobalSnapshot()
	if err != nil {
		t.Fatalf("failed to take snapshot: %v", err)
	}

	db.SetBalance(addr1, vm.NewValue(5))
	db.SetNonce(addr1, 99)
	db.SetCode(addr1, vm.Code{0x00})
	db.SetStorage(addr1, key1, vm.Word{31: 0x01})
	db.SetBalance(addr2, vm.NewValue(777))
	if err := db.EndTransaction(); err != nil {
		t.Fatalf("failed to finalize mutations: %v", err)
	}

	if err := db.RestoreGlobalSnapshot(id, false); err != nil {
		t.Fatalf("failed to restore snapshot: %v", err)
	}

	if got := db.GetBalance(addr1); got != vm.NewValue(100) {
		t.Errorf("balance not restored, got %v", got)
	}
	if got := db.GetNonce(addr1); got != 3 {
		t.Errorf("nonce not restored, got %v", got)
	}
	if got := db.GetCode(addr1); len(got) != 2 || got[0] != 0x60 {
		t.Errorf("code not restored, got %x", got)
	}
	if got := db.GetStorage(addr1, key1); got != (vm.Word{31: 0x2A}) {
		t.Errorf("storage not restored, got %v", got)
	}
	if db.AccountExists(addr2) {
		t.Errorf("account created after the snapshot must disappear")
	}
}

func TestGlobalSnapshot_ConsumedUnlessKept(t *testing.T) {
	db := New()
	id, err := db.TakeGlobalSnapshot()
	if err != nil {
		t.Fatalf("failed to take snapshot: %v", err)
	}
	if err := db.RestoreGlobalSnapshot(id, false); err != nil {
		t.Fatalf("failed to restore snapshot: %v", err)
	}
	if err := db.RestoreGlobalSnapshot(id, false); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("consumed snapshot must not be restorable, got %v", err)
	}
}

func TestGlobalSnapshot_KeptSnapshotCanBeRestoredRepeatedly(t *testing.T) {
	db := New()
	db.SetBalance(addr1, vm.NewValue(1))
	if err := db.EndTransaction(); err != nil {
		t.Fatalf("failed to finalize setup: %v", err)
	}
	id, err := db.TakeGlobalSnapshot()
	if err != nil {
		t.Fatalf("failed to take snapshot: %v", err)
	}

	for i := 0; i < 3; i++ {
		db.SetBalance(addr1, vm.NewValue(uint64(100+i)))
		if err := db.EndTransaction(); err != nil {
			t.Fatalf("failed to finalize mutation: %v", err)
		}
		if err := db.RestoreGlobalSnapshot(id, true); err != nil {
			t.Fatalf("restore %d failed: %v", i, err)
		}
		if got := db.GetBalance(addr1); got != vm.NewValue(1) {
			t.Fatalf("restore %d: expected balance 1, got %v", i, got)
		}
	}
}

func TestGlobalSnapshot_RequiresQuiescence(t *testing.T) {
	db := New()
	db.CreateSnapshot()
	if _, err := db.TakeGlobalSnapshot(); !errors.Is(err, ErrOpenCheckpoints) {
		t.Errorf("snapshot with open checkpoints must fail, got %v", err)
	}
}

func TestGlobalSnapshot_RestoredStateIsDetachedFromSnapshot(t *testing.T) {
	db := New()
	db.SetStorage(addr1, key1, vm.Word{31: 1})
	if err := db.EndTransaction(); err != nil {
		t.Fatalf("failed to finalize setup: %v", err)
	}
	id, err := db.TakeGlobalSnapshot()
	if err != nil {
		t.Fatalf("failed to take snapshot: %v", err)
	}
	if err := db.RestoreGlobalSnapshot(id, true); err != nil {
		t.Fatalf("failed to restore: %v", err)
	}

	// Mutating the restored state must not corrupt the frozen copy.
	db.SetStorage(addr1, key1, vm.Word{31: 2})
	if err := db.EndTransaction(); err != nil {
		t.Fatalf("failed to finalize mutation: %v", err)
	}
	if err := db.RestoreGlobalSnapshot(id, false); err != nil {
		t.Fatalf("failed to restore again: %v", err)
	}
	if got := db.GetStorage(addr1, key1); got != (vm.Word{31: 1}) {
		t.Errorf("frozen copy was corrupted, got %v", got)
	}
}

func TestDropGlobalSnapshot(t *testing.T) {
	db := New()
	id, err := db.TakeGlobalSnapshot()
	if err != nil {
		t.Fatalf("failed to take snapshot: %v", err)
	}
	if err := db.DropGlobalSnapshot(id); err != nil {
		t.Fatalf("failed to drop snapshot: %v", err)
	}
	if err := db.RestoreGlobalSnapshot(id, false); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("dropped snapshot must not be restorable, got %v", err)
	}
	if err := db.DropGlobalSnapshot(id); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("dropping twice must fail, got %v", err)
	}
}

func TestAccountSnapshot_RoundTripAndCopy(t *testing.T) {
	db := New()
	db.SetBalance(addr1, vm.NewValue(10))
	db.SetCode(addr1, vm.Code{0x60, 0x00})
	db.SetStorage(addr1, key1, vm.Word{31: 1})
	if err := db.EndTransaction(); err != nil {
		t.Fatalf("failed to finalize setup: %v", err)
	}

	snapshot, err := db.TakeAccountSnapshot(addr1)
	if err != nil {
		t.Fatalf("failed to snapshot account: %v", err)
	}

	db.SetStorage(addr1, key1, vm.Word{31: 9})
	if err := db.EndTransaction(); err != nil {
		t.Fatalf("failed to finalize mutation: %v", err)
	}

	db.RestoreAccountSnapshot(addr1, snapshot)
	if got := db.GetStorage(addr1, key1); got != (vm.Word{31: 1}) {
		t.Errorf("account storage not restored, got %v", got)
	}

	db.RestoreAccountSnapshot(addr2, snapshot)
	if got := db.GetBalance(addr2); got != vm.NewValue(10) {
		t.Errorf("copied account should carry the balance, got %v", got)
	}
	if got := db.GetCode(addr2); len(got) != 2 {
		t.Errorf("copied account should carry the code, got %x", got)
	}

	if _, err := db.TakeAccountSnapshot(vm.Address{0xEE}); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("snapshotting a missing account must fail, got %v", err)
	}
}
