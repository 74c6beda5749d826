package state

import (
	"fmt"
	"testing"

	"github.com/sbip-sg/tevm/vm"
)

// fakeRemote serves a fixed account with counting, standing in for the
// cached fork provider.
type fakeRemote struct {
	accountCalls int
	storageCalls int
	fail         bool
}

func (f *fakeRemote) Account(addr vm.Address) (uint64, vm.Value, vm.Code, bool, error) {
	f.accountCalls++
	if f.fail {
		return 0, vm.Value{}, nil, false, fmt.Errorf("node unreachable")
	}
	if addr == (vm.Address{0xAA}) {
		return 7, vm.NewValue(1000), vm.Code{0x60, 0x01}, true, nil
	}
	return 0, vm.Value{}, nil, false, nil
}

func (f *fakeRemote) Storage(addr vm.Address, key vm.Key) (vm.Word, error) {
	f.storageCalls++
	if f.fail {
		return vm.Word{}, fmt.Errorf("node unreachable")
	}
	return vm.Word{31: 0x55}, nil
}

func (f *fakeRemote) BlockHash(number int64) (vm.Hash, error) {
	return vm.Hash{0x01}, nil
}

func TestDB_RemoteAccountsAreLoadedLazilyAndMemoized(t *testing.T) {
	remote := &fakeRemote{}
	db := New()
	db.SetRemote(remote, 0)

	target := vm.Address{0xAA}
	if got := db.GetBalance(target); got != vm.NewValue(1000) {
		t.Errorf("expected remote balance, got %v", got)
	}
	if got := db.GetNonce(target); got != 7 {
		t.Errorf("expected remote nonce, got %v", got)
	}
	if got := db.GetCodeSize(target); got != 2 {
		t.Errorf("expected remote code, got size %d", got)
	}
	if remote.accountCalls != 1 {
		t.Errorf("remote account should be fetched exactly once, got %d", remote.accountCalls)
	}

	if got := db.GetStorage(target, key1); got != (vm.Word{31: 0x55}) {
		t.Errorf("expected remote storage value, got %v", got)
	}
	if got := db.GetStorage(target, key1); got != (vm.Word{31: 0x55}) {
		t.Errorf("expected memoized storage value, got %v", got)
	}
	if remote.storageCalls != 1 {
		t.Errorf("remote storage should be fetched exactly once, got %d", remote.storageCalls)
	}

	if got := len(db.ForkedAddresses()); got != 1 {
		t.Errorf("expected one forked address, got %d", got)
	}
	if got := len(db.ForkedSlots(target)); got != 1 {
		t.Errorf("expected one forked slot, got %d", got)
	}
}

func TestDB_RemoteStorageOnlyForRemoteAccounts(t *testing.T) {
	remote := &fakeRemote{}
	db := New()
	db.SetRemote(remote, 0)

	// Local accounts never consult the remote source for slots.
	db.SetBalance(addr1, vm.NewValue(1))
	if got := db.GetStorage(addr1, key1); got != (vm.Word{}) {
		t.Errorf("local account storage should default to zero, got %v", got)
	}
	if remote.storageCalls != 0 {
		t.Errorf("local accounts must not trigger remote storage lookups")
	}
}

func TestDB_RemoteFailureIsStickyAndDoesNotMutateState(t *testing.T) {
	remote := &fakeRemote{fail: true}
	db := New()
	db.SetRemote(remote, 0)
	db.BeginTransaction()

	if got := db.GetBalance(vm.Address{0xAA}); got != (vm.Value{}) {
		t.Errorf("failed lookups must yield the default, got %v", got)
	}
	if db.RemoteError() == nil {
		t.Errorf("remote failure must be recorded")
	}
	if db.AccountExists(vm.Address{0xAA}) {
		t.Errorf("failed lookups must not materialize accounts")
	}
}

func TestDB_ForkDepthBoundRecordsIgnoredAddresses(t *testing.T) {
	remote := &fakeRemote{}
	db := New()
	db.SetRemote(remote, 2)
	db.SetCallDepth(3)

	if got := db.GetBalance(vm.Address{0xAA}); got != (vm.Value{}) {
		t.Errorf("lookups beyond the fork depth must yield defaults, got %v", got)
	}
	if remote.accountCalls != 0 {
		t.Errorf("lookups beyond the fork depth must not reach the provider")
	}
	if got := len(db.IgnoredAddresses()); got != 1 {
		t.Errorf("expected one ignored address, got %d", got)
	}
}

func TestDB_ForkToggleDisablesLookups(t *testing.T) {
	remote := &fakeRemote{}
	db := New()
	db.SetRemote(remote, 0)
	db.SetForkEnabled(false)

	if db.AccountExists(vm.Address{0xAA}) {
		t.Errorf("disabled fork must not load remote accounts")
	}
	if remote.accountCalls != 0 {
		t.Errorf("disabled fork must not reach the provider")
	}

	db.SetForkEnabled(true)
	if !db.AccountExists(vm.Address{0xAA}) {
		t.Errorf("re-enabled fork should load remote accounts")
	}
}
