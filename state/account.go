package state

import (
	"github.com/sbip-sg/tevm/vm"

	"golang.org/x/exp/maps"
)

// Account is the in-memory representation of one chain account: nonce,
// balance, code hash, and its storage. Code bytes are stored separately in
// the DB, keyed by code hash.
type Account struct {
	Nonce    uint64
	Balance  vm.Value
	CodeHash vm.Hash

	storage map[vm.Key]vm.Word

	// originStorage keeps the value each slot had at the beginning of the
	// ongoing invocation. It is populated lazily on first access and cleared
	// when the invocation ends.
	originStorage map[vm.Key]vm.Word

	// dirtySlots marks the slots for which a prior-value journal entry has
	// already been recorded since the most recent checkpoint was opened.
	// Subsequent writes to the same slot within that span need no additional
	// journal entries.
	dirtySlots map[vm.Key]struct{}

	suicided bool
}

func newAccount() *Account {
	return &Account{
		CodeHash:      emptyCodeHash,
		storage:       map[vm.Key]vm.Word{},
		originStorage: map[vm.Key]vm.Word{},
		dirtySlots:    map[vm.Key]struct{}{},
	}
}

// empty reports whether the account qualifies for pruning per EIP-161:
// zero nonce, zero balance, and no code.
func (a *Account) empty() bool {
	return a.Nonce == 0 && a.Balance == (vm.Value{}) && a.CodeHash == emptyCodeHash
}

func (a *Account) getStorage(key vm.Key) vm.Word {
	return a.storage[key]
}

// clone produces a deep copy of the account, detached from the original.
// Transaction-scoped bookkeeping is not carried over; clones are only taken
// at quiescence.
func (a *Account) clone() *Account {
	return &Account{
		Nonce:         a.Nonce,
		Balance:       a.Balance,
		CodeHash:      a.CodeHash,
		storage:       maps.Clone(a.storage),
		originStorage: map[vm.Key]vm.Word{},
		dirtySlots:    map[vm.Key]struct{}{},
	}
}

// StorageKeys lists the slots explicitly present in the account's storage.
func (a *Account) StorageKeys() []vm.Key {
	return maps.Keys(a.storage)
}
