package state

import (
	"github.com/sbip-sg/tevm/vm"
)

// journalEntry is a modification of the state database that can be reverted.
// Each entry records enough of the prior state to invert its mutation.
type journalEntry interface {
	// revert undoes the change introduced by this journal entry.
	revert(*DB)
}

// journal is the append-only list of state modifications performed since the
// last commit. Entries are reverted strictly in reverse order.
type journal struct {
	entries []journalEntry
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

// revert undoes all entries with an index >= the given one, newest first.
func (j *journal) revert(db *DB, index int) {
	for i := len(j.entries) - 1; i >= index; i-- {
		j.entries[i].revert(db)
	}
	j.entries = j.entries[:index]
}

func (j *journal) length() int {
	return len(j.entries)
}

func (j *journal) reset() {
	j.entries = j.entries[:0]
}

type (
	// accountCreated is recorded when an address is materialized for the
	// first time; reverting removes the account entirely.
	accountCreated struct {
		account vm.Address
	}

	balanceChange struct {
		account vm.Address
		prev    vm.Value
	}

	nonceChange struct {
		account vm.Address
		prev    uint64
	}

	// storageChange records the first prior value of a slot within the
	// current checkpoint span; later writes to the same slot in that span
	// are covered by this entry.
	storageChange struct {
		account vm.Address
		key     vm.Key
		prev    vm.Word
		existed bool
	}

	codeChange struct {
		account  vm.Address
		prevHash vm.Hash
	}

	accountTouched struct {
		account    vm.Address
		wasTouched bool
	}

	selfDestructChange struct {
		account     vm.Address
		beneficiary vm.Address
		prevBalance vm.Value
		wasSuicided bool
	}

	logAppended struct{}

	accessListAddAccount struct {
		account vm.Address
	}

	accessListAddSlot struct {
		slot slotKey
	}

	transientStorageChange struct {
		slot slotKey
		prev vm.Word
	}
)

func (ch accountCreated) revert(db *DB) {
	delete(db.accounts, ch.account)
	delete(db.touched, ch.account)
}

func (ch balanceChange) revert(db *DB) {
	if account, found := db.accounts[ch.account]; found {
		account.Balance = ch.prev
	}
}

func (ch nonceChange) revert(db *DB) {
	if account, found := db.accounts[ch.account]; found {
		account.Nonce = ch.prev
	}
}

func (ch storageChange) revert(db *DB) {
	account, found := db.accounts[ch.account]
	if !found {
		return
	}
	if ch.existed {
		account.storage[ch.key] = ch.prev
	} else {
		delete(account.storage, ch.key)
	}
	delete(account.dirtySlots, ch.key)
}

func (ch codeChange) revert(db *DB) {
	if account, found := db.accounts[ch.account]; found {
		account.CodeHash = ch.prevHash
	}
}

func (ch accountTouched) revert(db *DB) {
	if !ch.wasTouched {
		delete(db.touched, ch.account)
	}
}

func (ch selfDestructChange) revert(db *DB) {
	if account, found := db.accounts[ch.account]; found {
		account.suicided = ch.wasSuicided
		account.Balance = ch.prevBalance
	}
}

func (ch logAppended) revert(db *DB) {
	db.logs = db.logs[:len(db.logs)-1]
}

func (ch accessListAddAccount) revert(db *DB) {
	delete(db.accessedAccounts, ch.account)
}

func (ch accessListAddSlot) revert(db *DB) {
	delete(db.accessedSlots, ch.slot)
}

func (ch transientStorageChange) revert(db *DB) {
	if ch.prev == (vm.Word{}) {
		delete(db.transient, ch.slot)
	} else {
		db.transient[ch.slot] = ch.prev
	}
}
