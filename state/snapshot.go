package state

import (
	"github.com/sbip-sg/tevm/vm"

	"golang.org/x/exp/maps"
)

// State errors related to snapshots and checkpoints.
const (
	ErrOpenCheckpoints  = vm.ConstError("state has open checkpoints")
	ErrSnapshotNotFound = vm.ConstError("snapshot not found")
	ErrAccountNotFound  = vm.ConstError("account not found")
)

// globalSnapshot is a frozen deep copy of the entire world state, taken at a
// quiescent point.
type globalSnapshot struct {
	accounts        map[vm.Address]*Account
	codes           map[vm.Hash]vm.Code
	blockHashes     map[int64]vm.Hash
	remoteAddresses map[vm.Address]map[vm.Key]struct{}
}

func (db *DB) freeze() *globalSnapshot {
	accounts := make(map[vm.Address]*Account, len(db.accounts))
	for addr, account := range db.accounts {
		accounts[addr] = account.clone()
	}
	remoteAddresses := make(map[vm.Address]map[vm.Key]struct{}, len(db.remoteAddresses))
	for addr, slots := range db.remoteAddresses {
		remoteAddresses[addr] = maps.Clone(slots)
	}
	return &globalSnapshot{
		accounts:        accounts,
		codes:           maps.Clone(db.codes),
		blockHashes:     maps.Clone(db.blockHashes),
		remoteAddresses: remoteAddresses,
	}
}

// TakeGlobalSnapshot freezes a deep copy of the live state and returns its
// identifier. The state must be quiescent: no open checkpoints, no journaled
// mutations.
func (db *DB) TakeGlobalSnapshot() (int, error) {
	if len(db.validRevisions) > 0 || db.journal.length() > 0 {
		return 0, ErrOpenCheckpoints
	}
	id := db.nextSnapshotID
	db.nextSnapshotID++
	db.snapshots[id] = db.freeze()
	return id, nil
}

// RestoreGlobalSnapshot replaces the live state with the frozen copy
// identified by id. The journal is reset. When keep is false the snapshot is
// consumed by the restore.
func (db *DB) RestoreGlobalSnapshot(id int, keep bool) error {
	snapshot, found := db.snapshots[id]
	if !found {
		return ErrSnapshotNotFound
	}
	// Clone again on restore so the frozen copy stays untouched and can be
	// restored repeatedly.
	accounts := make(map[vm.Address]*Account, len(snapshot.accounts))
	for addr, account := range snapshot.accounts {
		accounts[addr] = account.clone()
	}
	remoteAddresses := make(map[vm.Address]map[vm.Key]struct{}, len(snapshot.remoteAddresses))
	for addr, slots := range snapshot.remoteAddresses {
		remoteAddresses[addr] = maps.Clone(slots)
	}
	db.accounts = accounts
	db.codes = maps.Clone(snapshot.codes)
	db.blockHashes = maps.Clone(snapshot.blockHashes)
	db.remoteAddresses = remoteAddresses

	db.journal.reset()
	db.validRevisions = db.validRevisions[:0]
	db.nextRevisionID = 0
	db.logs = nil
	db.touched = map[vm.Address]struct{}{}
	db.accessedAccounts = map[vm.Address]struct{}{}
	db.accessedSlots = map[slotKey]struct{}{}
	db.transient = map[slotKey]vm.Word{}

	if !keep {
		delete(db.snapshots, id)
	}
	return nil
}

// DropGlobalSnapshot releases the frozen copy identified by id.
func (db *DB) DropGlobalSnapshot(id int) error {
	if _, found := db.snapshots[id]; !found {
		return ErrSnapshotNotFound
	}
	delete(db.snapshots, id)
	return nil
}

// ---- per-account snapshots ----

// AccountSnapshot is a frozen copy of a single account, including its code
// and storage.
type AccountSnapshot struct {
	account *Account
	code    vm.Code
}

// TakeAccountSnapshot freezes a copy of the given account. An error is
// returned if the account does not exist in the database.
func (db *DB) TakeAccountSnapshot(addr vm.Address) (*AccountSnapshot, error) {
	account, found := db.accounts[addr]
	if !found {
		return nil, ErrAccountNotFound
	}
	return &AccountSnapshot{
		account: account.clone(),
		code:    db.codes[account.CodeHash],
	}, nil
}

// RestoreAccountSnapshot overwrites the account at the given address with the
// frozen copy, including its storage and code.
func (db *DB) RestoreAccountSnapshot(addr vm.Address, snapshot *AccountSnapshot) {
	db.accounts[addr] = snapshot.account.clone()
	if snapshot.account.CodeHash != emptyCodeHash {
		db.codes[snapshot.account.CodeHash] = snapshot.code
	}
}
