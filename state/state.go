package state

import (
	"encoding/binary"
	"fmt"

	"github.com/sbip-sg/tevm/vm"

	"golang.org/x/crypto/sha3"
	"golang.org/x/exp/maps"
)

var emptyCodeHash = keccak256(nil)

func keccak256(data []byte) vm.Hash {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(data)
	var res vm.Hash
	copy(res[:], hasher.Sum(nil))
	return res
}

type slotKey struct {
	addr vm.Address
	key  vm.Key
}

// RemoteSource supplies committed chain state for addresses not present in
// the local database, typically backed by a cached fork provider.
type RemoteSource interface {
	// Account returns nonce, balance and code of the given address at the
	// pinned block. exists is false when the address has no on-chain
	// presence.
	Account(addr vm.Address) (nonce uint64, balance vm.Value, code vm.Code, exists bool, err error)

	// Storage returns the value of the given slot at the pinned block.
	Storage(addr vm.Address, key vm.Key) (vm.Word, error)

	// BlockHash returns the hash of the block with the given number.
	BlockHash(number int64) (vm.Hash, error)
}

// DB is the journaled in-memory world state of a session. It implements
// vm.TransactionContext. All mutations pass through the journal, enabling
// nested frame-level rollback; a separate global snapshot mechanism supports
// session-level save and restore.
//
// A DB instance is not thread-safe; each session owns its own.
type DB struct {
	accounts map[vm.Address]*Account
	codes    map[vm.Hash]vm.Code

	journal        journal
	validRevisions []revision
	nextRevisionID int

	logs    []vm.Log
	touched map[vm.Address]struct{}

	accessedAccounts map[vm.Address]struct{}
	accessedSlots    map[slotKey]struct{}
	transient        map[slotKey]vm.Word

	blockHashes map[int64]vm.Hash

	// Remote fork support.
	remote          RemoteSource
	forkEnabled     bool
	maxForkDepth    int
	callDepth       int
	remoteAddresses map[vm.Address]map[vm.Key]struct{}
	ignored         map[vm.Address]struct{}
	remoteErr       error

	snapshots      map[int]*globalSnapshot
	nextSnapshotID int
}

type revision struct {
	id           int
	journalIndex int
}

// New creates an empty world state database.
func New() *DB {
	return &DB{
		accounts:         map[vm.Address]*Account{},
		codes:            map[vm.Hash]vm.Code{},
		touched:          map[vm.Address]struct{}{},
		accessedAccounts: map[vm.Address]struct{}{},
		accessedSlots:    map[slotKey]struct{}{},
		transient:        map[slotKey]vm.Word{},
		blockHashes:      map[int64]vm.Hash{},
		remoteAddresses:  map[vm.Address]map[vm.Key]struct{}{},
		ignored:          map[vm.Address]struct{}{},
		snapshots:        map[int]*globalSnapshot{},
	}
}

// SetRemote attaches a remote source for lazily fetching missing accounts and
// storage slots. maxForkDepth bounds the call depth at which remote fetches
// are still performed; addresses skipped due to the bound are recorded.
func (db *DB) SetRemote(remote RemoteSource, maxForkDepth int) {
	db.remote = remote
	db.forkEnabled = remote != nil
	db.maxForkDepth = maxForkDepth
}

// SetForkEnabled toggles remote lookups without discarding already fetched
// state.
func (db *DB) SetForkEnabled(enabled bool) {
	db.forkEnabled = enabled && db.remote != nil
}

// ForkEnabled returns the current fork toggle status.
func (db *DB) ForkEnabled() bool {
	return db.forkEnabled
}

// SetCallDepth informs the database of the current frame depth, used for the
// fork depth bound.
func (db *DB) SetCallDepth(depth int) {
	db.callDepth = depth
}

// RemoteError returns the first remote lookup failure observed since the last
// transaction start, or nil.
func (db *DB) RemoteError() error {
	return db.remoteErr
}

// ForkedAddresses lists the addresses that have been loaded from the remote
// source.
func (db *DB) ForkedAddresses() []vm.Address {
	return maps.Keys(db.remoteAddresses)
}

// ForkedSlots lists the storage slots of the given address that have been
// loaded from the remote source.
func (db *DB) ForkedSlots(addr vm.Address) []vm.Key {
	return maps.Keys(db.remoteAddresses[addr])
}

// IgnoredAddresses lists addresses whose remote lookup was skipped due to the
// fork depth bound.
func (db *DB) IgnoredAddresses() []vm.Address {
	return maps.Keys(db.ignored)
}

// ---- account access ----

// getAccount returns the account for the given address, consulting the
// remote source on a local miss. It returns nil if the account is unknown.
func (db *DB) getAccount(addr vm.Address) *Account {
	if account, found := db.accounts[addr]; found {
		return account
	}
	if !db.forkEnabled {
		return nil
	}
	if db.maxForkDepth > 0 && db.callDepth > db.maxForkDepth {
		db.ignored[addr] = struct{}{}
		return nil
	}
	nonce, balance, code, exists, err := db.remote.Account(addr)
	if err != nil {
		if db.remoteErr == nil {
			db.remoteErr = fmt.Errorf("loading account %v: %w", addr, err)
		}
		return nil
	}
	if !exists {
		return nil
	}
	// Materialize the committed remote state without journaling; this is
	// cache population, not a state mutation.
	account := newAccount()
	account.Nonce = nonce
	account.Balance = balance
	if len(code) > 0 {
		account.CodeHash = keccak256(code)
		db.codes[account.CodeHash] = code
	}
	db.accounts[addr] = account
	if _, found := db.remoteAddresses[addr]; !found {
		db.remoteAddresses[addr] = map[vm.Key]struct{}{}
	}
	return account
}

// getOrNewAccount returns the account for the given address, creating a
// fresh (journaled) one if it does not exist yet.
func (db *DB) getOrNewAccount(addr vm.Address) *Account {
	if account := db.getAccount(addr); account != nil {
		return account
	}
	account := newAccount()
	db.accounts[addr] = account
	db.journal.append(accountCreated{account: addr})
	return account
}

// CreateAccount materializes a fresh account at the given address, keeping a
// pre-existing balance per EIP-161 but dropping any previous storage.
func (db *DB) CreateAccount(addr vm.Address) {
	prev := db.getAccount(addr)
	account := newAccount()
	if prev != nil {
		account.Balance = prev.Balance
	}
	// The journal cannot resurrect the dropped storage of a pre-existing
	// account; creation over non-empty accounts is rejected by the
	// dispatcher before any state change.
	db.accounts[addr] = account
	if prev == nil {
		db.journal.append(accountCreated{account: addr})
	}
	db.touch(addr)
}

func (db *DB) touch(addr vm.Address) {
	_, wasTouched := db.touched[addr]
	if !wasTouched {
		db.touched[addr] = struct{}{}
		db.journal.append(accountTouched{account: addr, wasTouched: wasTouched})
	}
}

// ---- vm.WorldState ----

// AccountExists reports whether the account exists in the sense of EIP-161,
// i.e. has a non-zero nonce, a non-zero balance, or code.
func (db *DB) AccountExists(addr vm.Address) bool {
	account := db.getAccount(addr)
	return account != nil && !account.empty()
}

func (db *DB) GetBalance(addr vm.Address) vm.Value {
	if account := db.getAccount(addr); account != nil {
		return account.Balance
	}
	return vm.Value{}
}

func (db *DB) SetBalance(addr vm.Address, balance vm.Value) {
	account := db.getOrNewAccount(addr)
	db.journal.append(balanceChange{account: addr, prev: account.Balance})
	account.Balance = balance
	db.touch(addr)
}

// AddBalance credits the address, creating the account if needed. A zero
// credit still counts as a touch.
func (db *DB) AddBalance(addr vm.Address, delta vm.Value) {
	account := db.getOrNewAccount(addr)
	db.journal.append(balanceChange{account: addr, prev: account.Balance})
	account.Balance = vm.Add(account.Balance, delta)
	db.touch(addr)
}

// SubBalance debits the address. Callers must have verified sufficient
// balance beforehand.
func (db *DB) SubBalance(addr vm.Address, delta vm.Value) {
	account := db.getOrNewAccount(addr)
	db.journal.append(balanceChange{account: addr, prev: account.Balance})
	account.Balance = vm.Sub(account.Balance, delta)
	db.touch(addr)
}

func (db *DB) GetNonce(addr vm.Address) uint64 {
	if account := db.getAccount(addr); account != nil {
		return account.Nonce
	}
	return 0
}

func (db *DB) SetNonce(addr vm.Address, nonce uint64) {
	account := db.getOrNewAccount(addr)
	db.journal.append(nonceChange{account: addr, prev: account.Nonce})
	account.Nonce = nonce
	db.touch(addr)
}

func (db *DB) GetCode(addr vm.Address) vm.Code {
	account := db.getAccount(addr)
	if account == nil || account.CodeHash == emptyCodeHash {
		return nil
	}
	return db.codes[account.CodeHash]
}

func (db *DB) GetCodeHash(addr vm.Address) vm.Hash {
	if account := db.getAccount(addr); account != nil {
		return account.CodeHash
	}
	return emptyCodeHash
}

func (db *DB) GetCodeSize(addr vm.Address) int {
	return len(db.GetCode(addr))
}

func (db *DB) SetCode(addr vm.Address, code vm.Code) {
	account := db.getOrNewAccount(addr)
	db.journal.append(codeChange{account: addr, prevHash: account.CodeHash})
	if len(code) == 0 {
		account.CodeHash = emptyCodeHash
	} else {
		account.CodeHash = keccak256(code)
		db.codes[account.CodeHash] = code
	}
	db.touch(addr)
}

func (db *DB) GetStorage(addr vm.Address, key vm.Key) vm.Word {
	account := db.getAccount(addr)
	if account == nil {
		return vm.Word{}
	}
	if value, found := account.storage[key]; found {
		db.recordOrigin(account, key, value)
		return value
	}
	value := db.remoteStorage(addr, key)
	db.recordOrigin(account, key, value)
	return value
}

// remoteStorage consults the remote source for a slot of a remotely loaded
// account, memoizing the result in the account storage.
func (db *DB) remoteStorage(addr vm.Address, key vm.Key) vm.Word {
	if !db.forkEnabled {
		return vm.Word{}
	}
	slots, isRemote := db.remoteAddresses[addr]
	if !isRemote {
		return vm.Word{}
	}
	value, err := db.remote.Storage(addr, key)
	if err != nil {
		if db.remoteErr == nil {
			db.remoteErr = fmt.Errorf("loading storage %v %v: %w", addr, key, err)
		}
		return vm.Word{}
	}
	slots[key] = struct{}{}
	db.accounts[addr].storage[key] = value
	return value
}

// recordOrigin remembers the first-seen value of a slot in the ongoing
// invocation, for SSTORE gas and refund computations.
func (db *DB) recordOrigin(account *Account, key vm.Key, value vm.Word) {
	if _, found := account.originStorage[key]; !found {
		account.originStorage[key] = value
	}
}

func (db *DB) GetCommittedStorage(addr vm.Address, key vm.Key) vm.Word {
	account := db.getAccount(addr)
	if account == nil {
		return vm.Word{}
	}
	if value, found := account.originStorage[key]; found {
		return value
	}
	value := account.getStorage(key)
	db.recordOrigin(account, key, value)
	return value
}

func (db *DB) SetStorage(addr vm.Address, key vm.Key, value vm.Word) vm.StorageStatus {
	account := db.getOrNewAccount(addr)
	current, existed := account.storage[key]
	if !existed {
		current = db.remoteStorage(addr, key)
	}
	original := db.GetCommittedStorage(addr, key)

	if _, dirty := account.dirtySlots[key]; !dirty {
		db.journal.append(storageChange{
			account: addr,
			key:     key,
			prev:    current,
			existed: existed,
		})
		account.dirtySlots[key] = struct{}{}
	}
	account.storage[key] = value
	return vm.GetStorageStatus(original, current, value)
}

// SelfDestruct schedules the destruction of the given account and transfers
// its balance to the beneficiary. Returns true on the first destruction of
// this address in the ongoing invocation.
func (db *DB) SelfDestruct(addr vm.Address, beneficiary vm.Address) bool {
	account := db.getAccount(addr)
	if account == nil {
		return false
	}
	wasSuicided := account.suicided

	db.AddBalance(beneficiary, account.Balance)

	db.journal.append(selfDestructChange{
		account:     addr,
		beneficiary: beneficiary,
		prevBalance: account.Balance,
		wasSuicided: wasSuicided,
	})
	account.suicided = true
	account.Balance = vm.Value{}
	db.touch(addr)
	return !wasSuicided
}

func (db *DB) HasSelfDestructed(addr vm.Address) bool {
	account := db.getAccount(addr)
	return account != nil && account.suicided
}

// ---- checkpoints ----

// CreateSnapshot opens a checkpoint that can later be reverted to. The
// returned handles form a LIFO stack.
func (db *DB) CreateSnapshot() vm.Snapshot {
	id := db.nextRevisionID
	db.nextRevisionID++
	db.validRevisions = append(db.validRevisions, revision{id: id, journalIndex: db.journal.length()})
	// The first write to each slot after this checkpoint journals its prior
	// value again, so that reverting to it restores the slot.
	for _, account := range db.accounts {
		if len(account.dirtySlots) > 0 {
			account.dirtySlots = map[vm.Key]struct{}{}
		}
	}
	return vm.Snapshot(id)
}

// RestoreSnapshot reverts all journaled mutations recorded after the given
// checkpoint, newest first.
func (db *DB) RestoreSnapshot(snapshot vm.Snapshot) {
	id := int(snapshot)
	idx := -1
	for i, rev := range db.validRevisions {
		if rev.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		panic(fmt.Errorf("revision id %v cannot be reverted", id))
	}
	db.journal.revert(db, db.validRevisions[idx].journalIndex)
	db.validRevisions = db.validRevisions[:idx]
}

// CommitSnapshot discards the checkpoint marker while keeping all journaled
// mutations; they flow up to the enclosing checkpoint, if any.
func (db *DB) CommitSnapshot(snapshot vm.Snapshot) {
	id := int(snapshot)
	for i, rev := range db.validRevisions {
		if rev.id == id {
			db.validRevisions = db.validRevisions[:i]
			return
		}
	}
	panic(fmt.Errorf("revision id %v cannot be committed", id))
}

// ---- transient storage, access lists, logs ----

func (db *DB) GetTransientStorage(addr vm.Address, key vm.Key) vm.Word {
	return db.transient[slotKey{addr, key}]
}

func (db *DB) SetTransientStorage(addr vm.Address, key vm.Key, value vm.Word) {
	slot := slotKey{addr, key}
	db.journal.append(transientStorageChange{slot: slot, prev: db.transient[slot]})
	if value == (vm.Word{}) {
		delete(db.transient, slot)
	} else {
		db.transient[slot] = value
	}
}

func (db *DB) AccessAccount(addr vm.Address) vm.AccessStatus {
	if _, warm := db.accessedAccounts[addr]; warm {
		return vm.WarmAccess
	}
	db.accessedAccounts[addr] = struct{}{}
	db.journal.append(accessListAddAccount{account: addr})
	return vm.ColdAccess
}

func (db *DB) AccessStorage(addr vm.Address, key vm.Key) vm.AccessStatus {
	db.AccessAccount(addr)
	slot := slotKey{addr, key}
	if _, warm := db.accessedSlots[slot]; warm {
		return vm.WarmAccess
	}
	db.accessedSlots[slot] = struct{}{}
	db.journal.append(accessListAddSlot{slot: slot})
	return vm.ColdAccess
}

func (db *DB) IsAddressInAccessList(addr vm.Address) bool {
	_, found := db.accessedAccounts[addr]
	return found
}

func (db *DB) IsSlotInAccessList(addr vm.Address, key vm.Key) (addressPresent, slotPresent bool) {
	_, addressPresent = db.accessedAccounts[addr]
	_, slotPresent = db.accessedSlots[slotKey{addr, key}]
	return
}

func (db *DB) EmitLog(log vm.Log) {
	db.logs = append(db.logs, log)
	db.journal.append(logAppended{})
}

func (db *DB) GetLogs() []vm.Log {
	return db.logs
}

// ---- block hashes ----

// SetBlockHash pins the hash of a block number, taking precedence over the
// remote source.
func (db *DB) SetBlockHash(number int64, hash vm.Hash) {
	db.blockHashes[number] = hash
}

// GetBlockHash returns the hash of the block with the given number. Without
// a remote source, the hash is derived from the block number, matching the
// behavior of an isolated execution environment.
func (db *DB) GetBlockHash(number int64) vm.Hash {
	if hash, found := db.blockHashes[number]; found {
		return hash
	}
	if db.forkEnabled {
		hash, err := db.remote.BlockHash(number)
		if err != nil {
			if db.remoteErr == nil {
				db.remoteErr = fmt.Errorf("loading block hash %d: %w", number, err)
			}
			return vm.Hash{}
		}
		db.blockHashes[number] = hash
		return hash
	}
	var encoded [32]byte
	binary.BigEndian.PutUint64(encoded[24:], uint64(number))
	hash := keccak256(encoded[:])
	db.blockHashes[number] = hash
	return hash
}

// ---- transaction lifecycle ----

// BeginTransaction prepares the database for a new invocation: transaction
// scoped tracking starts empty.
func (db *DB) BeginTransaction() {
	db.remoteErr = nil
	db.callDepth = 0
}

// EndTransaction finalizes the committed effects of an invocation: destroyed
// accounts are removed, touched empty accounts are pruned per EIP-161, and
// all transaction-scoped bookkeeping is discarded. Open checkpoints are an
// invariant violation.
func (db *DB) EndTransaction() error {
	if len(db.validRevisions) > 0 {
		return fmt.Errorf("ending transaction with %d open checkpoints", len(db.validRevisions))
	}
	for addr, account := range db.accounts {
		if account.suicided {
			delete(db.accounts, addr)
			continue
		}
		if _, touched := db.touched[addr]; touched && account.empty() {
			delete(db.accounts, addr)
		}
	}
	for _, account := range db.accounts {
		if len(account.originStorage) > 0 {
			account.originStorage = map[vm.Key]vm.Word{}
		}
		if len(account.dirtySlots) > 0 {
			account.dirtySlots = map[vm.Key]struct{}{}
		}
	}
	db.journal.reset()
	db.nextRevisionID = 0
	db.logs = nil
	db.touched = map[vm.Address]struct{}{}
	db.accessedAccounts = map[vm.Address]struct{}{}
	db.accessedSlots = map[slotKey]struct{}{}
	db.transient = map[slotKey]vm.Word{}
	return nil
}

// ---- direct session-level manipulation ----

// RemoveAccount deletes the account and its storage. Must not be called with
// open checkpoints.
func (db *DB) RemoveAccount(addr vm.Address) {
	delete(db.accounts, addr)
	delete(db.remoteAddresses, addr)
}

// ResetStorage clears the storage of the account while preserving its info.
func (db *DB) ResetStorage(addr vm.Address) {
	if account, found := db.accounts[addr]; found {
		account.storage = map[vm.Key]vm.Word{}
		account.originStorage = map[vm.Key]vm.Word{}
		account.dirtySlots = map[vm.Key]struct{}{}
	}
}

// Accounts lists all addresses currently present in the database.
func (db *DB) Accounts() []vm.Address {
	return maps.Keys(db.accounts)
}
