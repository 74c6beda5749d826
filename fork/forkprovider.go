package fork

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sbip-sg/tevm/vm"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/crypto/sha3"
)

const (
	apiAccount = "acct"
	apiSlot    = "slot"
	apiCode    = "code"
	apiBlock   = "block"
)

type accountEntry struct {
	nonce    uint64
	balance  vm.Value
	code     vm.Code
	codeHash vm.Hash
	exists   bool
}

type slotID struct {
	addr vm.Address
	key  vm.Key
}

// CachedProvider is a read-through cache in front of a remote Provider,
// pinned to one block. Lookups go memory first, then the persistent backend,
// then the remote RPC; every fetched value is memoized in memory and
// persisted, and never evicted within a session.
//
// It satisfies the remote source interface of the state database.
type CachedProvider struct {
	provider Provider
	cache    ProviderCache
	chain    string
	block    uint64
	logger   hclog.Logger

	accounts map[vm.Address]accountEntry
	slots    map[slotID]vm.Word
	headers  map[uint64]BlockHeader
}

// NewCachedProvider creates a cached view of the provider pinned to the
// given block number. If block is 0, the latest block number is fetched from
// the provider.
func NewCachedProvider(provider Provider, cache ProviderCache, chain string, block uint64, logger hclog.Logger) (*CachedProvider, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if block == 0 {
		latest, err := provider.BlockNumber()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		block = latest
	}
	return &CachedProvider{
		provider: provider,
		cache:    cache,
		chain:    chain,
		block:    block,
		logger:   logger.Named("fork"),
		accounts: map[vm.Address]accountEntry{},
		slots:    map[slotID]vm.Word{},
		headers:  map[uint64]BlockHeader{},
	}, nil
}

// Block returns the pinned block number.
func (p *CachedProvider) Block() uint64 {
	return p.block
}

// persist writes a fetched value to the backend; backend write failures are
// logged but do not fail the lookup, the value is still served from memory.
func (p *CachedProvider) persist(api, key string, value []byte) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Store(p.chain, p.block, api, key, value); err != nil {
		p.logger.Warn("failed to persist cache entry", "api", api, "error", err)
	}
}

func (p *CachedProvider) lookup(api, key string) ([]byte, bool, error) {
	if p.cache == nil {
		return nil, false, nil
	}
	value, err := p.cache.Get(p.chain, p.block, api, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

// encodeAccount produces the minimal persistent encoding of an account:
// 8-byte big-endian nonce, 32-byte balance, 32-byte code hash. The code is
// persisted separately, keyed by its hash.
func encodeAccount(entry accountEntry) []byte {
	data := make([]byte, 8+32+32)
	binary.BigEndian.PutUint64(data[:8], entry.nonce)
	copy(data[8:40], entry.balance[:])
	copy(data[40:72], entry.codeHash[:])
	return data
}

func decodeAccount(data []byte) (accountEntry, error) {
	if len(data) != 72 {
		return accountEntry{}, fmt.Errorf("%w: malformed account entry of %d bytes", ErrCacheError, len(data))
	}
	var entry accountEntry
	entry.nonce = binary.BigEndian.Uint64(data[:8])
	copy(entry.balance[:], data[8:40])
	copy(entry.codeHash[:], data[40:72])
	return entry, nil
}

func keccak(data []byte) vm.Hash {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(data)
	var res vm.Hash
	copy(res[:], hasher.Sum(nil))
	return res
}

var emptyHash = keccak(nil)

// Account returns nonce, balance and code of the address at the pinned
// block, fetching and persisting on a miss.
func (p *CachedProvider) Account(addr vm.Address) (uint64, vm.Value, vm.Code, bool, error) {
	if entry, found := p.accounts[addr]; found {
		return entry.nonce, entry.balance, entry.code, entry.exists, nil
	}

	entry, found, err := p.loadAccountFromBackend(addr)
	if err != nil {
		return 0, vm.Value{}, nil, false, err
	}
	if !found {
		entry, err = p.fetchAccount(addr)
		if err != nil {
			return 0, vm.Value{}, nil, false, err
		}
	}
	p.accounts[addr] = entry
	return entry.nonce, entry.balance, entry.code, entry.exists, nil
}

func (p *CachedProvider) loadAccountFromBackend(addr vm.Address) (accountEntry, bool, error) {
	data, found, err := p.lookup(apiAccount, addr.String())
	if err != nil || !found {
		return accountEntry{}, false, err
	}
	entry, err := decodeAccount(data)
	if err != nil {
		return accountEntry{}, false, err
	}
	if entry.codeHash != emptyHash {
		code, found, err := p.lookup(apiCode, entry.codeHash.String())
		if err != nil {
			return accountEntry{}, false, err
		}
		if !found {
			// The code file is gone; refetch the whole account.
			return accountEntry{}, false, nil
		}
		entry.code = code
	}
	entry.exists = entry.nonce != 0 || !entry.balance.IsZero() || len(entry.code) > 0
	return entry, true, nil
}

func (p *CachedProvider) fetchAccount(addr vm.Address) (accountEntry, error) {
	nonce, err := p.provider.Nonce(addr, p.block)
	if err != nil {
		return accountEntry{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	balance, err := p.provider.Balance(addr, p.block)
	if err != nil {
		return accountEntry{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	code, err := p.provider.Code(addr, p.block)
	if err != nil {
		return accountEntry{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	p.logger.Debug("loaded account from remote node", "address", addr, "nonce", nonce)

	entry := accountEntry{
		nonce:    nonce,
		balance:  balance,
		code:     code,
		codeHash: emptyHash,
		exists:   nonce != 0 || !balance.IsZero() || len(code) > 0,
	}
	if len(code) > 0 {
		entry.codeHash = keccak(code)
		p.persist(apiCode, entry.codeHash.String(), code)
	}
	p.persist(apiAccount, addr.String(), encodeAccount(entry))
	return entry, nil
}

// Storage returns the value of the slot at the pinned block, fetching and
// persisting on a miss.
func (p *CachedProvider) Storage(addr vm.Address, key vm.Key) (vm.Word, error) {
	id := slotID{addr, key}
	if value, found := p.slots[id]; found {
		return value, nil
	}

	requestKey := addr.String() + "-" + key.String()
	data, found, err := p.lookup(apiSlot, requestKey)
	if err != nil {
		return vm.Word{}, err
	}
	var value vm.Word
	if found && len(data) == 32 {
		copy(value[:], data)
	} else {
		value, err = p.provider.StorageAt(addr, key, p.block)
		if err != nil {
			return vm.Word{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		p.logger.Debug("loaded storage from remote node", "address", addr, "slot", key)
		p.persist(apiSlot, requestKey, value[:])
	}
	p.slots[id] = value
	return value, nil
}

// Header returns the block header of the given number, fetching and
// persisting on a miss.
func (p *CachedProvider) Header(number uint64) (BlockHeader, error) {
	if header, found := p.headers[number]; found {
		return header, nil
	}

	requestKey := fmt.Sprintf("%d", number)
	data, found, err := p.lookup(apiBlock, requestKey)
	if err != nil {
		return BlockHeader{}, err
	}
	var header BlockHeader
	if found && json.Unmarshal(data, &header) == nil {
		p.headers[number] = header
		return header, nil
	}

	header, err = p.provider.BlockHeader(number)
	if err != nil {
		return BlockHeader{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if encoded, err := json.Marshal(header); err == nil {
		p.persist(apiBlock, requestKey, encoded)
	}
	p.headers[number] = header
	return header, nil
}

// PinnedHeader returns the header of the pinned block.
func (p *CachedProvider) PinnedHeader() (BlockHeader, error) {
	return p.Header(p.block)
}

// BlockHash returns the hash of the block with the given number.
func (p *CachedProvider) BlockHash(number int64) (vm.Hash, error) {
	header, err := p.Header(uint64(number))
	if err != nil {
		return vm.Hash{}, err
	}
	return header.Hash, nil
}
