package fork

import (
	"github.com/sbip-sg/tevm/vm"
)

//go:generate mockgen -source provider.go -destination provider_mock.go -package fork

// BlockHeader carries the subset of a block header consumed by the executor.
type BlockHeader struct {
	Number     uint64
	Hash       vm.Hash
	Timestamp  uint64
	Difficulty vm.Word
	GasLimit   uint64
	Coinbase   vm.Address
	BaseFee    *vm.Value
}

// Provider is the abstract remote chain state source backing a forked
// session. Implementations typically wrap a JSON-RPC client pinned to a
// block number; the executor only consumes these five getters.
type Provider interface {
	// BlockNumber returns the latest block number on the chain.
	BlockNumber() (uint64, error)

	// Nonce returns the transaction count of the address at the block.
	Nonce(addr vm.Address, block uint64) (uint64, error)

	// Balance returns the balance of the address at the block.
	Balance(addr vm.Address, block uint64) (vm.Value, error)

	// Code returns the code of the address at the block.
	Code(addr vm.Address, block uint64) (vm.Code, error)

	// StorageAt returns the value of the storage slot at the block.
	StorageAt(addr vm.Address, key vm.Key, block uint64) (vm.Word, error)

	// BlockHeader returns the header of the block with the given number.
	BlockHeader(block uint64) (BlockHeader, error)
}

// Errors surfaced by the fork package.
const (
	// ErrProviderUnavailable indicates that the remote RPC could not serve a
	// request. Committed state is never corrupted by this failure.
	ErrProviderUnavailable = vm.ConstError("fork provider unavailable")

	// ErrCacheError indicates an I/O failure of the persistent cache
	// backend.
	ErrCacheError = vm.ConstError("provider cache failure")

	// ErrCacheMiss is returned by cache backends for unknown keys.
	ErrCacheMiss = vm.ConstError("cache miss")
)
