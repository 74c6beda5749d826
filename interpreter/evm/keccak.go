package evm

import (
	"sync"

	"github.com/sbip-sg/tevm/vm"

	"golang.org/x/crypto/sha3"
)

type keccakHasher interface {
	Reset()
	Write(in []byte) (int, error)
	Read(out []byte) (int, error)
}

var keccakHasherPool = sync.Pool{New: func() any { return sha3.NewLegacyKeccak256() }}

// Keccak256 computes the Keccak-256 hash of the given data, reusing hasher
// instances from a pool.
func Keccak256(data []byte) vm.Hash {
	hasher := keccakHasherPool.Get().(keccakHasher)
	hasher.Reset()
	hasher.Write(data)
	var res vm.Hash
	hasher.Read(res[:])
	keccakHasherPool.Put(hasher)
	return res
}

// EmptyCodeHash is the Keccak-256 hash of the empty byte sequence.
var EmptyCodeHash = Keccak256(nil)
