package host

import (
	"sync"

	"github.com/sbip-sg/tevm/vm"

	"github.com/umbracle/fastrlp"
	"golang.org/x/crypto/sha3"
)

var keccakPool = sync.Pool{New: func() any { return sha3.NewLegacyKeccak256() }}

func keccak256(data ...[]byte) vm.Hash {
	hasher := keccakPool.Get().(interface {
		Reset()
		Write([]byte) (int, error)
		Sum([]byte) []byte
	})
	hasher.Reset()
	for _, d := range data {
		hasher.Write(d)
	}
	var res vm.Hash
	copy(res[:], hasher.Sum(nil))
	keccakPool.Put(hasher)
	return res
}

var addressPool fastrlp.ArenaPool

// CreateAddress derives the address of a CREATE deployment from the RLP
// encoding of sender and nonce.
func CreateAddress(sender vm.Address, nonce uint64) vm.Address {
	a := addressPool.Get()
	defer addressPool.Put(a)

	v := a.NewArray()
	v.Set(a.NewBytes(sender[:]))
	v.Set(a.NewUint(nonce))

	hash := keccak256(v.MarshalTo(nil))

	var res vm.Address
	copy(res[:], hash[12:])
	return res
}

var create2Prefix = []byte{0xff}

// CreateAddress2 derives the address of a CREATE2 deployment following
// keccak256(0xff ++ sender ++ salt ++ keccak256(init_code))[12:].
func CreateAddress2(sender vm.Address, salt vm.Hash, initCodeHash vm.Hash) vm.Address {
	hash := keccak256(create2Prefix, sender[:], salt[:], initCodeHash[:])
	var res vm.Address
	copy(res[:], hash[12:])
	return res
}
