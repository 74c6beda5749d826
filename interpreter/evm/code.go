package evm

import (
	"github.com/sbip-sg/tevm/vm"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Code is a borrowed view on a byte-code sequence together with its
// pre-computed set of valid JUMPDEST positions.
type Code struct {
	code      []byte
	jumpDests bitvec
}

// bitvec is a bit vector with one bit per code byte, marking positions that
// are valid jump destinations (JUMPDEST opcodes outside of PUSH data).
type bitvec []uint64

func newBitvec(size int) bitvec {
	return make(bitvec, (size+63)/64)
}

func (b bitvec) set(pos int) {
	b[pos/64] |= 1 << (pos % 64)
}

func (b bitvec) isSet(pos int) bool {
	return b[pos/64]&(1<<(pos%64)) != 0
}

// analyze scans the code once, skipping PUSH immediates, and marks every
// JUMPDEST byte reachable as an instruction boundary.
func analyze(code []byte) Code {
	dests := newBitvec(len(code))
	for pc := 0; pc < len(code); pc++ {
		op := OpCode(code[pc])
		if op == JUMPDEST {
			dests.set(pc)
		} else if op.isPush() {
			pc += op.pushSize()
		}
	}
	return Code{code: code, jumpDests: dests}
}

func (c Code) length() int {
	return len(c.code)
}

// isValidJumpDest reports whether dest addresses a JUMPDEST instruction that
// is not part of PUSH data.
func (c Code) isValidJumpDest(dest uint64) bool {
	return dest < uint64(len(c.code)) && c.jumpDests.isSet(int(dest))
}

// maxCachedCodeLength is the maximum length of a code in bytes retained in
// the analysis cache. The limit equals the maximum size of codes stored on
// chain; only initialization codes can be longer, and those have no code hash
// to key the cache with anyway.
const maxCachedCodeLength = 24_576

// analyzer caches JUMPDEST analyses keyed by code hash, so repeated calls
// into the same contract skip the code scan.
type analyzer struct {
	cache *lru.Cache[vm.Hash, Code]
}

// defaultAnalysisCacheSize bounds the number of cached analyses.
const defaultAnalysisCacheSize = 4096

func newAnalyzer(cacheSize int) (*analyzer, error) {
	if cacheSize == 0 {
		cacheSize = defaultAnalysisCacheSize
	}
	var cache *lru.Cache[vm.Hash, Code]
	if cacheSize > 0 {
		var err error
		cache, err = lru.New[vm.Hash, Code](cacheSize)
		if err != nil {
			return nil, err
		}
	}
	return &analyzer{cache: cache}, nil
}

// analyze returns the analysis of the given code, using the cache when a
// code hash is provided.
func (a *analyzer) analyze(code []byte, codeHash *vm.Hash) Code {
	if a.cache == nil || codeHash == nil {
		return analyze(code)
	}
	if res, exists := a.cache.Get(*codeHash); exists {
		return res
	}
	res := analyze(code)
	if len(code) <= maxCachedCodeLength {
		a.cache.Add(*codeHash, res)
	}
	return res
}
