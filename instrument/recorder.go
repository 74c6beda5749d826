package instrument

import (
	"github.com/sbip-sg/tevm/vm"
)

// StorageAccess is one entry of the ordered storage access trace.
type StorageAccess struct {
	Op      vm.StorageOp
	Address vm.Address
	Key     vm.Key
	Prev    vm.Word
	Value   vm.Word
	PC      int
	Depth   int
}

// Recorder collects coverage, storage traces, and heuristic bug signals
// during execution. It implements vm.Tracer.
//
// Coverage accumulates across invocations of a session; bug signals and the
// storage trace are scoped to one invocation and rolled back for reverted
// frames via Mark/Truncate, driven by the frame dispatcher.
type Recorder struct {
	config Config

	coverage     map[vm.Hash]*Bitset
	pcsByAddress map[vm.Address]*Bitset

	bugs         []vm.Bug
	storageTrace []StorageAccess
	sha3Mapping  map[vm.Hash][]byte

	seenAddresses []vm.Address
	seenIndex     map[vm.Address]int

	createdAddresses []vm.Address
}

// NewRecorder creates a recorder with the given configuration.
func NewRecorder(config Config) *Recorder {
	return &Recorder{
		config:       config,
		coverage:     map[vm.Hash]*Bitset{},
		pcsByAddress: map[vm.Address]*Bitset{},
		sha3Mapping:  map[vm.Hash][]byte{},
		seenIndex:    map[vm.Address]int{},
	}
}

// Config returns the active instrumentation configuration.
func (r *Recorder) Config() Config {
	return r.config
}

// SetConfig replaces the instrumentation configuration.
func (r *Recorder) SetConfig(config Config) {
	r.config = config
}

// ---- vm.Tracer ----

func (r *Recorder) TraceOp(codeHash vm.Hash, addr vm.Address, pc int, op byte) {
	if !r.config.Enabled || !r.config.PcCoverage {
		return
	}
	r.noteAddress(addr)
	set, found := r.coverage[codeHash]
	if !found {
		set = NewBitset()
		r.coverage[codeHash] = set
	}
	set.Set(pc)

	byAddr, found := r.pcsByAddress[addr]
	if !found {
		byAddr = NewBitset()
		r.pcsByAddress[addr] = byAddr
	}
	byAddr.Set(pc)
}

func (r *Recorder) TraceStorage(op vm.StorageOp, addr vm.Address, key vm.Key, prev, value vm.Word, pc int, depth int) {
	if !r.config.Enabled || !r.config.RecordStorage {
		return
	}
	r.storageTrace = append(r.storageTrace, StorageAccess{
		Op:      op,
		Address: addr,
		Key:     key,
		Prev:    prev,
		Value:   value,
		PC:      pc,
		Depth:   depth,
	})
}

func (r *Recorder) TraceBug(bug vm.Bug) {
	if !r.config.wants(bug.Kind) {
		return
	}
	r.noteAddress(bug.Address)
	r.bugs = append(r.bugs, bug)
}

func (r *Recorder) TraceSha3(input []byte, hash vm.Hash) {
	if !r.config.Enabled || !r.config.RecordSha3Mapping {
		return
	}
	r.sha3Mapping[hash] = input
}

// ---- frame scoping ----

// Mark captures the current length of the invocation-scoped buffers. The
// dispatcher records a mark when entering a frame.
type Mark struct {
	bugs    int
	storage int
}

func (r *Recorder) Mark() Mark {
	return Mark{bugs: len(r.bugs), storage: len(r.storageTrace)}
}

// Truncate drops all invocation-scoped records made after the mark. The
// dispatcher truncates when a frame reverts, so reverted frames contribute
// neither bug signals nor storage trace entries.
func (r *Recorder) Truncate(mark Mark) {
	r.bugs = r.bugs[:mark.bugs]
	r.storageTrace = r.storageTrace[:mark.storage]
}

// ---- session-level bookkeeping ----

func (r *Recorder) noteAddress(addr vm.Address) {
	if _, found := r.seenIndex[addr]; !found {
		r.seenIndex[addr] = len(r.seenAddresses)
		r.seenAddresses = append(r.seenAddresses, addr)
	}
}

// NoteCreated records an address created during the ongoing invocation.
func (r *Recorder) NoteCreated(addr vm.Address) {
	if !r.config.Enabled {
		return
	}
	r.createdAddresses = append(r.createdAddresses, addr)
}

// AddressIndex returns the index of the address in the seen-address list, or
// -1 if it has not been observed.
func (r *Recorder) AddressIndex(addr vm.Address) int {
	if idx, found := r.seenIndex[addr]; found {
		return idx
	}
	return -1
}

// ResetInvocation clears the invocation-scoped buffers, keeping coverage.
func (r *Recorder) ResetInvocation() {
	r.bugs = nil
	r.storageTrace = nil
	r.createdAddresses = nil
}

// ResetCoverage clears the accumulated coverage maps, typically before a
// fresh deployment.
func (r *Recorder) ResetCoverage() {
	r.coverage = map[vm.Hash]*Bitset{}
	r.pcsByAddress = map[vm.Address]*Bitset{}
}

// ---- views ----

// Bugs returns the bug signals recorded in the ongoing invocation.
func (r *Recorder) Bugs() []vm.Bug {
	return r.bugs
}

// Heuristics summarizes the recorded bug signals into boolean flags.
func (r *Recorder) Heuristics() Heuristics {
	return summarize(r.bugs)
}

// StorageTrace returns the ordered storage access trace of the ongoing
// invocation.
func (r *Recorder) StorageTrace() []StorageAccess {
	return r.storageTrace
}

// Coverage returns a copy of the accumulated coverage keyed by code hash.
func (r *Recorder) Coverage() map[vm.Hash]*Bitset {
	res := make(map[vm.Hash]*Bitset, len(r.coverage))
	for hash, set := range r.coverage {
		res[hash] = set.Clone()
	}
	return res
}

// PcsByAddress returns a copy of the accumulated coverage keyed by contract
// address.
func (r *Recorder) PcsByAddress() map[vm.Address]*Bitset {
	res := make(map[vm.Address]*Bitset, len(r.pcsByAddress))
	for addr, set := range r.pcsByAddress {
		res[addr] = set.Clone()
	}
	return res
}

// Sha3Mapping returns the recorded mapping from hash outputs to inputs.
func (r *Recorder) Sha3Mapping() map[vm.Hash][]byte {
	return r.sha3Mapping
}

// SeenAddresses lists the addresses observed during execution in first-seen
// order.
func (r *Recorder) SeenAddresses() []vm.Address {
	return r.seenAddresses
}

// CreatedAddresses lists the addresses created in the ongoing invocation.
func (r *Recorder) CreatedAddresses() []vm.Address {
	return r.createdAddresses
}
