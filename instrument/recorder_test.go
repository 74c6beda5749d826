package instrument

import (
	"testing"

	"github.com/sbip-sg/tevm/vm"
)

func TestBitset_SetAndList(t *testing.T) {
	set := NewBitset()
	for _, pos := range []int{0, 5, 63, 64, 1000} {
		set.Set(pos)
	}
	set.Set(5) // duplicates are ignored

	if got := set.Count(); got != 5 {
		t.Errorf("expected 5 marked positions, got %d", got)
	}
	want := []int{0, 5, 63, 64, 1000}
	got := set.ToSlice()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
		}
	}
	if !set.IsSet(64) || set.IsSet(65) {
		t.Errorf("membership queries are inconsistent")
	}
}

func TestBitset_Union(t *testing.T) {
	a := NewBitset()
	a.Set(1)
	a.Set(2)
	b := NewBitset()
	b.Set(2)
	b.Set(200)

	a.Union(b)
	if got := a.Count(); got != 3 {
		t.Errorf("expected 3 positions after union, got %d", got)
	}
	if !a.IsSet(200) {
		t.Errorf("union must include positions of the other set")
	}
}

func TestBitset_CloneIsIndependent(t *testing.T) {
	a := NewBitset()
	a.Set(1)
	b := a.Clone()
	b.Set(2)
	if a.IsSet(2) {
		t.Errorf("mutating the clone must not affect the original")
	}
}

func TestRecorder_CoverageAccumulates(t *testing.T) {
	r := NewRecorder(DefaultConfig())
	hash := vm.Hash{0x01}
	addr := vm.Address{0x0A}
	r.TraceOp(hash, addr, 0, 0x60)
	r.TraceOp(hash, addr, 2, 0x00)
	r.TraceOp(hash, addr, 2, 0x00)

	coverage := r.Coverage()
	if got := coverage[hash].Count(); got != 2 {
		t.Errorf("expected 2 covered positions, got %d", got)
	}
	byAddr := r.PcsByAddress()
	if got := byAddr[addr].Count(); got != 2 {
		t.Errorf("expected 2 covered positions by address, got %d", got)
	}
}

func TestRecorder_TruncateDropsFrameScopedRecords(t *testing.T) {
	r := NewRecorder(DefaultConfig())
	r.TraceBug(vm.Bug{Kind: vm.BugTimestampDependency})
	mark := r.Mark()
	r.TraceBug(vm.Bug{Kind: vm.BugSelfDestruct})
	r.TraceStorage(vm.StorageWrite, vm.Address{}, vm.Key{}, vm.Word{}, vm.Word{31: 1}, 3, 1)

	r.Truncate(mark)

	if got := len(r.Bugs()); got != 1 {
		t.Errorf("expected 1 surviving bug, got %d", got)
	}
	if got := len(r.StorageTrace()); got != 0 {
		t.Errorf("expected empty storage trace, got %d entries", got)
	}
	h := r.Heuristics()
	if !h.TimestampDependency || h.SelfDestruct {
		t.Errorf("unexpected heuristics summary: %+v", h)
	}
}

func TestRecorder_ConfigGatesDetectors(t *testing.T) {
	config := DefaultConfig()
	config.TimestampDetection = false
	r := NewRecorder(config)

	r.TraceBug(vm.Bug{Kind: vm.BugTimestampDependency})
	r.TraceBug(vm.Bug{Kind: vm.BugIntegerDivByZero})

	if got := len(r.Bugs()); got != 1 {
		t.Fatalf("expected only the div-by-zero bug, got %d", got)
	}
	if r.Bugs()[0].Kind != vm.BugIntegerDivByZero {
		t.Errorf("unexpected bug recorded: %v", r.Bugs()[0])
	}
}

func TestRecorder_DisabledMasterSwitchRecordsNothing(t *testing.T) {
	r := NewRecorder(Config{})
	r.TraceOp(vm.Hash{1}, vm.Address{1}, 0, 0x60)
	r.TraceBug(vm.Bug{Kind: vm.BugSelfDestruct})
	r.TraceStorage(vm.StorageRead, vm.Address{}, vm.Key{}, vm.Word{}, vm.Word{}, 0, 0)
	r.TraceSha3([]byte{1}, vm.Hash{2})

	if len(r.Coverage()) != 0 || len(r.Bugs()) != 0 ||
		len(r.StorageTrace()) != 0 || len(r.Sha3Mapping()) != 0 {
		t.Errorf("disabled recorder must not collect data")
	}
}

func TestRecorder_OverflowDetectionIsOffByDefault(t *testing.T) {
	r := NewRecorder(DefaultConfig())
	r.TraceBug(vm.Bug{Kind: vm.BugIntegerOverflow})
	if len(r.Bugs()) != 0 {
		t.Errorf("overflow detection should be disabled by default")
	}
}

func TestRecorder_SeenAddressesIndex(t *testing.T) {
	r := NewRecorder(DefaultConfig())
	a := vm.Address{0x01}
	b := vm.Address{0x02}
	r.TraceOp(vm.Hash{1}, a, 0, 0)
	r.TraceOp(vm.Hash{1}, b, 1, 0)
	r.TraceOp(vm.Hash{1}, a, 2, 0)

	if got := r.AddressIndex(a); got != 0 {
		t.Errorf("expected index 0 for first address, got %d", got)
	}
	if got := r.AddressIndex(b); got != 1 {
		t.Errorf("expected index 1 for second address, got %d", got)
	}
	if got := r.AddressIndex(vm.Address{0x03}); got != -1 {
		t.Errorf("unknown addresses should report -1, got %d", got)
	}
}

func TestRecorder_ResetInvocationKeepsCoverage(t *testing.T) {
	r := NewRecorder(DefaultConfig())
	r.TraceOp(vm.Hash{1}, vm.Address{1}, 0, 0)
	r.TraceBug(vm.Bug{Kind: vm.BugSelfDestruct})
	r.NoteCreated(vm.Address{2})

	r.ResetInvocation()
	if len(r.Bugs()) != 0 || len(r.CreatedAddresses()) != 0 {
		t.Errorf("invocation-scoped data must be cleared")
	}
	if len(r.Coverage()) != 1 {
		t.Errorf("coverage must survive invocation resets")
	}

	r.ResetCoverage()
	if len(r.Coverage()) != 0 {
		t.Errorf("coverage must be cleared by ResetCoverage")
	}
}

func TestCallTraceBuilder_BuildsNestedTree(t *testing.T) {
	b := NewCallTraceBuilder()
	b.Enter(vm.Call, vm.Address{1}, vm.Address{2}, vm.Value{}, nil, 1000, false)
	b.Enter(vm.StaticCall, vm.Address{2}, vm.Address{3}, vm.Value{}, nil, 500, true)
	b.Exit(nil, 100, CallStatusReverted, "")
	b.Exit([]byte{0x01}, 300, CallStatusSuccess, "")

	root := b.Root()
	if root == nil {
		t.Fatalf("expected a recorded call tree")
	}
	if root.Status != CallStatusSuccess || root.GasUsed != 300 {
		t.Errorf("unexpected root: %+v", root)
	}
	if len(root.Children) != 1 {
		t.Fatalf("expected one child, got %d", len(root.Children))
	}
	child := root.Children[0]
	if child.Status != CallStatusReverted || !child.IsStatic || child.Depth != 1 {
		t.Errorf("unexpected child: %+v", child)
	}
	if flattened := root.Flatten(); len(flattened) != 2 || flattened[0].ID != 0 || flattened[1].ID != 1 {
		t.Errorf("unexpected flattened order: %+v", flattened)
	}
}
