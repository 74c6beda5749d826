package instrument

import "github.com/sbip-sg/tevm/vm"

// CallStatus labels the outcome of one frame in the call tree.
type CallStatus string

const (
	CallStatusSuccess  CallStatus = "success"
	CallStatusReverted CallStatus = "reverted"
	CallStatusHalted   CallStatus = "halted"
)

// CallTrace is one node of the call tree built during an invocation. Frames
// that reverted remain in the tree with their status set accordingly.
type CallTrace struct {
	ID          int
	Kind        vm.CallKind
	From        vm.Address
	To          vm.Address
	Value       vm.Value
	Input       []byte
	GasProvided vm.Gas
	GasUsed     vm.Gas
	Output      []byte
	Status      CallStatus
	Halt        vm.HaltReason
	Depth       int
	IsStatic    bool
	Children    []*CallTrace
}

// CallTraceBuilder assembles the call tree as the dispatcher enters and
// exits frames.
type CallTraceBuilder struct {
	root   *CallTrace
	stack  []*CallTrace
	nextID int
}

// NewCallTraceBuilder creates an empty builder for one invocation.
func NewCallTraceBuilder() *CallTraceBuilder {
	return &CallTraceBuilder{}
}

// Enter opens a new frame node below the current one.
func (b *CallTraceBuilder) Enter(kind vm.CallKind, from, to vm.Address, value vm.Value, input []byte, gas vm.Gas, isStatic bool) *CallTrace {
	node := &CallTrace{
		ID:          b.nextID,
		Kind:        kind,
		From:        from,
		To:          to,
		Value:       value,
		Input:       input,
		GasProvided: gas,
		Depth:       len(b.stack),
		IsStatic:    isStatic,
	}
	b.nextID++
	if len(b.stack) == 0 {
		b.root = node
	} else {
		parent := b.stack[len(b.stack)-1]
		parent.Children = append(parent.Children, node)
	}
	b.stack = append(b.stack, node)
	return node
}

// Exit closes the current frame node with its outcome.
func (b *CallTraceBuilder) Exit(output []byte, gasUsed vm.Gas, status CallStatus, halt vm.HaltReason) {
	if len(b.stack) == 0 {
		return
	}
	node := b.stack[len(b.stack)-1]
	node.Output = output
	node.GasUsed = gasUsed
	node.Status = status
	node.Halt = halt
	b.stack = b.stack[:len(b.stack)-1]
}

// Depth returns the number of currently open frames.
func (b *CallTraceBuilder) Depth() int {
	return len(b.stack)
}

// Root returns the completed call tree, or nil if no frame was recorded.
func (b *CallTraceBuilder) Root() *CallTrace {
	return b.root
}

// Reset discards the tree for a new invocation.
func (b *CallTraceBuilder) Reset() {
	b.root = nil
	b.stack = b.stack[:0]
	b.nextID = 0
}

// Flatten lists the tree nodes in pre-order, the order frames were entered.
func (t *CallTrace) Flatten() []*CallTrace {
	if t == nil {
		return nil
	}
	res := []*CallTrace{t}
	for _, child := range t.Children {
		res = append(res, child.Flatten()...)
	}
	return res
}
