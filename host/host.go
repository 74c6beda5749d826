package host

import (
	"github.com/sbip-sg/tevm/instrument"
	"github.com/sbip-sg/tevm/state"
	"github.com/sbip-sg/tevm/vm"

	"github.com/hashicorp/go-hclog"
)

// maxCallDepth is the maximum nesting of call and creation frames.
const maxCallDepth = 1024

// Dispatcher-level halt reasons, complementing the interpreter's.
const (
	haltInsufficientBalance = vm.HaltReason("insufficient_balance")
	haltCreateCollision     = vm.HaltReason("create_collision")
)

// Host is the frame dispatcher of a session. It bundles the journaled state
// database and the instrumentation buffers, and implements vm.RunContext for
// the interpreter: every CALL, DELEGATECALL, STATICCALL, CALLCODE, CREATE and
// CREATE2 instruction re-enters the interpreter through Host.Call.
//
// A Host is created per invocation and must not be shared across sessions.
type Host struct {
	*state.DB

	interpreter vm.Interpreter
	recorder    *instrument.Recorder
	traces      *instrument.CallTraceBuilder
	logger      hclog.Logger

	block vm.BlockParameters
	txCtx vm.TransactionParameters

	depth       int
	staticDepth int
	nextLogID   int

	// Deterministic deployment support: derived creation addresses are
	// replaced by their override, collision checks are skipped, and existing
	// code is overwritten while the balance is preserved.
	addressOverrides   map[vm.Address]vm.Address
	overwriteCollision bool
}

// Options configures a Host instance.
type Options struct {
	DB          *state.DB
	Interpreter vm.Interpreter
	Recorder    *instrument.Recorder
	Block       vm.BlockParameters
	Transaction vm.TransactionParameters
	Logger      hclog.Logger

	AddressOverrides   map[vm.Address]vm.Address
	OverwriteCollision bool
}

// New creates a host for one invocation.
func New(opts Options) *Host {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = instrument.NewRecorder(instrument.Config{})
	}
	return &Host{
		DB:                 opts.DB,
		interpreter:        opts.Interpreter,
		recorder:           recorder,
		traces:             instrument.NewCallTraceBuilder(),
		logger:             logger,
		block:              opts.Block,
		txCtx:              opts.Transaction,
		addressOverrides:   opts.AddressOverrides,
		overwriteCollision: opts.OverwriteCollision,
	}
}

// CallTrace returns the call tree recorded for the invocation.
func (h *Host) CallTrace() *instrument.CallTrace {
	return h.traces.Root()
}

// EmitLog stamps the log with its emission id and frame depth before handing
// it to the journaled database.
func (h *Host) EmitLog(log vm.Log) {
	log.ID = h.nextLogID
	h.nextLogID++
	log.Depth = h.depth
	h.DB.EmitLog(log)
}

// tracer returns the recorder as a vm.Tracer, or nil when instrumentation is
// disabled.
func (h *Host) tracer() vm.Tracer {
	if h.recorder == nil || !h.recorder.Config().Enabled {
		return nil
	}
	return h.recorder
}

func (h *Host) isStatic(kind vm.CallKind) bool {
	return h.staticDepth > 0 || kind == vm.StaticCall
}

// Call executes a nested call or creation frame. It creates a checkpoint,
// transfers value, runs the interpreter, and commits or reverts the
// checkpoint depending on the outcome. Reverted frames preserve their return
// data but roll back all state, logs, and instrumentation signals.
func (h *Host) Call(kind vm.CallKind, params vm.CallParameters) (vm.CallResult, error) {
	// A subcall at the depth limit fails without consuming the forwarded gas.
	if h.depth >= maxCallDepth {
		return vm.CallResult{Success: false, GasLeft: params.Gas}, nil
	}

	h.depth++
	static := h.isStatic(kind)
	if static {
		h.staticDepth++
	}
	h.DB.SetCallDepth(h.depth)
	defer func() {
		h.depth--
		if static {
			h.staticDepth--
		}
		h.DB.SetCallDepth(h.depth)
	}()

	switch kind {
	case vm.Create, vm.Create2:
		return h.runCreate(kind, params, static)
	default:
		return h.runCall(kind, params, static)
	}
}

// transferValue moves the given value between the two accounts, failing
// before any state change if the sender balance is insufficient.
func (h *Host) transferValue(from, to vm.Address, value vm.Value) error {
	if value.IsZero() {
		// Zero-value transfers still touch the target account.
		h.DB.AddBalance(to, value)
		return nil
	}
	if h.DB.GetBalance(from).Cmp(value) < 0 {
		return vm.ErrInsufficientBalance
	}
	h.DB.SubBalance(from, value)
	h.DB.AddBalance(to, value)
	return nil
}
