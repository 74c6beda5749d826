package instrument

import "github.com/sbip-sg/tevm/vm"

// Config is the per-session toggle set for runtime instrumentation.
type Config struct {
	// Enabled is the master switch; when false no data is collected.
	Enabled bool

	// PcCoverage enables recording of executed program counters, both per
	// code hash and per contract address.
	PcCoverage bool

	// RecordStorage enables the ordered storage access trace.
	RecordStorage bool

	// RecordSha3Mapping enables the reverse mapping from Keccak-256 outputs
	// to their inputs, for slot-mapping lookups.
	RecordSha3Mapping bool

	// Heuristic detector toggles.
	TimestampDetection    bool
	BlockNumberDetection  bool
	BlockValueDetection   bool
	BlockHashDetection    bool
	TxOriginDetection     bool
	SelfDestructDetection bool
	DivZeroDetection      bool
	OverflowDetection     bool
}

// DefaultConfig enables everything except the overflow detector, whose
// usefulness depends on the compiler version of the analyzed byte-code.
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		PcCoverage:            true,
		RecordStorage:         true,
		RecordSha3Mapping:     true,
		TimestampDetection:    true,
		BlockNumberDetection:  true,
		BlockValueDetection:   true,
		BlockHashDetection:    true,
		TxOriginDetection:     true,
		SelfDestructDetection: true,
		DivZeroDetection:      true,
	}
}

// wants reports whether the given bug kind is enabled by the configuration.
func (c Config) wants(kind vm.BugKind) bool {
	if !c.Enabled {
		return false
	}
	switch kind {
	case vm.BugTimestampDependency:
		return c.TimestampDetection
	case vm.BugBlockNumberDependency:
		return c.BlockNumberDetection
	case vm.BugBlockValueDependency:
		return c.BlockValueDetection
	case vm.BugBlockHashDependency:
		return c.BlockHashDetection
	case vm.BugTxOriginDependency:
		return c.TxOriginDetection
	case vm.BugSelfDestruct:
		return c.SelfDestructDetection
	case vm.BugIntegerDivByZero, vm.BugIntegerModByZero:
		return c.DivZeroDetection
	case vm.BugIntegerOverflow, vm.BugIntegerSubUnderflow, vm.BugPossibleIntegerTruncation:
		return c.OverflowDetection
	}
	return true
}

// Heuristics is the aggregated boolean view over the recorded bug signals of
// one invocation.
type Heuristics struct {
	TimestampDependency   bool
	BlockNumberDependency bool
	BlockValueDependency  bool
	BlockHashDependency   bool
	TxOriginDependency    bool
	SelfDestruct          bool
	DivZero               bool
	Overflow              bool
}

func summarize(bugs []vm.Bug) Heuristics {
	var h Heuristics
	for _, bug := range bugs {
		switch bug.Kind {
		case vm.BugTimestampDependency:
			h.TimestampDependency = true
		case vm.BugBlockNumberDependency:
			h.BlockNumberDependency = true
		case vm.BugBlockValueDependency:
			h.BlockValueDependency = true
		case vm.BugBlockHashDependency:
			h.BlockHashDependency = true
		case vm.BugTxOriginDependency:
			h.TxOriginDependency = true
		case vm.BugSelfDestruct:
			h.SelfDestruct = true
		case vm.BugIntegerDivByZero, vm.BugIntegerModByZero:
			h.DivZero = true
		case vm.BugIntegerOverflow, vm.BugIntegerSubUnderflow:
			h.Overflow = true
		}
	}
	return h
}
