package evm

import (
	"fmt"

	"github.com/sbip-sg/tevm/vm"
)

// Config contains the set of configuration options of an interpreter
// instance.
type Config struct {
	// AnalysisCacheSize is the maximum number of JUMPDEST analyses retained,
	// keyed by code hash. If set to 0, a default size is used. If negative,
	// no cache is used.
	AnalysisCacheSize int
}

type interpreter struct {
	analyzer *analyzer
}

// NewInterpreter creates an interpreter instance executing raw EVM byte-code.
// Instances are thread-safe; runs may be conducted in parallel.
func NewInterpreter(config Config) (vm.Interpreter, error) {
	analyzer, err := newAnalyzer(config.AnalysisCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create code analyzer: %w", err)
	}
	return &interpreter{analyzer: analyzer}, nil
}

// newestSupportedRevision defines the newest revision supported by this
// interpreter implementation.
const newestSupportedRevision = vm.R13_Cancun

func (i *interpreter) Run(params vm.Parameters) (vm.Result, error) {
	if params.Revision > newestSupportedRevision {
		return vm.Result{}, &vm.ErrUnsupportedRevision{Revision: params.Revision}
	}
	code := i.analyzer.analyze(params.Code, params.CodeHash)
	return run(params, code)
}
