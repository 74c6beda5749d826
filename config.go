// Package tevm provides an embeddable, instrumented EVM executor for
// symbolic and fuzzing analyzers: it runs deployment byte-code and call data
// against a per-session in-memory world state and reports return data, gas,
// logs, call trees, storage traces, coverage, and heuristic bug signals.
package tevm

import (
	"os"

	"github.com/sbip-sg/tevm/fork"
	"github.com/sbip-sg/tevm/instrument"
	"github.com/sbip-sg/tevm/vm"

	"github.com/hashicorp/go-hclog"
)

// CacheBackend selects the persistent backend of the fork provider cache.
type CacheBackend string

const (
	// CacheBackendFs stores fetched values as files under CacheDir.
	CacheBackendFs CacheBackend = "fs"
	// CacheBackendKv stores fetched values in an external key-value store.
	CacheBackendKv CacheBackend = "kv"
)

// Config is the per-session option set. Every session owns its own copy; no
// configuration is shared through globals.
type Config struct {
	ChainID  uint64
	Revision vm.Revision

	// BlockGasLimit bounds a block; only enforced when DisableBlockGasLimit
	// is false.
	BlockGasLimit uint64
	// TxGasLimit is the default gas limit for each transaction.
	TxGasLimit uint64

	DisableBaseFee       bool
	DisableBlockGasLimit bool
	DisableEIP3607       bool

	// KeepSnapshotAfterRestore retains global snapshots across restores, so
	// the same snapshot can be restored repeatedly.
	KeepSnapshotAfterRestore bool

	// Instrument configures coverage, tracing and heuristic detectors.
	Instrument instrument.Config

	// Provider, when set, enables forked execution: missing accounts and
	// storage are fetched through it. The RPC client itself is supplied by
	// the embedder.
	Provider fork.Provider
	// ForkBlock pins the block to fork from; 0 selects the latest block.
	ForkBlock uint64
	// ForkChain names the chain directory of the persistent cache.
	ForkChain string
	// MaxForkDepth bounds the call depth at which remote fetches are still
	// performed; 0 means unbounded.
	MaxForkDepth int

	// ProviderCache selects the persistent cache backend for fork data.
	ProviderCache CacheBackend
	// CacheDir is the directory of the filesystem backend; empty selects
	// FORK_CACHE_DIR or ~/.tinyevm.
	CacheDir string
	// RedisEndpoint is the endpoint of the key-value backend; empty selects
	// FORK_REDIS_ENDPOINT or a local instance.
	RedisEndpoint string

	// Logger receives structured execution logs; nil creates one with the
	// level taken from TINYEVM_LOG_LEVEL.
	Logger hclog.Logger
}

// Default limits, matching the analyzer-friendly environment of the
// executor: base fee, block gas limit, and EIP-3607 checks are off.
const (
	DefaultTxGasLimit    = 30_000_000
	DefaultBlockGasLimit = 1_000_000_000_000_000
)

// DefaultBalance is the balance given to the session owner account.
var DefaultBalance = vm.NewValue(0, ^uint64(0), ^uint64(0), 0)

// DefaultConfig returns the configuration used by New for unset fields.
func DefaultConfig() Config {
	return Config{
		ChainID:              1,
		Revision:             vm.R12_Shanghai,
		BlockGasLimit:        DefaultBlockGasLimit,
		TxGasLimit:           DefaultTxGasLimit,
		DisableBaseFee:       true,
		DisableBlockGasLimit: true,
		DisableEIP3607:       true,
		Instrument:           instrument.DefaultConfig(),
		ProviderCache:        CacheBackendFs,
		ForkChain:            "eth",
	}
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.TxGasLimit == 0 {
		c.TxGasLimit = defaults.TxGasLimit
	}
	if c.BlockGasLimit == 0 {
		c.BlockGasLimit = defaults.BlockGasLimit
	}
	if c.ChainID == 0 {
		c.ChainID = defaults.ChainID
	}
	if c.ProviderCache == "" {
		c.ProviderCache = defaults.ProviderCache
	}
	if c.ForkChain == "" {
		c.ForkChain = defaults.ForkChain
	}
	if c.Logger == nil {
		c.Logger = newLogger()
	}
}

// newLogger builds the session logger with the level taken from the
// TINYEVM_LOG_LEVEL environment variable, falling back to info.
func newLogger() hclog.Logger {
	level := hclog.LevelFromString(os.Getenv("TINYEVM_LOG_LEVEL"))
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:  "tinyevm",
		Level: level,
	})
}
