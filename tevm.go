package tevm

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/sbip-sg/tevm/fork"
	"github.com/sbip-sg/tevm/instrument"
	"github.com/sbip-sg/tevm/interpreter/evm"
	"github.com/sbip-sg/tevm/state"
	"github.com/sbip-sg/tevm/vm"

	"github.com/hashicorp/go-hclog"
)

// TinyEVM is a stateful executor session. It owns its world state, provider
// cache view, and instrumentation buffers; sessions are independent and may
// run in parallel, but a single session is not thread-safe.
type TinyEVM struct {
	config      Config
	logger      hclog.Logger
	db          *state.DB
	interpreter vm.Interpreter
	recorder    *instrument.Recorder
	provider    *fork.CachedProvider

	owner    vm.Address
	block    vm.BlockParameters
	gasPrice vm.Value
	origin   *vm.Address

	accountSnapshots map[vm.Address]*state.AccountSnapshot
}

// New creates a session with the given configuration. Zero-valued fields
// fall back to DefaultConfig. If the configuration names a fork provider,
// the pinned block header seeds the block environment.
func New(config Config) (*TinyEVM, error) {
	config.applyDefaults()

	interp, err := evm.NewInterpreter(evm.Config{})
	if err != nil {
		return nil, err
	}

	t := &TinyEVM{
		config:      config,
		logger:      config.Logger,
		db:          state.New(),
		interpreter: interp,
		recorder:    instrument.NewRecorder(config.Instrument),
		block: vm.BlockParameters{
			ChainID:  chainIDWord(config.ChainID),
			GasLimit: vm.Gas(config.BlockGasLimit),
			Revision: config.Revision,
		},
		accountSnapshots: map[vm.Address]*state.AccountSnapshot{},
	}

	if config.Provider != nil {
		if err := t.setupFork(config); err != nil {
			return nil, err
		}
	}

	// The default sender starts with a large balance.
	t.db.SetBalance(t.owner, DefaultBalance)
	if err := t.db.EndTransaction(); err != nil {
		return nil, err
	}
	return t, nil
}

// NewOffline creates a session without a fork provider, using default
// configuration.
func NewOffline() (*TinyEVM, error) {
	return New(DefaultConfig())
}

func (t *TinyEVM) setupFork(config Config) error {
	var cache fork.ProviderCache
	switch config.ProviderCache {
	case CacheBackendKv:
		redis, err := fork.NewRedisCache(config.RedisEndpoint)
		if err != nil {
			return err
		}
		cache = redis
	default:
		cache = fork.NewFileSystemCache(config.CacheDir)
	}

	provider, err := fork.NewCachedProvider(config.Provider, cache, config.ForkChain, config.ForkBlock, t.logger)
	if err != nil {
		return err
	}
	t.provider = provider
	t.db.SetRemote(provider, config.MaxForkDepth)

	header, err := provider.PinnedHeader()
	if err != nil {
		return err
	}
	t.logger.Info("starting session from fork", "block", header.Number)
	t.block.BlockNumber = int64(header.Number)
	t.block.Timestamp = int64(header.Timestamp)
	t.block.Coinbase = header.Coinbase
	t.block.GasLimit = vm.Gas(header.GasLimit)
	t.block.PrevRandao = vm.Hash(header.Difficulty)
	if header.BaseFee != nil && !t.config.DisableBaseFee {
		t.block.BaseFee = *header.BaseFee
	}
	t.db.SetBlockHash(int64(header.Number), header.Hash)
	return nil
}

func chainIDWord(id uint64) vm.Word {
	return vm.Word(vm.NewValue(id))
}

// Config returns the session configuration.
func (t *TinyEVM) Config() Config {
	return t.config
}

// InstrumentConfig returns the active instrumentation configuration.
func (t *TinyEVM) InstrumentConfig() instrument.Config {
	return t.recorder.Config()
}

// Configure replaces the instrumentation configuration.
func (t *TinyEVM) Configure(config instrument.Config) {
	t.recorder.SetConfig(config)
}

// Owner returns the default sender address.
func (t *TinyEVM) Owner() vm.Address {
	return t.owner
}

// SetOwner changes the default sender address.
func (t *TinyEVM) SetOwner(addr string) error {
	owner, err := vm.AddressFromHex(addr)
	if err != nil {
		return err
	}
	t.owner = owner
	return nil
}

// Block returns the block environment of the session.
func (t *TinyEVM) Block() vm.BlockParameters {
	return t.block
}

// SetBlock replaces the block environment used by subsequent invocations.
func (t *TinyEVM) SetBlock(env vm.BlockParameters) {
	t.block = env
}

// SetGasPrice sets the gas price reported by the GASPRICE instruction.
func (t *TinyEVM) SetGasPrice(price *big.Int) {
	t.gasPrice = valueFromBig(price)
}

// SetTxOrigin overrides the transaction origin; after this call, tx.origin
// reports the given address regardless of the sender.
func (t *TinyEVM) SetTxOrigin(addr string) error {
	origin, err := vm.AddressFromHex(addr)
	if err != nil {
		return err
	}
	t.origin = &origin
	return nil
}

// SetTxGasLimit changes the default per-transaction gas limit.
func (t *TinyEVM) SetTxGasLimit(limit uint64) {
	t.config.TxGasLimit = limit
}

// TxGasLimit returns the default per-transaction gas limit.
func (t *TinyEVM) TxGasLimit() uint64 {
	return t.config.TxGasLimit
}

// ---- account manipulation ----

// GetBalance returns the balance of the account in wei.
func (t *TinyEVM) GetBalance(addr string) (*big.Int, error) {
	address, err := vm.AddressFromHex(addr)
	if err != nil {
		return nil, err
	}
	return t.db.GetBalance(address).ToBig(), nil
}

// SetBalance sets the balance of the account, creating it if needed.
func (t *TinyEVM) SetBalance(addr string, balance *big.Int) error {
	address, err := vm.AddressFromHex(addr)
	if err != nil {
		return err
	}
	t.db.SetBalance(address, valueFromBig(balance))
	return t.db.EndTransaction()
}

// GetCode returns the runtime code of the account, hex encoded.
func (t *TinyEVM) GetCode(addr string) (string, error) {
	address, err := vm.AddressFromHex(addr)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(t.db.GetCode(address)), nil
}

// SetCode sets the runtime code of the account, creating it if needed.
func (t *TinyEVM) SetCode(addr string, code string) error {
	address, err := vm.AddressFromHex(addr)
	if err != nil {
		return err
	}
	data, err := decodeHex(code)
	if err != nil {
		return err
	}
	t.db.SetCode(address, data)
	return t.db.EndTransaction()
}

// GetStorage returns the value of the storage slot.
func (t *TinyEVM) GetStorage(addr string, index *big.Int) (*big.Int, error) {
	address, err := vm.AddressFromHex(addr)
	if err != nil {
		return nil, err
	}
	value := t.db.GetStorage(address, vm.Key(valueFromBig(index)))
	return new(big.Int).SetBytes(value[:]), nil
}

// SetStorage sets the value of the storage slot.
func (t *TinyEVM) SetStorage(addr string, index, value *big.Int) error {
	address, err := vm.AddressFromHex(addr)
	if err != nil {
		return err
	}
	t.db.SetStorage(address, vm.Key(valueFromBig(index)), vm.Word(valueFromBig(value)))
	return t.db.EndTransaction()
}

// RemoveAccount deletes the account and its storage.
func (t *TinyEVM) RemoveAccount(addr string) error {
	address, err := vm.AddressFromHex(addr)
	if err != nil {
		return err
	}
	t.db.RemoveAccount(address)
	return nil
}

// ResetStorage clears the storage of the account, keeping its info.
func (t *TinyEVM) ResetStorage(addr string) error {
	address, err := vm.AddressFromHex(addr)
	if err != nil {
		return err
	}
	t.db.ResetStorage(address)
	return nil
}

// ---- global snapshots ----

// TakeSnapshot freezes a copy of the entire world state and returns its
// identifier. The session must be quiescent.
func (t *TinyEVM) TakeSnapshot() (int, error) {
	return t.db.TakeGlobalSnapshot()
}

// RestoreSnapshot replaces the live state with the identified frozen copy.
// The snapshot is consumed unless the session is configured with
// KeepSnapshotAfterRestore; the keep argument of RestoreSnapshotKeep
// overrides the configuration.
func (t *TinyEVM) RestoreSnapshot(id int) error {
	return t.db.RestoreGlobalSnapshot(id, t.config.KeepSnapshotAfterRestore)
}

// RestoreSnapshotKeep restores the snapshot and explicitly decides whether
// to retain it for further restores.
func (t *TinyEVM) RestoreSnapshotKeep(id int, keep bool) error {
	return t.db.RestoreGlobalSnapshot(id, keep)
}

// DropSnapshot releases the identified frozen copy.
func (t *TinyEVM) DropSnapshot(id int) error {
	return t.db.DropGlobalSnapshot(id)
}

// ---- per-account snapshots ----

// TakeAccountSnapshot freezes a copy of one account; an error is returned if
// the account does not exist.
func (t *TinyEVM) TakeAccountSnapshot(addr string) error {
	address, err := vm.AddressFromHex(addr)
	if err != nil {
		return err
	}
	snapshot, err := t.db.TakeAccountSnapshot(address)
	if err != nil {
		return err
	}
	t.accountSnapshots[address] = snapshot
	return nil
}

// RestoreAccountSnapshot restores the frozen copy of the account taken
// earlier with TakeAccountSnapshot.
func (t *TinyEVM) RestoreAccountSnapshot(addr string) error {
	address, err := vm.AddressFromHex(addr)
	if err != nil {
		return err
	}
	snapshot, found := t.accountSnapshots[address]
	if !found {
		return state.ErrSnapshotNotFound
	}
	t.db.RestoreAccountSnapshot(address, snapshot)
	return nil
}

// CopyAccountSnapshot copies the frozen account snapshot taken for one
// address onto another address, overwriting its storage and code.
func (t *TinyEVM) CopyAccountSnapshot(from, to string) error {
	fromAddr, err := vm.AddressFromHex(from)
	if err != nil {
		return err
	}
	toAddr, err := vm.AddressFromHex(to)
	if err != nil {
		return err
	}
	snapshot, found := t.accountSnapshots[fromAddr]
	if !found {
		return state.ErrSnapshotNotFound
	}
	t.db.RestoreAccountSnapshot(toAddr, snapshot)
	return nil
}

// ---- fork bookkeeping ----

// ForkedAddresses lists the addresses loaded from the remote provider.
func (t *TinyEVM) ForkedAddresses() []vm.Address {
	return t.db.ForkedAddresses()
}

// ForkedSlots lists the remotely loaded slot indices of the address.
func (t *TinyEVM) ForkedSlots(addr string) ([]vm.Key, error) {
	address, err := vm.AddressFromHex(addr)
	if err != nil {
		return nil, err
	}
	return t.db.ForkedSlots(address), nil
}

// ToggleEnableFork switches remote lookups on or off; only meaningful when a
// provider is configured.
func (t *TinyEVM) ToggleEnableFork(enable bool) {
	t.db.SetForkEnabled(enable)
}

// IsForkEnabled returns the current fork toggle status.
func (t *TinyEVM) IsForkEnabled() bool {
	return t.db.ForkEnabled()
}

// ---- helpers ----

func valueFromBig(value *big.Int) vm.Value {
	if value == nil || value.Sign() <= 0 {
		return vm.Value{}
	}
	var res vm.Value
	value.FillBytes(res[:])
	return res
}

func decodeHex(data string) ([]byte, error) {
	data = strings.TrimPrefix(strings.TrimPrefix(data, "0x"), "0X")
	if data == "" {
		return nil, nil
	}
	decoded, err := hex.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return decoded, nil
}
