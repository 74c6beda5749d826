package tevm

import (
	"math/big"

	"github.com/sbip-sg/tevm/host"
	"github.com/sbip-sg/tevm/interpreter/evm"
	"github.com/sbip-sg/tevm/vm"
)

// DeployOptions carries the optional arguments of a deterministic
// deployment. The zero value selects the defaults: zero salt, the session
// owner as deployer, no constructor arguments, no value.
type DeployOptions struct {
	// Salt is a 32-byte value as hex string; the contract address is derived
	// from keccak256(0xff ++ owner ++ salt ++ keccak256(init_code)).
	Salt string
	// Owner is the deployer address as hex string.
	Owner string
	// Args are the constructor arguments, hex encoded, appended to the
	// deployment code.
	Args string
	// Value is included in the creation transaction; the deployer must hold
	// it and the constructor must be payable.
	Value *big.Int
	// InitValue, when set, overrides the balance of the created contract
	// after deployment.
	InitValue *big.Int
	// TargetAddress, when set, places the deployed code at this address
	// instead of the derived one, skipping collision checks and preserving
	// the balance of the target account.
	TargetAddress string
	// GasLimit overrides the session transaction gas limit.
	GasLimit uint64
}

// Deploy deploys a contract with a zero salt for the given owner; an empty
// owner selects the session owner.
// deployCode is the contract deployment binary, hex encoded.
func (t *TinyEVM) Deploy(deployCode string, owner string) (*Response, error) {
	return t.DeterministicDeploy(deployCode, DeployOptions{Owner: owner})
}

// DeterministicDeploy deploys a contract at an address derived from the
// provided salt. If the derived account already exists, its nonce and code
// are overwritten. The response carries the created address as Data.
func (t *TinyEVM) DeterministicDeploy(deployCode string, opts DeployOptions) (*Response, error) {
	owner := t.owner
	if opts.Owner != "" {
		parsed, err := vm.AddressFromHex(opts.Owner)
		if err != nil {
			return nil, err
		}
		owner = parsed
	}

	var salt vm.Hash
	if opts.Salt != "" {
		data, err := decodeHex(opts.Salt)
		if err != nil {
			return nil, err
		}
		copy(salt[32-len(data):], data)
	}

	code, err := decodeHex(deployCode)
	if err != nil {
		return nil, err
	}
	args, err := decodeHex(opts.Args)
	if err != nil {
		return nil, err
	}
	initCode := append(code, args...)

	gasLimit := t.config.TxGasLimit
	if opts.GasLimit != 0 {
		gasLimit = opts.GasLimit
	}

	var overrides map[vm.Address]vm.Address
	if opts.TargetAddress != "" {
		target, err := vm.AddressFromHex(opts.TargetAddress)
		if err != nil {
			return nil, err
		}
		derived := host.CreateAddress2(owner, salt, evm.Keccak256(initCode))
		overrides = map[vm.Address]vm.Address{derived: target}
	}

	t.logger.Debug("deploying contract", "owner", owner, "code_size", len(initCode))

	// Coverage restarts with a fresh deployment.
	t.recorder.ResetCoverage()

	response, err := t.execute(invocation{
		kind:               vm.Create2,
		sender:             owner,
		input:              initCode,
		value:              valueFromBig(opts.Value),
		gasLimit:           gasLimit,
		salt:               salt,
		addressOverrides:   overrides,
		overwriteCollision: true,
	})
	if err != nil {
		return nil, err
	}

	if response.Success && opts.InitValue != nil {
		t.db.SetBalance(response.CreatedAddress, valueFromBig(opts.InitValue))
		if err := t.db.EndTransaction(); err != nil {
			return nil, err
		}
	}
	return response, nil
}

// ContractCall sends a call to the contract from the sender with the raw
// calldata and optional ETH value. Empty sender selects the session owner;
// a nil value sends nothing.
func (t *TinyEVM) ContractCall(contract string, sender string, data string, value *big.Int) (*Response, error) {
	return t.Call(contract, sender, data, value, 0)
}

// Call is ContractCall with an explicit gas limit; 0 selects the session
// transaction gas limit.
func (t *TinyEVM) Call(contract string, sender string, data string, value *big.Int, gasLimit uint64) (*Response, error) {
	to, err := vm.AddressFromHex(contract)
	if err != nil {
		return nil, err
	}
	from := t.owner
	if sender != "" {
		parsed, err := vm.AddressFromHex(sender)
		if err != nil {
			return nil, err
		}
		from = parsed
	}
	input, err := decodeHex(data)
	if err != nil {
		return nil, err
	}
	if gasLimit == 0 {
		gasLimit = t.config.TxGasLimit
	}

	t.logger.Debug("contract call", "contract", to, "sender", from, "input_size", len(input))

	return t.execute(invocation{
		kind:      vm.Call,
		sender:    from,
		recipient: to,
		input:     input,
		value:     valueFromBig(value),
		gasLimit:  gasLimit,
	})
}
