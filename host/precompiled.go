package host

import (
	"github.com/sbip-sg/tevm/vm"

	"github.com/ethereum/go-ethereum/common"
	geth "github.com/ethereum/go-ethereum/core/vm"
)

// handlePrecompiled executes the built-in contract at the given address, if
// there is one for the active revision. The second return value is false if
// the address is not a precompiled contract.
func handlePrecompiled(revision vm.Revision, input vm.Data, address vm.Address, gas vm.Gas) (vm.CallResult, bool) {
	contract, ok := precompiledContract(address, revision)
	if !ok {
		return vm.CallResult{}, false
	}
	gasCost := contract.RequiredGas(input)
	if gas < vm.Gas(gasCost) {
		return vm.CallResult{Halt: vm.HaltOutOfGas}, true
	}
	gas -= vm.Gas(gasCost)
	output, err := contract.Run(input)

	// precompiled contracts only return errors on invalid input
	return vm.CallResult{
		Success: err == nil,
		Output:  output,
		GasLeft: gas,
	}, true
}

func precompiledContract(address vm.Address, revision vm.Revision) (geth.PrecompiledContract, bool) {
	var precompiles map[common.Address]geth.PrecompiledContract
	switch {
	case revision >= vm.R13_Cancun:
		precompiles = geth.PrecompiledContractsCancun
	case revision >= vm.R09_Berlin:
		precompiles = geth.PrecompiledContractsBerlin
	default:
		precompiles = geth.PrecompiledContractsIstanbul
	}
	contract, ok := precompiles[common.Address(address)]
	return contract, ok
}
