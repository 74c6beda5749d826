package tevm

import (
	"fmt"

	"github.com/sbip-sg/tevm/instrument"
	"github.com/sbip-sg/tevm/vm"
)

// Exit reasons beyond the interpreter halt reasons.
const (
	ExitSuccess      = "Success"
	ExitRevert       = "Revert"
	ExitIntrinsicGas = "IntrinsicGas"
)

// Response is the execution record of one top-level invocation.
type Response struct {
	// Success is true if the execution exited normally.
	Success bool
	// ExitReason is "Success", "Revert", or the halt reason.
	ExitReason string
	// Data is the return data of a call, or the created address for a
	// deployment.
	Data []byte
	// CreatedAddress is set for deployments.
	CreatedAddress vm.Address
	// GasUsed is the total gas consumed, refunds applied.
	GasUsed uint64

	// Events is the committed log buffer; logs of reverted frames are
	// excluded.
	Events []vm.Log
	// Trace is the root of the call tree; reverted subcalls remain in the
	// tree with their status set.
	Trace *instrument.CallTrace
	// StorageTrace is the ordered list of committed storage accesses.
	StorageTrace []instrument.StorageAccess

	// Bugs lists the heuristic signals recorded during the invocation.
	Bugs []vm.Bug
	// Heuristics is the boolean summary over Bugs.
	Heuristics instrument.Heuristics

	// Coverage maps code hashes to the set of executed program counters,
	// accumulated across the session.
	Coverage map[vm.Hash]*instrument.Bitset
	// SeenPcs maps contract addresses to the set of executed program
	// counters.
	SeenPcs map[vm.Address]*instrument.Bitset
	// SeenAddresses lists the addresses observed during execution; bug
	// records index into this list.
	SeenAddresses []vm.Address

	// CreatedAddresses lists contracts created during the invocation.
	CreatedAddresses []vm.Address
	// IgnoredAddresses lists addresses skipped by the fork depth bound.
	IgnoredAddresses []vm.Address
}

// PcsByAddress returns the set of program counters executed in the code of
// the given address, or nil if the address was never executed.
func (r *Response) PcsByAddress(addr string) ([]int, error) {
	address, err := vm.AddressFromHex(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address format: %w", err)
	}
	set, found := r.SeenPcs[address]
	if !found {
		return nil, nil
	}
	return set.ToSlice(), nil
}

func (r *Response) String() string {
	return fmt.Sprintf("success: %v, exit_reason: %s, data: 0x%x, gas_used: %d, bugs: %d, events: %d",
		r.Success, r.ExitReason, r.Data, r.GasUsed, len(r.Bugs), len(r.Events))
}
