package evm

import "github.com/sbip-sg/tevm/vm"

const (
	errGasUintOverflow       = vm.ErrGasUintOverflow
	errInvalidJump           = vm.ErrInvalidJump
	errInvalidOpCode         = vm.ErrInvalidOpCode
	errOutOfGas              = vm.ErrOutOfGas
	errOverflow              = vm.ConstError("offset or size overflow")
	errReturnDataOutOfBounds = vm.ErrReturnDataOutOfBounds
	errStackOverflow         = vm.ErrStackOverflow
	errStackUnderflow        = vm.ErrStackUnderflow
	errWriteProtection       = vm.ErrStaticViolation
	errInitCodeTooLarge      = vm.ErrInitCodeTooLarge
	errInvalidRevision       = vm.ConstError("instruction not available in revision")
)
