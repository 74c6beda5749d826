package evm

import (
	"fmt"
	"math"

	"github.com/sbip-sg/tevm/vm"

	"github.com/holiman/uint256"
)

// Memory is the linear byte memory of a single frame. It grows in 32-byte
// words and never shrinks for the lifetime of the frame.
type Memory struct {
	store             []byte
	currentMemoryCost vm.Gas
}

func NewMemory() *Memory {
	return &Memory{}
}

func toValidMemorySize(size uint64) uint64 {
	fullWordsSize := vm.SizeInWords(size) * 32
	if size != 0 && fullWordsSize < size {
		return math.MaxUint64
	}
	return fullWordsSize
}

// Maximum memory size for which an expansion cost can still be represented
// without overflowing int64.
const maxMemoryExpansionSize = 0x1FFFFFFFE0

// getExpansionCosts computes the additional gas fee required to grow the
// memory to the given size, following the quadratic cost formula
// 3*w + w*w/512 with w the size in words.
func (m *Memory) getExpansionCosts(size uint64) vm.Gas {
	if m.length() >= size {
		return 0
	}
	size = toValidMemorySize(size)

	if size > maxMemoryExpansionSize {
		return vm.Gas(math.MaxInt64)
	}

	words := vm.SizeInWords(size)
	newCosts := vm.Gas((words*words)/512 + (3 * words))
	return newCosts - m.currentMemoryCost
}

// expandMemory tries to expand memory to hold size bytes at the given offset.
// If the memory is already large enough or size is 0, it does nothing.
// If there is not enough gas in the context or an overflow occurs when adding
// offset and size, it returns an error.
func (m *Memory) expandMemory(offset, size uint64, c *context) error {
	if size == 0 {
		return nil
	}
	needed := offset + size
	// check overflow
	if needed < offset {
		return errGasUintOverflow
	}
	if m.length() < needed {
		fee := m.getExpansionCosts(needed)
		if err := c.useGas(fee); err != nil {
			return err
		}
		m.expandMemoryWithoutCharging(needed)
	}

	return nil
}

// expandMemoryWithoutCharging expands the memory to the given size without
// charging gas.
func (m *Memory) expandMemoryWithoutCharging(needed uint64) {
	needed = toValidMemorySize(needed)
	size := m.length()
	if size < needed {
		m.currentMemoryCost += m.getExpansionCosts(needed)
		m.store = append(m.store, make([]byte, needed-size)...)
	}
}

func (m *Memory) length() uint64 {
	return uint64(len(m.store))
}

// set writes the given data to memory at the given offset, expanding and
// charging for the expansion as needed.
func (m *Memory) set(offset uint64, data []byte, c *context) error {
	if err := m.expandMemory(offset, uint64(len(data)), c); err != nil {
		return err
	}
	if size := uint64(len(data)); size > 0 {
		if m.length() < offset+size {
			return fmt.Errorf("memory too small, size %d, attempted to write %d bytes at %d", m.length(), size, offset)
		}
		copy(m.store[offset:offset+size], data)
	}
	return nil
}

// getSlice obtains a slice of size bytes from the memory at the given offset.
// The returned slice is backed by the memory's internal data. Updates to the
// slice will thus affect the memory state. This connection is invalidated by
// any subsequent memory operation that may change the size of the memory.
func (m *Memory) getSlice(offset, size uint64, c *context) ([]byte, error) {
	err := m.expandMemory(offset, size, c)
	if err != nil {
		return nil, err
	}
	// since memory does not expand on size 0 independently of the offset,
	// we need to prevent out of bounds access
	if size == 0 {
		return nil, nil
	}
	return m.store[offset : offset+size], nil
}

// readWord reads a Word (32 byte) from the memory at the given offset and
// stores that word in the provided target. Expands memory as needed and
// charges for it.
func (m *Memory) readWord(offset uint64, target *uint256.Int, c *context) error {
	data, err := m.getSlice(offset, 32, c)
	if err != nil {
		return err
	}
	target.SetBytes32(data)
	return nil
}

// copyData copies data from the memory, starting from the given offset, to
// the target slice, padding with zeros if offset+len(target) is greater than
// the memory size.
func (m *Memory) copyData(offset uint64, target []byte) {
	if m.length() < offset {
		copy(target, make([]byte, len(target)))
		return
	}

	// Copy what is available.
	covered := copy(target, m.store[offset:])

	// Pad the rest
	if covered < len(target) {
		copy(target[covered:], make([]byte, len(target)-covered))
	}
}
