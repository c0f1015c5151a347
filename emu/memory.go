package emu

import (
	"encoding/binary"
	"fmt"

	"github.com/sarchlab/akita/v4/mem/mem"

	"github.com/sarchlab/kplsim/cache"
	"github.com/sarchlab/kplsim/config"
)

// Generic address windows. LD and ST addresses that fall inside a window
// reach the thread block's shared memory or the thread's local memory
// instead of global memory.
const (
	SharedWindowBase uint64 = 0xff000000
	LocalWindowBase  uint64 = 0xfe000000
)

// Constant bank 0 layout filled at launch.
const (
	ConstNTIDAddr     = 0x00 // ntid.x, ntid.y, ntid.z
	ConstNCTAIDAddr   = 0x0c // nctaid.x, nctaid.y, nctaid.z
	ConstStackTopAddr = 0x44 // initial local stack pointer
	ConstParamAddr    = 0x140
)

// ConstBankSize is the size of one constant bank.
const ConstBankSize = 1 << 16

// ConstAddr returns the byte address of offset in constant bank bank.
func ConstAddr(bank, offset uint32) uint32 {
	return bank*ConstBankSize | offset
}

// Memory is a byte-addressed memory. *mem.Storage satisfies it.
type Memory interface {
	Read(addr, size uint64) ([]byte, error)
	Write(addr uint64, data []byte) error
}

// MemorySystem holds the device-wide memories: global memory and the
// constant banks with their constant cache.
type MemorySystem struct {
	global     Memory
	globalSize uint64

	constant   Memory
	constSize  uint64
	constCache *cache.Cache
}

// NewMemorySystem creates the device memories sized by cfg. A non-nil
// global replaces the default akita storage for global memory.
func NewMemorySystem(cfg *config.Config, global Memory) *MemorySystem {
	if global == nil {
		global = mem.NewStorage(cfg.GlobalMemorySize)
	}

	constant := mem.NewStorage(cfg.ConstMemorySize)

	m := &MemorySystem{
		global:     global,
		globalSize: cfg.GlobalMemorySize,
		constant:   constant,
		constSize:  cfg.ConstMemorySize,
	}

	// An unusable geometry is reported by Config.Validate at launch.
	if cfg.ConstCacheSize > 0 && cfg.ConstCacheAssociativity > 0 &&
		cfg.ConstCacheBlockSize > 0 {
		m.constCache = cache.New(cache.Config{
			Capacity: cfg.ConstCacheSize,
			Ways:     cfg.ConstCacheAssociativity,
			LineSize: cfg.ConstCacheBlockSize,
		}, constant)
	}

	return m
}

// Global returns the global memory.
func (m *MemorySystem) Global() Memory {
	return m.global
}

// ReadGlobal reads size bytes of global memory.
func (m *MemorySystem) ReadGlobal(addr, size uint64) ([]byte, error) {
	if err := checkRange("global", addr, size, m.globalSize); err != nil {
		return nil, err
	}
	return m.global.Read(addr, size)
}

// WriteGlobal writes data to global memory.
func (m *MemorySystem) WriteGlobal(addr uint64, data []byte) error {
	if err := checkRange("global", addr, uint64(len(data)), m.globalSize); err != nil {
		return err
	}
	return m.global.Write(addr, data)
}

// ReadConst reads size bytes of constant memory through the constant cache.
func (m *MemorySystem) ReadConst(addr, size uint64) ([]byte, error) {
	if err := checkRange("constant", addr, size, m.constSize); err != nil {
		return nil, err
	}
	if m.constCache != nil {
		return m.constCache.Read(addr, size)
	}
	return m.constant.Read(addr, size)
}

// ReadConst32 reads a little-endian word of constant memory.
func (m *MemorySystem) ReadConst32(addr uint64) (uint32, error) {
	data, err := m.ReadConst(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

// WriteConst writes data to constant memory. Kernels cannot store to the
// constant banks; only the launcher does.
func (m *MemorySystem) WriteConst(addr uint64, data []byte) error {
	if err := checkRange("constant", addr, uint64(len(data)), m.constSize); err != nil {
		return err
	}
	if err := m.constant.Write(addr, data); err != nil {
		return err
	}

	if m.constCache != nil {
		lineSize := uint64(m.constCache.Config().LineSize)
		end := addr + uint64(len(data))
		for a := m.constCache.LineAddr(addr); a < end; a += lineSize {
			m.constCache.Invalidate(a)
		}
	}
	return nil
}

// WriteConst32 writes a little-endian word of constant memory.
func (m *MemorySystem) WriteConst32(addr uint64, v uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return m.WriteConst(addr, buf)
}

// ConstCacheStats returns the constant cache statistics. ok is false when
// the cache is disabled.
func (m *MemorySystem) ConstCacheStats() (stats cache.Statistics, ok bool) {
	if m.constCache == nil {
		return cache.Statistics{}, false
	}
	return m.constCache.Stats(), true
}

func checkRange(space string, addr, size, limit uint64) error {
	if size > limit || addr > limit-size {
		return fmt.Errorf("%w: %s 0x%X+%d exceeds 0x%X",
			ErrOutOfRange, space, addr, size, limit)
	}
	return nil
}
