// Package config holds the emulator configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/kplsim/cache"
)

// MaxWarpSize is the widest warp the 32-bit lane masks can describe.
const MaxWarpSize = 32

// Config holds the parameters of a functional Kepler emulation.
type Config struct {
	// WarpSize is the number of lanes per warp. Default: 32.
	WarpSize int `json:"warp_size"`

	// GlobalMemorySize is the size of the global address space in bytes.
	// Default: 64MB.
	GlobalMemorySize uint64 `json:"global_memory_size"`

	// ConstMemorySize is the size of the constant banks in bytes. A constant
	// address is bank<<16 | offset. Default: 1MB (16 banks of 64KB).
	ConstMemorySize uint64 `json:"const_memory_size"`

	// SharedMemorySize is the shared memory per thread block in bytes.
	// Default: 48KB.
	SharedMemorySize uint64 `json:"shared_memory_size"`

	// LocalMemorySize is the local memory per thread in bytes.
	// Default: 16KB.
	LocalMemorySize uint64 `json:"local_memory_size"`

	// StrictDecode turns unrecognized instruction words into errors instead
	// of no-ops. Default: false.
	StrictDecode bool `json:"strict_decode"`

	// PCNTZeroMask makes PCNT push an empty mask instead of the current
	// active mask. Default: false.
	PCNTZeroMask bool `json:"pcnt_zero_mask"`

	// MaxInstructions bounds the number of warp instructions a launch may
	// execute. 0 means no limit. Default: 0.
	MaxInstructions uint64 `json:"max_instructions"`

	// ConstCacheSize is the constant cache capacity in bytes. 0 disables
	// the cache. Default: 8KB.
	ConstCacheSize int `json:"const_cache_size"`

	// ConstCacheAssociativity is the constant cache way count. Default: 4.
	ConstCacheAssociativity int `json:"const_cache_associativity"`

	// ConstCacheBlockSize is the constant cache line size. Default: 64.
	ConstCacheBlockSize int `json:"const_cache_block_size"`
}

// Default returns a Config with Kepler GK110 default values.
func Default() *Config {
	cc := cache.DefaultConstConfig()

	return &Config{
		WarpSize:                32,
		GlobalMemorySize:        64 << 20,
		ConstMemorySize:         1 << 20,
		SharedMemorySize:        48 << 10,
		LocalMemorySize:         16 << 10,
		StrictDecode:            false,
		PCNTZeroMask:            false,
		MaxInstructions:         0,
		ConstCacheSize:          cc.Capacity,
		ConstCacheAssociativity: cc.Ways,
		ConstCacheBlockSize:     cc.LineSize,
	}
}

// Load loads a Config from a JSON file. Fields missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	c := Default()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return c, nil
}

// Save writes a Config to a JSON file.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.WarpSize <= 0 || c.WarpSize > MaxWarpSize {
		return fmt.Errorf("warp_size must be in 1..%d", MaxWarpSize)
	}
	if c.GlobalMemorySize == 0 {
		return fmt.Errorf("global_memory_size must be > 0")
	}
	if c.ConstMemorySize == 0 {
		return fmt.Errorf("const_memory_size must be > 0")
	}
	if c.LocalMemorySize == 0 {
		return fmt.Errorf("local_memory_size must be > 0")
	}
	if c.ConstCacheSize == 0 {
		return nil
	}
	if c.ConstCacheAssociativity <= 0 || c.ConstCacheBlockSize <= 0 {
		return fmt.Errorf("const cache geometry must be > 0")
	}
	if c.ConstCacheSize%(c.ConstCacheAssociativity*c.ConstCacheBlockSize) != 0 {
		return fmt.Errorf("const_cache_size must be a multiple of " +
			"associativity * block size")
	}
	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
