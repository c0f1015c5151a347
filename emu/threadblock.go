package emu

import (
	"log/slog"

	"github.com/sarchlab/akita/v4/mem/mem"
)

// ThreadBlock is a group of warps that share memory and synchronize at
// barriers.
type ThreadBlock struct {
	id     int
	ctaid  [3]uint32
	warps  []*Warp
	shared Memory

	atBarrier int // Warps waiting at BAR
	finished  int // Warps that completed
}

func newThreadBlock(id int, ctaid [3]uint32, l *launch, logger *slog.Logger) *ThreadBlock {
	b := &ThreadBlock{
		id:     id,
		ctaid:  ctaid,
		shared: mem.NewStorage(l.cfg.SharedMemorySize),
	}

	logger = logger.With("Block", id)
	bx, by := l.blockDim[0], l.blockDim[1]
	n := int(l.blockDim[0] * l.blockDim[1] * l.blockDim[2])

	var w *Warp
	for i := 0; i < n; i++ {
		if i%l.cfg.WarpSize == 0 {
			w = newWarp(len(b.warps), b, l, logger)
			b.warps = append(b.warps, w)
		}

		u := uint32(i)
		w.addThread(i, [3]uint32{u % bx, u / bx % by, u / (bx * by)})
	}

	return b
}

// ID returns the linear block index within the grid.
func (b *ThreadBlock) ID() int {
	return b.id
}

// CTAID returns the block index within the grid.
func (b *ThreadBlock) CTAID() [3]uint32 {
	return b.ctaid
}

// Warps returns the warps of the block.
func (b *ThreadBlock) Warps() []*Warp {
	return b.warps
}

// SharedMemory returns the block's shared memory.
func (b *ThreadBlock) SharedMemory() Memory {
	return b.shared
}

// Finished reports whether every warp has completed.
func (b *ThreadBlock) Finished() bool {
	return b.finished == len(b.warps)
}

// Step executes one instruction on every warp that can run, in warp order.
func (b *ThreadBlock) Step() error {
	for _, w := range b.warps {
		if w.finished || w.atBarrier {
			continue
		}

		if err := w.Execute(); err != nil {
			return err
		}
	}

	return nil
}

// Run steps the block until every warp completes.
func (b *ThreadBlock) Run() error {
	for !b.Finished() {
		if err := b.Step(); err != nil {
			return err
		}
	}
	return nil
}

func (b *ThreadBlock) arrive(w *Warp) {
	w.atBarrier = true
	b.atBarrier++
	w.trace("BAR", "Waiting", b.atBarrier)
	b.releaseBarrier()
}

func (b *ThreadBlock) warpDone() {
	b.finished++
	b.releaseBarrier()
}

// releaseBarrier lets every waiting warp continue once all unfinished
// warps have arrived.
func (b *ThreadBlock) releaseBarrier() {
	if b.atBarrier == 0 || b.atBarrier < len(b.warps)-b.finished {
		return
	}

	for _, w := range b.warps {
		w.atBarrier = false
	}
	b.atBarrier = 0
}
