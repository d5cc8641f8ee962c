// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package frame holds the per-frame resources that let the CPU record
// one frame while the GPU still executes the previous one.
package frame

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/devblok/vkframe/gfx"
)

// Overlap is the number of frames in flight.
const Overlap = 2

// Slot is the set of resources used by one frame in flight.
type Slot struct {
	CommandPool   gfx.CommandPool
	CommandBuffer gfx.CommandBuffer

	// Fence is signaled by the GPU when the slot's last submission
	// completed, it is created signaled.
	Fence gfx.Fence

	// Acquire is signaled when the swapchain image is ready,
	// Render when the recorded work finished.
	Acquire gfx.Semaphore
	Render  gfx.Semaphore

	// Release holds what the slot's last frame created for itself,
	// drained once its fence has signaled.
	Release gfx.ReleaseQueue

	visits uint64
}

// Visits returns how many frames claimed the slot. A wait that is not
// followed by Reset, like a skipped acquire, is not a visit.
func (s *Slot) Visits() uint64 {
	return atomic.LoadUint64(&s.visits)
}

// Reset claims the slot for a frame: it arms the fence for the next
// submission and clears the command buffer. Only call once the slot is
// certain to be submitted.
func (s *Slot) Reset(dev gfx.Device) error {
	if err := dev.ResetFence(s.Fence); err != nil {
		return errors.Wrap(err, "reset frame fence")
	}
	if err := dev.ResetCommandBuffer(s.CommandBuffer); err != nil {
		return errors.Wrap(err, "reset frame command buffer")
	}
	atomic.AddUint64(&s.visits, 1)
	return nil
}

// Ring is a fixed set of slots used round robin by frame number.
type Ring struct {
	dev   gfx.Device
	slots []*Slot
}

// NewRing creates n slots. On error the slots created so far are
// destroyed again.
func NewRing(dev gfx.Device, n int) (*Ring, error) {
	if n < 1 {
		return nil, errors.Errorf("frame ring needs at least one slot, got %d", n)
	}
	ring := &Ring{dev: dev}
	for idx := 0; idx < n; idx++ {
		slot, err := newSlot(dev)
		if err != nil {
			ring.Destroy()
			return nil, errors.Wrapf(err, "frame slot %d", idx)
		}
		ring.slots = append(ring.slots, slot)
	}
	return ring, nil
}

func newSlot(dev gfx.Device) (*Slot, error) {
	var (
		slot = &Slot{}
		undo gfx.ReleaseQueue
		err  error
	)

	if slot.CommandPool, err = dev.CreateCommandPool(); err != nil {
		return nil, err
	}
	undo.Push(func() { dev.DestroyCommandPool(slot.CommandPool) })

	if slot.CommandBuffer, err = dev.AllocateCommandBuffer(slot.CommandPool); err != nil {
		undo.Flush()
		return nil, err
	}

	if slot.Fence, err = dev.CreateFence(true); err != nil {
		undo.Flush()
		return nil, err
	}
	undo.Push(func() { dev.DestroyFence(slot.Fence) })

	if slot.Acquire, err = dev.CreateSemaphore(); err != nil {
		undo.Flush()
		return nil, err
	}
	undo.Push(func() { dev.DestroySemaphore(slot.Acquire) })

	if slot.Render, err = dev.CreateSemaphore(); err != nil {
		undo.Flush()
		return nil, err
	}
	return slot, nil
}

// Len returns the number of slots.
func (r *Ring) Len() int {
	return len(r.slots)
}

// Index returns the slot index used by frame.
func (r *Ring) Index(frame uint64) int {
	return int(frame % uint64(len(r.slots)))
}

// Slot returns the slot used by frame.
func (r *Ring) Slot(frame uint64) *Slot {
	return r.slots[r.Index(frame)]
}

// Wait blocks until the GPU finished the previous use of frame's slot,
// then drains the slot's release queue. Waiting again before the slot is
// submitted finds the queue empty. A timeout wraps gfx.ErrTimeout and
// leaves the queue untouched.
func (r *Ring) Wait(frame uint64, timeout time.Duration) (*Slot, error) {
	slot := r.Slot(frame)
	if err := r.dev.WaitFence(slot.Fence, timeout); err != nil {
		return nil, errors.Wrapf(err, "wait for frame slot %d", r.Index(frame))
	}
	slot.Release.Flush()
	return slot, nil
}

// Destroy drains every slot and destroys its resources. The device must
// be idle. Calling it again does nothing.
func (r *Ring) Destroy() {
	for _, slot := range r.slots {
		slot.Release.Flush()
		r.dev.DestroySemaphore(slot.Render)
		r.dev.DestroySemaphore(slot.Acquire)
		r.dev.DestroyFence(slot.Fence)
		r.dev.DestroyCommandPool(slot.CommandPool)
	}
	r.slots = nil
}
