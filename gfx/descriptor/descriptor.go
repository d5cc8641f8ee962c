// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package descriptor builds descriptor set layouts and hands out
// descriptor sets from a fixed size pool.
package descriptor

import (
	"github.com/pkg/errors"

	"github.com/devblok/vkframe/gfx"
)

// LayoutBuilder accumulates bindings for a descriptor set layout.
// The zero value is ready to use.
type LayoutBuilder struct {
	bindings []gfx.LayoutBinding
}

// AddBinding adds a single descriptor at binding.
func (b *LayoutBuilder) AddBinding(binding uint32, typ gfx.DescriptorType) *LayoutBuilder {
	b.bindings = append(b.bindings, gfx.LayoutBinding{
		Binding: binding,
		Type:    typ,
		Count:   1,
	})
	return b
}

// Clear drops every binding added so far.
func (b *LayoutBuilder) Clear() {
	b.bindings = b.bindings[:0]
}

// Bindings returns a copy of the current bindings.
func (b *LayoutBuilder) Bindings() []gfx.LayoutBinding {
	return append([]gfx.LayoutBinding(nil), b.bindings...)
}

// Build creates a layout visible to stages. The layout does not
// change when the builder is modified afterwards.
func (b *LayoutBuilder) Build(dev gfx.DescriptorDevice, stages gfx.ShaderStage) (gfx.DescriptorSetLayout, error) {
	if len(b.bindings) == 0 {
		return nil, errors.New("descriptor layout has no bindings")
	}
	layout, err := dev.CreateDescriptorSetLayout(b.Bindings(), stages)
	if err != nil {
		return nil, errors.Wrap(err, "create descriptor set layout")
	}
	return layout, nil
}

// PoolSizeRatio is the number of descriptors of Type per set.
type PoolSizeRatio struct {
	Type  gfx.DescriptorType
	Ratio float32
}

// Sizes turns ratios into absolute descriptor counts for maxSets sets.
func Sizes(maxSets uint32, ratios []PoolSizeRatio) []gfx.PoolSize {
	sizes := make([]gfx.PoolSize, 0, len(ratios))
	for _, ratio := range ratios {
		sizes = append(sizes, gfx.PoolSize{
			Type:  ratio.Type,
			Count: uint32(ratio.Ratio * float32(maxSets)),
		})
	}
	return sizes
}

// Allocator hands out descriptor sets from a single pool.
// The pool does not grow, running out of sets is an error.
type Allocator struct {
	dev  gfx.DescriptorDevice
	pool gfx.DescriptorPool
}

// InitPool creates the pool backing the allocator.
func (a *Allocator) InitPool(dev gfx.DescriptorDevice, maxSets uint32, ratios []PoolSizeRatio) error {
	if a.pool != nil {
		return errors.New("descriptor pool already initialized")
	}
	pool, err := dev.CreateDescriptorPool(maxSets, Sizes(maxSets, ratios))
	if err != nil {
		return errors.Wrap(err, "create descriptor pool")
	}
	a.dev = dev
	a.pool = pool
	return nil
}

// Allocate returns a new set of the given layout. An error wrapping
// gfx.ErrPoolExhausted means the pool was sized too small.
func (a *Allocator) Allocate(layout gfx.DescriptorSetLayout) (gfx.DescriptorSet, error) {
	if a.pool == nil {
		return nil, errors.New("descriptor pool not initialized")
	}
	set, err := a.dev.AllocateDescriptorSet(a.pool, layout)
	if err != nil {
		return nil, errors.Wrap(err, "allocate descriptor set")
	}
	return set, nil
}

// WriteStorageImage points binding of set at a storage image view.
func (a *Allocator) WriteStorageImage(set gfx.DescriptorSet, binding uint32, view gfx.ImageView) {
	a.dev.WriteStorageImage(set, binding, view)
}

// ClearDescriptors returns every allocated set to the pool,
// the sets must not be used afterwards.
func (a *Allocator) ClearDescriptors() error {
	if a.pool == nil {
		return nil
	}
	return errors.Wrap(a.dev.ResetDescriptorPool(a.pool), "reset descriptor pool")
}

// DestroyPool destroys the pool and every set in it.
// Calling it again does nothing.
func (a *Allocator) DestroyPool() {
	if a.pool == nil {
		return
	}
	a.dev.DestroyDescriptorPool(a.pool)
	a.pool = nil
}

// Release implements gfx.Releasable
func (a *Allocator) Release() {
	a.DestroyPool()
}
