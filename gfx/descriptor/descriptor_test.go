// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package descriptor_test

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/vkframe/gfx"
	"github.com/devblok/vkframe/gfx/descriptor"
	"github.com/devblok/vkframe/gfx/gfxtest"
)

func TestLayoutBuilder(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.New()

	var builder descriptor.LayoutBuilder
	builder.AddBinding(0, gfx.DescriptorStorageImage)
	layout, err := builder.Build(dev, gfx.ShaderCompute)
	c.Assert(err, qt.IsNil)

	builder.AddBinding(1, gfx.DescriptorUniformBuffer)
	c.Assert(builder.Bindings(), qt.HasLen, 2)
	c.Assert(dev.Bindings(layout), qt.DeepEquals, []gfx.LayoutBinding{
		{Binding: 0, Type: gfx.DescriptorStorageImage, Count: 1},
	})

	builder.Clear()
	c.Assert(builder.Bindings(), qt.HasLen, 0)
	_, err = builder.Build(dev, gfx.ShaderCompute)
	c.Assert(err, qt.ErrorMatches, "descriptor layout has no bindings")
}

func TestSizes(t *testing.T) {
	c := qt.New(t)
	sizes := descriptor.Sizes(10, []descriptor.PoolSizeRatio{
		{Type: gfx.DescriptorStorageImage, Ratio: 1},
		{Type: gfx.DescriptorUniformBuffer, Ratio: 0.5},
	})
	c.Assert(sizes, qt.DeepEquals, []gfx.PoolSize{
		{Type: gfx.DescriptorStorageImage, Count: 10},
		{Type: gfx.DescriptorUniformBuffer, Count: 5},
	})
}

func newAllocator(c *qt.C, dev *gfxtest.Device) (*descriptor.Allocator, gfx.DescriptorSetLayout) {
	var alloc descriptor.Allocator
	err := alloc.InitPool(dev, 10, []descriptor.PoolSizeRatio{
		{Type: gfx.DescriptorStorageImage, Ratio: 1},
	})
	c.Assert(err, qt.IsNil)

	var builder descriptor.LayoutBuilder
	layout, err := builder.AddBinding(0, gfx.DescriptorStorageImage).Build(dev, gfx.ShaderCompute)
	c.Assert(err, qt.IsNil)
	return &alloc, layout
}

func TestAllocatorExhaustion(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.New()
	alloc, layout := newAllocator(c, dev)

	for idx := 0; idx < 10; idx++ {
		_, err := alloc.Allocate(layout)
		c.Assert(err, qt.IsNil)
	}
	_, err := alloc.Allocate(layout)
	if !errors.Is(err, gfx.ErrPoolExhausted) {
		t.Fatalf("eleventh allocation: got %v", err)
	}
}

func TestAllocatorClear(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.New()
	alloc, layout := newAllocator(c, dev)

	set, err := alloc.Allocate(layout)
	c.Assert(err, qt.IsNil)
	alloc.WriteStorageImage(set, 0, "view")
	c.Assert(dev.Written(set), qt.Equals, gfx.ImageView("view"))

	c.Assert(alloc.ClearDescriptors(), qt.IsNil)
	c.Assert(dev.Valid(set), qt.Equals, false)

	for idx := 0; idx < 10; idx++ {
		_, err := alloc.Allocate(layout)
		c.Assert(err, qt.IsNil)
	}
}

func TestAllocatorDestroyTwice(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.New()
	alloc, layout := newAllocator(c, dev)

	alloc.DestroyPool()
	alloc.DestroyPool()
	dev.DestroyDescriptorSetLayout(layout)

	c.Assert(dev.Misuse, qt.HasLen, 0)
	c.Assert(dev.Leaks(), qt.HasLen, 0)

	_, err := alloc.Allocate(layout)
	c.Assert(err, qt.ErrorMatches, "descriptor pool not initialized")
}
