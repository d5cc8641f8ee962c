// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines the GPU contract the frame engine is written against.
// Handles are opaque to everything but the Device that created them, the
// enumerations carry the numeric values of their Vulkan counterparts.
package gfx

// Releasable defines any memory-occupying item that can be freed.
type Releasable interface {

	// Release releases memory occupied by the implementing structure.
	Release()
}

// ReleaseFunc adapts a plain function into a Releasable.
type ReleaseFunc func()

// Release implements interface
func (f ReleaseFunc) Release() {
	f()
}

// Opaque handles. A Device returns them and is the only party
// that may look inside, usually with a type assertion back to
// the native handle type.
type (
	Fence               interface{}
	Semaphore           interface{}
	CommandPool         interface{}
	CommandBuffer       interface{}
	Image               interface{}
	ImageView           interface{}
	Swapchain           interface{}
	DescriptorSetLayout interface{}
	DescriptorPool      interface{}
	DescriptorSet       interface{}
	ShaderModule        interface{}
	PipelineLayout      interface{}
	Pipeline            interface{}
)
