// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"time"
	"unsafe"
)

// Synchronizer creates and drives fences and semaphores.
type Synchronizer interface {
	// CreateFence creates a fence, optionally already signaled
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(Fence)

	// WaitFence blocks until the fence is signaled or the
	// timeout elapses, in which case ErrTimeout is returned
	WaitFence(f Fence, timeout time.Duration) error
	ResetFence(Fence) error

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(Semaphore)

	// WaitIdle blocks until the device has finished all work
	WaitIdle() error
}

// Commander owns command recording contexts and the graphics queue.
type Commander interface {
	// CreateCommandPool creates a pool on the graphics queue family
	// whose buffers can be reset individually
	CreateCommandPool() (CommandPool, error)
	DestroyCommandPool(CommandPool)
	AllocateCommandBuffer(CommandPool) (CommandBuffer, error)
	ResetCommandBuffer(CommandBuffer) error

	// BeginCommandBuffer starts one-time-submit recording
	BeginCommandBuffer(CommandBuffer) error
	EndCommandBuffer(CommandBuffer) error

	// Submit submits to the graphics queue
	Submit(SubmitInfo) error
}

// Recorder emits commands into a command buffer in the recording state.
type Recorder interface {
	PipelineBarrier(cmd CommandBuffer, barrier ImageBarrier)
	BlitImage(cmd CommandBuffer, src, dst Image, srcSize, dstSize Extent2D)
	ClearColorImage(cmd CommandBuffer, image Image, layout ImageLayout, color [4]float32)
	BindComputePipeline(cmd CommandBuffer, pipeline Pipeline)
	BindComputeDescriptorSet(cmd CommandBuffer, layout PipelineLayout, set DescriptorSet)
	PushConstants(cmd CommandBuffer, layout PipelineLayout, stages ShaderStage, size uint32, data unsafe.Pointer)
	Dispatch(cmd CommandBuffer, x, y, z uint32)
}

// Presenter manages the presentable image chain.
type Presenter interface {
	// CreateSwapchain builds a swapchain at the requested extent,
	// the surface may clamp it, the returned set carries the real one
	CreateSwapchain(extent Extent2D) (SwapchainSet, error)

	// DestroySwapchain destroys the views and the swapchain,
	// which owns its images
	DestroySwapchain(SwapchainSet)

	// AcquireNextImage returns ErrOutOfDate when the swapchain
	// no longer matches the surface and ErrTimeout on timeout
	AcquireNextImage(sc Swapchain, timeout time.Duration, signal Semaphore) (uint32, error)

	// Present returns ErrOutOfDate when the swapchain
	// no longer matches the surface
	Present(sc Swapchain, index uint32, wait Semaphore) error
}

// Allocator is the memory allocation collaborator.
type Allocator interface {
	CreateImage(ImageInfo) (AllocatedImage, error)
	DestroyImage(AllocatedImage)
}

// DescriptorDevice creates descriptor layouts, pools and sets.
type DescriptorDevice interface {
	CreateDescriptorSetLayout(bindings []LayoutBinding, stages ShaderStage) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(DescriptorSetLayout)
	CreateDescriptorPool(maxSets uint32, sizes []PoolSize) (DescriptorPool, error)

	// ResetDescriptorPool invalidates every set allocated from the pool
	ResetDescriptorPool(DescriptorPool) error
	DestroyDescriptorPool(DescriptorPool)

	// AllocateDescriptorSet returns ErrPoolExhausted when the
	// pool can not hold another set of that layout
	AllocateDescriptorSet(DescriptorPool, DescriptorSetLayout) (DescriptorSet, error)
	WriteStorageImage(set DescriptorSet, binding uint32, view ImageView)
}

// PipelineDevice creates compute pipelines.
type PipelineDevice interface {
	CreateShaderModule(code []uint32) (ShaderModule, error)
	DestroyShaderModule(ShaderModule)
	CreatePipelineLayout(layouts []DescriptorSetLayout, pushConstantSize uint32) (PipelineLayout, error)
	DestroyPipelineLayout(PipelineLayout)
	CreateComputePipeline(layout PipelineLayout, module ShaderModule, entry string) (Pipeline, error)
	DestroyPipeline(Pipeline)
}

// Device is everything the frame engine needs from the GPU.
type Device interface {
	Synchronizer
	Commander
	Recorder
	Presenter
	Allocator
	DescriptorDevice
	PipelineDevice
}
