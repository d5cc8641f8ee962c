// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import (
	"time"

	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"

	"github.com/devblok/vkframe/gfx"
)

// result turns a Vulkan return code into an error, codes the frame loop
// reacts to are mapped onto the gfx sentinels.
func result(ret vk.Result, call string) error {
	switch ret {
	case vk.Success:
		return nil
	case vk.Timeout:
		return errors.Wrap(gfx.ErrTimeout, call)
	case vk.ErrorOutOfDate:
		return errors.Wrap(gfx.ErrOutOfDate, call)
	case vk.ErrorOutOfPoolMemory, vk.ErrorFragmentedPool:
		return errors.Wrap(gfx.ErrPoolExhausted, call)
	}
	return errors.Wrap(vk.Error(ret), call)
}

// timeoutNanos converts a wait bound into the nanosecond count the
// binding takes, negative durations do not wait
func timeoutNanos(d time.Duration) uint {
	if d < 0 {
		return 0
	}
	return uint(d.Nanoseconds())
}

func asFence(h gfx.Fence) vk.Fence {
	f, _ := h.(vk.Fence)
	return f
}

func asSemaphore(h gfx.Semaphore) vk.Semaphore {
	s, _ := h.(vk.Semaphore)
	return s
}

func asCommandPool(h gfx.CommandPool) vk.CommandPool {
	p, _ := h.(vk.CommandPool)
	return p
}

func asCommandBuffer(h gfx.CommandBuffer) vk.CommandBuffer {
	c, _ := h.(vk.CommandBuffer)
	return c
}

func asImage(h gfx.Image) vk.Image {
	i, _ := h.(vk.Image)
	return i
}

func asImageView(h gfx.ImageView) vk.ImageView {
	i, _ := h.(vk.ImageView)
	return i
}

func asSwapchain(h gfx.Swapchain) vk.Swapchain {
	s, _ := h.(vk.Swapchain)
	return s
}

func asDescriptorSetLayout(h gfx.DescriptorSetLayout) vk.DescriptorSetLayout {
	l, _ := h.(vk.DescriptorSetLayout)
	return l
}

func asDescriptorPool(h gfx.DescriptorPool) vk.DescriptorPool {
	p, _ := h.(vk.DescriptorPool)
	return p
}

func asDescriptorSet(h gfx.DescriptorSet) vk.DescriptorSet {
	s, _ := h.(vk.DescriptorSet)
	return s
}

func asShaderModule(h gfx.ShaderModule) vk.ShaderModule {
	m, _ := h.(vk.ShaderModule)
	return m
}

func asPipelineLayout(h gfx.PipelineLayout) vk.PipelineLayout {
	l, _ := h.(vk.PipelineLayout)
	return l
}

func asPipeline(h gfx.Pipeline) vk.Pipeline {
	p, _ := h.(vk.Pipeline)
	return p
}
