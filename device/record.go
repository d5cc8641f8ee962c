// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import (
	"unsafe"

	vk "github.com/devblok/vulkan"

	"github.com/devblok/vkframe/gfx"
)

// PipelineBarrier implements interface
func (v *Vulkan) PipelineBarrier(cmd gfx.CommandBuffer, barrier gfx.ImageBarrier) {
	imb := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(barrier.SrcAccess),
		DstAccessMask:       vk.AccessFlags(barrier.DstAccess),
		OldLayout:           vk.ImageLayout(barrier.OldLayout),
		NewLayout:           vk.ImageLayout(barrier.NewLayout),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               asImage(barrier.Image),
		SubresourceRange:    colorRange(),
	}

	vk.CmdPipelineBarrier(asCommandBuffer(cmd),
		vk.PipelineStageFlags(barrier.SrcStage),
		vk.PipelineStageFlags(barrier.DstStage),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{imb})
}

// BlitImage implements interface
func (v *Vulkan) BlitImage(cmd gfx.CommandBuffer, src, dst gfx.Image, srcSize, dstSize gfx.Extent2D) {
	layers := vk.ImageSubresourceLayers{
		AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
		MipLevel:       0,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
	blit := vk.ImageBlit{
		SrcSubresource: layers,
		SrcOffsets: [2]vk.Offset3D{
			{X: 0, Y: 0, Z: 0},
			{X: int32(srcSize.Width), Y: int32(srcSize.Height), Z: 1},
		},
		DstSubresource: layers,
		DstOffsets: [2]vk.Offset3D{
			{X: 0, Y: 0, Z: 0},
			{X: int32(dstSize.Width), Y: int32(dstSize.Height), Z: 1},
		},
	}

	vk.CmdBlitImage(asCommandBuffer(cmd),
		asImage(src), vk.ImageLayoutTransferSrcOptimal,
		asImage(dst), vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{blit}, vk.FilterLinear)
}

// ClearColorImage implements interface
func (v *Vulkan) ClearColorImage(cmd gfx.CommandBuffer, image gfx.Image, layout gfx.ImageLayout, color [4]float32) {
	var value vk.ClearColorValue
	*(*[4]float32)(unsafe.Pointer(&value)) = color

	vk.CmdClearColorImage(asCommandBuffer(cmd), asImage(image), vk.ImageLayout(layout),
		&value, 1, []vk.ImageSubresourceRange{colorRange()})
}

// BindComputePipeline implements interface
func (v *Vulkan) BindComputePipeline(cmd gfx.CommandBuffer, pipeline gfx.Pipeline) {
	vk.CmdBindPipeline(asCommandBuffer(cmd), vk.PipelineBindPointCompute, asPipeline(pipeline))
}

// BindComputeDescriptorSet implements interface
func (v *Vulkan) BindComputeDescriptorSet(cmd gfx.CommandBuffer, layout gfx.PipelineLayout, set gfx.DescriptorSet) {
	vk.CmdBindDescriptorSets(asCommandBuffer(cmd), vk.PipelineBindPointCompute, asPipelineLayout(layout),
		0, 1, []vk.DescriptorSet{asDescriptorSet(set)}, 0, nil)
}

// PushConstants implements interface
func (v *Vulkan) PushConstants(cmd gfx.CommandBuffer, layout gfx.PipelineLayout, stages gfx.ShaderStage, size uint32, data unsafe.Pointer) {
	vk.CmdPushConstants(asCommandBuffer(cmd), asPipelineLayout(layout), vk.ShaderStageFlags(stages), 0, size, data)
}

// Dispatch implements interface
func (v *Vulkan) Dispatch(cmd gfx.CommandBuffer, x, y, z uint32) {
	vk.CmdDispatch(asCommandBuffer(cmd), x, y, z)
}
