// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// ImageLayout is the usage state of an image on the GPU.
type ImageLayout int32

// Layouts used by the frame loop
const (
	LayoutUndefined   ImageLayout = 0
	LayoutGeneral     ImageLayout = 1
	LayoutTransferSrc ImageLayout = 6
	LayoutTransferDst ImageLayout = 7
	LayoutPresentSrc  ImageLayout = 1000001002
)

func (l ImageLayout) String() string {
	switch l {
	case LayoutUndefined:
		return "undefined"
	case LayoutGeneral:
		return "general"
	case LayoutTransferSrc:
		return "transfer-src"
	case LayoutTransferDst:
		return "transfer-dst"
	case LayoutPresentSrc:
		return "present-src"
	}
	return "unknown"
}

// PipelineStage is a pipeline stage mask.
type PipelineStage uint32

// Pipeline stage bits
const (
	StageTopOfPipe             PipelineStage = 0x00000001
	StageColorAttachmentOutput PipelineStage = 0x00000400
	StageComputeShader         PipelineStage = 0x00000800
	StageTransfer              PipelineStage = 0x00001000
	StageBottomOfPipe          PipelineStage = 0x00002000
)

// Access is a memory access mask.
type Access uint32

// Access bits
const (
	AccessNone          Access = 0
	AccessShaderWrite   Access = 0x00000040
	AccessTransferRead  Access = 0x00000800
	AccessTransferWrite Access = 0x00001000
)

// DescriptorType identifies the kind of resource a descriptor binds.
type DescriptorType int32

// Descriptor types
const (
	DescriptorStorageImage  DescriptorType = 3
	DescriptorUniformBuffer DescriptorType = 6
)

// ShaderStage is a shader stage mask.
type ShaderStage uint32

// Shader stage bits
const (
	ShaderCompute ShaderStage = 0x00000020
)

// Format is a pixel format.
type Format int32

// Formats the engine allocates with
const (
	FormatUndefined          Format = 0
	FormatB8g8r8a8Unorm      Format = 44
	FormatR16g16b16a16Sfloat Format = 97
)

// ImageUsage is an image usage mask.
type ImageUsage uint32

// Image usage bits
const (
	UsageTransferSrc     ImageUsage = 0x00000001
	UsageTransferDst     ImageUsage = 0x00000002
	UsageStorage         ImageUsage = 0x00000008
	UsageColorAttachment ImageUsage = 0x00000010
)

// Extent2D is a width and height pair in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// Empty reports whether either dimension is zero,
// which is what a minimized surface reports.
func (e Extent2D) Empty() bool {
	return e.Width == 0 || e.Height == 0
}

// Extent3D adds depth to Extent2D.
type Extent3D struct {
	Width  uint32
	Height uint32
	Depth  uint32
}

// Extent2D drops the depth.
func (e Extent3D) Extent2D() Extent2D {
	return Extent2D{Width: e.Width, Height: e.Height}
}

// ImageBarrier describes a single image memory barrier
// covering the color aspect of every mip level and layer.
type ImageBarrier struct {
	Image     Image
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcStage  PipelineStage
	SrcAccess Access
	DstStage  PipelineStage
	DstAccess Access
}

// SubmitInfo is one queue submission with a single command buffer.
// Signal is signaled once every command of the submission completed,
// which covers all graphics work, so there is no signal stage.
type SubmitInfo struct {
	CommandBuffer CommandBuffer
	Wait          Semaphore
	WaitStage     PipelineStage
	Signal        Semaphore
	Fence         Fence
}

// SwapchainSet is the presentable image chain and its views.
// It is replaced wholesale, never mutated.
type SwapchainSet struct {
	Swapchain Swapchain
	Format    Format
	Extent    Extent2D
	Images    []Image
	Views     []ImageView
}

// ImageInfo is a request to the memory allocation collaborator.
type ImageInfo struct {
	Format Format
	Extent Extent3D
	Usage  ImageUsage

	// DeviceLocal requests GPU-only memory.
	DeviceLocal bool
}

// AllocatedImage is a GPU image together with its view and
// the allocation backing it.
type AllocatedImage struct {
	Image      Image
	View       ImageView
	Format     Format
	Extent     Extent3D
	Allocation interface{}
}

// LayoutBinding is one binding of a descriptor set layout.
type LayoutBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
}

// PoolSize is the number of descriptors of one type a pool holds.
type PoolSize struct {
	Type  DescriptorType
	Count uint32
}
