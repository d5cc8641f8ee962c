// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import (
	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"

	"github.com/devblok/vkframe/gfx"
)

// Memory defines a usable memory region.
type Memory struct {
	device vk.Device
	memory vk.DeviceMemory
	size   vk.DeviceSize
}

// Get returns the vulkan memory handle.
func (m *Memory) Get() vk.DeviceMemory {
	return m.memory
}

// Size returns the allocated size in bytes.
func (m *Memory) Size() uint64 {
	return uint64(m.size)
}

// Release frees memory.
func (m *Memory) Release() {
	vk.FreeMemory(m.device, m.memory, nil)
}

// NewMemoryAllocator creates a new memory allocator. Allocates for the logical device,
// reads memory properties of the physical device to influence allocation.
func NewMemoryAllocator(device vk.Device, phyDevice vk.PhysicalDevice) (*MemoryAllocator, error) {
	var memProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(phyDevice, &memProperties)
	memProperties.Deref()

	if memProperties.MemoryTypeCount == 0 {
		return nil, errors.New("physical device reports no memory types")
	}

	return &MemoryAllocator{
		device:        device,
		memProperties: memProperties,
	}, nil
}

// MemoryAllocator is responsible returning usable
// memory for any resources that may need it.
type MemoryAllocator struct {
	device        vk.Device
	memProperties vk.PhysicalDeviceMemoryProperties
}

// Malloc returns a usable memory chunk ready for use.
func (ma *MemoryAllocator) Malloc(req vk.MemoryRequirements, prop vk.MemoryPropertyFlagBits) (Memory, error) {
	memTypeIdx, err := findMemoryType(&ma.memProperties, req.MemoryTypeBits, vk.MemoryPropertyFlags(prop))
	if err != nil {
		return Memory{}, err
	}

	mai := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: memTypeIdx,
	}

	var memory vk.DeviceMemory
	if err := vk.Error(vk.AllocateMemory(ma.device, &mai, nil, &memory)); err != nil {
		return Memory{}, errors.Wrap(err, "vk.AllocateMemory()")
	}
	return Memory{
		device: ma.device,
		memory: memory,
		size:   req.Size,
	}, nil
}

func findMemoryType(props *vk.PhysicalDeviceMemoryProperties, filter uint32, prop vk.MemoryPropertyFlags) (uint32, error) {
	for idx := uint32(0); idx < props.MemoryTypeCount; idx++ {
		props.MemoryTypes[idx].Deref()
		if filter&(1<<idx) != 0 && (props.MemoryTypes[idx].PropertyFlags&prop) == prop {
			return idx, nil
		}
	}
	return 0, errors.New("suitable memory type not found")
}

// CreateImage implements interface
func (v *Vulkan) CreateImage(info gfx.ImageInfo) (gfx.AllocatedImage, error) {
	format := vk.Format(info.Format)
	ici := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  info.Extent.Depth,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var image vk.Image
	if err := vk.Error(vk.CreateImage(v.logicalDevice, &ici, nil, &image)); err != nil {
		return gfx.AllocatedImage{}, errors.Wrap(err, "vk.CreateImage()")
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(v.logicalDevice, image, &req)
	req.Deref()

	prop := vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	if info.DeviceLocal {
		prop = vk.MemoryPropertyDeviceLocalBit
	}
	memory, err := v.allocator.Malloc(req, prop)
	if err != nil {
		vk.DestroyImage(v.logicalDevice, image, nil)
		return gfx.AllocatedImage{}, err
	}

	if err := vk.Error(vk.BindImageMemory(v.logicalDevice, image, memory.Get(), 0)); err != nil {
		memory.Release()
		vk.DestroyImage(v.logicalDevice, image, nil)
		return gfx.AllocatedImage{}, errors.Wrap(err, "vk.BindImageMemory()")
	}

	view, err := v.createImageView(image, format)
	if err != nil {
		memory.Release()
		vk.DestroyImage(v.logicalDevice, image, nil)
		return gfx.AllocatedImage{}, err
	}

	return gfx.AllocatedImage{
		Image:      image,
		View:       view,
		Format:     info.Format,
		Extent:     info.Extent,
		Allocation: memory,
	}, nil
}

// DestroyImage implements interface
func (v *Vulkan) DestroyImage(img gfx.AllocatedImage) {
	vk.DestroyImageView(v.logicalDevice, asImageView(img.View), nil)
	vk.DestroyImage(v.logicalDevice, asImage(img.Image), nil)
	if memory, ok := img.Allocation.(Memory); ok {
		memory.Release()
	}
}
