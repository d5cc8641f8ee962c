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

// CreateDescriptorSetLayout implements interface
func (v *Vulkan) CreateDescriptorSetLayout(bindings []gfx.LayoutBinding, stages gfx.ShaderStage) (gfx.DescriptorSetLayout, error) {
	layoutBindings := make([]vk.DescriptorSetLayoutBinding, 0, len(bindings))
	for _, b := range bindings {
		count := b.Count
		if count == 0 {
			count = 1
		}
		layoutBindings = append(layoutBindings, vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type),
			DescriptorCount: count,
			StageFlags:      vk.ShaderStageFlags(stages),
		})
	}

	dslci := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(layoutBindings)),
		PBindings:    layoutBindings,
	}

	var layout vk.DescriptorSetLayout
	if err := vk.Error(vk.CreateDescriptorSetLayout(v.logicalDevice, &dslci, nil, &layout)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateDescriptorSetLayout()")
	}
	return layout, nil
}

// DestroyDescriptorSetLayout implements interface
func (v *Vulkan) DestroyDescriptorSetLayout(l gfx.DescriptorSetLayout) {
	vk.DestroyDescriptorSetLayout(v.logicalDevice, asDescriptorSetLayout(l), nil)
}

// CreateDescriptorPool implements interface
func (v *Vulkan) CreateDescriptorPool(maxSets uint32, sizes []gfx.PoolSize) (gfx.DescriptorPool, error) {
	poolSizes := make([]vk.DescriptorPoolSize, 0, len(sizes))
	for _, size := range sizes {
		if size.Count == 0 {
			continue
		}
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{
			Type:            vk.DescriptorType(size.Type),
			DescriptorCount: size.Count,
		})
	}

	dpci := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}

	var pool vk.DescriptorPool
	if err := vk.Error(vk.CreateDescriptorPool(v.logicalDevice, &dpci, nil, &pool)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateDescriptorPool()")
	}
	return pool, nil
}

// ResetDescriptorPool implements interface
func (v *Vulkan) ResetDescriptorPool(p gfx.DescriptorPool) error {
	return result(vk.ResetDescriptorPool(v.logicalDevice, asDescriptorPool(p), 0), "vk.ResetDescriptorPool()")
}

// DestroyDescriptorPool implements interface
func (v *Vulkan) DestroyDescriptorPool(p gfx.DescriptorPool) {
	vk.DestroyDescriptorPool(v.logicalDevice, asDescriptorPool(p), nil)
}

// AllocateDescriptorSet implements interface
func (v *Vulkan) AllocateDescriptorSet(p gfx.DescriptorPool, l gfx.DescriptorSetLayout) (gfx.DescriptorSet, error) {
	dsai := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     asDescriptorPool(p),
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{asDescriptorSetLayout(l)},
	}

	var set vk.DescriptorSet
	if err := result(vk.AllocateDescriptorSets(v.logicalDevice, &dsai, &set), "vk.AllocateDescriptorSets()"); err != nil {
		return nil, err
	}
	return set, nil
}

// WriteStorageImage implements interface
func (v *Vulkan) WriteStorageImage(set gfx.DescriptorSet, binding uint32, view gfx.ImageView) {
	wds := []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          asDescriptorSet(set),
		DstBinding:      binding,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeStorageImage,
		PImageInfo: []vk.DescriptorImageInfo{{
			ImageView:   asImageView(view),
			ImageLayout: vk.ImageLayoutGeneral,
		}},
	}}
	vk.UpdateDescriptorSets(v.logicalDevice, uint32(len(wds)), wds, 0, nil)
}
