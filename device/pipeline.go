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

// CreateShaderModule implements interface
func (v *Vulkan) CreateShaderModule(code []uint32) (gfx.ShaderModule, error) {
	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}

	var module vk.ShaderModule
	if err := vk.Error(vk.CreateShaderModule(v.logicalDevice, &smci, nil, &module)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateShaderModule()")
	}
	return module, nil
}

// DestroyShaderModule implements interface
func (v *Vulkan) DestroyShaderModule(m gfx.ShaderModule) {
	vk.DestroyShaderModule(v.logicalDevice, asShaderModule(m), nil)
}

// CreatePipelineLayout implements interface
func (v *Vulkan) CreatePipelineLayout(layouts []gfx.DescriptorSetLayout, pushConstantSize uint32) (gfx.PipelineLayout, error) {
	setLayouts := make([]vk.DescriptorSetLayout, 0, len(layouts))
	for _, l := range layouts {
		setLayouts = append(setLayouts, asDescriptorSetLayout(l))
	}

	plci := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	if pushConstantSize > 0 {
		plci.PushConstantRangeCount = 1
		plci.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit),
			Offset:     0,
			Size:       pushConstantSize,
		}}
	}

	var layout vk.PipelineLayout
	if err := vk.Error(vk.CreatePipelineLayout(v.logicalDevice, &plci, nil, &layout)); err != nil {
		return nil, errors.Wrap(err, "vk.CreatePipelineLayout()")
	}
	return layout, nil
}

// DestroyPipelineLayout implements interface
func (v *Vulkan) DestroyPipelineLayout(l gfx.PipelineLayout) {
	vk.DestroyPipelineLayout(v.logicalDevice, asPipelineLayout(l), nil)
}

// CreateComputePipeline implements interface
func (v *Vulkan) CreateComputePipeline(layout gfx.PipelineLayout, module gfx.ShaderModule, entry string) (gfx.Pipeline, error) {
	cpci := []vk.ComputePipelineCreateInfo{{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: asShaderModule(module),
			PName:  safeString(entry),
		},
		Layout: asPipelineLayout(layout),
	}}

	pipelines := make([]vk.Pipeline, len(cpci))
	if err := vk.Error(vk.CreateComputePipelines(v.logicalDevice, nil, uint32(len(cpci)), cpci, nil, pipelines)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateComputePipelines()")
	}
	return pipelines[0], nil
}

// DestroyPipeline implements interface
func (v *Vulkan) DestroyPipeline(p gfx.Pipeline) {
	vk.DestroyPipeline(v.logicalDevice, asPipeline(p), nil)
}
