// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/vkframe/gfx"
	"github.com/devblok/vkframe/shader"
)

// PushConstants is the block every background effect receives.
// Data4.X is overwritten with the elapsed seconds each frame.
type PushConstants struct {
	Data1 mgl32.Vec4
	Data2 mgl32.Vec4
	Data3 mgl32.Vec4
	Data4 mgl32.Vec4
}

// pushConstantSize is 64
var pushConstantSize = uint32(unsafe.Sizeof(PushConstants{}))

// entryPoint every effect shader starts in
const entryPoint = "main"

// ComputeEffect is a compute pipeline drawing the background
type ComputeEffect struct {
	Name     string
	Pipeline gfx.Pipeline
	Data     PushConstants
}

// defaultParameters are the starting push constants of known effects
var defaultParameters = map[string]PushConstants{
	"gradient": {
		Data1: mgl32.Vec4{1, 0, 0, 1},
		Data2: mgl32.Vec4{0, 0, 1, 1},
	},
	"sky": {
		Data1: mgl32.Vec4{0.1, 0.2, 0.4, 0.97},
	},
}

// effectFiles returns the shader files to load, either the configured
// names or everything the source lists
func effectFiles(names []string, src shader.Source) ([]string, error) {
	if src == nil {
		return nil, nil
	}
	if len(names) > 0 {
		files := make([]string, 0, len(names))
		for _, name := range names {
			files = append(files, shader.FileName(name))
		}
		return files, nil
	}
	lister, ok := src.(shader.Lister)
	if !ok {
		return nil, nil
	}
	return lister.Names()
}

// loadEffects builds a pipeline for every effect file. A file that
// fails to load is logged and skipped, the frame loop falls back to
// a plain clear when nothing loads.
func loadEffects(dev gfx.PipelineDevice, src shader.Source, layout gfx.PipelineLayout, files []string, logger log.FieldLogger) ([]ComputeEffect, error) {
	var effects []ComputeEffect
	for _, file := range files {
		name := shader.EffectName(file)
		module, err := shader.LoadModule(dev, src, file)
		if err != nil {
			logger.WithError(err).WithField("effect", name).Warn("effect skipped")
			continue
		}
		pipeline, err := dev.CreateComputePipeline(layout, module, entryPoint)
		dev.DestroyShaderModule(module)
		if err != nil {
			for _, effect := range effects {
				dev.DestroyPipeline(effect.Pipeline)
			}
			return nil, errors.Wrapf(err, "create pipeline for effect %s", name)
		}
		effects = append(effects, ComputeEffect{
			Name:     name,
			Pipeline: pipeline,
			Data:     defaultParameters[name],
		})
		logger.WithField("effect", name).Debug("effect loaded")
	}
	return effects, nil
}
