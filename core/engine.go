// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package core drives the frame loop: it owns the swapchain session,
// the draw image and the frame slots, and records one compute frame
// per iteration that is copied onto the acquired swapchain image.
package core

import (
	"math"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/vkframe/gfx"
	"github.com/devblok/vkframe/gfx/barrier"
	"github.com/devblok/vkframe/gfx/descriptor"
	"github.com/devblok/vkframe/gfx/frame"
	"github.com/devblok/vkframe/shader"
)

// DrawFormat is the format of the image effects draw into
const DrawFormat = gfx.FormatR16g16b16a16Sfloat

const drawUsage = gfx.UsageTransferSrc | gfx.UsageTransferDst | gfx.UsageStorage | gfx.UsageColorAttachment

// Stats counts what the loop did
type Stats struct {
	Frames  uint64
	Resizes uint64
	Skipped uint64
}

// Engine is the frame engine. It is created with New and destroyed
// with Destroy, Draw and Run must be called from a single goroutine.
type Engine struct {
	dev  gfx.Device
	log  log.FieldLogger
	cfg  Configuration
	time *Time

	// release tears down everything New built, last to first
	release gfx.ReleaseQueue

	session *Session
	ring    *frame.Ring

	draw       gfx.AllocatedImage
	drawExtent gfx.Extent2D

	descriptors descriptor.Allocator
	drawLayout  gfx.DescriptorSetLayout
	drawSet     gfx.DescriptorSet

	effectLayout gfx.PipelineLayout
	effects      []ComputeEffect
	current      int32

	frame uint64

	mu        sync.Mutex
	resize    bool
	requested gfx.Extent2D

	frames, resizes, skipped uint64
}

// New brings up the engine on dev. Effects are loaded from shaders,
// which may be nil. When any step fails everything built so far
// is destroyed again.
func New(dev gfx.Device, shaders shader.Source, cfg Configuration, logger log.FieldLogger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	e := &Engine{
		dev:       dev,
		log:       logger.WithField("component", "engine"),
		cfg:       cfg,
		time:      NewTime(cfg.Time),
		requested: gfx.Extent2D{Width: cfg.Window.Width, Height: cfg.Window.Height},
	}
	e.release.Push(e.time.Stop)
	if err := e.init(shaders, logger); err != nil {
		e.release.Flush()
		return nil, err
	}
	e.log.WithFields(log.Fields{
		"width":   e.session.Extent().Width,
		"height":  e.session.Extent().Height,
		"effects": len(e.effects),
		"slots":   e.ring.Len(),
	}).Info("engine initialized")
	return e, nil
}

func (e *Engine) init(shaders shader.Source, logger log.FieldLogger) error {
	var err error

	if e.session, err = NewSession(e.dev, e.requested, logger); err != nil {
		return err
	}
	e.release.Push(e.session.Destroy)

	if err := e.createDrawImage(e.requested); err != nil {
		return err
	}
	e.release.Push(e.destroyDrawImage)

	if e.ring, err = frame.NewRing(e.dev, frame.Overlap); err != nil {
		return err
	}
	e.release.Push(e.ring.Destroy)

	if err := e.initDescriptors(); err != nil {
		return err
	}
	return e.initEffects(shaders, logger)
}

func (e *Engine) createDrawImage(extent gfx.Extent2D) error {
	img, err := e.dev.CreateImage(gfx.ImageInfo{
		Format:      DrawFormat,
		Extent:      gfx.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		Usage:       drawUsage,
		DeviceLocal: true,
	})
	if err != nil {
		return errors.Wrap(err, "create draw image")
	}
	e.draw = img
	return nil
}

func (e *Engine) destroyDrawImage() {
	if e.draw.Image == nil {
		return
	}
	e.dev.DestroyImage(e.draw)
	e.draw = gfx.AllocatedImage{}
}

func (e *Engine) initDescriptors() error {
	ratios := []descriptor.PoolSizeRatio{{Type: gfx.DescriptorStorageImage, Ratio: 1}}
	if err := e.descriptors.InitPool(e.dev, e.cfg.Renderer.DescriptorSets, ratios); err != nil {
		return err
	}
	e.release.PushReleasable(&e.descriptors)

	var (
		builder descriptor.LayoutBuilder
		err     error
	)
	builder.AddBinding(0, gfx.DescriptorStorageImage)
	if e.drawLayout, err = builder.Build(e.dev, gfx.ShaderCompute); err != nil {
		return err
	}
	e.release.Push(func() { e.dev.DestroyDescriptorSetLayout(e.drawLayout) })

	return e.bindDrawImage()
}

// bindDrawImage allocates the set effects write to and
// points it at the draw image
func (e *Engine) bindDrawImage() error {
	set, err := e.descriptors.Allocate(e.drawLayout)
	if err != nil {
		return err
	}
	e.descriptors.WriteStorageImage(set, 0, e.draw.View)
	e.drawSet = set
	return nil
}

func (e *Engine) initEffects(shaders shader.Source, logger log.FieldLogger) error {
	layout, err := e.dev.CreatePipelineLayout([]gfx.DescriptorSetLayout{e.drawLayout}, pushConstantSize)
	if err != nil {
		return errors.Wrap(err, "create effect pipeline layout")
	}
	e.effectLayout = layout
	e.release.Push(func() { e.dev.DestroyPipelineLayout(e.effectLayout) })

	files, err := effectFiles(e.cfg.Renderer.Effects, shaders)
	if err != nil {
		return errors.Wrap(err, "list effects")
	}
	if e.effects, err = loadEffects(e.dev, shaders, layout, files, e.log); err != nil {
		return err
	}
	e.release.Push(func() {
		for _, effect := range e.effects {
			e.dev.DestroyPipeline(effect.Pipeline)
		}
		e.effects = nil
	})
	if len(e.effects) == 0 {
		e.log.Warn("no effect loaded, drawing a plain clear")
	}
	return nil
}

// Effects returns the names of the loaded effects
func (e *Engine) Effects() []string {
	names := make([]string, 0, len(e.effects))
	for _, effect := range e.effects {
		names = append(names, effect.Name)
	}
	return names
}

// Effect returns the effect that draws the background,
// false when no effect loaded
func (e *Engine) Effect() (ComputeEffect, bool) {
	if len(e.effects) == 0 {
		return ComputeEffect{}, false
	}
	return e.effects[atomic.LoadInt32(&e.current)], true
}

// SelectEffect makes the effect at index draw the background
func (e *Engine) SelectEffect(index int) error {
	if index < 0 || index >= len(e.effects) {
		return errors.Errorf("effect %d out of range, %d loaded", index, len(e.effects))
	}
	atomic.StoreInt32(&e.current, int32(index))
	return nil
}

// SetEffectData replaces the push constants of the effect at index
func (e *Engine) SetEffectData(index int, data PushConstants) error {
	if index < 0 || index >= len(e.effects) {
		return errors.Errorf("effect %d out of range, %d loaded", index, len(e.effects))
	}
	e.effects[index].Data = data
	return nil
}

// NextEffect cycles to the next effect
func (e *Engine) NextEffect() {
	if len(e.effects) == 0 {
		return
	}
	next := (int(atomic.LoadInt32(&e.current)) + 1) % len(e.effects)
	atomic.StoreInt32(&e.current, int32(next))
	e.log.WithField("effect", e.effects[next].Name).Info("effect selected")
}

// RequestResize recreates the swapchain at extent before the next frame
func (e *Engine) RequestResize(extent gfx.Extent2D) {
	e.mu.Lock()
	e.resize = true
	e.requested = extent
	e.mu.Unlock()
}

func (e *Engine) markResize() {
	e.mu.Lock()
	e.resize = true
	e.mu.Unlock()
}

func (e *Engine) pendingResize() (gfx.Extent2D, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requested, e.resize
}

// Stats returns the counters, safe to call from any goroutine
func (e *Engine) Stats() Stats {
	return Stats{
		Frames:  atomic.LoadUint64(&e.frames),
		Resizes: atomic.LoadUint64(&e.resizes),
		Skipped: atomic.LoadUint64(&e.skipped),
	}
}

// Frame returns the number of frames submitted so far
func (e *Engine) Frame() uint64 {
	return e.frame
}

// Session returns the swapchain session
func (e *Engine) Session() *Session {
	return e.session
}

// DrawImage returns the image effects draw into
func (e *Engine) DrawImage() gfx.AllocatedImage {
	return e.draw
}

// DrawSet returns the descriptor set the draw image is bound to
func (e *Engine) DrawSet() gfx.DescriptorSet {
	return e.drawSet
}

// Ring returns the frame slots
func (e *Engine) Ring() *frame.Ring {
	return e.ring
}

func (e *Engine) recreateSwapchain(extent gfx.Extent2D) error {
	if err := e.session.Resize(extent); err != nil {
		return err
	}
	if e.cfg.Renderer.DrawFollowsWindow && e.session.Extent() != e.draw.Extent.Extent2D() {
		// the device is idle after the session resize
		if err := e.descriptors.ClearDescriptors(); err != nil {
			return err
		}
		e.destroyDrawImage()
		if err := e.createDrawImage(e.session.Extent()); err != nil {
			return err
		}
		if err := e.bindDrawImage(); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.resize = false
	e.mu.Unlock()
	atomic.AddUint64(&e.resizes, 1)

	e.log.WithFields(log.Fields{
		"width":  e.session.Extent().Width,
		"height": e.session.Extent().Height,
	}).Info("swapchain recreated")
	return nil
}

// drawArea is the part of the draw image effects fill this frame,
// never larger than the draw image or the swapchain
func (e *Engine) drawArea(swapchain gfx.Extent2D) gfx.Extent2D {
	draw := e.draw.Extent.Extent2D()
	area := gfx.Extent2D{
		Width:  minUint32(draw.Width, swapchain.Width),
		Height: minUint32(draw.Height, swapchain.Height),
	}
	if scale := e.cfg.Renderer.RenderScale; scale < 1 {
		area.Width = maxUint32(1, uint32(float32(area.Width)*scale))
		area.Height = maxUint32(1, uint32(float32(area.Height)*scale))
	}
	return area
}

// Draw renders a single frame. A pending resize is handled first, an
// out of date swapchain skips the frame and requests one. Any error
// returned is fatal to the loop.
func (e *Engine) Draw() error {
	if extent, pending := e.pendingResize(); pending {
		if extent.Empty() {
			atomic.AddUint64(&e.skipped, 1)
			return nil
		}
		if err := e.recreateSwapchain(extent); err != nil {
			return errors.Wrap(err, "recreate swapchain")
		}
	}

	timeout := e.cfg.Renderer.FrameTimeout
	slot, err := e.ring.Wait(e.frame, timeout)
	if err != nil {
		return err
	}

	set := e.session.Set()
	index, err := e.dev.AcquireNextImage(set.Swapchain, timeout, slot.Acquire)
	if gfx.IsOutOfDate(err) {
		e.markResize()
		atomic.AddUint64(&e.skipped, 1)
		return nil
	} else if err != nil {
		return errors.Wrap(err, "acquire swapchain image")
	}

	// only now the slot is committed to this frame
	if err := slot.Reset(e.dev); err != nil {
		return err
	}

	cmd := slot.CommandBuffer
	if err := e.dev.BeginCommandBuffer(cmd); err != nil {
		return errors.Wrap(err, "begin frame")
	}
	if err := e.record(cmd, set, index); err != nil {
		return err
	}
	if err := e.dev.EndCommandBuffer(cmd); err != nil {
		return errors.Wrap(err, "end frame")
	}

	if err := e.dev.Submit(gfx.SubmitInfo{
		CommandBuffer: cmd,
		Wait:          slot.Acquire,
		WaitStage:     gfx.StageColorAttachmentOutput,
		Signal:        slot.Render,
		Fence:         slot.Fence,
	}); err != nil {
		return errors.Wrap(err, "submit frame")
	}

	if err := e.dev.Present(set.Swapchain, index, slot.Render); gfx.IsOutOfDate(err) {
		e.markResize()
	} else if err != nil {
		return errors.Wrap(err, "present frame")
	}

	e.frame++
	atomic.AddUint64(&e.frames, 1)
	return nil
}

func (e *Engine) record(cmd gfx.CommandBuffer, set gfx.SwapchainSet, index uint32) error {
	target := set.Images[index]
	e.drawExtent = e.drawArea(set.Extent)

	if err := barrier.Transition(e.dev, cmd, e.draw.Image, gfx.LayoutUndefined, gfx.LayoutGeneral); err != nil {
		return err
	}
	e.background(cmd)

	if err := barrier.Transition(e.dev, cmd, e.draw.Image, gfx.LayoutGeneral, gfx.LayoutTransferSrc); err != nil {
		return err
	}
	if err := barrier.Transition(e.dev, cmd, target, gfx.LayoutUndefined, gfx.LayoutTransferDst); err != nil {
		return err
	}
	barrier.Copy(e.dev, cmd, e.draw.Image, target, e.drawExtent, set.Extent)

	return barrier.Transition(e.dev, cmd, target, gfx.LayoutTransferDst, gfx.LayoutPresentSrc)
}

// background fills the draw image with the selected effect,
// or with a flashing blue when there is none
func (e *Engine) background(cmd gfx.CommandBuffer) {
	if len(e.effects) == 0 {
		flash := float32(math.Abs(math.Sin(float64(e.frame) / 120)))
		e.dev.ClearColorImage(cmd, e.draw.Image, gfx.LayoutGeneral, [4]float32{0, 0, flash, 1})
		return
	}

	effect := &e.effects[atomic.LoadInt32(&e.current)]
	effect.Data.Data4[0] = float32(e.time.Elapsed().Seconds())

	e.dev.BindComputePipeline(cmd, effect.Pipeline)
	e.dev.BindComputeDescriptorSet(cmd, e.effectLayout, e.drawSet)
	e.dev.PushConstants(cmd, e.effectLayout, gfx.ShaderCompute, pushConstantSize, unsafe.Pointer(&effect.Data))

	x, y, z := barrier.DispatchSize(e.drawExtent, barrier.Workgroup)
	e.dev.Dispatch(cmd, x, y, z)
}

// Destroy waits for the device to go idle and releases everything
// in reverse order of creation. Calling it again does nothing.
func (e *Engine) Destroy() {
	if e.release.Len() == 0 {
		return
	}
	if err := e.dev.WaitIdle(); err != nil {
		e.log.WithError(err).Error("wait idle before destroy")
	}
	e.release.Flush()
	e.log.WithField("frames", e.frame).Info("engine destroyed")
}

func minUint32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func maxUint32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
