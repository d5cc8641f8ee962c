// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfxtest provides an in-memory gfx.Device for tests.
// Submitted work completes instantly unless the device is told
// to hang, commands are recorded per command buffer so tests can
// inspect exactly what a frame emitted.
package gfxtest

import (
	"fmt"
	"sort"
	"time"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/devblok/vkframe/gfx"
)

// Handle is the handle type every object of the fake device has.
type Handle int

// Command is one recorded command.
type Command struct {
	Op       string
	Barrier  gfx.ImageBarrier
	Src, Dst gfx.Image
	SrcSize  gfx.Extent2D
	DstSize  gfx.Extent2D
	Layout   gfx.ImageLayout
	Color    [4]float32
	Pipeline gfx.Pipeline
	Set      gfx.DescriptorSet
	Size     uint32
	X, Y, Z  uint32
}

type object struct {
	kind      string
	destroyed bool
	owned     bool
}

type pool struct {
	maxSets    uint32
	capacity   map[gfx.DescriptorType]uint32
	used       map[gfx.DescriptorType]uint32
	sets       uint32
	generation int
}

type descSet struct {
	pool       Handle
	generation int
}

// Device is a fake gfx.Device.
type Device struct {
	// ImageCount is the number of images a new swapchain gets.
	ImageCount int

	// MaxExtent clamps swapchain extents when non-empty.
	MaxExtent gfx.Extent2D

	// Hang keeps submitted fences unsignaled.
	Hang bool

	// FailShaderModules rejects every shader module.
	FailShaderModules bool

	// AcquireErrors, PresentErrors and PipelineErrors are consumed
	// front to back, a nil entry means the call succeeds.
	AcquireErrors  []error
	PresentErrors  []error
	PipelineErrors []error

	// Log is the ordered list of device calls by name.
	Log []string

	// Misuse collects protocol violations the fake detected.
	Misuse []string

	Submissions []gfx.SubmitInfo
	Presented   []uint32
	WaitIdles   int
	FenceWaits  int

	next     Handle
	objects  map[Handle]*object
	fences   map[Handle]bool
	commands map[Handle][]Command
	state    map[Handle]string
	layouts  map[Handle][]gfx.LayoutBinding
	pools    map[Handle]*pool
	sets     map[Handle]descSet
	writes   map[Handle]gfx.ImageView
	images   map[Handle]gfx.Extent2D
	pushSize map[Handle]uint32
	acquires int
}

// New creates a fake device with three swapchain images.
func New() *Device {
	return &Device{
		ImageCount: 3,
		objects:    make(map[Handle]*object),
		fences:     make(map[Handle]bool),
		commands:   make(map[Handle][]Command),
		state:      make(map[Handle]string),
		layouts:    make(map[Handle][]gfx.LayoutBinding),
		pools:      make(map[Handle]*pool),
		sets:       make(map[Handle]descSet),
		writes:     make(map[Handle]gfx.ImageView),
		images:     make(map[Handle]gfx.Extent2D),
		pushSize:   make(map[Handle]uint32),
	}
}

func (d *Device) create(kind string, owned bool) Handle {
	d.next++
	d.objects[d.next] = &object{kind: kind, owned: owned}
	return d.next
}

func (d *Device) destroy(h interface{}, kind string) {
	d.Log = append(d.Log, "Destroy"+kind)
	handle, ok := h.(Handle)
	if !ok {
		d.misuse("destroy %s: foreign handle %v", kind, h)
		return
	}
	obj, ok := d.objects[handle]
	if !ok || obj.kind != kind {
		d.misuse("destroy %s: unknown handle %d", kind, handle)
		return
	}
	if obj.destroyed {
		d.misuse("destroy %s: %d destroyed twice", kind, handle)
		return
	}
	obj.destroyed = true
}

func (d *Device) live(h interface{}, kind string) (Handle, bool) {
	handle, ok := h.(Handle)
	if !ok {
		return 0, false
	}
	obj, ok := d.objects[handle]
	if !ok || obj.kind != kind || obj.destroyed {
		return 0, false
	}
	return handle, true
}

func (d *Device) misuse(format string, args ...interface{}) {
	d.Misuse = append(d.Misuse, fmt.Sprintf(format, args...))
}

// Destroyed reports whether the handle was destroyed.
func (d *Device) Destroyed(h interface{}) bool {
	handle, ok := h.(Handle)
	if !ok {
		return false
	}
	obj, ok := d.objects[handle]
	return ok && obj.destroyed
}

// Leaks lists every object that was created and never destroyed,
// objects owned by a parent (swapchain images, command buffers,
// descriptor sets) are not listed.
func (d *Device) Leaks() []string {
	var leaks []string
	for h, obj := range d.objects {
		if !obj.owned && !obj.destroyed {
			leaks = append(leaks, fmt.Sprintf("%s#%d", obj.kind, h))
		}
	}
	sort.Strings(leaks)
	return leaks
}

// Commands returns what was recorded into cmd since its last reset.
func (d *Device) Commands(cmd gfx.CommandBuffer) []Command {
	h, _ := cmd.(Handle)
	return d.commands[h]
}

// Signaled reports the state of a fence.
func (d *Device) Signaled(f gfx.Fence) bool {
	h, _ := f.(Handle)
	return d.fences[h]
}

// Extent returns the size of a swapchain or allocated image.
func (d *Device) Extent(img gfx.Image) gfx.Extent2D {
	h, _ := img.(Handle)
	return d.images[h]
}

// Written returns the image view last written into a descriptor set.
func (d *Device) Written(s gfx.DescriptorSet) gfx.ImageView {
	h, _ := s.(Handle)
	return d.writes[h]
}

// Valid reports whether a descriptor set is still backed by its pool.
func (d *Device) Valid(s gfx.DescriptorSet) bool {
	h, ok := s.(Handle)
	if !ok {
		return false
	}
	st, ok := d.sets[h]
	if !ok {
		return false
	}
	p, ok := d.pools[st.pool]
	if !ok || d.objects[st.pool].destroyed {
		return false
	}
	return p.generation == st.generation
}

// Count returns how many times the named call was made.
func (d *Device) Count(name string) int {
	var n int
	for _, l := range d.Log {
		if l == name {
			n++
		}
	}
	return n
}

// CreateFence implements interface
func (d *Device) CreateFence(signaled bool) (gfx.Fence, error) {
	d.Log = append(d.Log, "CreateFence")
	h := d.create("fence", false)
	d.fences[h] = signaled
	return h, nil
}

// DestroyFence implements interface
func (d *Device) DestroyFence(f gfx.Fence) {
	d.destroy(f, "fence")
}

// WaitFence implements interface
func (d *Device) WaitFence(f gfx.Fence, timeout time.Duration) error {
	d.Log = append(d.Log, "WaitFence")
	d.FenceWaits++
	h, ok := d.live(f, "fence")
	if !ok {
		return errors.Errorf("wait on dead fence %v", f)
	}
	if !d.fences[h] {
		return gfx.ErrTimeout
	}
	return nil
}

// ResetFence implements interface
func (d *Device) ResetFence(f gfx.Fence) error {
	d.Log = append(d.Log, "ResetFence")
	h, ok := d.live(f, "fence")
	if !ok {
		return errors.Errorf("reset of dead fence %v", f)
	}
	d.fences[h] = false
	return nil
}

// CreateSemaphore implements interface
func (d *Device) CreateSemaphore() (gfx.Semaphore, error) {
	d.Log = append(d.Log, "CreateSemaphore")
	return d.create("semaphore", false), nil
}

// DestroySemaphore implements interface
func (d *Device) DestroySemaphore(s gfx.Semaphore) {
	d.destroy(s, "semaphore")
}

// WaitIdle implements interface
func (d *Device) WaitIdle() error {
	d.Log = append(d.Log, "WaitIdle")
	d.WaitIdles++
	return nil
}

// CreateCommandPool implements interface
func (d *Device) CreateCommandPool() (gfx.CommandPool, error) {
	d.Log = append(d.Log, "CreateCommandPool")
	return d.create("commandpool", false), nil
}

// DestroyCommandPool implements interface
func (d *Device) DestroyCommandPool(p gfx.CommandPool) {
	d.destroy(p, "commandpool")
}

// AllocateCommandBuffer implements interface
func (d *Device) AllocateCommandBuffer(p gfx.CommandPool) (gfx.CommandBuffer, error) {
	d.Log = append(d.Log, "AllocateCommandBuffer")
	if _, ok := d.live(p, "commandpool"); !ok {
		return nil, errors.Errorf("allocate from dead pool %v", p)
	}
	h := d.create("commandbuffer", true)
	d.state[h] = "initial"
	return h, nil
}

// ResetCommandBuffer implements interface
func (d *Device) ResetCommandBuffer(cmd gfx.CommandBuffer) error {
	d.Log = append(d.Log, "ResetCommandBuffer")
	h, ok := d.live(cmd, "commandbuffer")
	if !ok {
		return errors.Errorf("reset of unknown command buffer %v", cmd)
	}
	if d.state[h] == "pending" {
		d.misuse("command buffer %d reset while pending", h)
	}
	d.state[h] = "initial"
	d.commands[h] = nil
	return nil
}

// BeginCommandBuffer implements interface
func (d *Device) BeginCommandBuffer(cmd gfx.CommandBuffer) error {
	d.Log = append(d.Log, "BeginCommandBuffer")
	h, ok := d.live(cmd, "commandbuffer")
	if !ok {
		return errors.Errorf("begin of unknown command buffer %v", cmd)
	}
	if d.state[h] != "initial" {
		d.misuse("command buffer %d begun in state %s", h, d.state[h])
	}
	d.state[h] = "recording"
	d.commands[h] = nil
	return nil
}

// EndCommandBuffer implements interface
func (d *Device) EndCommandBuffer(cmd gfx.CommandBuffer) error {
	d.Log = append(d.Log, "EndCommandBuffer")
	h, ok := d.live(cmd, "commandbuffer")
	if !ok {
		return errors.Errorf("end of unknown command buffer %v", cmd)
	}
	if d.state[h] != "recording" {
		d.misuse("command buffer %d ended in state %s", h, d.state[h])
	}
	d.state[h] = "executable"
	return nil
}

// Submit implements interface
func (d *Device) Submit(info gfx.SubmitInfo) error {
	d.Log = append(d.Log, "Submit")
	h, ok := d.live(info.CommandBuffer, "commandbuffer")
	if !ok {
		return errors.Errorf("submit of unknown command buffer %v", info.CommandBuffer)
	}
	if d.state[h] != "executable" {
		d.misuse("command buffer %d submitted in state %s", h, d.state[h])
	}
	d.Submissions = append(d.Submissions, info)
	if d.Hang {
		d.state[h] = "pending"
		return nil
	}
	// work completes at once, the buffer goes back to executable
	if f, ok := d.live(info.Fence, "fence"); ok {
		d.fences[f] = true
	}
	return nil
}

func (d *Device) record(cmd gfx.CommandBuffer, c Command) {
	h, ok := d.live(cmd, "commandbuffer")
	if !ok || d.state[h] != "recording" {
		d.misuse("%s recorded outside recording state", c.Op)
		return
	}
	d.commands[h] = append(d.commands[h], c)
}

// PipelineBarrier implements interface
func (d *Device) PipelineBarrier(cmd gfx.CommandBuffer, barrier gfx.ImageBarrier) {
	d.record(cmd, Command{Op: "barrier", Barrier: barrier})
}

// BlitImage implements interface
func (d *Device) BlitImage(cmd gfx.CommandBuffer, src, dst gfx.Image, srcSize, dstSize gfx.Extent2D) {
	d.record(cmd, Command{Op: "blit", Src: src, Dst: dst, SrcSize: srcSize, DstSize: dstSize})
}

// ClearColorImage implements interface
func (d *Device) ClearColorImage(cmd gfx.CommandBuffer, image gfx.Image, layout gfx.ImageLayout, color [4]float32) {
	d.record(cmd, Command{Op: "clear", Dst: image, Layout: layout, Color: color})
}

// BindComputePipeline implements interface
func (d *Device) BindComputePipeline(cmd gfx.CommandBuffer, pipeline gfx.Pipeline) {
	d.record(cmd, Command{Op: "bind-pipeline", Pipeline: pipeline})
}

// BindComputeDescriptorSet implements interface
func (d *Device) BindComputeDescriptorSet(cmd gfx.CommandBuffer, layout gfx.PipelineLayout, s gfx.DescriptorSet) {
	if !d.Valid(s) {
		d.misuse("bound invalid descriptor set %v", s)
	}
	d.record(cmd, Command{Op: "bind-set", Set: s})
}

// PushConstants implements interface
func (d *Device) PushConstants(cmd gfx.CommandBuffer, layout gfx.PipelineLayout, stages gfx.ShaderStage, size uint32, data unsafe.Pointer) {
	h, _ := layout.(Handle)
	if size > d.pushSize[h] {
		d.misuse("push of %d bytes exceeds layout range %d", size, d.pushSize[h])
	}
	d.record(cmd, Command{Op: "push", Size: size})
}

// Dispatch implements interface
func (d *Device) Dispatch(cmd gfx.CommandBuffer, x, y, z uint32) {
	d.record(cmd, Command{Op: "dispatch", X: x, Y: y, Z: z})
}

// CreateSwapchain implements interface
func (d *Device) CreateSwapchain(extent gfx.Extent2D) (gfx.SwapchainSet, error) {
	d.Log = append(d.Log, "CreateSwapchain")
	if !d.MaxExtent.Empty() {
		if extent.Width > d.MaxExtent.Width {
			extent.Width = d.MaxExtent.Width
		}
		if extent.Height > d.MaxExtent.Height {
			extent.Height = d.MaxExtent.Height
		}
	}
	set := gfx.SwapchainSet{
		Swapchain: d.create("swapchain", false),
		Format:    gfx.FormatB8g8r8a8Unorm,
		Extent:    extent,
	}
	for idx := 0; idx < d.ImageCount; idx++ {
		img := d.create("swapchainimage", true)
		d.images[img] = extent
		set.Images = append(set.Images, img)
		set.Views = append(set.Views, d.create("imageview", false))
	}
	d.acquires = 0
	return set, nil
}

// DestroySwapchain implements interface
func (d *Device) DestroySwapchain(set gfx.SwapchainSet) {
	for _, view := range set.Views {
		d.destroy(view, "imageview")
	}
	for _, img := range set.Images {
		if h, ok := img.(Handle); ok {
			d.objects[h].destroyed = true
		}
	}
	d.destroy(set.Swapchain, "swapchain")
}

// AcquireNextImage implements interface
func (d *Device) AcquireNextImage(sc gfx.Swapchain, timeout time.Duration, signal gfx.Semaphore) (uint32, error) {
	d.Log = append(d.Log, "AcquireNextImage")
	if _, ok := d.live(sc, "swapchain"); !ok {
		return 0, errors.Errorf("acquire from dead swapchain %v", sc)
	}
	if len(d.AcquireErrors) > 0 {
		err := d.AcquireErrors[0]
		d.AcquireErrors = d.AcquireErrors[1:]
		if err != nil {
			return 0, err
		}
	}
	idx := uint32(d.acquires % d.ImageCount)
	d.acquires++
	return idx, nil
}

// Present implements interface
func (d *Device) Present(sc gfx.Swapchain, index uint32, wait gfx.Semaphore) error {
	d.Log = append(d.Log, "Present")
	if _, ok := d.live(sc, "swapchain"); !ok {
		return errors.Errorf("present to dead swapchain %v", sc)
	}
	if len(d.PresentErrors) > 0 {
		err := d.PresentErrors[0]
		d.PresentErrors = d.PresentErrors[1:]
		if err != nil {
			return err
		}
	}
	d.Presented = append(d.Presented, index)
	return nil
}

// CreateImage implements interface
func (d *Device) CreateImage(info gfx.ImageInfo) (gfx.AllocatedImage, error) {
	d.Log = append(d.Log, "CreateImage")
	img := d.create("image", false)
	d.images[img] = info.Extent.Extent2D()
	return gfx.AllocatedImage{
		Image:      img,
		View:       d.create("imageview", false),
		Format:     info.Format,
		Extent:     info.Extent,
		Allocation: info,
	}, nil
}

// DestroyImage implements interface
func (d *Device) DestroyImage(img gfx.AllocatedImage) {
	d.destroy(img.View, "imageview")
	d.destroy(img.Image, "image")
}

// CreateDescriptorSetLayout implements interface
func (d *Device) CreateDescriptorSetLayout(bindings []gfx.LayoutBinding, stages gfx.ShaderStage) (gfx.DescriptorSetLayout, error) {
	d.Log = append(d.Log, "CreateDescriptorSetLayout")
	if len(bindings) == 0 {
		return nil, errors.New("layout without bindings")
	}
	h := d.create("descriptorsetlayout", false)
	d.layouts[h] = append([]gfx.LayoutBinding(nil), bindings...)
	return h, nil
}

// DestroyDescriptorSetLayout implements interface
func (d *Device) DestroyDescriptorSetLayout(l gfx.DescriptorSetLayout) {
	d.destroy(l, "descriptorsetlayout")
}

// Bindings returns the bindings a layout was created with.
func (d *Device) Bindings(l gfx.DescriptorSetLayout) []gfx.LayoutBinding {
	h, _ := l.(Handle)
	return d.layouts[h]
}

// CreateDescriptorPool implements interface
func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []gfx.PoolSize) (gfx.DescriptorPool, error) {
	d.Log = append(d.Log, "CreateDescriptorPool")
	p := &pool{
		maxSets:  maxSets,
		capacity: make(map[gfx.DescriptorType]uint32),
		used:     make(map[gfx.DescriptorType]uint32),
	}
	for _, size := range sizes {
		p.capacity[size.Type] += size.Count
	}
	h := d.create("descriptorpool", false)
	d.pools[h] = p
	return h, nil
}

// ResetDescriptorPool implements interface
func (d *Device) ResetDescriptorPool(dp gfx.DescriptorPool) error {
	d.Log = append(d.Log, "ResetDescriptorPool")
	h, ok := d.live(dp, "descriptorpool")
	if !ok {
		return errors.Errorf("reset of dead pool %v", dp)
	}
	p := d.pools[h]
	p.sets = 0
	p.used = make(map[gfx.DescriptorType]uint32)
	p.generation++
	return nil
}

// DestroyDescriptorPool implements interface
func (d *Device) DestroyDescriptorPool(dp gfx.DescriptorPool) {
	d.destroy(dp, "descriptorpool")
}

// AllocateDescriptorSet implements interface
func (d *Device) AllocateDescriptorSet(dp gfx.DescriptorPool, l gfx.DescriptorSetLayout) (gfx.DescriptorSet, error) {
	d.Log = append(d.Log, "AllocateDescriptorSet")
	ph, ok := d.live(dp, "descriptorpool")
	if !ok {
		return nil, errors.Errorf("allocate from dead pool %v", dp)
	}
	lh, ok := d.live(l, "descriptorsetlayout")
	if !ok {
		return nil, errors.Errorf("allocate with dead layout %v", l)
	}
	p := d.pools[ph]
	if p.sets >= p.maxSets {
		return nil, gfx.ErrPoolExhausted
	}
	need := make(map[gfx.DescriptorType]uint32)
	for _, b := range d.layouts[lh] {
		count := b.Count
		if count == 0 {
			count = 1
		}
		need[b.Type] += count
	}
	for typ, count := range need {
		if p.used[typ]+count > p.capacity[typ] {
			return nil, gfx.ErrPoolExhausted
		}
	}
	for typ, count := range need {
		p.used[typ] += count
	}
	p.sets++
	h := d.create("descriptorset", true)
	d.sets[h] = descSet{pool: ph, generation: p.generation}
	return h, nil
}

// WriteStorageImage implements interface
func (d *Device) WriteStorageImage(s gfx.DescriptorSet, binding uint32, view gfx.ImageView) {
	d.Log = append(d.Log, "WriteStorageImage")
	if !d.Valid(s) {
		d.misuse("write into invalid descriptor set %v", s)
		return
	}
	h, _ := s.(Handle)
	d.writes[h] = view
}

// CreateShaderModule implements interface
func (d *Device) CreateShaderModule(code []uint32) (gfx.ShaderModule, error) {
	d.Log = append(d.Log, "CreateShaderModule")
	if d.FailShaderModules || len(code) == 0 {
		return nil, errors.New("shader module rejected")
	}
	return d.create("shadermodule", false), nil
}

// DestroyShaderModule implements interface
func (d *Device) DestroyShaderModule(m gfx.ShaderModule) {
	d.destroy(m, "shadermodule")
}

// CreatePipelineLayout implements interface
func (d *Device) CreatePipelineLayout(layouts []gfx.DescriptorSetLayout, pushConstantSize uint32) (gfx.PipelineLayout, error) {
	d.Log = append(d.Log, "CreatePipelineLayout")
	for _, l := range layouts {
		if _, ok := d.live(l, "descriptorsetlayout"); !ok {
			return nil, errors.Errorf("pipeline layout with dead set layout %v", l)
		}
	}
	h := d.create("pipelinelayout", false)
	d.pushSize[h] = pushConstantSize
	return h, nil
}

// DestroyPipelineLayout implements interface
func (d *Device) DestroyPipelineLayout(l gfx.PipelineLayout) {
	d.destroy(l, "pipelinelayout")
}

// CreateComputePipeline implements interface
func (d *Device) CreateComputePipeline(layout gfx.PipelineLayout, module gfx.ShaderModule, entry string) (gfx.Pipeline, error) {
	d.Log = append(d.Log, "CreateComputePipeline")
	if _, ok := d.live(module, "shadermodule"); !ok {
		return nil, errors.Errorf("pipeline with dead module %v", module)
	}
	if _, ok := d.live(layout, "pipelinelayout"); !ok {
		return nil, errors.Errorf("pipeline with dead layout %v", layout)
	}
	if len(d.PipelineErrors) > 0 {
		err := d.PipelineErrors[0]
		d.PipelineErrors = d.PipelineErrors[1:]
		if err != nil {
			return nil, err
		}
	}
	return d.create("pipeline", false), nil
}

// DestroyPipeline implements interface
func (d *Device) DestroyPipeline(p gfx.Pipeline) {
	d.destroy(p, "pipeline")
}

var _ gfx.Device = (*Device)(nil)
