// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import (
	"time"

	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/vkframe/gfx"
)

// drawFormat is the format the compute shaders write, the device
// must support it as a storage image.
const drawFormat = vk.FormatR16g16b16a16Sfloat

// Configuration is used to configure the device
type Configuration struct {
	// SwapchainSize is the minimum number of swapchain images requested
	SwapchainSize uint32
}

// New picks the first physical device able to run the frame engine
// on the instance surface and creates the logical device on it.
func New(instance *Instance, cfg Configuration, logger log.FieldLogger) (*Vulkan, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	logger = logger.WithField("component", "device")

	surface := instance.Surface()
	if surface == vk.NullSurface {
		return nil, errors.New("instance has no surface")
	}

	var (
		physicalDevice vk.PhysicalDevice
		queueFamily    uint32
		reasons        []string
	)
	for idx, pd := range instance.AvailableDevices() {
		family, err := checkSuitable(pd, surface, drawFormat)
		if err != nil {
			logger.WithField("index", idx).Debugf("physical device rejected: %s", err)
			reasons = append(reasons, err.Error())
			continue
		}
		physicalDevice = pd
		queueFamily = family
		break
	}
	if physicalDevice == nil {
		return nil, errors.Errorf("no suitable physical device: %v", reasons)
	}

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1},
	}}

	requiredExtensions := safeStrings([]string{vk.KhrSwapchainExtensionName})
	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(requiredExtensions)),
		PpEnabledExtensionNames: requiredExtensions,
	}

	var logicalDevice vk.Device
	if err := vk.Error(vk.CreateDevice(physicalDevice, &dci, nil, &logicalDevice)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateDevice()")
	}

	var queue vk.Queue
	vk.GetDeviceQueue(logicalDevice, queueFamily, 0, &queue)

	allocator, err := NewMemoryAllocator(logicalDevice, physicalDevice)
	if err != nil {
		vk.DestroyDevice(logicalDevice, nil)
		return nil, err
	}

	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(physicalDevice, &properties)
	properties.Deref()
	logger.WithFields(log.Fields{
		"name":   vk.ToString(properties.DeviceName[:]),
		"family": queueFamily,
	}).Info("device created")

	return &Vulkan{
		configuration:  cfg,
		log:            logger,
		surface:        surface,
		physicalDevice: physicalDevice,
		logicalDevice:  logicalDevice,
		queue:          queue,
		queueFamily:    queueFamily,
		allocator:      allocator,
	}, nil
}

// checkSuitable returns the queue family that supports graphics,
// compute and presentation to surface, or why the device can not be used.
func checkSuitable(pd vk.PhysicalDevice, surface vk.Surface, format vk.Format) (uint32, error) {
	extensions, err := deviceExtensions(pd)
	if err != nil {
		return 0, err
	}
	if !contains(extensions, vk.KhrSwapchainExtensionName) {
		return 0, errors.New("swapchain extension not supported")
	}

	var formatProperties vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(pd, format, &formatProperties)
	formatProperties.Deref()
	storage := vk.FormatFeatureFlags(vk.FormatFeatureStorageImageBit)
	if formatProperties.OptimalTilingFeatures&storage != storage {
		return 0, errors.New("draw format not usable as storage image")
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueFamilyCount, queueFamilies)

	var present []bool
	for idx := uint32(0); idx < queueFamilyCount; idx++ {
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(pd, idx, surface, &supportsPresent)
		present = append(present, supportsPresent.B())
	}

	family, ok := pickQueueFamily(queueFamilies, present)
	if !ok {
		return 0, errors.New("no queue family with graphics, compute and present support")
	}
	return family, nil
}

// pickQueueFamily finds a single family that can do everything the frame loop
// submits. Separate present queues are not supported.
func pickQueueFamily(families []vk.QueueFamilyProperties, present []bool) (uint32, bool) {
	required := vk.QueueFlags(vk.QueueGraphicsBit | vk.QueueComputeBit)
	for idx := range families {
		families[idx].Deref()
		if families[idx].QueueCount == 0 || families[idx].QueueFlags&required != required {
			continue
		}
		if idx < len(present) && present[idx] {
			return uint32(idx), true
		}
	}
	return 0, false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Vulkan is a gfx.Device backed by a Vulkan logical device
// with a single graphics, compute and present queue.
type Vulkan struct {
	configuration Configuration
	log           log.FieldLogger

	surface        vk.Surface
	physicalDevice vk.PhysicalDevice
	logicalDevice  vk.Device
	queue          vk.Queue
	queueFamily    uint32

	allocator *MemoryAllocator
}

// Destroy destroys the logical device. Everything created
// from it must be destroyed first.
func (v *Vulkan) Destroy() {
	if v == nil || v.logicalDevice == nil {
		return
	}
	vk.DeviceWaitIdle(v.logicalDevice)
	vk.DestroyDevice(v.logicalDevice, nil)
	v.logicalDevice = nil
}

// CreateFence implements interface
func (v *Vulkan) CreateFence(signaled bool) (gfx.Fence, error) {
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fci.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var fence vk.Fence
	if err := vk.Error(vk.CreateFence(v.logicalDevice, &fci, nil, &fence)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateFence()")
	}
	return fence, nil
}

// DestroyFence implements interface
func (v *Vulkan) DestroyFence(f gfx.Fence) {
	vk.DestroyFence(v.logicalDevice, asFence(f), nil)
}

// WaitFence implements interface
func (v *Vulkan) WaitFence(f gfx.Fence, timeout time.Duration) error {
	ret := vk.WaitForFences(v.logicalDevice, 1, []vk.Fence{asFence(f)}, vk.True, timeoutNanos(timeout))
	return result(ret, "vk.WaitForFences()")
}

// ResetFence implements interface
func (v *Vulkan) ResetFence(f gfx.Fence) error {
	return result(vk.ResetFences(v.logicalDevice, 1, []vk.Fence{asFence(f)}), "vk.ResetFences()")
}

// CreateSemaphore implements interface
func (v *Vulkan) CreateSemaphore() (gfx.Semaphore, error) {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	var semaphore vk.Semaphore
	if err := vk.Error(vk.CreateSemaphore(v.logicalDevice, &sci, nil, &semaphore)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateSemaphore()")
	}
	return semaphore, nil
}

// DestroySemaphore implements interface
func (v *Vulkan) DestroySemaphore(s gfx.Semaphore) {
	vk.DestroySemaphore(v.logicalDevice, asSemaphore(s), nil)
}

// WaitIdle implements interface
func (v *Vulkan) WaitIdle() error {
	return result(vk.DeviceWaitIdle(v.logicalDevice), "vk.DeviceWaitIdle()")
}

// CreateCommandPool implements interface
func (v *Vulkan) CreateCommandPool() (gfx.CommandPool, error) {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: v.queueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}

	var commandPool vk.CommandPool
	if err := vk.Error(vk.CreateCommandPool(v.logicalDevice, &cpci, nil, &commandPool)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateCommandPool()")
	}
	return commandPool, nil
}

// DestroyCommandPool implements interface
func (v *Vulkan) DestroyCommandPool(p gfx.CommandPool) {
	vk.DestroyCommandPool(v.logicalDevice, asCommandPool(p), nil)
}

// AllocateCommandBuffer implements interface
func (v *Vulkan) AllocateCommandBuffer(p gfx.CommandPool) (gfx.CommandBuffer, error) {
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        asCommandPool(p),
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}

	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := vk.Error(vk.AllocateCommandBuffers(v.logicalDevice, &cbai, commandBuffers)); err != nil {
		return nil, errors.Wrap(err, "vk.AllocateCommandBuffers()")
	}
	return commandBuffers[0], nil
}

// ResetCommandBuffer implements interface
func (v *Vulkan) ResetCommandBuffer(cmd gfx.CommandBuffer) error {
	return result(vk.ResetCommandBuffer(asCommandBuffer(cmd), 0), "vk.ResetCommandBuffer()")
}

// BeginCommandBuffer implements interface
func (v *Vulkan) BeginCommandBuffer(cmd gfx.CommandBuffer) error {
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	return result(vk.BeginCommandBuffer(asCommandBuffer(cmd), &cbbi), "vk.BeginCommandBuffer()")
}

// EndCommandBuffer implements interface
func (v *Vulkan) EndCommandBuffer(cmd gfx.CommandBuffer) error {
	return result(vk.EndCommandBuffer(asCommandBuffer(cmd)), "vk.EndCommandBuffer()")
}

// Submit implements interface
func (v *Vulkan) Submit(info gfx.SubmitInfo) error {
	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{asCommandBuffer(info.CommandBuffer)},
	}
	if info.Wait != nil {
		submit.WaitSemaphoreCount = 1
		submit.PWaitSemaphores = []vk.Semaphore{asSemaphore(info.Wait)}
		submit.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(info.WaitStage)}
	}
	if info.Signal != nil {
		submit.SignalSemaphoreCount = 1
		submit.PSignalSemaphores = []vk.Semaphore{asSemaphore(info.Signal)}
	}

	ret := vk.QueueSubmit(v.queue, 1, []vk.SubmitInfo{submit}, asFence(info.Fence))
	return result(ret, "vk.QueueSubmit()")
}

var _ gfx.Device = (*Vulkan)(nil)
