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

// CreateSwapchain implements interface
func (v *Vulkan) CreateSwapchain(extent gfx.Extent2D) (gfx.SwapchainSet, error) {
	var surfaceCapabilities vk.SurfaceCapabilities
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(v.physicalDevice, v.surface, &surfaceCapabilities)); err != nil {
		return gfx.SwapchainSet{}, errors.Wrap(err, "vk.GetPhysicalDeviceSurfaceCapabilities()")
	}
	surfaceCapabilities.Deref()
	surfaceCapabilities.CurrentExtent.Deref()
	surfaceCapabilities.MinImageExtent.Deref()
	surfaceCapabilities.MaxImageExtent.Deref()

	extent = chooseExtent(extent,
		surfaceCapabilities.CurrentExtent,
		surfaceCapabilities.MinImageExtent,
		surfaceCapabilities.MaxImageExtent)
	if extent.Empty() {
		return gfx.SwapchainSet{}, errors.New("surface has no area")
	}

	surfaceFormat, err := v.surfaceFormat()
	if err != nil {
		return gfx.SwapchainSet{}, err
	}

	imageCount := v.configuration.SwapchainSize
	if imageCount < surfaceCapabilities.MinImageCount {
		imageCount = surfaceCapabilities.MinImageCount
	}
	if max := surfaceCapabilities.MaxImageCount; max != 0 && imageCount > max {
		imageCount = max
	}

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	compositeAlphaFlags := []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	}
	for _, flag := range compositeAlphaFlags {
		if surfaceCapabilities.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	scci := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         v.surface,
		MinImageCount:   imageCount,
		ImageFormat:     surfaceFormat.Format,
		ImageColorSpace: surfaceFormat.ColorSpace,
		ImageExtent: vk.Extent2D{
			Width:  extent.Width,
			Height: extent.Height,
		},
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageTransferDstBit | vk.ImageUsageColorAttachmentBit),
		PreTransform:     surfaceCapabilities.CurrentTransform,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
	}

	var swapchain vk.Swapchain
	if err := vk.Error(vk.CreateSwapchain(v.logicalDevice, &scci, nil, &swapchain)); err != nil {
		return gfx.SwapchainSet{}, errors.Wrap(err, "vk.CreateSwapchain()")
	}

	var numImages uint32
	if err := vk.Error(vk.GetSwapchainImages(v.logicalDevice, swapchain, &numImages, nil)); err != nil {
		vk.DestroySwapchain(v.logicalDevice, swapchain, nil)
		return gfx.SwapchainSet{}, errors.Wrap(err, "vk.GetSwapchainImages(num)")
	}
	images := make([]vk.Image, numImages)
	if err := vk.Error(vk.GetSwapchainImages(v.logicalDevice, swapchain, &numImages, images)); err != nil {
		vk.DestroySwapchain(v.logicalDevice, swapchain, nil)
		return gfx.SwapchainSet{}, errors.Wrap(err, "vk.GetSwapchainImages(images)")
	}

	set := gfx.SwapchainSet{
		Swapchain: swapchain,
		Format:    gfx.Format(surfaceFormat.Format),
		Extent:    extent,
	}
	for idx, image := range images {
		view, err := v.createImageView(image, surfaceFormat.Format)
		if err != nil {
			v.DestroySwapchain(set)
			return gfx.SwapchainSet{}, errors.Wrapf(err, "swapchain image %d", idx)
		}
		set.Images = append(set.Images, image)
		set.Views = append(set.Views, view)
	}

	v.log.WithFields(log.Fields{
		"width":  extent.Width,
		"height": extent.Height,
		"images": len(images),
	}).Debug("swapchain created")
	return set, nil
}

// chooseExtent picks the swapchain size. Surfaces that report a current
// extent dictate it, others take the requested one within their limits.
func chooseExtent(requested gfx.Extent2D, current, min, max vk.Extent2D) gfx.Extent2D {
	if current.Width != vk.MaxUint32 {
		return gfx.Extent2D{Width: current.Width, Height: current.Height}
	}
	return gfx.Extent2D{
		Width:  clamp(requested.Width, min.Width, max.Width),
		Height: clamp(requested.Height, min.Height, max.Height),
	}
}

func clamp(value, min, max uint32) uint32 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func (v *Vulkan) surfaceFormat() (vk.SurfaceFormat, error) {
	var surfaceFormatCount uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(v.physicalDevice, v.surface, &surfaceFormatCount, nil)); err != nil {
		return vk.SurfaceFormat{}, errors.Wrap(err, "vk.GetPhysicalDeviceSurfaceFormats()")
	}
	surfaceFormats := make([]vk.SurfaceFormat, surfaceFormatCount)
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(v.physicalDevice, v.surface, &surfaceFormatCount, surfaceFormats)); err != nil {
		return vk.SurfaceFormat{}, errors.Wrap(err, "vk.GetPhysicalDeviceSurfaceFormats()")
	}
	return chooseSurfaceFormat(surfaceFormats)
}

// chooseSurfaceFormat prefers 8 bit BGRA with the sRGB color space
// and settles for the first format otherwise.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) (vk.SurfaceFormat, error) {
	if len(formats) == 0 {
		return vk.SurfaceFormat{}, errors.New("surface reports no formats")
	}
	for idx := range formats {
		formats[idx].Deref()
	}
	if len(formats) == 1 && formats[0].Format == vk.FormatUndefined {
		return vk.SurfaceFormat{
			Format:     vk.FormatB8g8r8a8Unorm,
			ColorSpace: vk.ColorSpaceSrgbNonlinear,
		}, nil
	}
	for _, format := range formats {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format, nil
		}
	}
	return formats[0], nil
}

func (v *Vulkan) createImageView(image vk.Image, format vk.Format) (vk.ImageView, error) {
	ivci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: colorRange(),
	}

	var view vk.ImageView
	if err := vk.Error(vk.CreateImageView(v.logicalDevice, &ivci, nil, &view)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateImageView()")
	}
	return view, nil
}

func colorRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
		BaseMipLevel:   0,
		LevelCount:     1,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
}

// DestroySwapchain implements interface
func (v *Vulkan) DestroySwapchain(set gfx.SwapchainSet) {
	for _, view := range set.Views {
		vk.DestroyImageView(v.logicalDevice, asImageView(view), nil)
	}
	if sc := asSwapchain(set.Swapchain); sc != nil {
		vk.DestroySwapchain(v.logicalDevice, sc, nil)
	}
}

// AcquireNextImage implements interface
func (v *Vulkan) AcquireNextImage(sc gfx.Swapchain, timeout time.Duration, signal gfx.Semaphore) (uint32, error) {
	var index uint32
	ret := vk.AcquireNextImage(v.logicalDevice, asSwapchain(sc), timeoutNanos(timeout), asSemaphore(signal), nil, &index)
	if ret == vk.Suboptimal {
		// the image is acquired and the semaphore will signal,
		// the frame has to go through, present reports it again
		return index, nil
	}
	if err := result(ret, "vk.AcquireNextImage()"); err != nil {
		return 0, err
	}
	return index, nil
}

// Present implements interface
func (v *Vulkan) Present(sc gfx.Swapchain, index uint32, wait gfx.Semaphore) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{asSemaphore(wait)},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{asSwapchain(sc)},
		PImageIndices:      []uint32{index},
	}

	ret := vk.QueuePresent(v.queue, &presentInfo)
	if ret == vk.Suboptimal {
		return errors.Wrap(gfx.ErrOutOfDate, "vk.QueuePresent(): suboptimal")
	}
	return result(ret, "vk.QueuePresent()")
}
