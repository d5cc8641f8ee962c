// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/vkframe/gfx"
)

// Session owns the swapchain image set of a device. The set is
// never mutated, a resize destroys it and builds a new one.
type Session struct {
	dev gfx.Device
	log log.FieldLogger
	set gfx.SwapchainSet
}

// NewSession creates the swapchain at the requested extent
func NewSession(dev gfx.Device, extent gfx.Extent2D, logger log.FieldLogger) (*Session, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := &Session{
		dev: dev,
		log: logger.WithField("component", "session"),
	}
	if err := s.create(extent); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) create(extent gfx.Extent2D) error {
	if extent.Empty() {
		return errors.Errorf("swapchain extent %dx%d is empty", extent.Width, extent.Height)
	}
	set, err := s.dev.CreateSwapchain(extent)
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}
	s.set = set
	s.log.WithFields(log.Fields{
		"width":  set.Extent.Width,
		"height": set.Extent.Height,
		"images": len(set.Images),
	}).Debug("swapchain created")
	return nil
}

// Set returns the current swapchain image set
func (s *Session) Set() gfx.SwapchainSet {
	return s.set
}

// Extent returns the extent of the current swapchain
func (s *Session) Extent() gfx.Extent2D {
	return s.set.Extent
}

// Resize waits for the device to go idle, destroys every image view
// and the swapchain, and creates them again at extent
func (s *Session) Resize(extent gfx.Extent2D) error {
	if err := s.dev.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait idle before resize")
	}
	s.Destroy()
	return s.create(extent)
}

// Destroy destroys the swapchain image set. Calling it again does nothing.
func (s *Session) Destroy() {
	if s.set.Swapchain == nil {
		return
	}
	s.dev.DestroySwapchain(s.set)
	s.set = gfx.SwapchainSet{}
}
