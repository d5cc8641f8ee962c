// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"github.com/pkg/errors"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/devblok/vkframe/core"
	"github.com/devblok/vkframe/gfx"
)

// window adapts an SDL window to the frame loop
type window struct {
	*sdl.Window
}

func newWindow(cfg core.WindowConfiguration) (*window, error) {
	w, err := sdl.CreateWindow(cfg.Title,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Width),
		int32(cfg.Height),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return nil, errors.Wrap(err, "sdl.CreateWindow()")
	}
	return &window{Window: w}, nil
}

// PollEvents drains the SDL queue. Escape quits, space cycles effects.
func (w *window) PollEvents() []core.Event {
	var events []core.Event
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch et := event.(type) {
		case *sdl.QuitEvent:
			events = append(events, core.QuitEvent)
		case *sdl.KeyboardEvent:
			if et.Type != sdl.KEYDOWN {
				continue
			}
			switch et.Keysym.Sym {
			case sdl.K_ESCAPE:
				events = append(events, core.QuitEvent)
			case sdl.K_SPACE:
				events = append(events, core.NextEffectEvent)
			}
		case *sdl.WindowEvent:
			switch et.Event {
			case sdl.WINDOWEVENT_MINIMIZED:
				events = append(events, core.MinimizedEvent)
			case sdl.WINDOWEVENT_RESTORED:
				events = append(events, core.RestoredEvent)
			case sdl.WINDOWEVENT_SIZE_CHANGED:
				events = append(events, core.ResizedEvent)
			}
		}
	}
	return events
}

// Extent returns the drawable size in pixels
func (w *window) Extent() gfx.Extent2D {
	width, height := w.VulkanGetDrawableSize()
	return gfx.Extent2D{Width: uint32(width), Height: uint32(height)}
}
