// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import "github.com/devblok/vkframe/gfx"

// Event is something the window system reports to the loop
type Event int

// Events the loop reacts to
const (
	QuitEvent Event = iota
	MinimizedEvent
	RestoredEvent
	ResizedEvent
	NextEffectEvent
)

func (e Event) String() string {
	switch e {
	case QuitEvent:
		return "quit"
	case MinimizedEvent:
		return "minimized"
	case RestoredEvent:
		return "restored"
	case ResizedEvent:
		return "resized"
	case NextEffectEvent:
		return "next effect"
	}
	return "unknown"
}

// Window is the window system collaborator of the frame loop
type Window interface {
	// PollEvents returns the events that happened since the last poll
	// without blocking
	PollEvents() []Event

	// Extent returns the drawable size in pixels
	Extent() gfx.Extent2D
}
