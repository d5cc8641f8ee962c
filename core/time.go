// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"time"

	"github.com/loov/hrtime"
)

// NewTime creates a new time service
func NewTime(cfg TimeConfiguration) *Time {
	t := &Time{
		fps:                cfg.FramesPerSecond,
		minimizedPollDelay: cfg.MinimizedPollDelay,
		start:              hrtime.Now(),
	}
	if cfg.FramesPerSecond > 0 {
		t.fpsTicker = time.NewTicker(time.Second / time.Duration(cfg.FramesPerSecond))
	}
	if cfg.StatsInterval > 0 {
		t.statsTicker = time.NewTicker(cfg.StatsInterval)
	}
	return t
}

// Time contains all the time services and tickers
type Time struct {
	start time.Duration

	fps       int
	fpsTicker *time.Ticker

	statsTicker *time.Ticker

	minimizedPollDelay time.Duration
}

// Fps gets the set frames per second
func (t *Time) Fps() int {
	return t.fps
}

// FpsTicker gets the fps ticker, nil when frames are not capped
func (t *Time) FpsTicker() *time.Ticker {
	return t.fpsTicker
}

// StatsTicker gets the ticker for frame statistics, nil when disabled
func (t *Time) StatsTicker() *time.Ticker {
	return t.statsTicker
}

// MinimizedPollDelay is the pause between polls while minimized
func (t *Time) MinimizedPollDelay() time.Duration {
	return t.minimizedPollDelay
}

// Elapsed returns the time since the service was created,
// read from the high resolution clock
func (t *Time) Elapsed() time.Duration {
	return hrtime.Since(t.start)
}

// Stop stops the tickers
func (t *Time) Stop() {
	if t.fpsTicker != nil {
		t.fpsTicker.Stop()
	}
	if t.statsTicker != nil {
		t.statsTicker.Stop()
	}
}
