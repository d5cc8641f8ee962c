// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Run draws frames until the window quits or ctx is done. While the
// window is minimized nothing is drawn and events are polled every
// MinimizedPollDelay. The first fatal draw error ends the loop.
func (e *Engine) Run(ctx context.Context, window Window) error {
	var (
		minimized bool
		last      Stats
		lastTime  = time.Now()
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		for _, event := range window.PollEvents() {
			switch event {
			case QuitEvent:
				e.log.Debug("quit requested")
				return nil
			case MinimizedEvent:
				minimized = true
			case RestoredEvent:
				minimized = false
				e.RequestResize(window.Extent())
			case ResizedEvent:
				e.RequestResize(window.Extent())
			case NextEffectEvent:
				e.NextEffect()
			}
		}

		if minimized {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(e.time.MinimizedPollDelay()):
			}
			continue
		}

		if err := e.Draw(); err != nil {
			e.log.WithError(err).Error("frame loop stopped")
			return err
		}

		if ticker := e.time.StatsTicker(); ticker != nil {
			select {
			case now := <-ticker.C:
				stats := e.Stats()
				e.log.WithFields(log.Fields{
					"fps":     float64(stats.Frames-last.Frames) / now.Sub(lastTime).Seconds(),
					"frame":   stats.Frames,
					"resizes": stats.Resizes,
					"skipped": stats.Skipped,
				}).Info("frame stats")
				last, lastTime = stats, now
			default:
			}
		}

		if ticker := e.time.FpsTicker(); ticker != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	}
}
