// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "errors"

// package errors
var (
	// ErrTimeout means a bounded wait on the GPU ran out,
	// the GPU is considered hung.
	ErrTimeout = errors.New("gpu wait timed out")

	// ErrOutOfDate means the swapchain no longer matches the
	// surface and has to be recreated.
	ErrOutOfDate = errors.New("swapchain out of date")

	// ErrPoolExhausted means a descriptor pool was sized too small.
	ErrPoolExhausted = errors.New("descriptor pool exhausted")

	// ErrUnsupportedTransition means no barrier is defined
	// for the requested layout change.
	ErrUnsupportedTransition = errors.New("unsupported layout transition")
)

// IsOutOfDate reports whether err is the recoverable swapchain condition.
func IsOutOfDate(err error) bool {
	return errors.Is(err, ErrOutOfDate)
}

// IsFatal reports whether err must terminate the frame loop.
// Everything except the out of date condition is fatal.
func IsFatal(err error) bool {
	return err != nil && !IsOutOfDate(err)
}
