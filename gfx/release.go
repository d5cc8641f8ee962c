// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// ReleaseQueue records teardown actions and runs them in reverse
// order of registration, later resources may depend on earlier ones.
// The zero value is ready to use. Not safe for concurrent use.
type ReleaseQueue struct {
	actions []func()
}

// Push appends a teardown action.
func (q *ReleaseQueue) Push(action func()) {
	if action == nil {
		return
	}
	q.actions = append(q.actions, action)
}

// PushReleasable appends r.Release as a teardown action.
func (q *ReleaseQueue) PushReleasable(r Releasable) {
	if r == nil {
		return
	}
	q.Push(r.Release)
}

// Flush runs every pending action last to first and empties the queue.
// Must not be called while the GPU may still use what is being released.
func (q *ReleaseQueue) Flush() {
	for len(q.actions) > 0 {
		last := len(q.actions) - 1
		action := q.actions[last]
		q.actions[last] = nil
		q.actions = q.actions[:last]
		action()
	}
}

// Len returns the number of pending actions.
func (q *ReleaseQueue) Len() int {
	return len(q.actions)
}
