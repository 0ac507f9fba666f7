// Package syncobj provides explicit GPU synchronization points backed
// by DRM timeline synchronization objects.
package syncobj

import "fmt"

// Timeline is a timeline synchronization object imported from a
// client.
type Timeline interface {
	// EventFD returns a new eventfd that becomes readable once point
	// has been signalled on the timeline. The caller owns the
	// descriptor.
	EventFD(point uint64) (int, error)

	// Signal signals point on the timeline.
	Signal(point uint64) error

	// Close releases the timeline.
	Close() error
}

// AcquirePoint is the point a client's GPU work signals when a buffer
// is ready to be read.
type AcquirePoint struct {
	Timeline Timeline
	Point    uint64
}

func (p AcquirePoint) IsSet() bool {
	return p.Timeline != nil
}

func (p AcquirePoint) String() string {
	if !p.IsSet() {
		return "acquire(none)"
	}
	return fmt.Sprintf("acquire(%p@%v)", p.Timeline, p.Point)
}

// ReleasePoint is the point the compositor signals when it no longer
// needs a buffer.
type ReleasePoint struct {
	Timeline Timeline
	Point    uint64
}

func (p ReleasePoint) IsSet() bool {
	return p.Timeline != nil
}

// Signal signals the point. It is a no-op for an unset point.
func (p ReleasePoint) Signal() error {
	if !p.IsSet() {
		return nil
	}
	return p.Timeline.Signal(p.Point)
}

func (p ReleasePoint) String() string {
	if !p.IsSet() {
		return "release(none)"
	}
	return fmt.Sprintf("release(%p@%v)", p.Timeline, p.Point)
}

// Conflicts reports whether an acquire and release point pair is
// invalid because the release would be signalled no later than the
// acquire on the same timeline.
func Conflicts(acquire AcquirePoint, release ReleasePoint) bool {
	if !acquire.IsSet() || !release.IsSet() {
		return false
	}
	return (acquire.Timeline == release.Timeline) && (acquire.Point >= release.Point)
}
