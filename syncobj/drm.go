//go:build linux

package syncobj

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const ioctlBase = 'd'

// iowr builds a DRM_IOWR request code.
func iowr(nr uintptr, size uintptr) uintptr {
	const (
		read  = 2
		write = 1
	)
	return ((read | write) << 30) | (size << 16) | (ioctlBase << 8) | nr
}

type sysSyncobjDestroy struct {
	handle uint32
	pad    uint32
}

type sysSyncobjHandle struct {
	handle uint32
	flags  uint32
	fd     int32
	pad    uint32
}

type sysSyncobjTimelineArray struct {
	handles      uint64
	points       uint64
	countHandles uint32
	flags        uint32
}

type sysSyncobjEventfd struct {
	handle uint32
	flags  uint32
	point  uint64
	fd     int32
	pad    uint32
}

var (
	// DRM_IOWR(0xC0, struct drm_syncobj_destroy)
	ioctlSyncobjDestroy = iowr(0xC0, unsafe.Sizeof(sysSyncobjDestroy{}))

	// DRM_IOWR(0xC2, struct drm_syncobj_handle)
	ioctlSyncobjFDToHandle = iowr(0xC2, unsafe.Sizeof(sysSyncobjHandle{}))

	// DRM_IOWR(0xCD, struct drm_syncobj_timeline_array)
	ioctlSyncobjTimelineSignal = iowr(0xCD, unsafe.Sizeof(sysSyncobjTimelineArray{}))

	// DRM_IOWR(0xCF, struct drm_syncobj_eventfd)
	ioctlSyncobjEventfd = iowr(0xCF, unsafe.Sizeof(sysSyncobjEventfd{}))
)

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR, unix.EAGAIN:
			continue
		default:
			return errno
		}
	}
}

// Device is an open DRM render node used to import client timelines.
type Device struct {
	file *os.File
}

// OpenDevice opens the DRM device at path, usually a render node such
// as /dev/dri/renderD128.
func OpenDevice(path string) (*Device, error) {
	file, err := os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open DRM device: %w", err)
	}
	return &Device{file: file}, nil
}

func (dev *Device) Close() error {
	return dev.file.Close()
}

func (dev *Device) fd() int {
	return int(dev.file.Fd())
}

// ImportTimeline imports the syncobj referred to by fd. The fd is not
// consumed.
func (dev *Device) ImportTimeline(fd int) (*DRMTimeline, error) {
	args := sysSyncobjHandle{fd: int32(fd)}
	err := ioctl(dev.fd(), ioctlSyncobjFDToHandle, unsafe.Pointer(&args))
	if err != nil {
		return nil, fmt.Errorf("import syncobj: %w", err)
	}

	return &DRMTimeline{dev: dev, handle: args.handle}, nil
}

// DRMTimeline is a Timeline backed by a DRM syncobj handle.
type DRMTimeline struct {
	dev    *Device
	handle uint32
}

func (t *DRMTimeline) EventFD(point uint64) (int, error) {
	efd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, fmt.Errorf("create eventfd: %w", err)
	}

	args := sysSyncobjEventfd{
		handle: t.handle,
		point:  point,
		fd:     int32(efd),
	}
	err = ioctl(t.dev.fd(), ioctlSyncobjEventfd, unsafe.Pointer(&args))
	if err != nil {
		unix.Close(efd)
		return -1, fmt.Errorf("attach eventfd to syncobj point %v: %w", point, err)
	}

	return efd, nil
}

func (t *DRMTimeline) Signal(point uint64) error {
	handles := [1]uint32{t.handle}
	points := [1]uint64{point}
	args := sysSyncobjTimelineArray{
		handles:      uint64(uintptr(unsafe.Pointer(&handles[0]))),
		points:       uint64(uintptr(unsafe.Pointer(&points[0]))),
		countHandles: 1,
	}
	err := ioctl(t.dev.fd(), ioctlSyncobjTimelineSignal, unsafe.Pointer(&args))
	if err != nil {
		return fmt.Errorf("signal syncobj point %v: %w", point, err)
	}
	return nil
}

func (t *DRMTimeline) Close() error {
	args := sysSyncobjDestroy{handle: t.handle}
	err := ioctl(t.dev.fd(), ioctlSyncobjDestroy, unsafe.Pointer(&args))
	if err != nil {
		return fmt.Errorf("destroy syncobj: %w", err)
	}
	return nil
}
