//go:build linux

// Package fdwatch delivers file descriptor readiness to an event loop.
package fdwatch

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"deedles.dev/wlcommit/internal/debug"
	"golang.org/x/sys/unix"
)

// Readable reports whether fd is readable right now without blocking.
func Readable(fd int) bool {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, 0)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false
		}
		return (n > 0) && (fds[0].Revents&unix.POLLIN != 0)
	}
}

// ErrClosed is returned when watching on a closed Poller.
var ErrClosed = errors.New("poller closed")

type watch struct {
	id        int32
	fd        int
	fn        func()
	cancelled bool
}

// Poller waits for file descriptors to become readable on a background
// goroutine and posts the registered callbacks to an event loop. Every
// watch fires at most once.
type Poller struct {
	post func(func()) bool

	epfd int
	wake int

	m       sync.Mutex
	nextID  int32
	watches map[int32]*watch
	closed  bool
	done    chan struct{}
}

// New starts a Poller. post is used to run callbacks and is usually
// the Do method of an ev.Loop.
func New(post func(func()) bool) (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create: %w", err)
	}

	wake, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	err = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wake, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     -1,
	})
	if err != nil {
		unix.Close(wake)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll_ctl: %w", err)
	}

	p := Poller{
		post:    post,
		epfd:    epfd,
		wake:    wake,
		watches: make(map[int32]*watch),
		done:    make(chan struct{}),
	}
	go p.run()

	return &p, nil
}

// WatchReadable calls fn on the event loop once fd becomes readable.
// The returned function cancels the watch; after it returns fn will
// not be called. cancel must be called from the event loop.
func (p *Poller) WatchReadable(fd int, fn func()) (cancel func(), err error) {
	dup, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("dup: %w", err)
	}

	p.m.Lock()
	defer p.m.Unlock()

	if p.closed {
		unix.Close(dup)
		return nil, ErrClosed
	}

	p.nextID++
	if p.nextID < 0 {
		p.nextID = 1
	}
	w := &watch{id: p.nextID, fd: dup, fn: fn}

	err = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, dup, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLONESHOT,
		Fd:     w.id,
	})
	if err != nil {
		unix.Close(dup)
		return nil, fmt.Errorf("epoll_ctl: %w", err)
	}
	p.watches[w.id] = w

	return func() {
		w.cancelled = true
		p.remove(w.id)
	}, nil
}

func (p *Poller) remove(id int32) *watch {
	p.m.Lock()
	defer p.m.Unlock()

	w, ok := p.watches[id]
	if !ok {
		return nil
	}
	delete(p.watches, id)
	unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, w.fd, nil)
	unix.Close(w.fd)
	return w
}

func (p *Poller) run() {
	defer close(p.done)

	events := make([]unix.EpollEvent, 16)
	for {
		n, err := unix.EpollWait(p.epfd, events, -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			debug.Printf("epoll_wait: %v", err)
			return
		}

		for _, ev := range events[:n] {
			if ev.Fd == -1 {
				return
			}

			w := p.remove(ev.Fd)
			if w == nil {
				continue
			}
			p.post(func() {
				if !w.cancelled {
					w.fn()
				}
			})
		}
	}
}

// Close stops the poller. Pending watches never fire.
func (p *Poller) Close() error {
	p.m.Lock()
	if p.closed {
		p.m.Unlock()
		return nil
	}
	p.closed = true
	for id, w := range p.watches {
		delete(p.watches, id)
		unix.Close(w.fd)
	}
	p.m.Unlock()

	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	unix.Write(p.wake, one[:])
	<-p.done

	unix.Close(p.wake)
	return unix.Close(p.epfd)
}
