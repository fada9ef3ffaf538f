//go:build linux

package selector

import (
	"encoding/binary"
	"errors"

	"golang.org/x/sys/unix"
)

// backend waits on an epoll instance, with an eventfd registered for wake-ups.
type backend struct {
	epfd   int
	wakeFd int
	buf    []unix.EpollEvent
}

func newBackend(maxEvents int) (*backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFd),
	}); err != nil {
		_ = unix.Close(wakeFd)
		_ = unix.Close(epfd)
		return nil, err
	}

	return &backend{
		epfd:   epfd,
		wakeFd: wakeFd,
		buf:    make([]unix.EpollEvent, maxEvents),
	}, nil
}

func (b *backend) add(fd int, events Events) error {
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: eventsToEpoll(events),
		Fd:     int32(fd),
	})
}

func (b *backend) modify(fd int, _, events Events) error {
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: eventsToEpoll(events),
		Fd:     int32(fd),
	})
}

func (b *backend) remove(fd int, _ Events) error {
	err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if errors.Is(err, unix.EBADF) || errors.Is(err, unix.ENOENT) {
		// the fd was already closed
		return nil
	}
	return err
}

// wait blocks for up to timeoutMs (-1 is unbounded), calling fn for each
// ready fd. The wake fd is drained and reported via the woken result.
func (b *backend) wait(timeoutMs int, fn func(fd int, events Events)) (woken bool, err error) {
	n, err := unix.EpollWait(b.epfd, b.buf, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, err
	}
	for i := 0; i < n; i++ {
		fd := int(b.buf[i].Fd)
		if fd == b.wakeFd {
			b.drain()
			woken = true
			continue
		}
		fn(fd, epollToEvents(b.buf[i].Events))
	}
	return woken, nil
}

func (b *backend) wake() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(b.wakeFd, buf[:])
	if err == unix.EAGAIN {
		// counter saturated, a wake-up is already pending
		return nil
	}
	return err
}

func (b *backend) drain() {
	var buf [8]byte
	for {
		if _, err := unix.Read(b.wakeFd, buf[:]); err != nil {
			return
		}
	}
}

func (b *backend) close() error {
	return errors.Join(unix.Close(b.wakeFd), unix.Close(b.epfd))
}

func eventsToEpoll(events Events) uint32 {
	var epollEvents uint32
	if events&EventRead != 0 {
		epollEvents |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		epollEvents |= unix.EPOLLOUT
	}
	return epollEvents
}

func epollToEvents(epollEvents uint32) Events {
	var events Events
	if epollEvents&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if epollEvents&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	return events
}
