//go:build darwin

package selector

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// backend waits on a kqueue, with the read end of a self-pipe registered for
// wake-ups.
type backend struct {
	kq        int
	wakeRead  int
	wakeWrite int
	buf       []unix.Kevent_t
}

func newBackend(maxEvents int) (*backend, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)

	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		_ = unix.Close(kq)
		return nil, err
	}
	cleanup := func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		_ = unix.Close(kq)
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			cleanup()
			return nil, err
		}
	}

	b := &backend{
		kq:        kq,
		wakeRead:  fds[0],
		wakeWrite: fds[1],
		buf:       make([]unix.Kevent_t, maxEvents),
	}
	if err := b.add(b.wakeRead, EventRead); err != nil {
		cleanup()
		return nil, err
	}
	return b, nil
}

func (b *backend) add(fd int, events Events) error {
	kevents := eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	if len(kevents) == 0 {
		return nil
	}
	_, err := unix.Kevent(b.kq, kevents, nil, nil)
	return err
}

func (b *backend) modify(fd int, oldEvents, events Events) error {
	if del := eventsToKevents(fd, oldEvents&^events, unix.EV_DELETE); len(del) > 0 {
		_, _ = unix.Kevent(b.kq, del, nil, nil)
	}
	return b.add(fd, events&^oldEvents)
}

func (b *backend) remove(fd int, events Events) error {
	if del := eventsToKevents(fd, events, unix.EV_DELETE); len(del) > 0 {
		// filters on a closed fd are already gone
		_, _ = unix.Kevent(b.kq, del, nil, nil)
	}
	return nil
}

func (b *backend) wait(timeoutMs int, fn func(fd int, events Events)) (woken bool, err error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(time.Duration(timeoutMs) * time.Millisecond))
		ts = &t
	}
	n, err := unix.Kevent(b.kq, nil, b.buf, ts)
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, err
	}
	for i := 0; i < n; i++ {
		fd := int(b.buf[i].Ident)
		if fd == b.wakeRead {
			b.drain()
			woken = true
			continue
		}
		fn(fd, keventToEvents(&b.buf[i]))
	}
	return woken, nil
}

func (b *backend) wake() error {
	_, err := unix.Write(b.wakeWrite, []byte{1})
	if err == unix.EAGAIN {
		// pipe full, a wake-up is already pending
		return nil
	}
	return err
}

func (b *backend) drain() {
	var buf [64]byte
	for {
		if _, err := unix.Read(b.wakeRead, buf[:]); err != nil {
			return
		}
	}
}

func (b *backend) close() error {
	return errors.Join(unix.Close(b.wakeRead), unix.Close(b.wakeWrite), unix.Close(b.kq))
}

func eventsToKevents(fd int, events Events, flags uint16) []unix.Kevent_t {
	var kevents []unix.Kevent_t
	if events&EventRead != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_READ,
			Flags:  flags,
		})
	}
	if events&EventWrite != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_WRITE,
			Flags:  flags,
		})
	}
	return kevents
}

func keventToEvents(kev *unix.Kevent_t) Events {
	var events Events
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= EventRead
	case unix.EVFILT_WRITE:
		events |= EventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= EventHangup
	}
	return events
}
