//go:build darwin || freebsd || netbsd || openbsd

package reactor

import (
	"golang.org/x/sys/unix"
)

// kqueueBackend drives BSD/Darwin kqueue. Read and write interest are
// tracked as separate filters (EVFILT_READ/EVFILT_WRITE) since kqueue has
// no single combined readiness mask the way epoll does; Modify diffs the
// requested set against what is currently registered and issues
// EV_ADD/EV_DELETE changes accordingly.
type kqueueBackend struct {
	kq         int
	wakeReadFD int
	interests  map[int]Interest
}

func newPlatformBackend() (Backend, func() error, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, nil, err
	}
	b := &kqueueBackend{kq: kq, interests: make(map[int]Interest)}

	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		unix.Close(kq)
		return nil, nil, err
	}
	unix.SetNonblock(fds[0], true)
	unix.SetNonblock(fds[1], true)
	b.wakeReadFD = fds[0]
	if err := b.Add(fds[0], Read); err != nil {
		unix.Close(kq)
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, nil, err
	}

	writeFD := fds[1]
	wake := func() error {
		_, err := unix.Write(writeFD, []byte{0})
		return err
	}
	return b, wake, nil
}

func (b *kqueueBackend) changesFor(fd int, add, remove Interest) []unix.Kevent_t {
	var changes []unix.Kevent_t
	if add&Read != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE})
	}
	if remove&Read != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE})
	}
	if add&Write != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE})
	}
	if remove&Write != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE})
	}
	return changes
}

func (b *kqueueBackend) Add(fd int, interest Interest) error {
	changes := b.changesFor(fd, interest, 0)
	if len(changes) == 0 {
		b.interests[fd] = interest
		return nil
	}
	if _, err := unix.Kevent(b.kq, changes, nil, nil); err != nil {
		return err
	}
	b.interests[fd] = interest
	return nil
}

func (b *kqueueBackend) Modify(fd int, interest Interest) error {
	old := b.interests[fd]
	add := interest &^ old
	remove := old &^ interest
	changes := b.changesFor(fd, add, remove)
	if len(changes) > 0 {
		if _, err := unix.Kevent(b.kq, changes, nil, nil); err != nil {
			return err
		}
	}
	b.interests[fd] = interest
	return nil
}

func (b *kqueueBackend) Remove(fd int) error {
	old, ok := b.interests[fd]
	if !ok {
		return nil
	}
	delete(b.interests, fd)
	changes := b.changesFor(fd, 0, old)
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(b.kq, changes, nil, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (b *kqueueBackend) Wait(dst []readyEvent, timeoutMS int) ([]readyEvent, error) {
	var raw [256]unix.Kevent_t
	var timeout *unix.Timespec
	if timeoutMS >= 0 {
		ts := unix.NsecToTimespec(int64(timeoutMS) * int64(1e6))
		timeout = &ts
	}
	n, err := unix.Kevent(b.kq, nil, raw[:], timeout)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}

	merged := make(map[int]Interest, n)
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		fd := int(raw[i].Ident)
		if fd == b.wakeReadFD {
			drainWakeup(fd)
			continue
		}
		var interest Interest
		switch raw[i].Filter {
		case unix.EVFILT_READ:
			interest = Read
		case unix.EVFILT_WRITE:
			interest = Write
		}
		if raw[i].Flags&unix.EV_ERROR != 0 || raw[i].Flags&unix.EV_EOF != 0 {
			interest |= Error
		}
		if _, seen := merged[fd]; !seen {
			order = append(order, fd)
		}
		merged[fd] |= interest
	}
	for _, fd := range order {
		dst = append(dst, readyEvent{fd: fd, ready: merged[fd]})
	}
	return dst, nil
}

func (b *kqueueBackend) Close() error {
	if b.wakeReadFD != 0 {
		unix.Close(b.wakeReadFD)
	}
	return unix.Close(b.kq)
}

func drainWakeup(fd int) {
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}
