//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !windows

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// selectBackend is the portable fallback for platforms without a native
// readiness-list primitive. It rebuilds fd_sets from the registration map
// on every Wait call, which caps practical fd counts well below the
// epoll/kqueue backends (the traditional select() FD_SETSIZE limit) but
// keeps the reactor usable everywhere cgo-free Go runs.
type selectBackend struct {
	interests  map[int]Interest
	wakeReadFD int
}

func newPlatformBackend() (Backend, func() error, error) {
	b := &selectBackend{interests: make(map[int]Interest)}

	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, nil, err
	}
	unix.SetNonblock(fds[0], true)
	unix.SetNonblock(fds[1], true)
	b.wakeReadFD = fds[0]
	b.interests[fds[0]] = Read

	writeFD := fds[1]
	wake := func() error {
		_, err := unix.Write(writeFD, []byte{0})
		return err
	}
	return b, wake, nil
}

func (b *selectBackend) Add(fd int, interest Interest) error {
	b.interests[fd] = interest
	return nil
}

func (b *selectBackend) Modify(fd int, interest Interest) error {
	b.interests[fd] = interest
	return nil
}

func (b *selectBackend) Remove(fd int) error {
	delete(b.interests, fd)
	return nil
}

func (b *selectBackend) Wait(dst []readyEvent, timeoutMS int) ([]readyEvent, error) {
	var readSet, writeSet unix.FdSet
	maxFD := 0
	for fd, interest := range b.interests {
		if interest&Read != 0 {
			fdSetAdd(&readSet, fd)
		}
		if interest&Write != 0 {
			fdSetAdd(&writeSet, fd)
		}
		if fd > maxFD {
			maxFD = fd
		}
	}

	var timeout *unix.Timeval
	if timeoutMS >= 0 {
		tv := unix.NsecToTimeval(int64(timeoutMS) * int64(time.Millisecond))
		timeout = &tv
	}

	n, err := unix.Select(maxFD+1, &readSet, &writeSet, nil, timeout)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}
	if n == 0 {
		return dst, nil
	}

	for fd, interest := range b.interests {
		var ready Interest
		if interest&Read != 0 && fdSetIsSet(&readSet, fd) {
			ready |= Read
		}
		if interest&Write != 0 && fdSetIsSet(&writeSet, fd) {
			ready |= Write
		}
		if ready == 0 {
			continue
		}
		if fd == b.wakeReadFD {
			drainWakeup(fd)
			continue
		}
		dst = append(dst, readyEvent{fd: fd, ready: ready})
	}
	return dst, nil
}

func (b *selectBackend) Close() error {
	if b.wakeReadFD != 0 {
		unix.Close(b.wakeReadFD)
	}
	return nil
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

func fdSetAdd(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdSetIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
