//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// epollBackend drives Linux epoll via golang.org/x/sys/unix. The event
// translation mirrors the teacher's thin syscall.Epoll* wrapper, upgraded
// to the unix package so it also carries EPOLLRDHUP handling for
// half-closed-peer detection.
type epollBackend struct {
	epfd       int
	wakeReadFD int
}

func newPlatformBackend() (Backend, func() error, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, nil, err
	}
	b := &epollBackend{epfd: epfd}

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		unix.Close(epfd)
		return nil, nil, err
	}
	b.wakeReadFD = fds[0]
	if err := b.Add(fds[0], Read); err != nil {
		unix.Close(epfd)
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

func drainWakeup(fd int) {
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func toEpollEvents(interest Interest) uint32 {
	var events uint32
	if interest&Read != 0 {
		events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if interest&Write != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

func fromEpollEvents(events uint32) Interest {
	var interest Interest
	if events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 {
		interest |= Read
	}
	if events&unix.EPOLLOUT != 0 {
		interest |= Write
	}
	if events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		interest |= Error
	}
	return interest
}

func (b *epollBackend) Add(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (b *epollBackend) Modify(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (b *epollBackend) Remove(fd int) error {
	err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (b *epollBackend) Wait(dst []readyEvent, timeoutMS int) ([]readyEvent, error) {
	var raw [256]unix.EpollEvent
	n, err := unix.EpollWait(b.epfd, raw[:], timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}
	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)
		if fd == b.wakeReadFD {
			drainWakeup(fd)
			continue
		}
		dst = append(dst, readyEvent{fd: fd, ready: fromEpollEvents(raw[i].Events)})
	}
	return dst, nil
}

func (b *epollBackend) Close() error {
	if b.wakeReadFD != 0 {
		unix.Close(b.wakeReadFD)
	}
	return unix.Close(b.epfd)
}
