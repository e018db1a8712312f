//go:build windows

package reactor

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// pollfd mirrors the WSAPOLLFD struct (fd, requested events, returned
// events). WSAPoll gives a readiness-style API close enough to
// select/epoll to share the reactor's Backend contract, unlike raw IOCP
// completion ports which deliver completed-operation notifications
// instead of readiness and would need a very different Loop shape. The
// reactor targets readiness polling uniformly across platforms, so the
// Windows backend is grounded on the WSAPoll fallback rather than IOCP.
type pollfd struct {
	fd      uintptr
	events  int16
	revents int16
}

const (
	pollIn   = 0x0300 // POLLRDNORM | POLLRDBAND
	pollOut  = 0x0010 // POLLWRNORM
	pollErr  = 0x0001
	pollHup  = 0x0002
	pollNval = 0x0004
)

var (
	ws2_32       = windows.NewLazySystemDLL("ws2_32.dll")
	procWSAPoll  = ws2_32.NewProc("WSAPoll")
)

func wsaPoll(fds []pollfd, timeoutMS int) (int, error) {
	if len(fds) == 0 {
		return 0, nil
	}
	r1, _, err := procWSAPoll.Call(
		uintptr(unsafe.Pointer(&fds[0])),
		uintptr(len(fds)),
		uintptr(int32(timeoutMS)),
	)
	n := int(int32(r1))
	if n < 0 {
		return 0, err
	}
	return n, nil
}

// windowsBackend drives Windows sockets via WSAPoll. Registrations are
// rebuilt into a pollfd slice on every Wait call.
type windowsBackend struct {
	interests  map[int]Interest
	wakeReadFD int
	wakeWriteFD int
}

func newPlatformBackend() (Backend, func() error, error) {
	b := &windowsBackend{interests: make(map[int]Interest)}

	// A loopback TCP pair stands in for the self-pipe trick (Windows has
	// no anonymous bidirectional pipe usable with WSAPoll).
	r, w, err := loopbackWakePair()
	if err != nil {
		return nil, nil, err
	}
	b.wakeReadFD = r
	b.wakeWriteFD = w
	b.interests[r] = Read

	wake := func() error {
		_, err := windows.Write(windows.Handle(w), []byte{0})
		return err
	}
	return b, wake, nil
}

func (b *windowsBackend) Add(fd int, interest Interest) error {
	b.interests[fd] = interest
	return nil
}

func (b *windowsBackend) Modify(fd int, interest Interest) error {
	b.interests[fd] = interest
	return nil
}

func (b *windowsBackend) Remove(fd int) error {
	delete(b.interests, fd)
	return nil
}

func (b *windowsBackend) Wait(dst []readyEvent, timeoutMS int) ([]readyEvent, error) {
	fds := make([]pollfd, 0, len(b.interests))
	order := make([]int, 0, len(b.interests))
	for fd, interest := range b.interests {
		var events int16
		if interest&Read != 0 {
			events |= pollIn
		}
		if interest&Write != 0 {
			events |= pollOut
		}
		fds = append(fds, pollfd{fd: uintptr(fd), events: events})
		order = append(order, fd)
	}

	n, err := wsaPoll(fds, timeoutMS)
	if err != nil || n == 0 {
		return dst, err
	}

	for i, pfd := range fds {
		if pfd.revents == 0 {
			continue
		}
		fd := order[i]
		var ready Interest
		if pfd.revents&pollIn != 0 {
			ready |= Read
		}
		if pfd.revents&pollOut != 0 {
			ready |= Write
		}
		if pfd.revents&(pollErr|pollHup|pollNval) != 0 {
			ready |= Error
		}
		if fd == b.wakeReadFD {
			drainWakeupSocket(fd)
			continue
		}
		dst = append(dst, readyEvent{fd: fd, ready: ready})
	}
	return dst, nil
}

func (b *windowsBackend) Close() error {
	if b.wakeReadFD != 0 {
		windows.Closesocket(windows.Handle(b.wakeReadFD))
	}
	if b.wakeWriteFD != 0 {
		windows.Closesocket(windows.Handle(b.wakeWriteFD))
	}
	return nil
}

func drainWakeupSocket(fd int) {
	var buf [64]byte
	for {
		n, err := windows.Read(windows.Handle(fd), buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// loopbackWakePair creates a connected TCP socket pair over 127.0.0.1,
// used as a wakeup channel since Windows has no anonymous pipe WSAPoll
// can watch directly.
func loopbackWakePair() (int, int, error) {
	listener, err := windows.Socket(windows.AF_INET, windows.SOCK_STREAM, 0)
	if err != nil {
		return 0, 0, err
	}
	defer windows.Closesocket(listener)

	addr := &windows.SockaddrInet4{Port: 0}
	addr.Addr = [4]byte{127, 0, 0, 1}
	if err := windows.Bind(listener, addr); err != nil {
		return 0, 0, err
	}
	if err := windows.Listen(listener, 1); err != nil {
		return 0, 0, err
	}
	bound, err := windows.Getsockname(listener)
	if err != nil {
		return 0, 0, err
	}
	boundAddr := bound.(*windows.SockaddrInet4)

	writer, err := windows.Socket(windows.AF_INET, windows.SOCK_STREAM, 0)
	if err != nil {
		return 0, 0, err
	}
	connectAddr := &windows.SockaddrInet4{Port: boundAddr.Port, Addr: [4]byte{127, 0, 0, 1}}
	if err := windows.Connect(writer, connectAddr); err != nil {
		windows.Closesocket(writer)
		return 0, 0, err
	}

	reader, _, err := windows.Accept(listener)
	if err != nil {
		windows.Closesocket(writer)
		return 0, 0, err
	}

	return int(reader), int(writer), nil
}
