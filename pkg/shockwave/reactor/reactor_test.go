package reactor

import (
	"net"
	"syscall"
	"testing"
	"time"
)

// mustFD extracts the raw file descriptor backing conn, valid while conn
// is open; the returned release func does nothing.
func mustFD(t *testing.T, conn net.Conn) (int, func()) {
	t.Helper()
	sc, ok := conn.(syscall.Conn)
	if !ok {
		t.Fatal("conn does not support SyscallConn")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		t.Fatalf("SyscallConn: %v", err)
	}
	var fd int
	err = raw.Control(func(v uintptr) {
		fd = int(v)
	})
	if err != nil {
		t.Fatalf("Control: %v", err)
	}
	return fd, func() {}
}

func TestLoopReadReady(t *testing.T) {
	server, client := mustSocketPair(t)
	defer server.Close()
	defer client.Close()

	loop, err := NewLoop()
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	defer loop.Stop()

	fd, release := mustFD(t, server)
	defer release()

	fired := make(chan Interest, 1)
	if err := loop.Add(fd, Read, func(fd int, ready Interest) {
		fired <- ready
	}, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, err := client.Write([]byte("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := loop.RunOnce(1000); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	select {
	case ready := <-fired:
		if ready&Read == 0 {
			t.Fatalf("expected Read interest, got %v", ready)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestLoopRemoveUnregistered(t *testing.T) {
	loop, err := NewLoop()
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	defer loop.Stop()

	if err := loop.Remove(999999); err != ErrNotRegistered {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestLoopStopIsIdempotent(t *testing.T) {
	loop, err := NewLoop()
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	if err := loop.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := loop.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if _, err := loop.RunOnce(0); err != ErrClosed {
		t.Fatalf("expected ErrClosed after Stop, got %v", err)
	}
}

func mustSocketPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		acceptCh <- c
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	server := <-acceptCh
	if server == nil {
		t.Fatal("accept failed")
	}
	return server, client
}
