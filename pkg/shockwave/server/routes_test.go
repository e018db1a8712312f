package server

import (
	"bufio"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/wattnet/shockwave/pkg/shockwave/http11"
)

func TestRouterDispatchesFirstMatch(t *testing.T) {
	router := NewRouter()
	router.Handle("GET", "/users", func(w *http11.ResponseWriter, r *http11.Request) {
		w.WriteHeader(200)
		w.Write([]byte("users"))
	})
	router.Handle("POST", "/users", func(w *http11.ResponseWriter, r *http11.Request) {
		w.WriteHeader(201)
		w.Write([]byte("created"))
	})
	router.Handle("", "*", func(w *http11.ResponseWriter, r *http11.Request) {
		w.WriteHeader(200)
		w.Write([]byte("catch-all"))
	})

	config := DefaultConfig()
	config.Addr = "127.0.0.1:0"
	config.Handler = router.ServeHTTP

	srv := NewServer(config)
	ln, err := net.Listen("tcp", config.Addr)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	addr := ln.Addr().String()
	go srv.Serve(ln)
	defer srv.Close()
	time.Sleep(50 * time.Millisecond)

	body, status := doRequest(t, addr, "GET", "/users")
	if status != 200 || body != "users" {
		t.Errorf("GET /users: got status %d body %q", status, body)
	}

	body, status = doRequest(t, addr, "POST", "/users")
	if status != 201 || body != "created" {
		t.Errorf("POST /users: got status %d body %q", status, body)
	}

	body, status = doRequest(t, addr, "GET", "/anything")
	if status != 200 || body != "catch-all" {
		t.Errorf("GET /anything: got status %d body %q", status, body)
	}
}

func TestRouterDefaultNotFound(t *testing.T) {
	router := NewRouter()
	router.Handle("GET", "/only", func(w *http11.ResponseWriter, r *http11.Request) {
		w.WriteHeader(200)
	})

	config := DefaultConfig()
	config.Addr = "127.0.0.1:0"
	config.Handler = router.ServeHTTP

	srv := NewServer(config)
	ln, err := net.Listen("tcp", config.Addr)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	addr := ln.Addr().String()
	go srv.Serve(ln)
	defer srv.Close()
	time.Sleep(50 * time.Millisecond)

	_, status := doRequest(t, addr, "GET", "/missing")
	if status != 404 {
		t.Errorf("expected 404, got %d", status)
	}
}

func doRequest(t *testing.T, addr, method, path string) (string, int) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	fmt.Fprintf(conn, "%s %s HTTP/1.1\r\nHost: localhost\r\nConnection: close\r\n\r\n", method, path)

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	var status int
	fmt.Sscanf(statusLine, "HTTP/1.1 %d", &status)

	for {
		line, err := reader.ReadString('\n')
		if err != nil || line == "\r\n" {
			break
		}
	}

	var body []byte
	buf := make([]byte, 1024)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			body = append(body, buf[:n]...)
		}
		if err != nil {
			break
		}
	}

	return string(body), status
}
