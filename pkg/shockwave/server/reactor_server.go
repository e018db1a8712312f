//go:build !goexperiment.arenas && !greenteagc

package server

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/wattnet/shockwave/pkg/shockwave/http11"
	"github.com/wattnet/shockwave/pkg/shockwave/reactor"
	"github.com/wattnet/shockwave/pkg/shockwave/shockerr"
	"github.com/wattnet/shockwave/pkg/shockwave/socket"
	"github.com/wattnet/shockwave/pkg/shockwave/transport"
)

var crlfcrlf = []byte("\r\n\r\n")

// ServeReactor accepts connections on l the same way Serve does, but
// drives each plain-TCP connection's request/response cycle as an
// explicit state machine registered with a reactor.Loop instead of a
// dedicated blocking goroutine: onReady only runs non-blocking TryRead
// and TryWrite attempts, suspending by returning to the loop whenever
// one reports transport.ErrWouldBlock, never by parking the calling
// goroutine on a socket.
//
// Connections ServeReactor can't safely drive this way are hosted on
// the classic goroutine-per-connection path instead:
//   - TLS-terminated connections, since crypto/tls performs blocking
//     record I/O internally and has no would-block-tolerant API.
//   - requests using chunked transfer-encoding or a WebSocket upgrade,
//     whose framing isn't a fixed byte count known up front. These are
//     sniffed from the already-buffered header block and handed off,
//     replaying the bytes already read so nothing already consumed off
//     the wire is lost. This mirrors the one blocking exception the
//     scheduling model itself documents for synchronous DNS resolution:
//     a narrow, acknowledged escape hatch rather than a blanket excuse.
func (s *ShockwaveServer) ServeReactor(l net.Listener) error {
	s.listener = l
	defer l.Close()

	if s.config.SocketTuning != nil {
		if err := socket.ApplyListener(l, s.config.SocketTuning); err != nil {
			return shockerr.New(shockerr.CodeServer, "ShockwaveServer.ServeReactor", err)
		}
	}

	shardCount := runtime.GOMAXPROCS(0)
	if shardCount < 1 {
		shardCount = 1
	}
	shards := make([]*reactor.Loop, shardCount)
	for i := range shards {
		loop, err := reactor.NewLoop()
		if err != nil {
			for _, prev := range shards[:i] {
				prev.Stop()
			}
			return shockerr.New(shockerr.CodeServer, "ShockwaveServer.ServeReactor", err)
		}
		shards[i] = loop
		go loop.Run()
	}
	defer func() {
		for _, loop := range shards {
			loop.Stop()
		}
	}()

	var nextShard uint64

	for {
		if s.shutdown.Load() {
			return nil
		}

		if s.connSem != nil {
			select {
			case s.connSem <- struct{}{}:
			case <-s.done:
				return nil
			}
		}

		netConn, err := l.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			s.stats.ConnectionErrors.Add(1)
			if s.connSem != nil {
				<-s.connSem
			}
			continue
		}

		s.stats.TotalConnections.Add(1)
		if s.config.SocketTuning != nil {
			if err := socket.Apply(netConn, s.config.SocketTuning); err != nil {
				s.stats.ConnectionErrors.Add(1)
			}
		}

		s.wg.Add(1)
		shard := shards[int(atomic.AddUint64(&nextShard, 1))%len(shards)]
		if !s.beginReactorConn(netConn, shard) {
			go s.handleConnection(netConn)
		}
	}
}

// beginReactorConn tries to register netConn with loop for non-blocking,
// reactor-driven service. It returns false (without touching netConn's
// tracking or deadlines) when the connection can't be driven this way,
// leaving the caller to fall back to the classic path.
func (s *ShockwaveServer) beginReactorConn(netConn net.Conn, loop *reactor.Loop) bool {
	if secure, ok := netConn.(interface{ Secure() bool }); ok && secure.Secure() {
		return false
	}

	tr := transport.Wrap(netConn)
	nb, ok := tr.(transport.NonBlockingConn)
	if !ok {
		return false
	}
	fd, err := nb.Fd()
	if err != nil {
		return false
	}

	rc := &reactorConn{
		srv:        s,
		netConn:    netConn,
		tr:         nb,
		fd:         fd,
		loop:       loop,
		parser:     http11.GetParser(),
		buf:        make([]byte, 0, s.config.ReadBufferSize),
		headersEnd: -1,
	}

	s.trackConnection(netConn)

	if err := loop.Add(fd, reactor.Read, rc.onReady, rc); err != nil {
		s.untrackConnection(netConn)
		return false
	}
	return true
}

// reactorConn is the per-connection state machine a reactor.Loop drives.
// Every method below runs on the owning Loop's goroutine (from onReady or
// a callback it invokes directly) except handOff's spawned goroutine,
// which takes over the connection entirely and never touches rc again.
type reactorConn struct {
	srv     *ShockwaveServer
	netConn net.Conn
	tr      transport.NonBlockingConn
	fd      int
	loop    *reactor.Loop

	parser *http11.Parser

	buf        []byte
	headersEnd int // index just past the blank line, or -1 if not found yet

	writeBuf     []byte
	writePending bool
	shouldClose  bool

	requestCount int
	adapters     adapterPair
	closed       bool
}

func (rc *reactorConn) onReady(fd int, ready reactor.Interest) {
	if rc.closed {
		return
	}
	if ready&reactor.Error != 0 {
		rc.srv.stats.ConnectionErrors.Add(1)
		rc.close()
		return
	}
	if len(rc.writeBuf) > 0 {
		if !rc.drainWrite() {
			return
		}
		// The write that was blocking further progress just finished:
		// resume any pipelined requests that were already buffered
		// before waiting on another Read event for them.
		rc.processBuffered()
		if rc.closed || len(rc.writeBuf) > 0 {
			return
		}
	}
	if ready&reactor.Read != 0 {
		rc.readLoop()
	}
}

// readLoop drains every byte currently available without blocking, then
// processes as many complete requests as have been buffered.
func (rc *reactorConn) readLoop() {
	var tmp [4096]byte
	for {
		n, err := rc.tr.TryRead(tmp[:])
		if n > 0 {
			rc.buf = append(rc.buf, tmp[:n]...)
			rc.srv.stats.BytesRead.Add(uint64(n))
		}
		if err != nil {
			if err == transport.ErrWouldBlock {
				break
			}
			if err == io.EOF {
				rc.close()
				return
			}
			rc.srv.stats.ConnectionErrors.Add(1)
			rc.close()
			return
		}
		if n == 0 {
			break
		}
	}
	rc.processBuffered()
}

// processBuffered serves every complete request already sitting in buf,
// looping to handle pipelined requests that arrived in the same read.
func (rc *reactorConn) processBuffered() {
	for !rc.closed {
		if rc.headersEnd < 0 {
			idx := bytes.Index(rc.buf, crlfcrlf)
			if idx < 0 {
				if len(rc.buf) > rc.srv.config.MaxHeaderBytes {
					rc.fail()
				}
				return
			}
			rc.headersEnd = idx + len(crlfcrlf)
		}

		contentLength, handoff := sniffHeaders(rc.buf[:rc.headersEnd])
		if handoff {
			rc.handOff()
			return
		}
		if contentLength > int64(rc.srv.config.MaxRequestBodySize) {
			rc.fail()
			return
		}

		total := rc.headersEnd + int(contentLength)
		if len(rc.buf) < total {
			return
		}

		rc.serveOne(total)
		if !rc.closed && len(rc.writeBuf) > 0 {
			// drainWrite already ran inside serveOne; if it's still
			// waiting on writability, stop processing more pipelined
			// requests until the response in flight is flushed.
			return
		}
	}
}

// sniffHeaders extracts Content-Length from an already-buffered header
// block without running the full parser, and reports whether the request
// needs the classic path (chunked body or WebSocket upgrade) instead of
// the fast fixed-length path.
func sniffHeaders(header []byte) (contentLength int64, handoff bool) {
	lower := bytes.ToLower(header)
	if bytes.Contains(lower, []byte("transfer-encoding:")) {
		return 0, true
	}
	if bytes.Contains(lower, []byte("upgrade:")) {
		return 0, true
	}
	idx := bytes.Index(lower, []byte("content-length:"))
	if idx < 0 {
		return 0, false
	}
	rest := header[idx+len("content-length:"):]
	if end := bytes.IndexByte(rest, '\r'); end >= 0 {
		rest = rest[:end]
	}
	n, err := strconv.ParseInt(string(bytes.TrimSpace(rest)), 10, 64)
	if err != nil || n < 0 {
		// Malformed Content-Length: hand off so the classic parser
		// produces the proper protocol error instead of us guessing.
		return 0, true
	}
	return n, false
}

// serveOne parses and handles the single complete request occupying
// buf[:total], then attempts to flush its response without blocking.
func (rc *reactorConn) serveOne(total int) {
	s := rc.srv

	req, err := rc.parser.Parse(bytes.NewReader(rc.buf[:total]))
	if err != nil {
		rc.fail()
		return
	}

	remaining := copy(rc.buf, rc.buf[total:])
	rc.buf = rc.buf[:remaining]
	rc.headersEnd = -1

	rc.requestCount++
	s.stats.TotalRequests.Add(1)
	if s.config.EnableStats {
		s.stats.LastRequestTime.Store(time.Now())
	}

	willCloseAfterThis := s.config.DisableKeepalive ||
		(s.config.MaxKeepAliveRequests > 0 && rc.requestCount >= s.config.MaxKeepAliveRequests)

	var out bytes.Buffer
	rw := http11.GetResponseWriter(&out)
	if willCloseAfterThis {
		rw.Header().Set([]byte("Connection"), []byte("close"))
	}

	var handlerErr error
	if s.sharedHandler != nil {
		handlerErr = s.sharedHandler(req, rw)
	} else if s.config.LegacyHandler != nil {
		rc.adapters.Setup(req, rw)
		s.config.LegacyHandler.ServeHTTP(&rc.adapters.rwAdapter, &rc.adapters.reqAdapter)
		rc.adapters.Reset()
		if req.Close {
			handlerErr = fmt.Errorf("connection close requested")
		}
	}

	if flushErr := rw.Flush(); flushErr != nil {
		handlerErr = flushErr
	}

	shouldClose := handlerErr != nil || req.Close || willCloseAfterThis
	if handlerErr != nil {
		s.stats.RequestErrors.Add(1)
	}

	http11.PutResponseWriter(rw)
	http11.PutRequest(req)

	rc.shouldClose = shouldClose
	rc.writeBuf = out.Bytes()
	rc.drainWrite()
}

// drainWrite makes non-blocking write attempts until writeBuf is empty or
// the transport reports it would block. It returns false when the caller
// should stop (blocked on writability, or the connection closed), true
// when it's safe to keep processing more buffered requests.
func (rc *reactorConn) drainWrite() bool {
	for len(rc.writeBuf) > 0 {
		n, err := rc.tr.TryWrite(rc.writeBuf)
		if n > 0 {
			rc.writeBuf = rc.writeBuf[n:]
			rc.srv.stats.BytesWritten.Add(uint64(n))
		}
		if err != nil {
			if err == transport.ErrWouldBlock {
				rc.writePending = true
				if modErr := rc.loop.Modify(rc.fd, reactor.Read|reactor.Write); modErr != nil {
					rc.close()
				}
				return false
			}
			rc.srv.stats.ConnectionErrors.Add(1)
			rc.close()
			return false
		}
	}

	if rc.writePending {
		rc.writePending = false
		if err := rc.loop.Modify(rc.fd, reactor.Read); err != nil {
			rc.close()
			return false
		}
	}

	if rc.shouldClose {
		rc.close()
		return false
	}
	return true
}

// fail closes the connection after a malformed or oversized request,
// counted the same way the classic path's parse errors are.
func (rc *reactorConn) fail() {
	rc.srv.stats.RequestErrors.Add(1)
	rc.close()
}

func (rc *reactorConn) close() {
	if rc.closed {
		return
	}
	rc.closed = true
	rc.loop.Remove(rc.fd)
	rc.srv.untrackConnection(rc.netConn)
	rc.tr.Close()
	http11.PutParser(rc.parser)
	rc.srv.wg.Done()
	if rc.srv.connSem != nil {
		<-rc.srv.connSem
	}
}

// handOff removes rc from the reactor and finishes the connection on the
// classic blocking path, replaying the bytes already buffered so nothing
// read off the wire is lost. The in-flight wg count and connSem slot
// transfer to the spawned goroutine, which releases them the same way
// every other classically-served connection does.
func (rc *reactorConn) handOff() {
	if rc.closed {
		return
	}
	rc.closed = true
	rc.loop.Remove(rc.fd)
	rc.srv.untrackConnection(rc.netConn)
	http11.PutParser(rc.parser)

	prefix := append([]byte(nil), rc.buf...)
	go rc.srv.handleConnection(&prefixConn{Conn: rc.netConn, prefix: prefix})
}

// prefixConn replays bytes already read off the wire before falling
// through to the live connection.
type prefixConn struct {
	net.Conn
	prefix []byte
}

func (p *prefixConn) Read(b []byte) (int, error) {
	if len(p.prefix) > 0 {
		n := copy(b, p.prefix)
		p.prefix = p.prefix[n:]
		return n, nil
	}
	return p.Conn.Read(b)
}
