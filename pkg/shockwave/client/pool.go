package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wattnet/shockwave/pkg/shockwave/reactor"
	"github.com/wattnet/shockwave/pkg/shockwave/shockerr"
	"github.com/wattnet/shockwave/pkg/shockwave/socket"
	"github.com/wattnet/shockwave/pkg/shockwave/transport"
)

var (
	// ErrPoolClosed is returned when attempting to get a connection from a closed pool
	ErrPoolClosed = errors.New("connection pool closed")
	// ErrNoHealthyConns is returned when no healthy connections are available
	ErrNoHealthyConns = errors.New("no healthy connections available")
	// ErrConnTimeout is returned when connection acquisition times out
	ErrConnTimeout = errors.New("connection acquisition timeout")
)

// ProtocolVersion represents the HTTP protocol version.
// HTTP11 is the only protocol this client speaks; the type is kept so
// PooledConn.Protocol() has a stable, explicit value rather than an
// untyped constant.
type ProtocolVersion int

const (
	// HTTP11 represents HTTP/1.1
	HTTP11 ProtocolVersion = iota
)

// Origin identifies a pool partition the way the wire protocol does:
// scheme, host and port, never the raw "host:port" string a caller typed.
type Origin struct {
	Scheme string
	Host   string
	Port   int
}

func (o Origin) String() string {
	return o.Scheme + "://" + o.Host + ":" + strconv.Itoa(o.Port)
}

func (o Origin) hostPort() string {
	return o.Host + ":" + strconv.Itoa(o.Port)
}

// OriginFromRequest derives the pool Origin for a ClientRequest.
func OriginFromRequest(req *ClientRequest) Origin {
	scheme := string(req.GetScheme())
	if scheme == "" {
		scheme = "http"
	}
	port := string(req.GetPort())
	p, err := strconv.Atoi(port)
	if err != nil || p == 0 {
		p = 80
		if scheme == "https" {
			p = 443
		}
	}
	return Origin{Scheme: scheme, Host: string(req.GetHost()), Port: p}
}

// PoolConfig configures the connection pool.
type PoolConfig struct {
	// MaxConnections is the global cap on pooled (idle+active) connections
	// across all origins. Default 50.
	MaxConnections int
	// MaxConnsPerHost is the maximum number of connections per origin.
	MaxConnsPerHost int
	// MaxIdleConnsPerHost is the maximum idle connections per origin.
	MaxIdleConnsPerHost int
	// MaxIdleTime is how long idle connections are kept (idle_timeout). Default 300s.
	MaxIdleTime time.Duration
	// ConnTimeout is the timeout for establishing new connections
	ConnTimeout time.Duration
	// IdleCheckInterval is how often to sweep for idle/stale connections
	IdleCheckInterval time.Duration
	// HealthCheckInterval is how often to health check connections
	HealthCheckInterval time.Duration
	// HealthCheckTimeout is the timeout for health checks
	HealthCheckTimeout time.Duration
	// TLSConfig for secure connections
	TLSConfig *tls.Config
	// PreferredProtocol is the preferred HTTP version (HTTP11 always).
	PreferredProtocol ProtocolVersion
	// SocketTuning applies TCP-level socket options to every dialed
	// connection (TCP_NODELAY, buffer sizes). nil leaves OS defaults.
	SocketTuning *socket.Config
}

// DefaultPoolConfig returns sensible defaults, matching spec: 50 global
// connections, 300s idle timeout.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxConnections:      50,
		MaxConnsPerHost:     50,
		MaxIdleConnsPerHost: 10,
		MaxIdleTime:         300 * time.Second,
		ConnTimeout:         30 * time.Second,
		IdleCheckInterval:   30 * time.Second,
		HealthCheckInterval: 60 * time.Second,
		HealthCheckTimeout:  5 * time.Second,
		PreferredProtocol:   HTTP11,
	}
}

// PooledConn represents a pooled connection with metadata.
type PooledConn struct {
	conn         net.Conn
	origin       Origin
	protocol     ProtocolVersion
	createdAt    time.Time
	lastUsed     time.Time
	requestCount uint64
	healthy      atomic.Bool
	inUse        atomic.Bool
	pool         *ConnectionPool
	tlsState     *tls.ConnectionState
	mu           sync.RWMutex

	// lruPrev/lruNext thread this entry through the pool-wide idle LRU
	// list used for global-capacity eviction. Guarded by pool.lruMu.
	lruPrev *PooledConn
	lruNext *PooledConn

	// reactorFD is the descriptor registered with the pool's reactor.Loop
	// while this connection sits idle, or 0 if it isn't registered (TLS
	// connections, or a conn whose transport doesn't expose a raw fd).
	// Guarded by pool.lruMu, since registration always happens alongside
	// an LRU list operation.
	reactorFD int
}

// Conn returns the underlying connection
func (pc *PooledConn) Conn() net.Conn {
	return pc.conn
}

// Protocol returns the protocol version
func (pc *PooledConn) Protocol() ProtocolVersion {
	return pc.protocol
}

// Origin returns the (scheme, host, port) this connection was dialed for.
func (pc *PooledConn) Origin() Origin {
	return pc.origin
}

// IsHealthy returns whether the connection is healthy
func (pc *PooledConn) IsHealthy() bool {
	return pc.healthy.Load()
}

// MarkUnhealthy marks the connection as unhealthy
func (pc *PooledConn) MarkUnhealthy() {
	pc.healthy.Store(false)
}

// MarkHealthy marks the connection as healthy
func (pc *PooledConn) MarkHealthy() {
	pc.healthy.Store(true)
}

// IncrementRequests increments the request counter
func (pc *PooledConn) IncrementRequests() {
	atomic.AddUint64(&pc.requestCount, 1)
}

// RequestCount returns the number of requests made on this connection
func (pc *PooledConn) RequestCount() uint64 {
	return atomic.LoadUint64(&pc.requestCount)
}

// Age returns how long the connection has existed
func (pc *PooledConn) Age() time.Duration {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return time.Since(pc.createdAt)
}

// IdleTime returns how long the connection has been idle
func (pc *PooledConn) IdleTime() time.Duration {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return time.Since(pc.lastUsed)
}

// updateLastUsed updates the last used timestamp
func (pc *PooledConn) updateLastUsed() {
	pc.mu.Lock()
	pc.lastUsed = time.Now()
	pc.mu.Unlock()
}

// probeHalfClosed does a zero-byte-effective read with a short deadline to
// detect a peer that has closed its side while the connection sat idle.
// Returns false (unhealthy) on EOF or any non-timeout error.
func (pc *PooledConn) probeHalfClosed() bool {
	pc.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	var one [1]byte
	_, err := pc.conn.Read(one[:])
	pc.conn.SetReadDeadline(time.Time{})
	if err == nil {
		// Unexpected data on an idle connection: treat as unusable.
		return false
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}
	return false
}

// Close returns the connection to the pool (putConn closes it instead when
// it is unhealthy, past its idle time, or the idle list is full). A
// connection that belongs to no pool is closed outright.
func (pc *PooledConn) Close() error {
	if pc.pool != nil {
		pc.updateLastUsed()
		pc.inUse.Store(false)
		return pc.pool.putConn(pc)
	}
	return pc.conn.Close()
}

// Discard closes the underlying socket and removes the connection from the
// pool without returning it to idle. Callers use this after observing a
// response's "Connection: close" or after any I/O error mid-request.
func (pc *PooledConn) Discard() error {
	if pc.pool != nil {
		pc.pool.discardConn(pc)
	}
	return pc.conn.Close()
}

// originPool manages connections for a single origin.
type originPool struct {
	origin      Origin
	conns       []*PooledConn
	idleConns   chan *PooledConn
	config      *PoolConfig
	pool        *ConnectionPool
	mu          sync.RWMutex
	activeCount int32
	totalCount  int32
}

func newOriginPool(origin Origin, config *PoolConfig, pool *ConnectionPool) *originPool {
	return &originPool{
		origin:    origin,
		conns:     make([]*PooledConn, 0, config.MaxConnsPerHost),
		idleConns: make(chan *PooledConn, config.MaxIdleConnsPerHost),
		config:    config,
		pool:      pool,
	}
}

// get retrieves a live idle connection, probing for a half-closed peer.
func (op *originPool) get() *PooledConn {
	for {
		select {
		case conn := <-op.idleConns:
			if !conn.IsHealthy() || conn.IdleTime() >= op.config.MaxIdleTime || !conn.probeHalfClosed() {
				op.pool.unwatchIdle(conn)
				conn.conn.Close()
				atomic.AddInt32(&op.totalCount, -1)
				continue
			}
			conn.inUse.Store(true)
			atomic.AddInt32(&op.activeCount, 1)
			return conn
		default:
			return nil
		}
	}
}

func (op *originPool) add(conn *PooledConn) {
	op.mu.Lock()
	op.conns = append(op.conns, conn)
	op.mu.Unlock()
	atomic.AddInt32(&op.totalCount, 1)
}

func (op *originPool) remove(conn *PooledConn) {
	op.mu.Lock()
	defer op.mu.Unlock()
	for i, c := range op.conns {
		if c == conn {
			op.conns = append(op.conns[:i], op.conns[i+1:]...)
			atomic.AddInt32(&op.totalCount, -1)
			return
		}
	}
}

func (op *originPool) canCreate() bool {
	return int(atomic.LoadInt32(&op.totalCount)) < op.config.MaxConnsPerHost
}

func (op *originPool) activeConnections() int { return int(atomic.LoadInt32(&op.activeCount)) }
func (op *originPool) totalConnections() int  { return int(atomic.LoadInt32(&op.totalCount)) }

func (op *originPool) closeAll() {
	op.mu.Lock()
	conns := op.conns
	op.conns = nil
	op.mu.Unlock()

	close(op.idleConns)
	for conn := range op.idleConns {
		op.pool.unwatchIdle(conn)
		conn.conn.Close()
	}
	for _, conn := range conns {
		conn.conn.Close()
	}
	atomic.StoreInt32(&op.activeCount, 0)
	atomic.StoreInt32(&op.totalCount, 0)
}

// ConnectionPool manages pooled connections across origins, bounded by a
// single global capacity with least-recently-used eviction of idle
// entries, per spec's connection pool contract.
type ConnectionPool struct {
	config  *PoolConfig
	pools   map[Origin]*originPool
	poolsMu sync.RWMutex
	closed  atomic.Bool

	lruMu    sync.Mutex
	lruHead  *PooledConn // most recently released
	lruTail  *PooledConn // least recently released (next to evict)
	idleSize int

	stopChan    chan struct{}
	wg          sync.WaitGroup
	healthCheck HealthChecker

	// loop watches idle plain-TCP connections for peer-initiated close
	// (FIN or stray bytes) so a dead socket is evicted the instant the
	// reactor observes it readable, instead of waiting for the next
	// acquisition's probeHalfClosed or the periodic idle sweep. TLS
	// connections aren't registered (see transport.NonBlockingConn) and
	// keep relying on the periodic/acquire-time checks alone. loop is
	// nil if the backend couldn't be created, in which case watching is
	// skipped entirely and the pool behaves exactly as before.
	loop *reactor.Loop
}

// NewConnectionPool creates a new connection pool.
func NewConnectionPool(config *PoolConfig) *ConnectionPool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if config.MaxConnections <= 0 {
		config.MaxConnections = 50
	}

	pool := &ConnectionPool{
		config:   config,
		pools:    make(map[Origin]*originPool),
		stopChan: make(chan struct{}),
	}

	if loop, err := reactor.NewLoop(); err == nil {
		pool.loop = loop
		go loop.Run()
	}

	pool.wg.Add(2)
	go pool.idleConnectionCleaner()
	go pool.healthCheckWorker()

	return pool
}

// watchIdle registers conn's descriptor with the pool's reactor so a
// peer-initiated close is detected while the connection sits idle,
// instead of only at the next probeHalfClosed. It is a no-op for
// connections whose transport doesn't implement transport.NonBlockingConn
// (TLS connections) or when the pool has no reactor loop.
func (cp *ConnectionPool) watchIdle(conn *PooledConn) {
	if cp.loop == nil {
		return
	}
	nb, ok := conn.conn.(transport.NonBlockingConn)
	if !ok {
		return
	}
	fd, err := nb.Fd()
	if err != nil {
		return
	}
	if err := cp.loop.Add(fd, reactor.Read, cp.onIdleReadable, conn); err != nil {
		return
	}
	conn.reactorFD = fd
}

// unwatchIdle removes conn's reactor registration, if any. Callers must
// hold nothing special; it's idempotent and safe to call on a connection
// that was never registered.
func (cp *ConnectionPool) unwatchIdle(conn *PooledConn) {
	if cp.loop == nil || conn.reactorFD == 0 {
		return
	}
	cp.loop.Remove(conn.reactorFD)
	conn.reactorFD = 0
}

// onIdleReadable runs on the reactor's own goroutine when an idle
// connection's descriptor reports readable: either the peer sent
// unexpected bytes or closed its side. Either way the connection is no
// longer reusable, so it's marked unhealthy and closed immediately rather
// than left for the next acquisition to discover via probeHalfClosed.
func (cp *ConnectionPool) onIdleReadable(fd int, ready reactor.Interest) {
	data, ok := cp.loop.Lookup(fd)
	if !ok {
		return
	}
	conn := data.(*PooledConn)
	conn.MarkUnhealthy()
	cp.loop.Remove(fd)
	conn.reactorFD = 0
}

// SetHealthChecker sets the health checker
func (cp *ConnectionPool) SetHealthChecker(hc HealthChecker) {
	cp.healthCheck = hc
}

// GetConn acquires a connection for the given origin.
func (cp *ConnectionPool) GetConn(ctx context.Context, origin Origin, protocol ProtocolVersion) (*PooledConn, error) {
	if cp.closed.Load() {
		return nil, ErrPoolClosed
	}

	op := cp.getOrCreateOriginPool(origin)

	if conn := op.get(); conn != nil {
		cp.lruRemove(conn)
		cp.unwatchIdle(conn)
		return conn, nil
	}

	if op.canCreate() && cp.globalCount() < cp.config.MaxConnections {
		conn, err := cp.createConnection(ctx, origin, protocol)
		if err != nil {
			return nil, err
		}
		op.add(conn)
		conn.inUse.Store(true)
		atomic.AddInt32(&op.activeCount, 1)
		return conn, nil
	}

	// At global capacity: evict the least-recently-used idle connection
	// anywhere in the pool to make room, per spec's LRU eviction rule.
	if cp.evictGlobalLRU() {
		if op.canCreate() {
			conn, err := cp.createConnection(ctx, origin, protocol)
			if err == nil {
				op.add(conn)
				conn.inUse.Store(true)
				atomic.AddInt32(&op.activeCount, 1)
				return conn, nil
			}
		}
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	deadline, hasDeadline := ctx.Deadline()
	timeout := cp.config.ConnTimeout
	if hasDeadline {
		timeout = time.Until(deadline)
	}

	timeoutTimer := time.NewTimer(timeout)
	defer timeoutTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeoutTimer.C:
			return nil, ErrConnTimeout
		case <-ticker.C:
			if conn := op.get(); conn != nil {
				cp.lruRemove(conn)
				cp.unwatchIdle(conn)
				return conn, nil
			}
			if op.canCreate() && cp.globalCount() < cp.config.MaxConnections {
				conn, err := cp.createConnection(ctx, origin, protocol)
				if err == nil {
					op.add(conn)
					conn.inUse.Store(true)
					atomic.AddInt32(&op.activeCount, 1)
					return conn, nil
				}
			}
		}
	}
}

func (cp *ConnectionPool) globalCount() int {
	cp.poolsMu.RLock()
	defer cp.poolsMu.RUnlock()
	total := 0
	for _, op := range cp.pools {
		total += op.totalConnections()
	}
	return total
}

// putConn returns a connection to idle, closing it outright when the pool
// is shutting down, the connection is unhealthy or past MaxIdleTime, or the
// origin's idle list is full. Connection: close responses never reach here;
// ClientResponse.Close discards those connections instead.
func (cp *ConnectionPool) putConn(conn *PooledConn) error {
	if cp.closed.Load() {
		return conn.conn.Close()
	}

	op := cp.getOriginPool(conn.origin)
	if op == nil {
		return conn.conn.Close()
	}

	if !conn.IsHealthy() || conn.IdleTime() > op.config.MaxIdleTime {
		op.remove(conn)
		return conn.conn.Close()
	}

	atomic.AddInt32(&op.activeCount, -1)

	select {
	case op.idleConns <- conn:
		cp.lruPushFront(conn)
		cp.watchIdle(conn)
		return nil
	default:
		op.remove(conn)
		return conn.conn.Close()
	}
}

// discardConn removes a connection from pool bookkeeping without putting
// it back on the idle list. Used after Connection:close or I/O errors.
func (cp *ConnectionPool) discardConn(conn *PooledConn) {
	op := cp.getOriginPool(conn.origin)
	if op == nil {
		return
	}
	op.remove(conn)
	atomic.AddInt32(&op.activeCount, -1)
}

func (cp *ConnectionPool) lruPushFront(conn *PooledConn) {
	cp.lruMu.Lock()
	defer cp.lruMu.Unlock()
	conn.lruPrev = nil
	conn.lruNext = cp.lruHead
	if cp.lruHead != nil {
		cp.lruHead.lruPrev = conn
	}
	cp.lruHead = conn
	if cp.lruTail == nil {
		cp.lruTail = conn
	}
	cp.idleSize++
}

func (cp *ConnectionPool) lruRemove(conn *PooledConn) {
	cp.lruMu.Lock()
	defer cp.lruMu.Unlock()
	if conn.lruPrev == nil && conn.lruNext == nil && cp.lruHead != conn {
		return // not in the list
	}
	if conn.lruPrev != nil {
		conn.lruPrev.lruNext = conn.lruNext
	} else if cp.lruHead == conn {
		cp.lruHead = conn.lruNext
	}
	if conn.lruNext != nil {
		conn.lruNext.lruPrev = conn.lruPrev
	} else if cp.lruTail == conn {
		cp.lruTail = conn.lruPrev
	}
	conn.lruPrev = nil
	conn.lruNext = nil
	cp.idleSize--
}

// evictGlobalLRU closes and removes the globally least-recently-used idle
// connection. Returns true if an entry was evicted.
func (cp *ConnectionPool) evictGlobalLRU() bool {
	cp.lruMu.Lock()
	victim := cp.lruTail
	if victim == nil {
		cp.lruMu.Unlock()
		return false
	}
	if victim.lruPrev != nil {
		victim.lruPrev.lruNext = nil
	} else {
		cp.lruHead = nil
	}
	cp.lruTail = victim.lruPrev
	victim.lruPrev = nil
	victim.lruNext = nil
	cp.idleSize--
	cp.lruMu.Unlock()

	op := cp.getOriginPool(victim.origin)
	if op != nil {
		// Drain it out of the origin's idle channel if still sitting there.
		select {
		case drained := <-op.idleConns:
			if drained != victim {
				// Put back what we drained; rare race, keep things simple.
				select {
				case op.idleConns <- drained:
				default:
					cp.unwatchIdle(drained)
					drained.conn.Close()
					op.remove(drained)
				}
			}
		default:
		}
		op.remove(victim)
	}
	cp.unwatchIdle(victim)
	victim.conn.Close()
	return true
}

func (cp *ConnectionPool) getOrCreateOriginPool(origin Origin) *originPool {
	cp.poolsMu.RLock()
	op, exists := cp.pools[origin]
	cp.poolsMu.RUnlock()
	if exists {
		return op
	}

	cp.poolsMu.Lock()
	defer cp.poolsMu.Unlock()
	if op, exists := cp.pools[origin]; exists {
		return op
	}
	op = newOriginPool(origin, cp.config, cp)
	cp.pools[origin] = op
	return op
}

func (cp *ConnectionPool) getOriginPool(origin Origin) *originPool {
	cp.poolsMu.RLock()
	defer cp.poolsMu.RUnlock()
	return cp.pools[origin]
}

func (cp *ConnectionPool) createConnection(ctx context.Context, origin Origin, protocol ProtocolVersion) (*PooledConn, error) {
	dialer := &transport.Dialer{DialTimeout: cp.config.ConnTimeout, SocketTuning: cp.config.SocketTuning}

	var conn net.Conn
	var err error

	addr := origin.hostPort()
	if origin.Scheme == "https" {
		tlsConfig := cp.config.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{ServerName: origin.Host}
		} else if tlsConfig.ServerName == "" {
			clone := tlsConfig.Clone()
			clone.ServerName = origin.Host
			tlsConfig = clone
		}
		tr, dialErr := dialer.DialTLS(ctx, addr, tlsConfig)
		if dialErr == nil {
			dialErr = tr.Handshake(ctx)
		}
		conn, err = tr, dialErr
	} else {
		conn, err = dialer.DialTCP(ctx, addr)
	}

	if err != nil {
		return nil, shockerr.New(shockerr.CodeNetwork, fmt.Sprintf("ConnectionPool.createConnection(%s)", origin), err)
	}

	pooledConn := &PooledConn{
		conn:      conn,
		origin:    origin,
		protocol:  protocol,
		createdAt: time.Now(),
		lastUsed:  time.Now(),
		pool:      cp,
	}
	pooledConn.healthy.Store(true)

	if tlsConn, ok := conn.(interface{ ConnectionState() tls.ConnectionState }); ok {
		state := tlsConn.ConnectionState()
		pooledConn.tlsState = &state
	}

	return pooledConn, nil
}

func (cp *ConnectionPool) idleConnectionCleaner() {
	defer cp.wg.Done()

	ticker := time.NewTicker(cp.config.IdleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cp.stopChan:
			return
		case <-ticker.C:
			cp.cleanIdleConnections()
		}
	}
}

func (cp *ConnectionPool) cleanIdleConnections() {
	cp.poolsMu.RLock()
	pools := make([]*originPool, 0, len(cp.pools))
	for _, op := range cp.pools {
		pools = append(pools, op)
	}
	cp.poolsMu.RUnlock()

	for _, op := range pools {
		op.mu.RLock()
		conns := make([]*PooledConn, len(op.conns))
		copy(conns, op.conns)
		op.mu.RUnlock()

		for _, conn := range conns {
			if !conn.inUse.Load() && conn.IdleTime() > cp.config.MaxIdleTime {
				cp.lruRemove(conn)
				cp.unwatchIdle(conn)
				op.remove(conn)
				conn.conn.Close()
			}
		}
	}
}

func (cp *ConnectionPool) healthCheckWorker() {
	defer cp.wg.Done()

	if cp.config.HealthCheckInterval == 0 {
		return
	}

	ticker := time.NewTicker(cp.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cp.stopChan:
			return
		case <-ticker.C:
			cp.performHealthChecks()
		}
	}
}

func (cp *ConnectionPool) performHealthChecks() {
	if cp.healthCheck == nil {
		return
	}

	cp.poolsMu.RLock()
	pools := make([]*originPool, 0, len(cp.pools))
	for _, op := range cp.pools {
		pools = append(pools, op)
	}
	cp.poolsMu.RUnlock()

	for _, op := range pools {
		op.mu.RLock()
		conns := make([]*PooledConn, len(op.conns))
		copy(conns, op.conns)
		op.mu.RUnlock()

		for _, conn := range conns {
			if !conn.inUse.Load() {
				ctx, cancel := context.WithTimeout(context.Background(), cp.config.HealthCheckTimeout)
				if err := cp.healthCheck.Check(ctx, conn); err != nil {
					conn.MarkUnhealthy()
					cp.lruRemove(conn)
					cp.unwatchIdle(conn)
					op.remove(conn)
					conn.conn.Close()
				}
				cancel()
			}
		}
	}
}

// Stats returns pool statistics
func (cp *ConnectionPool) Stats() PoolStats {
	cp.poolsMu.RLock()
	defer cp.poolsMu.RUnlock()

	stats := PoolStats{
		Origins: make(map[string]HostStats, len(cp.pools)),
	}

	for origin, op := range cp.pools {
		hs := HostStats{
			Total:  op.totalConnections(),
			Active: op.activeConnections(),
			Idle:   op.totalConnections() - op.activeConnections(),
		}
		stats.Origins[origin.String()] = hs
		stats.TotalConns += hs.Total
		stats.ActiveConns += hs.Active
		stats.IdleConns += hs.Idle
	}

	return stats
}

// PoolStats contains pool statistics
type PoolStats struct {
	TotalConns  int
	ActiveConns int
	IdleConns   int
	Origins     map[string]HostStats
}

// HostStats contains per-origin statistics
type HostStats struct {
	Total  int
	Active int
	Idle   int
}

// Close closes the connection pool
func (cp *ConnectionPool) Close() error {
	if !cp.closed.CompareAndSwap(false, true) {
		return ErrPoolClosed
	}

	close(cp.stopChan)
	cp.wg.Wait()

	if cp.loop != nil {
		cp.loop.Stop()
	}

	cp.poolsMu.Lock()
	defer cp.poolsMu.Unlock()

	for _, op := range cp.pools {
		op.closeAll()
	}

	cp.pools = nil
	return nil
}
