package client

// CompactHeaders is a memory-efficient header storage using a single buffer.
// Instead of 12KB of inline arrays, this uses a 1KB buffer for actual header data.
//
// Memory comparison:
// - Old ClientHeaders: 12,368 bytes (4KB names + 8KB values + overhead)
// - CompactHeaders: ~1,136 bytes (1KB buffer + 64-byte index + 32-byte name lengths + overhead)
// - Savings: ~11KB per request (91% reduction)
//
// Design:
// - Single buffer stores "name: value\r\n" for all headers
// - Index array stores offsets into buffer
// - Supports up to 32 headers with inline storage
// - Falls back to map for >32 headers or once the 1KB buffer is full
type CompactHeaders struct {
	// Single buffer for all header data: "Name: Value\r\n..."
	// Format: Each header is stored as "Name: Value\r\n"
	// This makes WriteTo() zero-copy - just write the buffer!
	// 1024 bytes is enough for typical requests (avg ~500-600 bytes of headers)
	buf [1024]byte
	bufLen uint16

	// Index stores start positions of each header in buf
	// Each entry points to the start of "Name" in "Name: Value\r\n"
	index [32]uint16

	// Lengths of each header's name and value
	nameLens [32]uint8

	// Number of headers
	count uint8

	// Overflow for >32 headers (very rare)
	overflow map[string]string
}

// Add adds a header to the collection.
// For ≤32 headers, this performs zero allocations.
//
// Allocation behavior: 0 allocs/op for ≤32 headers
func (h *CompactHeaders) Add(name, value []byte) {
	// Validate lengths
	if len(name) > 255 {
		// Name too long, skip
		return
	}

	// Calculate total size needed: "Name: Value\r\n"
	totalSize := len(name) + 2 + len(value) + 2 // +2 for ": ", +2 for "\r\n"

	// Fast path: fits in inline storage
	if h.count < 32 && int(h.bufLen)+totalSize <= len(h.buf) {
		idx := h.count
		start := h.bufLen

		// Store in index
		h.index[idx] = start
		h.nameLens[idx] = uint8(len(name))

		// Write "Name: Value\r\n" into buffer
		pos := int(start)
		copy(h.buf[pos:], name)
		pos += len(name)

		copy(h.buf[pos:], colonSpaceBytes)
		pos += 2

		copy(h.buf[pos:], value)
		pos += len(value)

		copy(h.buf[pos:], crlfBytes)
		pos += 2

		h.bufLen = uint16(pos)
		h.count++
		return
	}

	// Slow path: overflow storage (rare case)
	if h.overflow == nil {
		h.overflow = make(map[string]string, 8)
	}
	h.overflow[string(name)] = string(value)
}

// AddString adds a header with string name and value.
// Uses unsafe conversion to avoid allocations.
//
// Allocation behavior: 0 allocs/op for inline storage
func (h *CompactHeaders) AddString(name, value string) {
	// Use unsafe conversion to avoid allocation
	nameBytes := stringToBytesUnsafe(name)
	valueBytes := stringToBytesUnsafe(value)
	h.Add(nameBytes, valueBytes)
}

// Get retrieves a header value by name (case-insensitive).
// Returns nil if the header is not found.
//
// Allocation behavior: 0 allocs/op for inline storage lookup
func (h *CompactHeaders) Get(name []byte) []byte {
	// Search inline storage
	for i := uint8(0); i < h.count; i++ {
		start := h.index[i]
		nameLen := h.nameLens[i]

		// Extract name from buffer
		headerName := h.buf[start : start+uint16(nameLen)]

		if bytesEqualCaseInsensitive(headerName, name) {
			// Found! Extract value
			// Value starts after "Name: " and goes until "\r\n"
			valueStart := start + uint16(nameLen) + 2 // +2 for ": "

			// Find "\r\n" to get value end
			valueEnd := valueStart
			for valueEnd < h.bufLen && h.buf[valueEnd] != '\r' {
				valueEnd++
			}

			return h.buf[valueStart:valueEnd]
		}
	}

	// Check overflow storage if present
	if h.overflow != nil {
		for k, val := range h.overflow {
			if bytesEqualCaseInsensitive(stringToBytesUnsafe(k), name) {
				return []byte(val)
			}
		}
	}

	return nil
}

// GetAllString returns every value stored under name (case-insensitive),
// in insertion order. Headers like Set-Cookie may legitimately repeat.
func (h *CompactHeaders) GetAllString(name string) []string {
	nameBytes := stringToBytesUnsafe(name)
	var values []string
	for i := uint8(0); i < h.count; i++ {
		start := h.index[i]
		nameLen := h.nameLens[i]
		headerName := h.buf[start : start+uint16(nameLen)]
		if !bytesEqualCaseInsensitive(headerName, nameBytes) {
			continue
		}
		valueStart := start + uint16(nameLen) + 2
		valueEnd := valueStart
		for valueEnd < h.bufLen && h.buf[valueEnd] != '\r' {
			valueEnd++
		}
		values = append(values, string(h.buf[valueStart:valueEnd]))
	}
	if h.overflow != nil {
		for k, v := range h.overflow {
			if bytesEqualCaseInsensitive(stringToBytesUnsafe(k), nameBytes) {
				values = append(values, v)
			}
		}
	}
	return values
}

// GetString retrieves a header value as a string (case-insensitive).
// Returns empty string if not found.
//
// Allocation behavior: 1 alloc/op (string conversion)
func (h *CompactHeaders) GetString(name string) string {
	// Fast path: check for common headers with pre-defined byte slices
	var nameBytes []byte
	switch name {
	case "Content-Type":
		nameBytes = headerContentType
	case "Content-Length":
		nameBytes = headerContentLength
	case "Transfer-Encoding":
		nameBytes = headerTransferEncoding
	case "Connection":
		nameBytes = headerConnection
	case "Host":
		nameBytes = headerHost
	case "User-Agent":
		nameBytes = headerUserAgent
	default:
		nameBytes = []byte(name)
	}

	val := h.Get(nameBytes)
	if val == nil {
		return ""
	}
	return string(val)
}

// Has checks if a header exists (case-insensitive).
//
// Allocation behavior: 0 allocs/op
func (h *CompactHeaders) Has(name []byte) bool {
	return h.Get(name) != nil
}

// Set sets a header value, replacing any existing value.
//
// Allocation behavior: 0 allocs/op for inline storage
func (h *CompactHeaders) Set(name, value []byte) {
	// Try to find and update existing header
	for i := uint8(0); i < h.count; i++ {
		start := h.index[i]
		nameLen := h.nameLens[i]
		headerName := h.buf[start : start+uint16(nameLen)]

		if bytesEqualCaseInsensitive(headerName, name) {
			// Found existing header - need to remove and re-add
			// This is complex, so just use Del + Add for now
			h.Del(name)
			h.Add(name, value)
			return
		}
	}

	// Check overflow storage
	if h.overflow != nil {
		nameStr := string(name)
		if _, exists := h.overflow[nameStr]; exists {
			h.overflow[nameStr] = string(value)
			return
		}
	}

	// Header doesn't exist, add it
	h.Add(name, value)
}

// SetString sets a header with string name and value.
// Uses unsafe conversion to avoid allocations.
//
// Allocation behavior: 0 allocs/op for inline storage
func (h *CompactHeaders) SetString(name, value string) {
	nameBytes := stringToBytesUnsafe(name)
	valueBytes := stringToBytesUnsafe(value)
	h.Set(nameBytes, valueBytes)
}

// Del deletes a header by name (case-insensitive).
//
// Allocation behavior: 0 allocs/op
func (h *CompactHeaders) Del(name []byte) {
	// Find and remove from inline storage
	for i := uint8(0); i < h.count; i++ {
		start := h.index[i]
		nameLen := h.nameLens[i]
		headerName := h.buf[start : start+uint16(nameLen)]

		if bytesEqualCaseInsensitive(headerName, name) {
			// Remove by shifting remaining headers
			// This is expensive but Del is rarely used in hot path
			for j := i; j < h.count-1; j++ {
				h.index[j] = h.index[j+1]
				h.nameLens[j] = h.nameLens[j+1]
			}
			h.count--
			// Note: We don't compact the buffer to avoid complexity
			// The "dead" space will be reused on Reset()
			return
		}
	}

	// Remove from overflow
	if h.overflow != nil {
		for k := range h.overflow {
			if bytesEqualCaseInsensitive(stringToBytesUnsafe(k), name) {
				delete(h.overflow, k)
			}
		}
	}
}

// Count returns the number of headers.
//
// Allocation behavior: 0 allocs/op
func (h *CompactHeaders) Count() int {
	count := int(h.count)
	if h.overflow != nil {
		count += len(h.overflow)
	}
	return count
}

// Reset clears all headers, preparing for reuse.
//
// Allocation behavior: 0 allocs/op
func (h *CompactHeaders) Reset() {
	h.bufLen = 0
	h.count = 0

	// Clear overflow map if it exists
	if h.overflow != nil {
		for k := range h.overflow {
			delete(h.overflow, k)
		}
	}
}

// WriteTo writes all headers to the given buffer in HTTP format.
// This is extremely efficient because headers are already in the right format!
//
// Allocation behavior: 0 allocs/op (buffer grows as needed)
func (h *CompactHeaders) WriteTo(buf []byte) []byte {
	// Fast path: headers are already formatted in our buffer!
	// Just append the used portion
	buf = append(buf, h.buf[:h.bufLen]...)

	// Write overflow headers (rare)
	if h.overflow != nil {
		for name, value := range h.overflow {
			buf = append(buf, []byte(name)...)
			buf = append(buf, colonSpaceBytes...)
			buf = append(buf, []byte(value)...)
			buf = append(buf, crlfBytes...)
		}
	}

	return buf
}

// ForEach iterates over all headers.
// The callback receives name and value byte slices.
// Do NOT store these byte slices - they reference internal storage.
//
// Allocation behavior: 0 allocs/op (plus callback allocations)
func (h *CompactHeaders) ForEach(fn func(name, value []byte)) {
	// Iterate inline storage
	for i := uint8(0); i < h.count; i++ {
		start := h.index[i]
		nameLen := h.nameLens[i]

		// Extract name
		name := h.buf[start : start+uint16(nameLen)]

		// Extract value (starts after ": " and ends before "\r\n")
		valueStart := start + uint16(nameLen) + 2
		valueEnd := valueStart
		for valueEnd < h.bufLen && h.buf[valueEnd] != '\r' {
			valueEnd++
		}
		value := h.buf[valueStart:valueEnd]

		fn(name, value)
	}

	// Iterate overflow
	if h.overflow != nil {
		for name, value := range h.overflow {
			fn([]byte(name), []byte(value))
		}
	}
}
