package client

// ClientHeaders is an alias for CompactHeaders for API compatibility.
// The compact implementation reduces memory from 12KB to about 1.1KB per instance.
type ClientHeaders = CompactHeaders
