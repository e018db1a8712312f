package websocket

import (
	"errors"
	"io"
)

// EventHandler drives a *Conn from a callback surface instead of a
// manual ReadMessage loop, for callers that would rather register
// OnMessage/OnClose/OnError once and let Run pump the connection.
type EventHandler struct {
	// OnOpen is invoked once, before the first ReadMessage call.
	OnOpen func(c *Conn)

	// OnMessage is invoked for every complete data message (text or
	// binary). opcode is TextMessage or BinaryMessage.
	OnMessage func(c *Conn, opcode MessageType, data []byte)

	// OnClose is invoked when the peer closes the connection cleanly,
	// with the close code and reason it sent (or
	// CloseNoStatusReceived/"" if it sent none).
	OnClose func(c *Conn, code uint16, reason string)

	// OnError is invoked for any read error other than a clean close.
	// Run returns after calling OnError.
	OnError func(c *Conn, err error)
}

// Run pumps messages from conn until the connection closes or a
// non-close error occurs, dispatching to the configured callbacks. It
// blocks until then, so callers typically invoke it in its own
// goroutine per connection. Run always leaves conn closed on return.
func (h *EventHandler) Run(c *Conn) {
	defer c.Close()

	if h.OnOpen != nil {
		h.OnOpen(c)
	}

	for {
		opcode, data, err := c.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if h.OnClose != nil {
					code, reason := c.CloseStatus()
					h.OnClose(c, code, reason)
				}
				return
			}
			if h.OnError != nil {
				h.OnError(c, err)
			}
			return
		}

		if h.OnMessage != nil {
			h.OnMessage(c, opcode, data)
		}
	}
}
