package network

import (
	"bytes"
	"context"
	"net"
	"time"
)

var (
	icyToken  = []byte("ICY")
	httpToken = []byte("HTTP/1.0")
)

// icyConn rewrites a leading "ICY" status token into "HTTP/1.0" so that
// SHOUTcast-era servers can be parsed by net/http.
type icyConn struct {
	net.Conn
	checked bool
	pending []byte
}

func (c *icyConn) Read(p []byte) (int, error) {
	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}
	if c.checked {
		return c.Conn.Read(p)
	}

	// Collect enough bytes to recognise the token.
	head := make([]byte, 0, len(icyToken))
	buf := make([]byte, len(icyToken))
	for len(head) < len(icyToken) {
		n, err := c.Conn.Read(buf[:len(icyToken)-len(head)])
		head = append(head, buf[:n]...)
		if err != nil {
			c.checked = true
			return copy(p, head), err
		}
		if !bytes.HasPrefix(icyToken, head) {
			break
		}
	}
	c.checked = true

	if bytes.Equal(head, icyToken) {
		head = append([]byte(nil), httpToken...)
	}
	n := copy(p, head)
	c.pending = head[n:]
	return n, nil
}

// icyDialer returns a DialContext that wraps every connection in icyConn.
func icyDialer(timeout time.Duration) func(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return &icyConn{Conn: conn}, nil
	}
}
