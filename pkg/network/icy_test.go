package network

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trickleConn hands out its payload one byte per Read.
type trickleConn struct {
	net.Conn
	r *bytes.Reader
}

func (c *trickleConn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return c.r.Read(p[:1])
}

func TestIcyConn_Rewrite(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "icy status", in: "ICY 200 OK\r\n\r\n", want: "HTTP/1.0 200 OK\r\n\r\n"},
		{name: "http status", in: "HTTP/1.1 200 OK\r\n\r\n", want: "HTTP/1.1 200 OK\r\n\r\n"},
		{name: "short", in: "IC", want: "IC"},
		{name: "icy only in body", in: "HTTP/1.0 200 OK\r\n\r\nICY", want: "HTTP/1.0 200 OK\r\n\r\nICY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &icyConn{Conn: &trickleConn{r: bytes.NewReader([]byte(tt.in))}}
			got, err := io.ReadAll(conn)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestFetch_IcyServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// Drain the request head before answering.
		br := bufio.NewReader(conn)
		for {
			line, err := br.ReadString('\n')
			if err != nil || line == "\r\n" {
				break
			}
		}
		_, _ = conn.Write([]byte("ICY 200 OK\r\nicy-name: Test FM\r\nicy-br: 128\r\n\r\naudio"))
	}()

	c := newTestClient(t, testConfig())
	resp, err := c.Fetch(context.Background(), Request{URL: "http://" + ln.Addr().String() + "/"})
	require.NoError(t, err)

	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "Test FM", resp.Header.Get("icy-name"))
	assert.Equal(t, "audio", string(resp.Body))
}
