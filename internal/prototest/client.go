package prototest

import (
	"bufio"
	"net"
	"strings"
	"testing"

	"github.com/udisondev/tttserver/internal/protocol"
)

// Client is a minimal frame-level stand-in for the interactive client
// described by original_source/cli.c: it writes whatever frame the test
// tells it to and reads back whatever the server sends, with no
// interpretation of either beyond protocol decoding. Integration tests use
// it to script both sides of a game without standing up a real terminal.
//
// Recv parses with protocol.ParseLine rather than protocol.Reader, since a
// Reader enforces the client-bound command set and this Client also needs
// to decode server-originated frames (WAIT, BEGN, INVL, OVER, MOVD).
type Client struct {
	t    testing.TB
	conn net.Conn
	r    *bufio.Reader
}

// NewClient wraps conn for frame-level scripting in a test.
func NewClient(t testing.TB, conn net.Conn) *Client {
	t.Helper()
	return &Client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

// Send writes cmd with fields as a frame, failing the test on any error.
func (c *Client) Send(cmd string, fields ...string) {
	c.t.Helper()
	if err := protocol.WriteFrame(c.conn, cmd, fields...); err != nil {
		c.t.Fatalf("writing %s frame: %v", cmd, err)
	}
}

// Recv reads and decodes the next frame, failing the test on any error.
func (c *Client) Recv() protocol.Frame {
	c.t.Helper()
	line, err := c.r.ReadString('\n')
	if err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	f, err := protocol.ParseLine([]byte(strings.TrimSuffix(line, "\n")))
	if err != nil {
		c.t.Fatalf("decoding frame %q: %v", line, err)
	}
	return f
}

// RecvCmd reads the next frame and asserts its command, failing the test if
// it doesn't match.
func (c *Client) RecvCmd(want string) protocol.Frame {
	c.t.Helper()
	f := c.Recv()
	if f.Cmd != want {
		c.t.Fatalf("expected %s, got %s %v", want, f.Cmd, f.Fields)
	}
	return f
}
