// Package testhelpers provides common utilities for driving a running chat
// server end to end.
//
// It starts a server on loopback ports and offers a line client that works
// over TCP or WebSocket, so integration tests read the same way whichever
// transport they exercise.
package testhelpers

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/linechat/internal/server"
)

// DefaultTimeout bounds every wait on a line or a state change.
const DefaultTimeout = 3 * time.Second

// TestOrigin is the origin accepted by the default configuration.
const TestOrigin = "http://localhost:8080"

// TestServer is a chat server listening on loopback ports.
type TestServer struct {
	*server.Server
	Addr   string
	WSURL  string
	Hook   *test.Hook
	Served chan error
}

// StartServer runs a server with the default configuration on ephemeral
// TCP and WebSocket ports. It is shut down when the test ends.
func StartServer(t *testing.T) *TestServer {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	realm, err := server.NewRealm("127.0.0.1")
	require.NoError(t, err)
	srv := server.New(server.DefaultConfig(), realm, log)

	tcpLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	wsLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ts := &TestServer{
		Server: srv,
		Addr:   tcpLn.Addr().String(),
		WSURL:  "ws://" + wsLn.Addr().String() + "/ws",
		Hook:   hook,
		Served: make(chan error, 2),
	}
	go func() { ts.Served <- srv.Serve(tcpLn) }()
	go func() { ts.Served <- srv.ServeWebSocket(wsLn) }()

	t.Cleanup(func() { _ = srv.Shutdown(DefaultTimeout) })
	return ts
}

// LineClient is one connected peer. Lines from the server are buffered in
// arrival order.
type LineClient struct {
	t     *testing.T
	w     io.Writer
	close func() error
	lines chan string
}

func newLineClient(t *testing.T, r io.Reader, w io.Writer, closeFn func() error) *LineClient {
	c := &LineClient{t: t, w: w, close: closeFn, lines: make(chan string, 4096)}
	go func() {
		defer close(c.lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			c.lines <- scanner.Text()
		}
	}()
	t.Cleanup(func() { _ = closeFn() })
	return c
}

// DialTCP connects a line client to addr.
func DialTCP(t *testing.T, addr string) *LineClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, DefaultTimeout)
	require.NoError(t, err)
	return newLineClient(t, conn, conn, conn.Close)
}

// DialWebSocket connects a line client to url, presenting origin when it is
// not empty. Each frame received becomes one line.
func DialWebSocket(t *testing.T, url, origin string) *LineClient {
	t.Helper()
	conn, err := ConnectWebSocket(url, origin)
	require.NoError(t, err)

	r, w := io.Pipe()
	go func() {
		defer w.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if _, err := w.Write(append(data, '\n')); err != nil {
				return
			}
		}
	}()
	return newLineClient(t, r, frameWriter{conn}, conn.Close)
}

// ConnectWebSocket dials url and returns the raw connection.
func ConnectWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

type frameWriter struct{ conn *websocket.Conn }

func (f frameWriter) Write(p []byte) (int, error) {
	line := strings.TrimSuffix(string(p), "\n")
	if err := f.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Send writes one line.
func (c *LineClient) Send(line string) {
	c.t.Helper()
	_, err := fmt.Fprintln(c.w, line)
	require.NoError(c.t, err)
}

// WaitFor skips lines until one contains substr and returns it.
func (c *LineClient) WaitFor(substr string) string {
	c.t.Helper()
	deadline := time.After(DefaultTimeout)
	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				c.t.Fatalf("connection closed while waiting for %q", substr)
			}
			if strings.Contains(line, substr) {
				return line
			}
		case <-deadline:
			c.t.Fatalf("timed out waiting for %q", substr)
		}
	}
}

// CollectUntil returns every line up to and including the first containing
// substr.
func (c *LineClient) CollectUntil(substr string) []string {
	c.t.Helper()
	var seen []string
	deadline := time.After(DefaultTimeout)
	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				c.t.Fatalf("connection closed while waiting for %q", substr)
			}
			seen = append(seen, line)
			if strings.Contains(line, substr) {
				return seen
			}
		case <-deadline:
			c.t.Fatalf("timed out waiting for %q", substr)
		}
	}
}

// Join answers the username prompt and waits for acceptance.
func (c *LineClient) Join(name string) {
	c.t.Helper()
	c.WaitFor(server.UsernamePrompt)
	c.Send(name)
	c.WaitFor(server.UsernameAccepted)
}

// WaitClosed drains lines until the server closes the connection and
// returns what was drained.
func (c *LineClient) WaitClosed() []string {
	c.t.Helper()
	var seen []string
	deadline := time.After(DefaultTimeout)
	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				return seen
			}
			seen = append(seen, line)
		case <-deadline:
			c.t.Fatal("connection still open")
		}
	}
}

// Close drops the connection from the client side.
func (c *LineClient) Close() {
	_ = c.close()
}
