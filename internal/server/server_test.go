package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	srv := New(DefaultConfig(), Realm{
		StartedAt:     time.Now(),
		AdminPasscode: "4321",
		Address:       "127.0.0.1",
	}, log)
	t.Cleanup(func() { _ = srv.Shutdown(waitTimeout) })
	return srv, hook
}

// serveTCP starts srv on a loopback port and returns its address.
func serveTCP(t *testing.T, srv *Server) (string, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()
	return ln.Addr().String(), served
}

// linePeer speaks the line protocol over any byte stream.
type linePeer struct {
	t     *testing.T
	w     io.Writer
	lines chan string
}

func newLinePeer(t *testing.T, r io.Reader, w io.Writer) *linePeer {
	p := &linePeer{t: t, w: w, lines: make(chan string, 1024)}
	go func() {
		defer close(p.lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			p.lines <- scanner.Text()
		}
	}()
	return p
}

func dialPeer(t *testing.T, addr string) *linePeer {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return newLinePeer(t, conn, conn)
}

func (p *linePeer) send(line string) {
	p.t.Helper()
	_, err := fmt.Fprintln(p.w, line)
	require.NoError(p.t, err)
}

func (p *linePeer) waitFor(substr string) string {
	p.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case line, ok := <-p.lines:
			if !ok {
				p.t.Fatalf("connection closed while waiting for %q", substr)
			}
			if strings.Contains(line, substr) {
				return line
			}
		case <-deadline:
			p.t.Fatalf("timed out waiting for %q", substr)
		}
	}
}

func (p *linePeer) join(name string) {
	p.t.Helper()
	p.waitFor(UsernamePrompt)
	p.send(name)
	p.waitFor(UsernameAccepted)
}

func (p *linePeer) waitClosed() {
	p.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case _, ok := <-p.lines:
			if !ok {
				return
			}
		case <-deadline:
			p.t.Fatal("connection still open")
		}
	}
}

func TestServer_TCP_Chat_Between_Two_Peers(t *testing.T) {
	srv, _ := newTestServer(t)
	addr, _ := serveTCP(t, srv)

	alice := dialPeer(t, addr)
	alice.join("alice")
	bob := dialPeer(t, addr)
	bob.join("bob")
	alice.waitFor("[Server] bob has entered the chat room!")

	bob.send("hello there")

	alice.waitFor("bob: hello there")
	bob.waitFor("bob(You): hello there")
	require.Equal(t, []string{"alice", "bob"}, srv.Registry().Names())
}

func TestServer_Strips_Carriage_Returns(t *testing.T) {
	srv, _ := newTestServer(t)
	addr, _ := serveTCP(t, srv)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	p := newLinePeer(t, conn, conn)

	p.waitFor(UsernamePrompt)
	_, err = io.WriteString(conn, "alice\r\n")
	require.NoError(t, err)
	p.waitFor(UsernameAccepted)

	require.True(t, srv.Registry().Contains("alice"))
}

func TestServer_Oversized_Line_Ends_Session(t *testing.T) {
	srv, hook := newTestServer(t)
	addr, _ := serveTCP(t, srv)

	alice := dialPeer(t, addr)
	alice.join("alice")
	alice.send(strings.Repeat("x", DefaultConfig().MaxLineLength+1))

	alice.waitClosed()
	require.Eventually(t, func() bool {
		return !srv.Registry().Contains("alice")
	}, waitTimeout, 10*time.Millisecond)

	warned := false
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Peer sent an oversized line" {
			warned = true
		}
	}
	require.True(t, warned)
}

func TestServer_Shutdown_Closes_Listener_And_Sessions(t *testing.T) {
	srv, _ := newTestServer(t)
	addr, served := serveTCP(t, srv)

	alice := dialPeer(t, addr)
	alice.join("alice")

	require.NoError(t, srv.Shutdown(waitTimeout))

	alice.waitClosed()
	require.True(t, errors.Is(<-served, ErrServerClosed))
	require.Zero(t, srv.Registry().Size())

	_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	require.Error(t, err)
}

func TestServer_Admin_Shutdown_Request_Is_Signalled(t *testing.T) {
	srv, _ := newTestServer(t)
	addr, _ := serveTCP(t, srv)

	alice := dialPeer(t, addr)
	alice.join("alice")
	bob := dialPeer(t, addr)
	bob.join("bob")

	alice.send("-admin 4321")
	alice.waitFor(noticeAdminGranted)
	alice.send("-shutdown")
	alice.waitFor(noticeShutdownDone)
	bob.waitFor("The server has been shut down by alice")

	select {
	case <-srv.ShutdownRequested():
	case <-time.After(waitTimeout):
		t.Fatal("shutdown was not requested")
	}

	require.NoError(t, srv.Shutdown(waitTimeout))
	bob.waitClosed()
}

func TestServer_Serve_After_Shutdown(t *testing.T) {
	srv, _ := newTestServer(t)
	require.NoError(t, srv.Shutdown(waitTimeout))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	require.ErrorIs(t, srv.Serve(ln), ErrServerClosed)
}

func TestNextBackoff(t *testing.T) {
	require.Equal(t, 5*time.Millisecond, nextBackoff(0))
	require.Equal(t, 10*time.Millisecond, nextBackoff(5*time.Millisecond))
	require.Equal(t, time.Second, nextBackoff(800*time.Millisecond))
}
