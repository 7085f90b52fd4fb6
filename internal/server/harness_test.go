package server

import (
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/linechat/internal/registry"
)

const waitTimeout = 2 * time.Second

// fakeConn is an in-memory LineConn. Tests push peer input into in and read
// what the session wrote from out.
type fakeConn struct {
	in     chan string
	out    chan string
	closed chan struct{}
	once   sync.Once
	remote string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan string, 64),
		out:    make(chan string, 4096),
		closed: make(chan struct{}),
		remote: "10.0.0.2:50000",
	}
}

func (c *fakeConn) ReadLine() (string, error) {
	select {
	case line := <-c.in:
		return line, nil
	case <-c.closed:
		return "", io.EOF
	}
}

func (c *fakeConn) WriteLine(line string) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.out <- line
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) RemoteAddr() string { return c.remote }

func (c *fakeConn) Transport() string { return "fake" }

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeController struct {
	mu  sync.Mutex
	by  []string
	hit chan struct{}
}

func newFakeController() *fakeController {
	return &fakeController{hit: make(chan struct{}, 8)}
}

func (c *fakeController) RequestShutdown(requestedBy string) {
	c.mu.Lock()
	c.by = append(c.by, requestedBy)
	c.mu.Unlock()
	c.hit <- struct{}{}
}

func (c *fakeController) requests() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.by...)
}

// chatRoom wires sessions to shared state the way Server does, minus the
// listeners.
type chatRoom struct {
	realm    Realm
	registry *registry.Registry
	router   *Router
	control  *fakeController
	log      *logrus.Logger
	hook     *test.Hook
	at       time.Time
}

func newChatRoom(t *testing.T) *chatRoom {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	reg := registry.New()
	at := time.Date(2024, 3, 1, 14, 5, 9, 0, time.UTC)
	router := NewRouter(reg, log)
	router.now = func() time.Time { return at }

	return &chatRoom{
		realm: Realm{
			StartedAt:     time.Now(),
			AdminPasscode: "4321",
			Address:       "10.0.0.1",
		},
		registry: reg,
		router:   router,
		control:  newFakeController(),
		log:      log,
		hook:     hook,
		at:       at,
	}
}

type peer struct {
	t       *testing.T
	conn    *fakeConn
	session *Session
	done    chan struct{}
}

func (r *chatRoom) connect(t *testing.T) *peer {
	t.Helper()
	conn := newFakeConn()
	session := NewSession(conn, SessionDeps{
		Realm:      r.realm,
		Registry:   r.registry,
		Router:     r.router,
		Controller: r.control,
		Log:        r.log,
		OutboxSize: 256,
	})
	p := &peer{t: t, conn: conn, session: session, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		session.Run()
	}()
	t.Cleanup(func() {
		_ = conn.Close()
		<-p.done
	})
	return p
}

// join connects a peer and completes name negotiation.
func (r *chatRoom) join(t *testing.T, name string) *peer {
	t.Helper()
	p := r.connect(t)
	p.expect(UsernamePrompt)
	p.send(name)
	p.expect(UsernameAccepted + noticeTypeMessages)
	return p
}

func (p *peer) send(line string) {
	p.conn.in <- line
}

func (p *peer) next() string {
	p.t.Helper()
	select {
	case line := <-p.conn.out:
		return line
	case <-time.After(waitTimeout):
		p.t.Fatalf("timed out waiting for a line")
		return ""
	}
}

func (p *peer) expect(want string) {
	p.t.Helper()
	require.Equal(p.t, want, p.next())
}

// collectUntil returns every line up to and including the first one
// containing substr.
func (p *peer) collectUntil(substr string) []string {
	p.t.Helper()
	var seen []string
	for {
		line := p.next()
		seen = append(seen, line)
		if strings.Contains(line, substr) {
			return seen
		}
	}
}

func (p *peer) waitFor(substr string) string {
	p.t.Helper()
	seen := p.collectUntil(substr)
	return seen[len(seen)-1]
}

func (p *peer) waitDone() {
	p.t.Helper()
	select {
	case <-p.done:
	case <-time.After(waitTimeout):
		p.t.Fatalf("session did not end")
	}
}

// quiet asserts nothing arrives for a short while.
func (p *peer) quiet() {
	p.t.Helper()
	select {
	case line := <-p.conn.out:
		p.t.Fatalf("unexpected line %q", line)
	case <-time.After(50 * time.Millisecond):
	}
}
