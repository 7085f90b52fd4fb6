// Package server carries chat lines over WebSocket: one text frame per line
// in each direction, with the ping/pong keepalive of the browser transport.
package server

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

type wsConn struct {
	conn         *websocket.Conn
	remote       string
	writeTimeout time.Duration
	pending      []string

	stopPing  chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newWSConn(conn *websocket.Conn, remote string, maxLine int, writeTimeout time.Duration) *wsConn {
	conn.SetReadLimit(int64(maxLine))
	c := &wsConn{
		conn:         conn,
		remote:       remote,
		writeTimeout: writeTimeout,
		stopPing:     make(chan struct{}),
	}
	c.setupReadConnection()
	go c.keepAlive()
	return c
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *wsConn) setupReadConnection() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// ReadLine returns the next line. A frame holding several newline separated
// lines yields them one by one.
func (c *wsConn) ReadLine() (string, error) {
	for len(c.pending) == 0 {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", c.classifyReadError(err)
		}
		if messageType != websocket.TextMessage {
			continue
		}
		text := strings.ReplaceAll(string(data), "\r\n", "\n")
		c.pending = strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	}

	line := c.pending[0]
	c.pending = c.pending[1:]
	return line, nil
}

func (c *wsConn) classifyReadError(err error) error {
	if errors.Is(err, websocket.ErrReadLimit) {
		return ErrLineTooLong
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		return io.EOF
	}
	return err
}

func (c *wsConn) WriteLine(line string) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

// keepAlive pings the peer so idle connections survive the read deadline.
// WriteControl may run concurrently with the pump's writes.
func (c *wsConn) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopPing:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopPing)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *wsConn) RemoteAddr() string { return c.remote }

func (c *wsConn) Transport() string { return "websocket" }
