// Package server adapts byte streams into the line-oriented connection used
// by every session, whatever transport carried it in.
package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// LineConn is one peer connection speaking newline-delimited text.
// ReadLine is called only by the session's reader and WriteLine only by its
// outbox pump; Close may be called from either and more than once.
type LineConn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
	RemoteAddr() string
	Transport() string
}

// streamConn carries lines over a raw TCP connection.
type streamConn struct {
	conn         net.Conn
	scanner      *bufio.Scanner
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

// NewStreamConn wraps conn. Lines longer than maxLine bytes end the stream
// with ErrLineTooLong.
func NewStreamConn(conn net.Conn, maxLine int, writeTimeout time.Duration) LineConn {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 1024), maxLine)
	return &streamConn{
		conn:         conn,
		scanner:      scanner,
		writeTimeout: writeTimeout,
	}
}

func (c *streamConn) ReadLine() (string, error) {
	if c.scanner.Scan() {
		return strings.TrimSuffix(c.scanner.Text(), "\r"), nil
	}
	if err := c.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return "", ErrLineTooLong
		}
		return "", err
	}
	return "", io.EOF
}

func (c *streamConn) WriteLine(line string) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *streamConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *streamConn) Transport() string {
	return "tcp"
}
