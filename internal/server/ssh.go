// Package server lets users join the chat with a plain ssh client. Any
// username and no credentials are accepted at the SSH layer; the chat name
// is negotiated afterwards exactly as on the other transports.
package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/gliderlabs/ssh"
	"golang.org/x/term"
)

// ServeSSH serves SSH sessions on ln until Shutdown, after which it returns
// ErrServerClosed. Without a configured host key an ephemeral one is
// generated at start.
func (s *Server) ServeSSH(ln net.Listener) error {
	sshServer := &ssh.Server{
		Handler: func(sess ssh.Session) {
			s.ServeConn(newSSHConn(sess, s.cfg.MaxLineLength))
		},
	}
	if s.cfg.SSHHostKeyFile != "" {
		if err := sshServer.SetOption(ssh.HostKeyFile(s.cfg.SSHHostKeyFile)); err != nil {
			_ = ln.Close()
			return fmt.Errorf("load ssh host key: %w", err)
		}
	}
	if !s.AddCloser(sshServer) {
		_ = ln.Close()
		return ErrServerClosed
	}

	s.log.WithField("addr", ln.Addr().String()).Info("Listening for SSH connections")
	err := sshServer.Serve(ln)
	if errors.Is(err, ssh.ErrServerClosed) {
		return ErrServerClosed
	}
	return err
}

// sshConn reads through a line-editing terminal when the client asked for a
// pty, and through a plain scanner otherwise (e.g. "ssh host < script").
type sshConn struct {
	sess     ssh.Session
	terminal *term.Terminal
	scanner  *bufio.Scanner

	closeOnce sync.Once
	closeErr  error
}

func newSSHConn(sess ssh.Session, maxLine int) *sshConn {
	c := &sshConn{sess: sess}
	if _, _, isPty := sess.Pty(); isPty {
		c.terminal = term.NewTerminal(sess, "")
		return c
	}
	c.scanner = bufio.NewScanner(sess)
	c.scanner.Buffer(make([]byte, 0, 1024), maxLine)
	return c
}

func (c *sshConn) ReadLine() (string, error) {
	if c.terminal != nil {
		return c.terminal.ReadLine()
	}
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

// WriteLine goes through the terminal when there is one so that output
// printed while the user is typing does not clobber the input line.
func (c *sshConn) WriteLine(line string) error {
	if c.terminal != nil {
		_, err := c.terminal.Write([]byte(line + "\n"))
		return err
	}
	_, err := io.WriteString(c.sess, line+"\n")
	return err
}

func (c *sshConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.sess.Close()
	})
	return c.closeErr
}

func (c *sshConn) RemoteAddr() string {
	return c.sess.RemoteAddr().String()
}

func (c *sshConn) Transport() string { return "ssh" }
