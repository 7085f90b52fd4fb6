// Package client is the line-oriented chat client: it forwards typed lines
// to the server and prints every line the server sends back.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
)

// Lines shared with the server protocol.
const (
	KickSignal   = "[Server] [Kicked Out]"
	QuitCommand  = "-quit"
	AddressQuery = " What is the IP address of the server you wish to connect to?"
	Separator    = " ----------------------------------------------------------"
)

// Outcome is why a chat ended.
type Outcome int

const (
	Left Outcome = iota
	Kicked
	Lost
)

// Message is the farewell printed for the outcome.
func (o Outcome) Message() string {
	switch o {
	case Left:
		return " You have left the chat room."
	case Kicked:
		return " You have been kicked out of the chat room by an administrator."
	default:
		return " Connection to the server has been lost!"
	}
}

// Client relays between a local terminal and one server connection.
type Client struct {
	conn     net.Conn
	input    *bufio.Scanner
	output   io.Writer
	quitting atomic.Bool
	once     sync.Once
}

// New binds conn to input and output. input is typically a scanner over
// stdin that may already have been used to ask for the server address.
func New(conn net.Conn, input *bufio.Scanner, output io.Writer) *Client {
	return &Client{conn: conn, input: input, output: output}
}

// Run relays until the server closes the connection or sends the kick
// signal. The connection is closed on return.
func (c *Client) Run() Outcome {
	defer c.close()
	go c.forward()
	return c.receive()
}

// forward sends each typed line. End of input counts as quitting.
func (c *Client) forward() {
	for c.input.Scan() {
		line := c.input.Text()
		if line == QuitCommand {
			c.quitting.Store(true)
		}
		if _, err := fmt.Fprintln(c.conn, line); err != nil {
			return
		}
	}
	c.quitting.Store(true)
	_, _ = fmt.Fprintln(c.conn, QuitCommand)
}

func (c *Client) receive() Outcome {
	scanner := bufio.NewScanner(c.conn)
	for scanner.Scan() {
		line := scanner.Text()
		if line == KickSignal {
			return Kicked
		}
		if _, err := fmt.Fprintln(c.output, line); err != nil {
			return Lost
		}
	}
	if c.quitting.Load() && (scanner.Err() == nil || errors.Is(scanner.Err(), net.ErrClosed)) {
		return Left
	}
	return Lost
}

func (c *Client) close() {
	c.once.Do(func() {
		_ = c.conn.Close()
	})
}
