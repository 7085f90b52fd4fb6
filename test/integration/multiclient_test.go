// Package integration contains end-to-end tests that drive a running chat
// server through real TCP and WebSocket connections.
package integration

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/linechat/test/testhelpers"
)

// waitForAll reads from c until every substring in want has been seen, in
// any order.
func waitForAll(t *testing.T, c *testhelpers.LineClient, want []string) {
	t.Helper()
	pending := make(map[string]bool, len(want))
	for _, w := range want {
		pending[w] = true
	}
	for len(pending) > 0 {
		var next string
		for w := range pending {
			next = w
			break
		}
		for _, line := range c.CollectUntil(next) {
			for w := range pending {
				if strings.Contains(line, w) {
					delete(pending, w)
				}
			}
		}
	}
}

func joinClients(t *testing.T, ts *testhelpers.TestServer, n int) []*testhelpers.LineClient {
	t.Helper()
	clients := make([]*testhelpers.LineClient, n)
	for i := range clients {
		clients[i] = testhelpers.DialTCP(t, ts.Addr)
		clients[i].Join(fmt.Sprintf("user%d", i))
	}
	// Each earlier client sees the last join, so all are registered
	for _, c := range clients[:n-1] {
		c.WaitFor(fmt.Sprintf("user%d has entered the chat room!", n-1))
	}
	return clients
}

func TestMultipleClientsMessageExchange(t *testing.T) {
	ts := testhelpers.StartServer(t)

	const numClients = 5
	clients := joinClients(t, ts, numClients)

	for i, c := range clients {
		c.Send(fmt.Sprintf("message from %d", i))
	}

	for i, c := range clients {
		var want []string
		for j := range clients {
			if i == j {
				want = append(want, fmt.Sprintf("user%d(You): message from %d", j, j))
			} else {
				want = append(want, fmt.Sprintf("user%d: message from %d", j, j))
			}
		}
		waitForAll(t, c, want)
	}
}

func TestClientsJoiningAndLeaving(t *testing.T) {
	ts := testhelpers.StartServer(t)
	clients := joinClients(t, ts, 3)

	clients[1].Send("-quit")
	clients[1].WaitClosed()
	clients[0].WaitFor("[Server] user1 has left the chat room.")
	clients[2].WaitFor("[Server] user1 has left the chat room.")

	clients[2].Close()
	clients[0].WaitFor("[Server] user2 has left the chat room.")

	late := testhelpers.DialTCP(t, ts.Addr)
	late.Join("user1")
	clients[0].WaitFor("[Server] user1 has entered the chat room!")

	clients[0].Send("-clientNo")
	clients[0].WaitFor(" There are 2 people currently in the chat room.")
}

func TestConcurrentJoinsWithSameName(t *testing.T) {
	ts := testhelpers.StartServer(t)

	const contenders = 10
	conns := make([]net.Conn, contenders)
	for i := range conns {
		conn, err := net.Dial("tcp", ts.Addr)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		conns[i] = conn
	}

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(conn net.Conn) {
			defer wg.Done()
			_, _ = fmt.Fprintln(conn, "highlander")
		}(conn)
	}
	wg.Wait()

	require.Eventually(t, func() bool { return ts.Registry().Contains("highlander") },
		testhelpers.DefaultTimeout, 10*time.Millisecond)
	require.Never(t, func() bool { return ts.Registry().Size() > 1 },
		200*time.Millisecond, 10*time.Millisecond)
}

func TestBlockedSenderAcrossConnections(t *testing.T) {
	ts := testhelpers.StartServer(t)
	clients := joinClients(t, ts, 3)
	alice, bob, carol := clients[0], clients[1], clients[2]

	carol.Send("-block user1")
	carol.WaitFor(" You will no longer receive messages from user1.")

	bob.Send("from bob")
	alice.WaitFor("user1: from bob")
	alice.Send("from alice")

	for _, line := range carol.CollectUntil("user0: from alice") {
		require.NotContains(t, line, "from bob")
	}

	carol.Send("-unblock user1")
	carol.WaitFor(" You will now receive messages from user1.")
	bob.Send("again")
	carol.WaitFor("user1: again")
}

func TestPrivateMessageAcrossConnections(t *testing.T) {
	ts := testhelpers.StartServer(t)
	clients := joinClients(t, ts, 3)

	clients[0].Send("-private user2: the code is 12:34")
	clients[2].WaitFor("user0: the code is 12:34 [Private Message]")
	clients[0].WaitFor(" You've sent a private message to user2.")

	clients[0].Send("public")
	for _, line := range clients[1].CollectUntil("user0: public") {
		require.NotContains(t, line, "the code is")
	}

	clients[0].Send("-private carol: hi")
	clients[0].WaitFor(" Failed. Cannot find a user named carol.")
}
