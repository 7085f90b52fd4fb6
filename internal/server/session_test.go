package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSession_Negotiation_Rejects_Empty_And_Taken_Names(t *testing.T) {
	room := newChatRoom(t)
	room.join(t, "alice")

	p := room.connect(t)
	p.expect(UsernamePrompt)

	p.send("")
	p.expect(noticeNameEmpty)
	p.expect(UsernamePrompt)

	p.send("alice")
	p.expect(noticeNameTaken)
	p.expect(UsernamePrompt)
	require.Equal(t, PhaseNegotiatingName, p.session.Phase())

	p.send("alice2")
	p.expect(UsernameAccepted + noticeTypeMessages)
	require.Equal(t, PhaseActive, p.session.Phase())
	require.True(t, room.registry.Contains("alice2"))
}

func TestSession_Join_Is_Announced_To_Others_Only(t *testing.T) {
	room := newChatRoom(t)
	alice := room.join(t, "alice")
	bob := room.join(t, "bob")

	alice.expect("[Server] bob has entered the chat room!")
	bob.quiet()
}

func TestSession_Chat_Line_Goes_To_Everyone_With_Self_Variant(t *testing.T) {
	room := newChatRoom(t)
	alice := room.join(t, "alice")
	bob := room.join(t, "bob")
	alice.waitFor("bob has entered")

	alice.send("hi")

	alice.expect(" [14:05:09] alice(You): hi")
	bob.expect(" [14:05:09] alice: hi")
}

func TestSession_Empty_Line_Is_Rejected(t *testing.T) {
	room := newChatRoom(t)
	alice := room.join(t, "alice")

	alice.send("")

	alice.expect(noticeEmptyMessage)
	require.Equal(t, PhaseActive, alice.session.Phase())
}

func TestSession_Block_Filters_Chat_From_Blocked_Sender(t *testing.T) {
	room := newChatRoom(t)
	alice := room.join(t, "alice")
	bob := room.join(t, "bob")
	carol := room.join(t, "carol")
	alice.waitFor("carol has entered")
	bob.waitFor("carol has entered")

	// Given carol blocks bob
	carol.send("-block bob")
	carol.expect(" You will no longer receive messages from bob.")

	// When bob talks, then alice talks
	bob.send("hello")
	alice.waitFor("bob: hello")
	alice.send("marker")

	// Then carol sees alice but never bob
	seen := carol.collectUntil("alice: marker")
	for _, line := range seen {
		require.NotContains(t, line, "bob: hello")
	}
	require.True(t, room.registry.IsBlocked("carol", "bob"))
	require.False(t, room.registry.IsBlocked("bob", "carol"))
}

func TestSession_Server_Announcements_Ignore_Block_Lists(t *testing.T) {
	room := newChatRoom(t)
	alice := room.join(t, "alice")
	bob := room.join(t, "bob")
	alice.waitFor("bob has entered")

	alice.send("-block bob")
	alice.expect(" You will no longer receive messages from bob.")

	bob.send("-quit")
	bob.waitDone()

	alice.expect("[Server] bob has left the chat room.")
}

func TestSession_Quit_Deregisters_And_Announces(t *testing.T) {
	room := newChatRoom(t)
	alice := room.join(t, "alice")
	bob := room.join(t, "bob")
	alice.waitFor("bob has entered")

	bob.send("-quit")
	bob.waitDone()

	alice.expect("[Server] bob has left the chat room.")
	require.False(t, room.registry.Contains("bob"))
	require.Equal(t, PhaseClosed, bob.session.Phase())
	require.True(t, bob.conn.isClosed())
}

func TestSession_Dropped_Connection_Releases_Name(t *testing.T) {
	room := newChatRoom(t)
	alice := room.join(t, "alice")
	bob := room.join(t, "bob")
	alice.waitFor("bob has entered")

	_ = bob.conn.Close()
	bob.waitDone()

	alice.expect("[Server] bob has left the chat room.")
	require.False(t, room.registry.Contains("bob"))

	// The name is free for the next connection
	room.join(t, "bob")
}

func TestSession_Disconnect_Before_Name_Is_Silent(t *testing.T) {
	room := newChatRoom(t)
	alice := room.join(t, "alice")

	p := room.connect(t)
	p.expect(UsernamePrompt)
	_ = p.conn.Close()
	p.waitDone()

	alice.quiet()
	require.Equal(t, 1, room.registry.Size())
}

func TestSession_Stop_Flushes_Then_Ends(t *testing.T) {
	room := newChatRoom(t)
	alice := room.join(t, "alice")

	alice.session.Stop()
	alice.waitDone()

	require.False(t, room.registry.Contains("alice"))
	require.True(t, alice.conn.isClosed())
}

func TestPhase_String(t *testing.T) {
	require.Equal(t, "negotiating-name", PhaseNegotiatingName.String())
	require.Equal(t, "closed", PhaseClosed.String())
	require.Equal(t, "unknown", Phase(42).String())
}
