// Package server parses command lines and carries out each protocol action.
package server

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/Tyrowin/linechat/internal/registry"
)

// Commands taking an argument are matched by prefix, trailing space included.
const (
	cmdPrivate = CommandSigil + "private "
	cmdBlock   = CommandSigil + "block "
	cmdUnblock = CommandSigil + "unblock "
	cmdAdmin   = CommandSigil + "admin "
	cmdKick    = CommandSigil + "kick "
)

// Commands without arguments must match exactly.
const (
	cmdHelp       = CommandSigil + "help"
	cmdServerTime = CommandSigil + "serverTime"
	cmdClientTime = CommandSigil + "clientTime"
	cmdAddress    = CommandSigil + "address"
	cmdClientNo   = CommandSigil + "clientNo"
	cmdCls        = CommandSigil + "cls"
	cmdQuit       = CommandSigil + "quit"
	cmdShutdown   = CommandSigil + "shutdown"
)

var helpRows = [][]string{
	{cmdHelp, "Displays a list of commands"},
	{cmdServerTime, "Displays how long the server has been running for"},
	{cmdClientTime, "Displays how long you have been in the chat room"},
	{cmdAddress, "Displays the server's IP address"},
	{cmdClientNo, "Displays the number of people in the chat room"},
	{cmdPrivate + "username: message", "Send a private message to another user"},
	{cmdBlock + "username", "Block all messages from other user"},
	{cmdUnblock + "username", "Unblock messages from other user"},
	{cmdCls, "Clears the screen"},
	{cmdQuit, "Leave the chat room"},
}

var adminHelpRows = [][]string{
	{cmdKick + "username", "Kick a user out of the chat room"},
	{cmdShutdown, "Shut down the server"},
}

var guestHelpRows = [][]string{
	{cmdAdmin + "password", "Enter the password to become an Administrator"},
}

// dispatch runs one command line from an active session.
func (s *Session) dispatch(line string) {
	switch {
	case strings.HasPrefix(line, cmdPrivate):
		s.privateMessage(strings.TrimPrefix(line, cmdPrivate))
	case strings.HasPrefix(line, cmdBlock):
		s.block(strings.TrimPrefix(line, cmdBlock))
	case strings.HasPrefix(line, cmdUnblock):
		s.unblock(strings.TrimPrefix(line, cmdUnblock))
	case strings.HasPrefix(line, cmdAdmin):
		s.verifyAdmin(strings.TrimPrefix(line, cmdAdmin))
	case strings.HasPrefix(line, cmdKick):
		s.kick(strings.TrimPrefix(line, cmdKick))
	default:
		s.dispatchPlain(line)
	}
}

func (s *Session) dispatchPlain(line string) {
	switch line {
	case cmdHelp:
		s.showHelp()
	case cmdServerTime:
		s.send(minutesNotice(" The server has been running for %d minute(s).", s.realm.StartedAt, time.Now()))
	case cmdClientTime:
		s.send(minutesNotice(" You have been in the chat room for %d minute(s).", s.joinedAt, time.Now()))
	case cmdAddress:
		s.send(" The server's IP Address is " + s.realm.Address)
	case cmdClientNo:
		s.send(clientCountNotice(s.registry.Size()))
	case cmdCls:
		for i := 0; i < clearScreenLines; i++ {
			s.send("")
		}
	case cmdQuit:
		s.finished = true
	case cmdShutdown:
		s.shutdown()
	default:
		s.send(unrecognised(line))
		s.send(noticeHelpHint)
	}
}

func (s *Session) showHelp() {
	rows := append([][]string{}, helpRows...)
	if s.registry.IsAdmin(s.name) {
		rows = append(rows, adminHelpRows...)
	} else {
		rows = append(rows, guestHelpRows...)
	}

	s.send(noticeHelpRule)
	s.send(" List of commands:")
	for _, line := range renderTable(rows) {
		s.send(line)
	}
	s.send(noticeHelpRule)
}

// renderTable lays rows out as aligned "command | description" lines.
func renderTable(rows [][]string) []string {
	var buf strings.Builder
	table := tablewriter.NewWriter(&buf)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetRowSeparator("")
	table.SetColumnSeparator("|")
	table.AppendBulk(rows)
	table.Render()

	var lines []string
	for _, line := range strings.Split(buf.String(), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, " "+trimmed)
		}
	}
	return lines
}

// privateMessage handles "name: message". The name runs up to the first
// colon; later colons belong to the message.
func (s *Session) privateMessage(arg string) {
	receiver, message, ok := strings.Cut(arg, ":")
	if !ok {
		s.send(noticeInvalidFormat)
		s.send(noticePrivateFormat)
		return
	}
	message = strings.TrimSpace(message)

	switch {
	case !s.registry.Contains(receiver):
		s.send(userNotFound(receiver))
		return
	case receiver == s.name:
		s.send(noticeSelfPrivate)
		return
	case message == "":
		s.send(noticeEmptyMessage)
		return
	}

	switch s.router.Unicast(s.name, receiver, message) {
	case NotFound:
		s.send(userNotFound(receiver))
	case Blocked:
		s.send(" Failed. You have been blocked by " + receiver + ".")
	case Delivered:
		s.log.WithField("receiver", receiver).Debug("Private message delivered")
	}
}

func (s *Session) block(target string) {
	if target == s.name {
		s.send(noticeSelfBlock)
		return
	}
	if !s.registry.Contains(target) {
		s.send(userNotFound(target))
		return
	}
	if err := s.registry.Block(s.name, target); err != nil {
		s.log.WithError(err).Warn("Block failed")
		return
	}
	s.send(" You will no longer receive messages from " + target + ".")
}

func (s *Session) unblock(target string) {
	if !s.registry.Contains(target) {
		s.send(userNotFound(target))
		return
	}
	err := s.registry.Unblock(s.name, target)
	switch {
	case err == nil:
		s.send(" You will now receive messages from " + target + ".")
	case errors.Is(err, registry.ErrSelfBlock):
		s.send(noticeSelfUnblock)
	default:
		s.log.WithError(err).Warn("Unblock failed")
	}
}

func (s *Session) verifyAdmin(passcode string) {
	if subtle.ConstantTimeCompare([]byte(passcode), []byte(s.realm.AdminPasscode)) != 1 {
		s.log.Info("Rejected admin passcode")
		s.send(noticeBadPasscode)
		return
	}
	if s.registry.IsAdmin(s.name) {
		s.send(noticeAlreadyAdmin)
		return
	}
	if !s.registry.GrantAdmin(s.name) {
		return
	}

	s.send(noticeAdminRule)
	s.send(noticeAdminGranted)
	s.send(noticeAdminHelp)
	s.send(noticeAdminRule)
	s.router.BroadcastServer(s.name+" has become an Administrator!", s.name)
}

// kick injects the kick signal into the target's own outbox. The target's
// pump recognises it, closes the connection and the target's read loop ends
// the session; nothing here touches the target's state directly.
func (s *Session) kick(target string) {
	if !s.registry.IsAdmin(s.name) {
		s.send(noticeKickNotAdmin)
		return
	}
	sink, ok := s.registry.Lookup(target)
	if !ok {
		s.send(userNotFound(target))
		return
	}
	if s.registry.IsAdmin(target) {
		s.send(noticeKickAdmin)
		return
	}
	if !sink.Enqueue(KickSignal) {
		s.log.WithField("target", target).Warn("Could not queue kick signal")
		s.send(" Failed. Could not reach " + target + ".")
		return
	}

	s.router.BroadcastServer(target+" has been kicked out of the chat room by "+s.name, target)
}

func (s *Session) shutdown() {
	if !s.registry.IsAdmin(s.name) {
		s.send(noticeShutdownRefuse)
		return
	}

	s.router.BroadcastServer(" Uh-oh! The server has been shut down by "+s.name, s.name)
	s.send(noticeShutdownDone)
	s.finished = true
	if s.control != nil {
		s.control.RequestShutdown(s.name)
	}
}
