// Package server defines the fixed protocol lines exchanged with peers and
// the helpers that format chat and server lines.
package server

import (
	"fmt"
	"time"
)

// CommandSigil marks a line as a command rather than chat content.
const CommandSigil = "-"

// Lines the peer matches on. Keep them byte for byte.
const (
	UsernamePrompt   = " Please enter your username."
	UsernameAccepted = " Your username has been accepted."
	KickSignal       = "[Server] [Kicked Out]"
	ServerPrefix     = "[Server] "
)

const (
	noticeTypeMessages   = " Please type messages."
	noticeNameTaken      = " Sorry, this username is already being used."
	noticeNameEmpty      = " Sorry, your username cannot be empty."
	noticeEmptyMessage   = " You are not allowed to send an empty message."
	noticeHelpHint       = " To see a list of the available commands, type '-help'."
	noticeHelpRule       = " -------------------------------------------------------------------------"
	noticeSelfPrivate    = " You cannot send a private message to yourself!"
	noticeSelfBlock      = " You cannot block yourself."
	noticeSelfUnblock    = " You cannot unblock yourself."
	noticeInvalidFormat  = " Failed. Invalid format."
	noticePrivateFormat  = " Valid Format: '-private name: message'."
	noticeBadPasscode    = " Oops! Incorrect password. Try again."
	noticeAlreadyAdmin   = " You are already an Administrator."
	noticeAdminRule      = " ---------------------------------------------"
	noticeAdminGranted   = " You are now an Administrator. Congratulations!"
	noticeAdminHelp      = " Enter '-help' to see your extra commands."
	noticeKickNotAdmin   = " Sorry, you can't use this command as you're not an Administrator."
	noticeKickAdmin      = " Failed. You cannot kick out another Administrator."
	noticeShutdownRefuse = " Sorry, you cannot use this command since you are not an admin."
	noticeShutdownDone   = " You have shut down the server."
	privateTag           = " [Private Message]"
	clearScreenLines     = 50
)

func serverLine(content string) string {
	return ServerPrefix + content
}

func timestamp(t time.Time) string {
	return "[" + t.Format("15:04:05") + "] "
}

// chatLine renders " [HH:mm:ss] sender: content", or the "(You)" variant
// delivered back to the sender.
func chatLine(at time.Time, sender, content string, self bool) string {
	if self {
		return " " + timestamp(at) + sender + "(You): " + content
	}
	return " " + timestamp(at) + sender + ": " + content
}

func privateLine(at time.Time, sender, content string) string {
	return " " + timestamp(at) + sender + ": " + content + privateTag
}

func userNotFound(name string) string {
	return " Failed. Cannot find a user named " + name + "."
}

func unrecognised(command string) string {
	return " " + command + " is not a recognised command."
}

func minutesNotice(format string, since time.Time, now time.Time) string {
	return fmt.Sprintf(format, int64(now.Sub(since)/time.Minute))
}

func clientCountNotice(n int) string {
	if n == 1 {
		return " There is 1 person currently in the chat room."
	}
	return fmt.Sprintf(" There are %d people currently in the chat room.", n)
}
