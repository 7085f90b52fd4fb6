// Package server implements the chat broker: sessions, the command
// dispatcher, message routing and the transports that feed them.
//
// Every transport (plain TCP, WebSocket, SSH) adapts its connection to a
// LineConn and hands it to Server.ServeConn, so the protocol is identical
// whichever way a user connects.
package server
