// Package server defines the process-wide values shared by every session and
// small helpers reused across transports.
package server

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"strings"
	"time"
)

// Realm holds the values fixed for the lifetime of the process. It is built
// once at startup and handed to every session by value.
type Realm struct {
	StartedAt     time.Time
	AdminPasscode string
	Address       string
}

// NewRealm stamps the start time and draws a fresh 4-digit admin passcode.
// An empty address falls back to the first non-loopback IPv4 of the host.
func NewRealm(address string) (Realm, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return Realm{}, fmt.Errorf("generate admin passcode: %w", err)
	}
	if address == "" {
		address = localAddress()
	}
	return Realm{
		StartedAt:     time.Now(),
		AdminPasscode: fmt.Sprintf("%d", 1000+n.Int64()),
		Address:       address,
	}, nil
}

func localAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "127.0.0.1"
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "connection reset by peer") ||
		strings.Contains(errStr, "broken pipe")
}
