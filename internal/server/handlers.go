// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades GET requests and runs a chat session over the
// resulting connection. It returns once that session has closed.
func (s *Server) WebSocketHandler() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     newOriginPolicy(s.cfg.Origins(), s.log).checkOrigin,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.WithError(err).Warn("WebSocket upgrade failed")
			return
		}

		s.ServeConn(newWSConn(conn, r.RemoteAddr, s.cfg.MaxLineLength, s.cfg.WriteTimeout))
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "linechat server is running!")
}

// TestPageHandler serves a minimal browser terminal for the WebSocket
// endpoint. Each line typed is sent as one frame; each frame received is
// printed as one line.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPage)
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>linechat</title>
    <style>
        body { font-family: monospace; margin: 20px; }
        #lines { border: 1px solid #ccc; height: 400px; padding: 10px; overflow-y: scroll; white-space: pre; }
        #input { width: 500px; margin-top: 10px; }
    </style>
</head>
<body>
    <div id="lines"></div>
    <input type="text" id="input" placeholder="Type a line and press Enter" autofocus>
    <script>
        const lines = document.getElementById('lines');
        const input = document.getElementById('input');
        const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
        const ws = new WebSocket(scheme + location.host + '/ws');

        function show(text) {
            const row = document.createElement('div');
            row.textContent = text === '' ? ' ' : text;
            lines.appendChild(row);
            lines.scrollTop = lines.scrollHeight;
        }

        ws.onmessage = function(event) { show(event.data); };
        ws.onclose = function() { show('Connection closed'); input.disabled = true; };

        input.addEventListener('keypress', function(e) {
            if (e.key === 'Enter' && ws.readyState === WebSocket.OPEN) {
                ws.send(input.value);
                input.value = '';
            }
        });
    </script>
</body>
</html>`
