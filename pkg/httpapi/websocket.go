package httpapi

import (
	"net/http"

	"github.com/collabtext/scribeserver/pkg/logger"
	"github.com/collabtext/scribeserver/pkg/session"
	"nhooyr.io/websocket"
)

// handleWebSocket upgrades /ws?token=<jwt> and hands the connection to
// the session router. Auth happens before the upgrade completes
// (spec.md §7: AuthRequired/AuthInvalid "closed at connect time with a
// protocol reason rather than an application ERROR frame").
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token required", http.StatusUnauthorized)
		return
	}

	userID, err := s.signer.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		logger.Error("httpapi: websocket upgrade failed: %v", err)
		return
	}

	transport := session.NewWSTransport(conn)
	if err := s.router.Serve(r.Context(), transport, userID); err != nil {
		logger.Debug("httpapi: session for user %s ended: %v", userID, err)
	}

	conn.Close(websocket.StatusNormalClosure, "")
}
