// Package httpapi is the HTTP boundary: a gin engine for the JSON routes
// (spec.md §6.2) plus a raw WebSocket upgrade handler that Server.Handler
// selects by path before falling through to gin, the split
// zfogg-sidechain/cmd/server/main.go
// documents ("Gin's ResponseWriter wrapper interferes with WebSocket
// connection hijacking").
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/collabtext/scribeserver/pkg/auth"
	"github.com/collabtext/scribeserver/pkg/authority"
	"github.com/collabtext/scribeserver/pkg/logger"
	"github.com/collabtext/scribeserver/pkg/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wires the gin JSON API and the WebSocket upgrade handler behind
// a single http.Handler.
type Server struct {
	engine      *gin.Engine
	router      *session.Router
	authorities *authority.Registry
	signer      *auth.Signer
}

// Config configures CORS and mirrors spec.md §6.2's boundary surface.
type Config struct {
	// AllowedOrigins is the CORS allow-list. A "*" or wildcard entry is
	// rejected rather than honored (zfogg-sidechain's CORS hardening).
	AllowedOrigins []string
}

// New builds the Server. signer verifies the `token` query parameter on
// WebSocket connect and mints tokens for POST /auth/login.
func New(cfg Config, router *session.Router, authorities *authority.Registry, signer *auth.Signer) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware(cfg.AllowedOrigins))

	s := &Server{engine: engine, router: router, authorities: authorities, signer: signer}
	s.registerRoutes()
	return s
}

// Handler returns the top-level http.Handler: WebSocket upgrades are
// routed to the raw handler, everything else goes through gin.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			s.handleWebSocket(w, r)
			return
		}
		s.engine.ServeHTTP(w, r)
	})
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.POST("/auth/login", s.handleLogin)
	s.engine.POST("/docs", s.handleCreateDocument)
	s.engine.GET("/docs/:id", s.handleGetDocument)
}

// corsMiddleware rejects wildcard/unsafe origins rather than silently
// widening access, matching zfogg-sidechain's ALLOWED_ORIGINS validation.
func corsMiddleware(allowed []string) gin.HandlerFunc {
	valid := make([]string, 0, len(allowed))
	for _, origin := range allowed {
		origin = strings.TrimSpace(origin)
		if origin == "" || strings.Contains(origin, "*") {
			logger.Error("httpapi: rejecting unsafe CORS origin %q", origin)
			continue
		}
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			logger.Error("httpapi: rejecting CORS origin %q without scheme", origin)
			continue
		}
		valid = append(valid, origin)
	}
	if len(valid) == 0 {
		valid = []string{"http://localhost:3000"}
	}

	cfg := cors.Config{
		AllowOrigins:     valid,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	return cors.New(cfg)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
