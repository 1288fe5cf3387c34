// Package httpapi is the small REST surface that bootstraps a room before
// the client switches to the persistent channel: create, join, look up by
// code, plus health and readiness probes.
package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"promptguessr/internal/gamesvc"
	"promptguessr/internal/kv"
)

// Config holds the HTTP surface's tunables.
type Config struct {
	AllowedOrigins  []string // CORS allowlist; a "*" entry permits any origin unless Production is set
	Production      bool
	RateLimitPerSec float64 // per-client-IP token bucket for room creation/join
	RateLimitBurst  int
}

// Server wraps a gin.Engine bound to the room service and KV store health
// check, mirroring the way the game server this was adapted from bundles its
// dependencies on a single receiver type.
type Server struct {
	manager *gamesvc.Manager
	store   kv.Store
	cfg     Config
	engine  *gin.Engine
	limiter *ipRateLimiter
}

// New builds the HTTP surface and registers every route.
func New(manager *gamesvc.Manager, store kv.Store, cfg Config) *Server {
	registerValidators()
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = 1
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 5
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{manager: manager, store: store, cfg: cfg, engine: engine, limiter: newIPRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst)}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.Use(s.cors)
	s.engine.POST("/rooms/create", s.rateLimit, s.handleCreateRoom)
	s.engine.POST("/rooms/join", s.rateLimit, s.handleJoinRoom)
	s.engine.GET("/rooms/:code", s.handleGetRoomByCode)
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/ready", s.handleReady)
}

// Handler exposes the underlying http.Handler for cmd/server to mount.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) cors(c *gin.Context) {
	origin := c.GetHeader("Origin")
	if origin != "" && s.originAllowed(origin) {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Vary", "Origin")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
	}
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" && !s.cfg.Production {
			return true
		}
		if strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
