package server

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/whisperhq/whisper/backend/internal/config"
	"github.com/whisperhq/whisper/backend/internal/database"
	"github.com/whisperhq/whisper/backend/internal/handlers"
	"github.com/whisperhq/whisper/backend/internal/ledger"
	"github.com/whisperhq/whisper/backend/internal/middleware"
)

type Server struct {
	cfg     *config.Config
	db      database.Service
	handler *handlers.Handler
	logger  *zap.Logger
}

// New wires the handlers onto an already opened database.
func New(cfg *config.Config, db database.Service, votes *ledger.Ledger, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		db:      db,
		handler: handlers.NewHandler(db.GetDB(), votes, logger),
		logger:  logger,
	}
}

// HTTPServer creates the configured http.Server
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	if !s.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(s.logger))
	r.Use(cors.New(s.corsConfig()))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		stats := s.db.Health()
		status := http.StatusOK
		if stats["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, stats)
	})

	secret := []byte(s.cfg.JWTSecret)

	// API routes
	api := r.Group("/api")
	{
		// Public reads
		api.GET("/zones", s.handler.Zone.GetZones)
		api.GET("/zones/:name", s.handler.Zone.GetZone)
		api.GET("/zones/:name/members", s.handler.Membership.GetMembers)
		api.GET("/points", s.handler.Point.GetPoints)
		api.GET("/points/:id", s.handler.Point.GetPoint)
		api.GET("/points/:id/comments", s.handler.Comment.GetComments)

		// Tallies are public; a valid token adds the caller's standing
		tallies := api.Group("")
		tallies.Use(middleware.OptionalAuth(secret))
		{
			tallies.GET("/points/:id/tally", s.handler.Boost.PointTally)
			tallies.GET("/comments/:commentId/tally", s.handler.Boost.CommentTally)
		}

		// Protected routes (authentication required)
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(secret))
		{
			protected.POST("/zones", s.handler.Zone.CreateZone)

			protected.GET("/memberships", s.handler.Membership.GetMyMemberships)
			protected.POST("/zones/:name/join", s.handler.Membership.JoinZone)
			protected.POST("/zones/:name/leave", s.handler.Membership.LeaveZone)
			protected.POST("/zones/:name/invites", s.handler.Membership.InviteMember)
			protected.POST("/zones/:name/invites/accept", s.handler.Membership.AcceptInvite)

			protected.POST("/points", s.handler.Point.CreatePoint)
			protected.PUT("/points/:id", s.handler.Point.UpdatePoint)
			protected.DELETE("/points/:id", s.handler.Point.DeletePoint)

			protected.POST("/points/:id/comments", s.handler.Comment.CreateComment)
			protected.PUT("/comments/:commentId", s.handler.Comment.UpdateComment)
			protected.DELETE("/comments/:commentId", s.handler.Comment.DeleteComment)

			protected.POST("/points/:id/boosts", s.handler.Boost.VotePoint)
			protected.POST("/points/:id/boost", s.handler.Boost.BoostPoint)
			protected.POST("/points/:id/reduce", s.handler.Boost.ReducePoint)
			protected.POST("/comments/:commentId/boosts", s.handler.Boost.VoteComment)
			protected.POST("/comments/:commentId/boost", s.handler.Boost.BoostComment)
			protected.POST("/comments/:commentId/reduce", s.handler.Boost.ReduceComment)
		}
	}

	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:  []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	// Credentials can't be combined with a wildcard origin
	if len(s.cfg.AllowedOrigins) == 0 || slices.Contains(s.cfg.AllowedOrigins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = s.cfg.AllowedOrigins
	cfg.AllowCredentials = true
	return cfg
}
