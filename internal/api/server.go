package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/lvdashuaibi/livevote/config"
	"github.com/lvdashuaibi/livevote/internal/auth"
	"github.com/lvdashuaibi/livevote/internal/broadcast"
	"github.com/lvdashuaibi/livevote/internal/service"
)

// Server exposes the REST surface and the websocket push channel.
type Server struct {
	router     *gin.Engine
	service    *service.VoteService
	tokens     *auth.TokenIssuer
	hub        *broadcast.Hub
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

func NewServer(
	cfg *config.Config,
	voteService *service.VoteService,
	tokens *auth.TokenIssuer,
	hub *broadcast.Hub,
) *Server {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.Origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	allowed := make(map[string]bool, len(cfg.CORS.Origins))
	for _, origin := range cfg.CORS.Origins {
		allowed[origin] = true
	}

	s := &Server{
		router:  router,
		service: voteService,
		tokens:  tokens,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Non-browser clients send no Origin header.
				return origin == "" || allowed[origin] || allowed["*"]
			},
		},
	}

	api := router.Group("/api")
	api.POST("/auth/login", s.handleLogin)

	vote := api.Group("/vote")
	vote.GET("/results", s.handleResults)
	vote.POST("", s.requireAuth, s.handleCastVote)
	vote.GET("", s.requireAuth, s.handleListVotes)
	vote.GET("/history", s.requireAuth, s.handleHistory)

	router.GET("/ws", s.handleWebsocket)

	return s
}

// Start blocks serving HTTP on the given port.
func (s *Server) Start(port int) error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}

	log.Printf("listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// Shutdown stops accepting new connections and drains in-flight
// requests. Votes already committed are unaffected.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the handler tree, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}
