package api

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lvdashuaibi/livevote/internal/broadcast"
	"github.com/lvdashuaibi/livevote/internal/model"
)

const identityKey = "identity"

// requireAuth gates vote submission and the credentialed read paths.
// Missing, malformed, foreign-signed and expired tokens all answer 401
// so clients know to re-authenticate; validation failures stay 400.
func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "Access denied"})
		return
	}

	identity, err := s.tokens.Verify(tokenString)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "Invalid or expired token"})
		return
	}

	c.Set(identityKey, identity)
	c.Next()
}

func callerIdentity(c *gin.Context) model.Identity {
	return c.MustGet(identityKey).(model.Identity)
}

// handleLogin implements POST /api/auth/login. First login with a new
// name registers it; the response carries the 2-hour credential.
func (s *Server) handleLogin(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Name is required"})
		return
	}

	token, err := s.service.Login(c.Request.Context(), req.Name)
	if err != nil {
		if errors.Is(err, model.ErrNameRequired) {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "Name is required"})
			return
		}
		log.Printf("login failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "Server error"})
		return
	}

	c.JSON(http.StatusOK, model.LoginResponse{Token: token})
}

// handleCastVote implements POST /api/vote. Already-voted is a client
// error distinguishable from validation failure, never a server fault.
func (s *Server) handleCastVote(c *gin.Context) {
	var req model.VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Option is required"})
		return
	}

	identity := callerIdentity(c)
	_, err := s.service.CastVote(c.Request.Context(), identity, req.Option)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"msg": "success"})
	case errors.Is(err, model.ErrOptionRequired):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Option is required"})
	case errors.Is(err, model.ErrInvalidOption):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Option is not in the allowed set"})
	case errors.Is(err, model.ErrAlreadyVoted):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "You have already voted"})
	default:
		log.Printf("cast vote by %s failed: %v", identity.Name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "Server error"})
	}
}

// handleResults implements GET /api/vote/results. Public: anyone may
// observe the live tally, zero-filled over the fixed option set.
func (s *Server) handleResults(c *gin.Context) {
	results, err := s.service.Results(c.Request.Context())
	if err != nil {
		log.Printf("results failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "Server error"})
		return
	}

	c.JSON(http.StatusOK, results)
}

// handleListVotes implements GET /api/vote, the unpaginated admin/debug
// dump of the full ledger.
func (s *Server) handleListVotes(c *gin.Context) {
	votes, err := s.service.AllVotes(c.Request.Context())
	if err != nil {
		log.Printf("list votes failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "Server error"})
		return
	}

	if votes == nil {
		votes = []*model.Vote{}
	}
	c.JSON(http.StatusOK, votes)
}

// handleHistory implements GET /api/vote/history: the caller's most
// recent votes, newest first, at most ten.
func (s *Server) handleHistory(c *gin.Context) {
	history, err := s.service.History(c.Request.Context(), callerIdentity(c))
	if err != nil {
		log.Printf("history failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "Server error"})
		return
	}

	c.JSON(http.StatusOK, history)
}

// handleWebsocket implements GET /ws: upgrade, hand the connection to
// the hub, and reconcile the new viewer with a tally snapshot. No
// credential required for the read-only stream.
func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	snapshot, err := s.service.Results(c.Request.Context())
	if err != nil {
		log.Printf("tally snapshot for new session failed: %v", err)
		snapshot = make(model.Tally)
		for _, option := range model.Options {
			snapshot[option] = 0
		}
	}

	session := broadcast.NewSession(conn)
	session.Serve(s.hub, snapshot)
}
