package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/lvdashuaibi/livevote/internal/auth"
	"github.com/lvdashuaibi/livevote/internal/model"
	"github.com/lvdashuaibi/livevote/internal/tally"
)

// historyLimit bounds the per-user history read path.
const historyLimit = 10

// Ledger is the authoritative vote store. InsertVote must be atomic
// per user: of two concurrent votes from the same user exactly one is
// persisted and the other observes model.ErrAlreadyVoted.
type Ledger interface {
	FindOrCreateUser(ctx context.Context, name string) (*model.User, error)
	InsertVote(ctx context.Context, identity model.Identity, option string) (*model.Vote, error)
	ListVotes(ctx context.Context) ([]*model.Vote, error)
	ListVotesForUser(ctx context.Context, userID string, limit int) ([]*model.Vote, error)
	CountByOption(ctx context.Context) (map[string]int, error)
}

// Broadcaster pushes the post-commit event pair to live sessions.
type Broadcaster interface {
	BroadcastVote(tally model.Tally, event model.VoteEvent) error
}

// VoteService orchestrates login, vote submission and the read paths.
// All mutation of shared state funnels through the ledger; the tally
// is only ever derived from it.
type VoteService struct {
	ledger      Ledger
	engine      *tally.Engine
	tokens      *auth.TokenIssuer
	broadcaster Broadcaster
}

func NewVoteService(
	ledger Ledger,
	engine *tally.Engine,
	tokens *auth.TokenIssuer,
	broadcaster Broadcaster,
) *VoteService {
	return &VoteService{
		ledger:      ledger,
		engine:      engine,
		tokens:      tokens,
		broadcaster: broadcaster,
	}
}

// Login authenticates a display name, registering it on first use, and
// issues a signed credential. The name is the identity key: a repeat
// login with the same name resolves to the same user.
func (s *VoteService) Login(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", model.ErrNameRequired
	}

	user, err := s.ledger.FindOrCreateUser(ctx, name)
	if err != nil {
		return "", fmt.Errorf("login %q: %w", name, err)
	}

	token, err := s.tokens.Issue(model.Identity{UserID: user.ID, Name: user.Name})
	if err != nil {
		return "", fmt.Errorf("issue token for %q: %w", name, err)
	}

	return token, nil
}

// CastVote validates and persists one vote, then pushes the refreshed
// tally and a vote-cast notification to every live session. The
// broadcast runs only after the ledger write committed; a rejected or
// failed write produces no events.
func (s *VoteService) CastVote(ctx context.Context, identity model.Identity, option string) (*model.Vote, error) {
	option = strings.TrimSpace(option)
	if option == "" {
		return nil, model.ErrOptionRequired
	}
	if !model.ValidOption(option) {
		return nil, model.ErrInvalidOption
	}

	vote, err := s.ledger.InsertVote(ctx, identity, option)
	if err != nil {
		return nil, err
	}

	// The vote is durable from here on: a client disconnect or any
	// failure below never retracts it.
	current, err := s.engine.Refresh(ctx)
	if err != nil {
		log.Printf("tally refresh after vote by %s failed: %v", identity.Name, err)
		return vote, nil
	}

	event := model.VoteEvent{
		Voter:     vote.Name,
		Option:    vote.Option,
		Timestamp: vote.CreatedAt,
	}
	if err := s.broadcaster.BroadcastVote(current, event); err != nil {
		log.Printf("broadcast after vote by %s failed: %v", identity.Name, err)
	}

	return vote, nil
}

// Results returns the current tally, zero-filled over the fixed option
// set. Public read path; also the reconciliation path for sessions
// that connected after a broadcast.
func (s *VoteService) Results(ctx context.Context) (model.Tally, error) {
	return s.engine.Compute(ctx)
}

// AllVotes returns the full ledger. Admin/debug read path.
func (s *VoteService) AllVotes(ctx context.Context) ([]*model.Vote, error) {
	return s.ledger.ListVotes(ctx)
}

// History returns the caller's most recent votes, newest first,
// bounded to the last ten.
func (s *VoteService) History(ctx context.Context, identity model.Identity) ([]model.HistoryEntry, error) {
	votes, err := s.ledger.ListVotesForUser(ctx, identity.UserID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", identity.Name, err)
	}

	history := make([]model.HistoryEntry, 0, len(votes))
	for _, vote := range votes {
		history = append(history, model.HistoryEntry{
			Option:    vote.Option,
			Timestamp: vote.CreatedAt,
		})
	}

	return history, nil
}
