package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lvdashuaibi/livevote/internal/model"
)

// MemoryRepository is an in-memory ledger for tests and local runs
// without MySQL. It honors the same contract as the SQL ledger: one
// vote per user, with the check and the append made atomic under a
// single mutex instead of a unique index.
type MemoryRepository struct {
	mu     sync.Mutex
	users  map[string]*model.User
	votes  []*model.Vote
	voted  map[string]bool
	nextID int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users: make(map[string]*model.User),
		voted: make(map[string]bool),
	}
}

func (r *MemoryRepository) FindOrCreateUser(ctx context.Context, name string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user, ok := r.users[name]; ok {
		copied := *user
		return &copied, nil
	}

	user := &model.User{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	r.users[name] = user

	copied := *user
	return &copied, nil
}

func (r *MemoryRepository) InsertVote(ctx context.Context, identity model.Identity, option string) (*model.Vote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.voted[identity.UserID] {
		return nil, model.ErrAlreadyVoted
	}

	r.nextID++
	vote := &model.Vote{
		ID:        r.nextID,
		UserID:    identity.UserID,
		Name:      identity.Name,
		Option:    option,
		CreatedAt: time.Now().UTC(),
	}
	r.votes = append(r.votes, vote)
	r.voted[identity.UserID] = true

	if user, ok := r.users[identity.Name]; ok {
		user.HasVoted = true
	}

	copied := *vote
	return &copied, nil
}

func (r *MemoryRepository) ListVotes(ctx context.Context) ([]*model.Vote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	votes := make([]*model.Vote, 0, len(r.votes))
	for _, vote := range r.votes {
		copied := *vote
		votes = append(votes, &copied)
	}
	return votes, nil
}

func (r *MemoryRepository) ListVotesForUser(ctx context.Context, userID string, limit int) ([]*model.Vote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var votes []*model.Vote
	for i := len(r.votes) - 1; i >= 0 && len(votes) < limit; i-- {
		if r.votes[i].UserID == userID {
			copied := *r.votes[i]
			votes = append(votes, &copied)
		}
	}
	return votes, nil
}

func (r *MemoryRepository) CountByOption(ctx context.Context) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[string]int)
	for _, vote := range r.votes {
		counts[vote.Option]++
	}
	return counts, nil
}
