package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lvdashuaibi/livevote/internal/auth"
	"github.com/lvdashuaibi/livevote/internal/model"
	"github.com/lvdashuaibi/livevote/internal/repository"
	"github.com/lvdashuaibi/livevote/internal/tally"
)

// spyBroadcaster records every pushed event pair in order.
type spyBroadcaster struct {
	mu      sync.Mutex
	tallies []model.Tally
	events  []model.VoteEvent
}

func (b *spyBroadcaster) BroadcastVote(t model.Tally, e model.VoteEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tallies = append(b.tallies, t)
	b.events = append(b.events, e)
	return nil
}

func (b *spyBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func newTestService() (*VoteService, *repository.MemoryRepository, *spyBroadcaster) {
	ledger := repository.NewMemoryRepository()
	broadcaster := &spyBroadcaster{}
	engine := tally.NewEngine(ledger, nil)
	tokens := auth.NewTokenIssuer("test-secret", 2*time.Hour)
	return NewVoteService(ledger, engine, tokens, broadcaster), ledger, broadcaster
}

func login(t *testing.T, svc *VoteService, name string) model.Identity {
	t.Helper()
	ctx := context.Background()

	token, err := svc.Login(ctx, name)
	if err != nil {
		t.Fatalf("Login(%q) failed: %v", name, err)
	}

	identity, err := svc.tokens.Verify(token)
	if err != nil {
		t.Fatalf("Issued token for %q does not verify: %v", name, err)
	}
	return identity
}

func TestLoginValidation(t *testing.T) {
	svc, _, _ := newTestService()

	for _, name := range []string{"", "   ", "\t\n"} {
		if _, err := svc.Login(context.Background(), name); !errors.Is(err, model.ErrNameRequired) {
			t.Errorf("Login(%q): expected ErrNameRequired, got %v", name, err)
		}
	}
}

func TestLoginSameNameSameUser(t *testing.T) {
	svc, _, _ := newTestService()

	first := login(t, svc, "alice")
	second := login(t, svc, "alice")

	if first.UserID != second.UserID {
		t.Errorf("Repeat login resolved to a different user: %s vs %s", first.UserID, second.UserID)
	}
}

func TestCastVoteRoundTrip(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	identity := login(t, svc, "alice")

	before := time.Now().UTC()
	vote, err := svc.CastVote(ctx, identity, "Option B")
	if err != nil {
		t.Fatalf("CastVote failed: %v", err)
	}
	if vote.Option != "Option B" {
		t.Errorf("Expected option %q, got %q", "Option B", vote.Option)
	}

	history, err := svc.History(ctx, identity)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(history))
	}
	if history[0].Option != "Option B" {
		t.Errorf("Expected history option %q, got %q", "Option B", history[0].Option)
	}
	if history[0].Timestamp.Before(before) {
		t.Errorf("History timestamp %v precedes the call at %v", history[0].Timestamp, before)
	}
}

func TestCastVoteDuplicate(t *testing.T) {
	svc, ledger, broadcaster := newTestService()
	ctx := context.Background()
	identity := login(t, svc, "alice")

	if _, err := svc.CastVote(ctx, identity, "Option A"); err != nil {
		t.Fatalf("First vote failed: %v", err)
	}
	if _, err := svc.CastVote(ctx, identity, "Option B"); !errors.Is(err, model.ErrAlreadyVoted) {
		t.Fatalf("Expected ErrAlreadyVoted, got %v", err)
	}

	votes, err := ledger.ListVotes(ctx)
	if err != nil {
		t.Fatalf("ListVotes failed: %v", err)
	}
	if len(votes) != 1 {
		t.Errorf("Expected exactly 1 persisted vote, got %d", len(votes))
	}
	if broadcaster.count() != 1 {
		t.Errorf("Expected exactly 1 broadcast, got %d", broadcaster.count())
	}
}

func TestCastVoteConcurrentDuplicate(t *testing.T) {
	svc, ledger, broadcaster := newTestService()
	ctx := context.Background()
	identity := login(t, svc, "alice")

	const attempts = 10
	var accepted atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CastVote(ctx, identity, "Option A")
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, model.ErrAlreadyVoted):
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted.Load() != 1 {
		t.Errorf("Expected exactly 1 accepted vote, got %d", accepted.Load())
	}
	votes, _ := ledger.ListVotes(ctx)
	if len(votes) != 1 {
		t.Errorf("Expected exactly 1 persisted vote, got %d", len(votes))
	}
	if broadcaster.count() != 1 {
		t.Errorf("Expected exactly 1 broadcast pair, got %d", broadcaster.count())
	}
}

func TestCastVoteValidation(t *testing.T) {
	svc, ledger, broadcaster := newTestService()
	ctx := context.Background()
	identity := login(t, svc, "alice")

	tests := []struct {
		name    string
		option  string
		wantErr error
	}{
		{"missing option", "", model.ErrOptionRequired},
		{"whitespace option", "   ", model.ErrOptionRequired},
		{"option outside fixed set", "Option Z", model.ErrInvalidOption},
		{"case mismatch", "option a", model.ErrInvalidOption},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CastVote(ctx, identity, tt.option); !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	// Rejected submissions leave no trace: no record, no broadcast.
	votes, _ := ledger.ListVotes(ctx)
	if len(votes) != 0 {
		t.Errorf("Expected no persisted votes, got %d", len(votes))
	}
	if broadcaster.count() != 0 {
		t.Errorf("Expected no broadcasts, got %d", broadcaster.count())
	}
}

func TestCastVoteBroadcastSequence(t *testing.T) {
	svc, _, broadcaster := newTestService()
	ctx := context.Background()

	u1 := login(t, svc, "alice")
	u2 := login(t, svc, "bob")

	if _, err := svc.CastVote(ctx, u1, "Option A"); err != nil {
		t.Fatalf("First vote failed: %v", err)
	}
	if _, err := svc.CastVote(ctx, u2, "Option A"); err != nil {
		t.Fatalf("Second vote failed: %v", err)
	}

	if broadcaster.count() != 2 {
		t.Fatalf("Expected 2 broadcast pairs, got %d", broadcaster.count())
	}
	if got := broadcaster.tallies[0]["Option A"]; got != 1 {
		t.Errorf("First tally-update: expected Option A count 1, got %d", got)
	}
	if got := broadcaster.tallies[1]["Option A"]; got != 2 {
		t.Errorf("Second tally-update: expected Option A count 2, got %d", got)
	}
	if broadcaster.events[0].Voter != "alice" || broadcaster.events[1].Voter != "bob" {
		t.Errorf("Vote-cast events out of order: %+v", broadcaster.events)
	}

	// A reader arriving after both votes missed the events but
	// reconciles through the tally itself.
	results, err := svc.Results(ctx)
	if err != nil {
		t.Fatalf("Results failed: %v", err)
	}
	if results["Option A"] != 2 {
		t.Errorf("Expected Option A count 2, got %d", results["Option A"])
	}
	for _, option := range model.Options {
		if _, ok := results[option]; !ok {
			t.Errorf("Results missing option %q", option)
		}
	}
}

func TestResultsZeroFilled(t *testing.T) {
	svc, _, _ := newTestService()

	results, err := svc.Results(context.Background())
	if err != nil {
		t.Fatalf("Results failed: %v", err)
	}

	if len(results) != len(model.Options) {
		t.Fatalf("Expected %d entries, got %d", len(model.Options), len(results))
	}
	for _, option := range model.Options {
		if results[option] != 0 {
			t.Errorf("Expected %s count 0, got %d", option, results[option])
		}
	}
}

func TestAllVotes(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	for _, name := range []string{"alice", "bob", "carol"} {
		identity := login(t, svc, name)
		if _, err := svc.CastVote(ctx, identity, "Option C"); err != nil {
			t.Fatalf("Vote by %s failed: %v", name, err)
		}
	}

	votes, err := svc.AllVotes(ctx)
	if err != nil {
		t.Fatalf("AllVotes failed: %v", err)
	}
	if len(votes) != 3 {
		t.Errorf("Expected 3 votes in the ledger, got %d", len(votes))
	}
}
