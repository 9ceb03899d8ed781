package broadcast

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/lvdashuaibi/livevote/internal/model"
)

// Event names on the push channel. Receivers treat tally-update as the
// authority for counts and vote-cast as notification only.
const (
	EventTallyUpdate = "tally-update"
	EventVoteCast    = "vote-cast"
)

// Envelope is the wire frame for every pushed event.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// A unit is the ordered pair of frames emitted for one committed vote.
// Sessions receive the frames of a unit in order; across units there
// is no global ordering guarantee.
type unit [][]byte

// Hub owns the set of live sessions and fans pushed events out to all
// of them. The session map is confined to the run loop goroutine;
// connects, disconnects and broadcasts are serialized through its
// channels. Delivery is at-most-once: nothing is queued for sessions
// that are slow, gone, or not yet connected.
type Hub struct {
	sessions   map[string]*Session
	register   chan *Session
	unregister chan *Session
	broadcast  chan unit
	stop       chan struct{}
	done       chan struct{}

	connected atomic.Int64
}

func NewHub() *Hub {
	return &Hub{
		sessions:   make(map[string]*Session),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		broadcast:  make(chan unit, 64),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the run loop.
func (h *Hub) Start() {
	go h.run()
}

// Stop terminates the run loop and closes every live session.
func (h *Hub) Stop() {
	close(h.stop)
	<-h.done
}

func (h *Hub) run() {
	defer close(h.done)

	for {
		select {
		case session := <-h.register:
			h.sessions[session.ID] = session
			h.connected.Store(int64(len(h.sessions)))
			log.Printf("session connected: %s (%d live)", session.ID, len(h.sessions))

		case session := <-h.unregister:
			if _, ok := h.sessions[session.ID]; ok {
				delete(h.sessions, session.ID)
				close(session.send)
			}
			h.connected.Store(int64(len(h.sessions)))
			log.Printf("session disconnected: %s (%d live)", session.ID, len(h.sessions))

		case u := <-h.broadcast:
			h.fanOut(u)

		case <-h.stop:
			for id, session := range h.sessions {
				delete(h.sessions, id)
				close(session.send)
			}
			h.connected.Store(0)
			log.Println("broadcast hub stopped")
			return
		}
	}
}

// fanOut delivers every frame of the unit, in order, to each live
// session. A session whose buffer is full is dropped rather than
// blocking the loop.
func (h *Hub) fanOut(u unit) {
	for id, session := range h.sessions {
		for _, frame := range u {
			select {
			case session.send <- frame:
				continue
			default:
			}
			delete(h.sessions, id)
			close(session.send)
			log.Printf("session %s too slow, dropped", id)
			break
		}
	}
	h.connected.Store(int64(len(h.sessions)))
}

// Register adds a session to the fan-out set.
func (h *Hub) Register(session *Session) {
	select {
	case h.register <- session:
	case <-h.stop:
	}
}

// Unregister removes a session. Safe to call more than once.
func (h *Hub) Unregister(session *Session) {
	select {
	case h.unregister <- session:
	case <-h.stop:
	}
}

// Connected reports the number of live sessions.
func (h *Hub) Connected() int {
	return int(h.connected.Load())
}

// BroadcastVote pushes the post-commit event pair for one accepted
// vote: the authoritative tally-update followed by the vote-cast
// notification. Called only after the ledger write committed; a failed
// write never reaches this point.
func (h *Hub) BroadcastVote(tally model.Tally, event model.VoteEvent) error {
	tallyFrame, err := json.Marshal(Envelope{Event: EventTallyUpdate, Data: tally})
	if err != nil {
		return fmt.Errorf("encode tally-update: %w", err)
	}
	voteFrame, err := json.Marshal(Envelope{Event: EventVoteCast, Data: event})
	if err != nil {
		return fmt.Errorf("encode vote-cast: %w", err)
	}

	select {
	case h.broadcast <- unit{tallyFrame, voteFrame}:
	case <-h.stop:
	default:
		// Hub saturated; deliveries are best-effort by contract.
		log.Println("broadcast queue full, dropping event pair")
	}

	return nil
}

// snapshotFrame encodes a lone tally-update used to reconcile a
// freshly connected session.
func snapshotFrame(tally model.Tally) ([]byte, error) {
	frame, err := json.Marshal(Envelope{Event: EventTallyUpdate, Data: tally})
	if err != nil {
		return nil, fmt.Errorf("encode tally snapshot: %w", err)
	}
	return frame, nil
}
