package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lvdashuaibi/livevote/internal/broadcast"
	"github.com/lvdashuaibi/livevote/internal/model"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Websocket dial failed: %v", err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Websocket read failed: %v", err)
	}

	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("Bad frame %q: %v", frame, err)
	}
	return env.Event, env.Data
}

func TestWebsocketPushFlow(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()

	// A fresh session is reconciled with a tally snapshot.
	event, data := readEvent(t, conn)
	if event != broadcast.EventTallyUpdate {
		t.Fatalf("Expected snapshot %s, got %s", broadcast.EventTallyUpdate, event)
	}
	var snapshot model.Tally
	if err := json.Unmarshal(data, &snapshot); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	for _, option := range model.Options {
		if snapshot[option] != 0 {
			t.Errorf("Expected %s count 0 in snapshot, got %d", option, snapshot[option])
		}
	}

	// A committed vote pushes the pair in order.
	token := loginFor(t, s, "alice")
	if w := doJSON(t, s, "POST", "/api/vote", token, model.VoteRequest{Option: "Option A"}); w.Code != 200 {
		t.Fatalf("Vote failed with %d: %s", w.Code, w.Body.String())
	}

	event, data = readEvent(t, conn)
	if event != broadcast.EventTallyUpdate {
		t.Fatalf("Expected %s first, got %s", broadcast.EventTallyUpdate, event)
	}
	var current model.Tally
	if err := json.Unmarshal(data, &current); err != nil {
		t.Fatalf("Failed to decode tally: %v", err)
	}
	if current["Option A"] != 1 {
		t.Errorf("Expected Option A count 1, got %d", current["Option A"])
	}

	event, data = readEvent(t, conn)
	if event != broadcast.EventVoteCast {
		t.Fatalf("Expected %s second, got %s", broadcast.EventVoteCast, event)
	}
	var cast model.VoteEvent
	if err := json.Unmarshal(data, &cast); err != nil {
		t.Fatalf("Failed to decode vote-cast: %v", err)
	}
	if cast.Voter != "alice" || cast.Option != "Option A" {
		t.Errorf("Unexpected vote-cast payload: %+v", cast)
	}
	if cast.Timestamp.IsZero() {
		t.Error("Expected non-zero vote timestamp")
	}
}

func TestWebsocketLateJoinerSeesCurrentState(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	// Two users vote before anyone is watching.
	for _, name := range []string{"u1", "u2"} {
		token := loginFor(t, s, name)
		if w := doJSON(t, s, "POST", "/api/vote", token, model.VoteRequest{Option: "Option A"}); w.Code != 200 {
			t.Fatalf("Vote by %s failed with %d", name, w.Code)
		}
	}

	// The late session gets no vote-cast replay, only the snapshot
	// reflecting both committed votes.
	conn := dialWS(t, srv)
	defer conn.Close()

	event, data := readEvent(t, conn)
	if event != broadcast.EventTallyUpdate {
		t.Fatalf("Expected snapshot %s, got %s", broadcast.EventTallyUpdate, event)
	}
	var snapshot model.Tally
	if err := json.Unmarshal(data, &snapshot); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if snapshot["Option A"] != 2 {
		t.Errorf("Expected Option A count 2, got %d", snapshot["Option A"])
	}

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, frame, err := conn.ReadMessage(); err == nil {
		t.Errorf("Late joiner received unexpected frame: %s", frame)
	}
}
