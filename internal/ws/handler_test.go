package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tilebound/server"
	"tilebound/server/internal/auth"
	"tilebound/server/internal/store"
)

const testSecret = "integration-secret"

type testEnv struct {
	url   string
	store *store.SQLite
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	registry := server.NewRegistry(server.Config{}, st, zerolog.Nop())
	handler := NewHandler(registry, auth.NewHMACDecoder(testSecret), zerolog.Nop())

	srv := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(srv.Close)

	return &testEnv{
		url:   "ws" + strings.TrimPrefix(srv.URL, "http"),
		store: st,
	}
}

func (e *testEnv) createWorld(t *testing.T, owner string) *store.WorldSave {
	t.Helper()
	world, err := e.store.CreateWorld(context.Background(), owner, "Emberfield", "emberfield", nil)
	if err != nil {
		t.Fatalf("create world: %v", err)
	}
	return world
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func signToken(t *testing.T, accountID string) string {
	t.Helper()
	token, err := auth.Sign(testSecret, accountID, accountID+"@example.com", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func sendJSON(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

// expectClose reads until the peer closes and asserts the close code.
func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, code) {
				t.Fatalf("expected close code %d, got %v", code, err)
			}
			return
		}
	}
}

func TestHandlerRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)
	world := env.createWorld(t, "acct-host")

	conn := env.dial(t)
	sendJSON(t, conn, server.JoinEnvelope{Token: "garbage", WorldSaveID: world.ID})
	expectClose(t, conn, server.CloseAuthFailed)
}

func TestHandlerRejectsEnvelopeWithoutWorld(t *testing.T) {
	env := newTestEnv(t)

	conn := env.dial(t)
	sendJSON(t, conn, server.JoinEnvelope{Token: signToken(t, "acct-host")})
	expectClose(t, conn, websocket.ClosePolicyViolation)
}

func TestHandlerRejectsUnknownWorld(t *testing.T) {
	env := newTestEnv(t)

	conn := env.dial(t)
	sendJSON(t, conn, server.JoinEnvelope{Token: signToken(t, "acct-host"), WorldSaveID: "no-such-world"})
	expectClose(t, conn, server.CloseWorldNotFound)
}

func TestHandlerRejectsGuestColdOpen(t *testing.T) {
	env := newTestEnv(t)
	world := env.createWorld(t, "acct-host")

	conn := env.dial(t)
	sendJSON(t, conn, server.JoinEnvelope{Token: signToken(t, "acct-guest"), WorldSaveID: world.ID})
	expectClose(t, conn, server.CloseNotOwner)
}

func TestHandlerJoinAndMove(t *testing.T) {
	env := newTestEnv(t)
	world := env.createWorld(t, "acct-host")

	conn := env.dial(t)
	sendJSON(t, conn, server.JoinEnvelope{
		Token:         signToken(t, "acct-host"),
		WorldSaveID:   world.ID,
		CharacterName: "Rook",
	})

	welcome := readJSON(t, conn)
	if welcome["type"] != server.MessageWelcome {
		t.Fatalf("expected welcome, got %v", welcome["type"])
	}
	players, ok := welcome["players"].([]any)
	if !ok || len(players) != 1 {
		t.Fatalf("expected one player in the welcome snapshot, got %v", welcome["players"])
	}
	self := players[0].(map[string]any)
	if self["name"] != "Rook" {
		t.Fatalf("expected character name Rook, got %v", self["name"])
	}
	startX := int(self["x"].(float64))
	startY := int(self["y"].(float64))

	sendJSON(t, conn, map[string]any{"type": server.MessageInput, "seq": 1, "direction": "up"})

	// The move lands on the next tick; skip unrelated state frames.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msg := readJSON(t, conn)
		if msg["type"] != server.MessageState {
			continue
		}
		patches, ok := msg["patches"].([]any)
		if !ok || len(patches) == 0 {
			continue
		}
		patch := patches[0].(map[string]any)
		if patch["kind"] != string(server.PatchPlayerUpdate) {
			continue
		}
		payload := patch["payload"].(map[string]any)
		if int(payload["lastProcessedSeq"].(float64)) != 1 {
			t.Fatalf("expected seq 1 acknowledged, got %v", payload["lastProcessedSeq"])
		}
		if int(payload["x"].(float64)) != startX || int(payload["y"].(float64)) != startY-1 {
			t.Fatalf("expected move to (%d,%d), got (%v,%v)", startX, startY-1, payload["x"], payload["y"])
		}
		return
	}
	t.Fatalf("no state patch arrived for the move")
}

func TestHandlerSecondClientSeesJoin(t *testing.T) {
	env := newTestEnv(t)
	world := env.createWorld(t, "acct-host")

	host := env.dial(t)
	sendJSON(t, host, server.JoinEnvelope{Token: signToken(t, "acct-host"), WorldSaveID: world.ID, CharacterName: "Rook"})
	if msg := readJSON(t, host); msg["type"] != server.MessageWelcome {
		t.Fatalf("host welcome missing, got %v", msg["type"])
	}

	guest := env.dial(t)
	sendJSON(t, guest, server.JoinEnvelope{Token: signToken(t, "acct-guest"), WorldSaveID: world.ID, CharacterName: "Wren"})
	welcome := readJSON(t, guest)
	if players, ok := welcome["players"].([]any); !ok || len(players) != 2 {
		t.Fatalf("expected 2 players in guest welcome, got %v", welcome["players"])
	}

	// The host sees the guest arrive as a player_added patch.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msg := readJSON(t, host)
		if msg["type"] != server.MessageState {
			continue
		}
		for _, raw := range msg["patches"].([]any) {
			patch := raw.(map[string]any)
			if patch["kind"] == string(server.PatchPlayerAdded) {
				payload := patch["payload"].(map[string]any)
				if payload["name"] != "Wren" {
					t.Fatalf("expected Wren in the join patch, got %v", payload["name"])
				}
				return
			}
		}
	}
	t.Fatalf("host never received the join patch")
}

func TestSessionIDsAreUnique(t *testing.T) {
	env := newTestEnv(t)
	world := env.createWorld(t, "acct-host")

	host := env.dial(t)
	sendJSON(t, host, server.JoinEnvelope{Token: signToken(t, "acct-host"), WorldSaveID: world.ID})
	hostWelcome := readJSON(t, host)

	guest := env.dial(t)
	sendJSON(t, guest, server.JoinEnvelope{Token: signToken(t, "acct-guest"), WorldSaveID: world.ID})
	guestWelcome := readJSON(t, guest)

	hostID, _ := hostWelcome["sessionId"].(string)
	guestID, _ := guestWelcome["sessionId"].(string)
	if hostID == "" || guestID == "" || hostID == guestID {
		t.Fatalf("expected distinct non-empty session ids, got %q and %q", hostID, guestID)
	}
}
