package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/campushub/studyhub/auth"
	"github.com/campushub/studyhub/config"
	"github.com/campushub/studyhub/persistence"
	"github.com/campushub/studyhub/types"
)

type testEnv struct {
	hub      *Hub
	store    persistence.Persister
	verifier *auth.Verifier
	server   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		AuthConfig: config.AuthConfig{Secret: "test-secret", TokenTTL: time.Hour},
		PersistenceConfig: config.PersistenceConfig{
			Type: "sqlite",
			DSN:  filepath.Join(t.TempDir(), "test.db"),
		},
	}
	store, err := persistence.NewPersister(cfg)
	if err != nil {
		t.Fatal(err)
	}
	verifier, err := auth.NewVerifier(cfg)
	if err != nil {
		t.Fatal(err)
	}
	hub := NewHub(cfg, store)
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, verifier, w, r)
	}))
	t.Cleanup(func() {
		server.Close()
		hub.Stop()
		store.Close()
	})
	return &testEnv{hub: hub, store: store, verifier: verifier, server: server}
}

func (e *testEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (e *testEnv) newUserWithToken(t *testing.T, name, email string) (*types.User, string) {
	t.Helper()
	user := &types.User{Name: name, Email: email, CreatedAt: time.Now()}
	if err := e.store.CreateUser(user); err != nil {
		t.Fatal(err)
	}
	token, err := e.verifier.Issue(user.Id)
	if err != nil {
		t.Fatal(err)
	}
	return user, token
}

func readEvent(t *testing.T, conn *websocket.Conn) types.WebsocketMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	msg := types.WebsocketMessage{}
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func sendJoin(t *testing.T, conn *websocket.Conn, groupId uint) {
	t.Helper()
	data, err := types.NewWireMessage(types.WireEventJoin, types.JoinRequest{GroupId: groupId})
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatal(err)
	}
}

func TestSendEventDoesNotStallHub(t *testing.T) {
	hub := NewHub(&config.Config{}, nil)
	doneChan := make(chan struct{})
	c := NewClient(hub, nil, &types.User{Id: 1}, doneChan)
	hub.Lock()
	hub.clients[c] = struct{}{}
	hub.Unlock()

	// a client that never reads lets its send channel fill up
	for i := 0; i < sendChannelSize; i++ {
		c.Send <- []byte("backlog")
	}

	sent := make(chan struct{})
	go func() {
		c.sendEvent(types.WireEventJoined, types.JoinConfirmation{GroupId: 1})
		close(sent)
	}()

	// the hub write lock must stay acquirable while that send is pending
	locked := make(chan struct{})
	go func() {
		hub.Lock()
		hub.Unlock()
		close(locked)
	}()
	select {
	case <-locked:
	case <-time.After(time.Second):
		t.Fatal("hub lock not acquirable while a send is pending")
	}

	// connection teardown unblocks the pending send
	close(doneChan)
	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("sendEvent did not return on teardown")
	}
}

func TestServeWsRejectsInvalidToken(t *testing.T) {
	env := newTestEnv(t)

	conn := env.dial(t, "bogus")
	msg := readEvent(t, conn)
	assert.Equal(t, types.WireEventError, msg.Event)

	// the connection is closed right after the error event
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestJoinRoomAndHistory(t *testing.T) {
	env := newTestEnv(t)

	alice, token := env.newUserWithToken(t, "alice", "alice@example.com")
	group := &types.Group{Name: "study", Subject: "calculus", Capacity: 3, CreatorId: alice.Id}
	if err := env.store.CreateGroup(group); err != nil {
		t.Fatal(err)
	}
	for _, body := range []string{"first", "second"} {
		if err := env.store.AppendMessage(types.NewTextMessage(group.Id, alice.Id, body)); err != nil {
			t.Fatal(err)
		}
	}

	conn := env.dial(t, token)
	sendJoin(t, conn, group.Id)

	msg := readEvent(t, conn)
	assert.Equal(t, types.WireEventJoined, msg.Event)
	confirmation := types.JoinConfirmation{}
	if err := json.Unmarshal(msg.Data, &confirmation); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, group.Id, confirmation.GroupId)

	// the log tail is replayed in order
	for _, want := range []string{"first", "second"} {
		msg = readEvent(t, conn)
		assert.Equal(t, types.WireEventMessage, msg.Event)
		replayed := types.Message{}
		if err := json.Unmarshal(msg.Data, &replayed); err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, want, replayed.Body)
	}
}

func TestJoinRoomRequiresMembership(t *testing.T) {
	env := newTestEnv(t)

	alice, _ := env.newUserWithToken(t, "alice", "alice@example.com")
	_, bobToken := env.newUserWithToken(t, "bob", "bob@example.com")
	group := &types.Group{Name: "study", Subject: "calculus", Capacity: 3, CreatorId: alice.Id}
	if err := env.store.CreateGroup(group); err != nil {
		t.Fatal(err)
	}

	conn := env.dial(t, bobToken)
	sendJoin(t, conn, group.Id)

	msg := readEvent(t, conn)
	assert.Equal(t, types.WireEventError, msg.Event)
}

func TestJoinSwitchesRoom(t *testing.T) {
	env := newTestEnv(t)

	alice, token := env.newUserWithToken(t, "alice", "alice@example.com")
	first := &types.Group{Name: "first", Subject: "calculus", Capacity: 3, CreatorId: alice.Id}
	second := &types.Group{Name: "second", Subject: "biology", Capacity: 3, CreatorId: alice.Id}
	for _, g := range []*types.Group{first, second} {
		if err := env.store.CreateGroup(g); err != nil {
			t.Fatal(err)
		}
	}

	conn := env.dial(t, token)

	sendJoin(t, conn, first.Id)
	msg := readEvent(t, conn)
	assert.Equal(t, types.WireEventJoined, msg.Event)

	sendJoin(t, conn, second.Id)
	msg = readEvent(t, conn)
	assert.Equal(t, types.WireEventJoined, msg.Event)

	// the second join implicitly left the first room
	env.hub.Broadcast <- types.NewTextMessage(first.Id, alice.Id, "to the first room")
	env.hub.Broadcast <- types.NewTextMessage(second.Id, alice.Id, "to the second room")

	msg = readEvent(t, conn)
	assert.Equal(t, types.WireEventMessage, msg.Event)
	received := types.Message{}
	if err := json.Unmarshal(msg.Data, &received); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "to the second room", received.Body)
}

func TestBroadcastReachesOnlyRoomMembers(t *testing.T) {
	env := newTestEnv(t)

	alice, aliceToken := env.newUserWithToken(t, "alice", "alice@example.com")
	_, bobToken := env.newUserWithToken(t, "bob", "bob@example.com")
	group := &types.Group{Name: "study", Subject: "calculus", Capacity: 3, CreatorId: alice.Id}
	if err := env.store.CreateGroup(group); err != nil {
		t.Fatal(err)
	}

	aliceConn := env.dial(t, aliceToken)
	sendJoin(t, aliceConn, group.Id)
	joined := readEvent(t, aliceConn)
	assert.Equal(t, types.WireEventJoined, joined.Event)

	// bob is connected but in no room
	bobConn := env.dial(t, bobToken)

	pushed := types.NewTextMessage(group.Id, alice.Id, "hello room")
	pushed.Id = 1
	env.hub.Broadcast <- pushed

	msg := readEvent(t, aliceConn)
	assert.Equal(t, types.WireEventMessage, msg.Event)
	received := types.Message{}
	if err := json.Unmarshal(msg.Data, &received); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "hello room", received.Body)

	bobConn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := bobConn.ReadMessage()
	assert.Error(t, err, "clients outside the room receive nothing")
}
