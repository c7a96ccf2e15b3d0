package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"

	"github.com/campushub/studyhub/auth"
	"github.com/campushub/studyhub/globals"
	"github.com/campushub/studyhub/types"
)

const sendChannelSize = 1000

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	user *types.User

	// current group room, 0 = none; guarded by the hub lock
	room uint

	doneChan chan struct{}

	// WaitGroup which keeps track of running read/write loops and write
	// access to Send. If the WaitGroup is done, it is safe to close the
	// send channel.
	sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, user *types.User, doneChan chan struct{}) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		Send:     make(chan []byte, sendChannelSize),
		user:     user,
		doneChan: doneChan,
	}
}

// ServeWs authenticates the handshake and runs the connection until
// teardown. The bearer token comes in as a query parameter because the
// websocket entry point does not share the REST middleware. An invalid
// token is answered with a single error event and a close, before any room
// join can be observed.
func ServeWs(hub *Hub, verifier *auth.Verifier, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close()

	userId, err := verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		refuse(conn, "invalid credential")
		return
	}
	user, err := hub.Persister.GetUser(userId)
	if err != nil {
		refuse(conn, "unknown user")
		return
	}

	doneChan := make(chan struct{})
	c := NewClient(hub, conn, user, doneChan)

	// wait until the hub's run loop actually picked up the registration,
	// so a broadcast right after this cannot miss the new client
	c.Add(1)
	hub.Register <- c
	c.Wait()
	defer func() {
		hub.Unregister <- c
	}()

	c.Add(2)
	go c.ReadLoop()
	go c.WriteLoop()

	<-doneChan
	globals.AppLogger.Debug("connection done, exiting ws handler", "user", user.Id)
}

func refuse(conn *websocket.Conn, reason string) {
	if data, err := types.NewWireMessage(types.WireEventError, types.WireError{Error: reason}); err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
	_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// ReadLoop pumps messages from the websocket connection to the hub.
//
// The application runs ReadLoop in a per-connection goroutine. The
// application ensures that there is at most one reader on a connection by
// executing all reads from this goroutine.
func (c *Client) ReadLoop() {
	defer func() {
		c.conn.Close()
		close(c.doneChan)
		c.Done()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				globals.AppLogger.Debug("ws closed unexpected", "error", err)
			}
			return
		}

		message := types.WebsocketMessage{}
		if err := json.Unmarshal(raw, &message); err != nil {
			globals.AppLogger.Debug("could not unmarshal ws message", "error", err)
			return
		}

		switch message.Event {
		case types.WireEventJoin:
			joinMsgMap := make(map[string]interface{})
			if err := json.Unmarshal(message.Data, &joinMsgMap); err != nil {
				globals.AppLogger.Debug("could not unmarshal join message", "error", err)
				return
			}
			joinMsg := types.JoinRequest{}
			if err := mapstructure.WeakDecode(joinMsgMap, &joinMsg); err != nil {
				globals.AppLogger.Debug("could not decode join message", "error", err)
				return
			}
			if err := c.hub.joinRoom(c, joinMsg.GroupId); err != nil {
				c.sendEvent(types.WireEventError, types.WireError{Error: "cannot join room"})
				continue
			}
			c.sendEvent(types.WireEventJoined, types.JoinConfirmation{
				GroupId: joinMsg.GroupId,
				Message: "joined room",
			})
			for _, msg := range c.hub.history(joinMsg.GroupId) {
				c.sendEvent(types.WireEventMessage, msg)
			}
		}
	}
}

// sendEvent marshals a payload and queues it for this connection only.
// The hub lock is released before the send: a slow connection must never
// stall it, so the send is guarded by doneChan like the broadcast path.
func (c *Client) sendEvent(event string, payload interface{}) {
	data, err := types.NewWireMessage(event, payload)
	if err != nil {
		globals.AppLogger.Error("could not marshal ws event", "error", err)
		return
	}
	c.hub.RLock()
	_, ok := c.hub.clients[c]
	c.hub.RUnlock()
	if !ok {
		return
	}
	select {
	case c.Send <- data:
	case <-c.doneChan:
	}
}

// WriteLoop pumps messages from the hub to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.Done()
	}()
	for {
		select {
		case <-c.doneChan:
			return
		default:
		}
		select {
		case message, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.doneChan:
			return
		}
	}
}
