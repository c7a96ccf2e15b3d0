package ws

import (
	"sync"
	"time"

	"github.com/campushub/studyhub/config"
	"github.com/campushub/studyhub/globals"
	"github.com/campushub/studyhub/persistence"
	"github.com/campushub/studyhub/types"
)

const (
	maxMessageSize       = 4096
	pongWait             = 2 * time.Minute
	pingPeriod           = time.Minute
	writeWait            = 10 * time.Second
	defaultHistorySize   = 20
	broadcastChannelSize = 1000
)

// Hub is the room router. It owns the set of connected clients and each
// client's single current room (a group id). Chat content distribution over
// this channel is advisory: clients re-fetch the message log via REST, so a
// missed push is corrected by the next poll.
type Hub struct {
	// Registered clients.
	clients map[*Client]struct{}

	// Register a new client to the hub.
	Register chan *Client

	// Unregister a client from the hub.
	Unregister chan *Client

	// Push stored messages to the clients currently in the message's room.
	Broadcast chan *types.Message

	historySize int

	// global configuration
	Cfg *config.Config

	// persistence
	Persister persistence.Persister

	done chan struct{}

	// mutex for manipulating the clients and their room fields
	sync.RWMutex
}

func NewHub(cfg *config.Config, persister persistence.Persister) *Hub {
	historySize := defaultHistorySize
	if cfg.HistoryConfig.HistorySize > 0 {
		historySize = cfg.HistoryConfig.HistorySize
	}
	return &Hub{
		clients:     make(map[*Client]struct{}),
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		Broadcast:   make(chan *types.Message, broadcastChannelSize),
		historySize: historySize,
		Cfg:         cfg,
		Persister:   persister,
	}
}

// NoClients returns the number of clients registered
func (h *Hub) NoClients() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

// Run is the main hub event loop handling register, unregister and
// broadcast events. It exits when Stop is called.
func (h *Hub) Run() {
	h.Lock()
	if h.done == nil {
		h.done = make(chan struct{})
	}
	done := h.done
	h.Unlock()
	for {
		select {
		case <-done:
			return

		case client := <-h.Register:
			globals.AppLogger.Debug("register new client", "user", client.user.Id)
			h.Lock()
			h.clients[client] = struct{}{}
			h.Unlock()
			client.Done()

		case client := <-h.Unregister:
			h.Lock()
			if _, ok := h.clients[client]; ok {
				globals.AppLogger.Debug("unregister client", "user", client.user.Id)
				delete(h.clients, client)
				client.conn.Close()
				// wait for all loops and pending write operations before
				// closing the send channel
				client.Wait()
				close(client.Send)
			}
			h.Unlock()

		case message := <-h.Broadcast:
			data, err := types.NewWireMessage(types.WireEventMessage, message)
			if err != nil {
				globals.AppLogger.Error("could not marshal message event", "error", err)
				continue
			}
			h.RLock()
			for client := range h.clients {
				if client.room != message.GroupId {
					continue
				}
				client.Add(1)
				go func(c *Client) {
					defer c.Done()
					select {
					case c.Send <- data:
					case <-c.doneChan:
					}
				}(client)
			}
			h.RUnlock()
		}
	}
}

// Stop terminates the run loop. Connected clients are shut down by their
// own read/write loops when the server's listener goes away.
func (h *Hub) Stop() {
	h.Lock()
	if h.done == nil {
		h.done = make(chan struct{})
	}
	select {
	case <-h.done:
	default:
		close(h.done)
	}
	h.Unlock()
}

// joinRoom moves the client into the group room, implicitly leaving
// whatever room it was in before. The single room field makes the
// at-most-one-room invariant structural.
func (h *Hub) joinRoom(c *Client, groupId uint) error {
	member, err := h.Persister.IsMember(groupId, c.user.Id)
	if err != nil {
		return err
	}
	if !member {
		return persistence.ErrNotFound
	}
	h.Lock()
	c.room = groupId
	h.Unlock()
	return nil
}

// CurrentRoom reports the client's room for tests and the admin surface.
func (h *Hub) CurrentRoom(c *Client) uint {
	h.RLock()
	defer h.RUnlock()
	return c.room
}

// history returns the tail of the group's message log that is pushed to a
// freshly joined client as catch-up. The REST log stays authoritative.
func (h *Hub) history(groupId uint) []*types.Message {
	messages, err := h.Persister.MessagesForGroup(groupId)
	if err != nil {
		globals.AppLogger.Error("could not load room history", "error", err)
		return nil
	}
	if len(messages) > h.historySize {
		messages = messages[len(messages)-h.historySize:]
	}
	return messages
}
