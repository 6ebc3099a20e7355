// Package realtime serves the chat websocket: room membership per
// conversation, typing relay and assistant replies.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/ceylontrails/tourchat/internal/middleware"
	"github.com/ceylontrails/tourchat/internal/model/chat"
	aiservice "github.com/ceylontrails/tourchat/internal/service/ai"
	chatservice "github.com/ceylontrails/tourchat/internal/service/chat"
)

// Options tunes connection keepalive.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

// DefaultOptions returns production keepalive settings.
func DefaultOptions() Options {
	return Options{
		PingInterval: 54 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   32,
	}
}

// Hub tracks connected clients and the conversations they joined.
type Hub struct {
	chats     *chatservice.Service
	assistant *aiservice.Assistant
	auth      *middleware.Authenticator
	opts      Options
	upgrader  websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	rooms   map[string]map[*client]struct{}
	closed  bool
}

// NewHub creates a hub.
func NewHub(chats *chatservice.Service, assistant *aiservice.Assistant, auth *middleware.Authenticator, opts Options) *Hub {
	def := DefaultOptions()
	if opts.PingInterval <= 0 {
		opts.PingInterval = def.PingInterval
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = def.ReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = def.SendBuffer
	}

	return &Hub{
		chats:     chats,
		assistant: assistant,
		auth:      auth,
		opts:      opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*client]struct{}),
		rooms:   make(map[string]map[*client]struct{}),
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Hub) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.ServeWS)
}

// ServeWS authenticates the handshake and upgrades the connection. Missing
// or unknown tokens get a plain 401 before the upgrade.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	user, ok := h.auth.UserForToken(middleware.TokenFromRequest(r))
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "realtime").Msg("upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		hub:    h,
		conn:   conn,
		user:   user,
		send:   make(chan chat.Envelope, h.opts.SendBuffer),
		turns:  make(chan chat.OutboundMessage, 16),
		rooms:  make(map[string]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	if !h.register(c) {
		cancel()
		_ = conn.Close()
		return
	}

	log.Info().Str("component", "realtime").Str("user", user).Msg("client connected")

	go c.writePump()
	go c.turnWorker()
	c.readPump()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.cancel()
		_ = c.conn.Close()
	}
}

// ClientCount reports connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	for id := range c.joinedRooms() {
		h.leaveLocked(c, id)
	}
	h.mu.Unlock()
}

func (h *Hub) join(c *client, conversationID string) {
	h.mu.Lock()
	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[conversationID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()
	c.addRoom(conversationID)
}

func (h *Hub) leave(c *client, conversationID string) {
	h.mu.Lock()
	h.leaveLocked(c, conversationID)
	h.mu.Unlock()
	c.removeRoom(conversationID)
}

func (h *Hub) leaveLocked(c *client, conversationID string) {
	room, ok := h.rooms[conversationID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, conversationID)
	}
}

// broadcast queues env for every member of the room except skip.
func (h *Hub) broadcast(conversationID string, env chat.Envelope, skip *client) {
	h.mu.RLock()
	members := make([]*client, 0, len(h.rooms[conversationID]))
	for c := range h.rooms[conversationID] {
		if c != skip {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.enqueue(env)
	}
}

func (h *Hub) inRoom(c *client, conversationID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[conversationID][c]
	return ok
}

type client struct {
	hub   *Hub
	conn  *websocket.Conn
	user  string
	send  chan chat.Envelope
	turns chan chat.OutboundMessage

	mu    sync.Mutex
	rooms map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

func (c *client) addRoom(id string) {
	c.mu.Lock()
	c.rooms[id] = struct{}{}
	c.mu.Unlock()
}

func (c *client) removeRoom(id string) {
	c.mu.Lock()
	delete(c.rooms, id)
	c.mu.Unlock()
}

func (c *client) joinedRooms() map[string]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]struct{}, len(c.rooms))
	for id := range c.rooms {
		out[id] = struct{}{}
	}
	return out
}

// enqueue drops the frame when the client is not keeping up.
func (c *client) enqueue(env chat.Envelope) {
	select {
	case <-c.ctx.Done():
	case c.send <- env:
	default:
		log.Warn().Str("component", "realtime").Str("user", c.user).Str("type", env.Type).Msg("send buffer full, dropping frame")
	}
}

func (c *client) emit(eventType string, data any) {
	env, err := chat.NewEnvelope(eventType, data)
	if err != nil {
		log.Error().Err(err).Str("component", "realtime").Str("type", eventType).Msg("encode frame failed")
		return
	}
	c.enqueue(env)
}

func (c *client) sendError(message string) {
	c.emit(chat.EventError, chat.ErrorPayload{Message: message})
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.cancel()
		_ = c.conn.Close()
		log.Info().Str("component", "realtime").Str("user", c.user).Msg("client disconnected")
	}()

	readTimeout := c.hub.opts.ReadTimeout
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("component", "realtime").Msg("read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))

		var env chat.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.sendError("invalid frame")
			continue
		}
		c.handleEnvelope(env)
	}
}

func (c *client) handleEnvelope(env chat.Envelope) {
	switch env.Type {
	case chat.EventJoinConversation:
		c.handleJoin(env.Data)
	case chat.EventLeaveConversation:
		var ref chat.ConversationRef
		_ = json.Unmarshal(env.Data, &ref)
		if ref.ConversationID != "" {
			c.hub.leave(c, ref.ConversationID)
		}
	case chat.EventTyping:
		typing := chat.DecodeTyping(env.Data)
		if typing.ConversationID != "" && c.hub.inRoom(c, typing.ConversationID) {
			if out, err := chat.NewEnvelope(chat.EventTyping, typing); err == nil {
				c.hub.broadcast(typing.ConversationID, out, c)
			}
		}
	case chat.EventMessage:
		c.handleMessage(env.Data)
	default:
		c.sendError("unsupported event type: " + env.Type)
	}
}

func (c *client) handleJoin(raw json.RawMessage) {
	var ref chat.ConversationRef
	if err := json.Unmarshal(raw, &ref); err != nil || ref.ConversationID == "" {
		c.sendError("conversation_id is required")
		return
	}
	if err := c.hub.chats.Authorize(c.ctx, c.user, ref.ConversationID); err != nil {
		c.sendError(err.Error())
		return
	}
	c.hub.join(c, ref.ConversationID)
	c.emit(chat.EventJoined, ref)
}

func (c *client) handleMessage(raw json.RawMessage) {
	var msg chat.OutboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("invalid message payload")
		return
	}
	msg.Message = strings.TrimSpace(msg.Message)
	if msg.Message == "" || msg.ConversationID == "" {
		c.sendError("message and conversation_id are required")
		return
	}
	if err := c.hub.chats.Authorize(c.ctx, c.user, msg.ConversationID); err != nil {
		c.sendError(err.Error())
		return
	}

	select {
	case c.turns <- msg:
	default:
		c.sendError("too many pending messages")
	}
}

// turnWorker answers messages one at a time so replies keep send order.
func (c *client) turnWorker() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.turns:
			c.answer(msg)
		}
	}
}

func (c *client) answer(msg chat.OutboundMessage) {
	convID := msg.ConversationID
	c.notifyRoom(convID, chat.EventTyping, chat.TypingPayload{IsTyping: true, ConversationID: convID})
	defer c.notifyRoom(convID, chat.EventTyping, chat.TypingPayload{IsTyping: false, ConversationID: convID})

	reply, err := c.hub.assistant.Reply(c.ctx, convID, msg.Message, "", msg.ClientID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Error().Err(err).Str("component", "realtime").Str("conversation_id", convID).Msg("reply failed")
		c.sendError("assistant unavailable")
		return
	}
	c.notifyRoom(convID, chat.EventMessage, reply)
}

// notifyRoom sends to the whole room, or just to the sender when it has not
// joined.
func (c *client) notifyRoom(conversationID, eventType string, data any) {
	env, err := chat.NewEnvelope(eventType, data)
	if err != nil {
		log.Error().Err(err).Str("component", "realtime").Msg("encode frame failed")
		return
	}
	if !c.hub.inRoom(c, conversationID) {
		c.enqueue(env)
	}
	c.hub.broadcast(conversationID, env, nil)
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	writeTimeout := c.hub.opts.WriteTimeout
	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
			return
		case env := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(env); err != nil {
				log.Debug().Err(err).Str("component", "realtime").Msg("write failed")
				c.cancel()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.cancel()
				return
			}
		}
	}
}
