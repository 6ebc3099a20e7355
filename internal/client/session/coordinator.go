// Package session presents a conversation over the realtime connector and
// the REST fallback, and owns the message history and draft.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/ceylontrails/tourchat/internal/client/transport"
	"github.com/ceylontrails/tourchat/internal/model/chat"
)

// ErrNotAuthenticated is returned by operations that need a signed-in user.
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrReplyLost is recorded when the connection drops while realtime turns
// still wait for their reply.
var ErrReplyLost = errors.New("connection lost before the reply arrived")

// FailureResponse is written into an entry whose send failed or whose reply
// was lost.
const FailureResponse = "Sorry, your message could not be delivered. Please check your connection and try again."

// State is the binding state of a Coordinator.
type State int

const (
	StateIdle State = iota
	StateBoundDisconnected
	StateBoundConnected
)

func (s State) String() string {
	switch s {
	case StateBoundDisconnected:
		return "bound-disconnected"
	case StateBoundConnected:
		return "bound-connected"
	default:
		return "idle"
	}
}

// Transport is the realtime side, satisfied by *transport.Connector.
type Transport interface {
	Connected() bool
	SendMessage(text, conversationID, clientID string) bool
	SendTyping(isTyping bool, conversationID string) bool
	JoinConversation(conversationID string) bool
	LeaveConversation(conversationID string) bool
}

// Backend is the request/response side, satisfied by *api.Client.
type Backend interface {
	SendMessage(ctx context.Context, req chat.SendRequest) (chat.Message, error)
	ListConversations(ctx context.Context) ([]chat.Conversation, error)
	GetConversation(ctx context.Context, id string) (chat.Conversation, error)
	CreateConversation(ctx context.Context, title string) (chat.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
}

// Credentials reports whether a user is signed in, satisfied by *auth.Session.
type Credentials interface {
	Authenticated() bool
}

// GuestIdentity yields the persisted guest id, satisfied by *guest.Identity.
type GuestIdentity interface {
	ID() (string, error)
}

// Deps are the collaborators of a Coordinator. Transport may be nil when
// realtime chat is disabled; it must then be a nil interface, not a typed nil.
type Deps struct {
	Transport   Transport
	Backend     Backend
	Credentials Credentials
	Guest       GuestIdentity
}

// Coordinator is the single mutator of chat state. Callers may invoke its
// methods from any goroutine; transport events are applied in order by Run.
type Coordinator struct {
	deps Deps

	mu              sync.Mutex
	language        string
	draft           string
	messages        []chat.Message
	conversationID  string
	joined          bool
	bindGen         uint64
	assistantTyping bool
	conversations   []chat.Conversation
	lastErr         error
	// client ids of turns sent over the connector and not yet answered
	awaiting map[string]struct{}

	updates chan struct{}
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(deps Deps, language string) *Coordinator {
	if language == "" {
		language = "en"
	}
	return &Coordinator{
		deps:     deps,
		language: language,
		awaiting: make(map[string]struct{}),
		updates:  make(chan struct{}, 1),
	}
}

// Updates signals that observable state changed. Notifications coalesce;
// read the accessors after each receive.
func (c *Coordinator) Updates() <-chan struct{} {
	return c.updates
}

func (c *Coordinator) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// SetDraft replaces the composing buffer.
func (c *Coordinator) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
	c.notify()
}

// SetLanguage sets the language attached to outgoing fallback requests.
func (c *Coordinator) SetLanguage(language string) {
	c.mu.Lock()
	c.language = language
	c.mu.Unlock()
}

// SendDraft sends the current draft.
func (c *Coordinator) SendDraft(ctx context.Context) (chat.Message, bool) {
	c.mu.Lock()
	draft := c.draft
	c.mu.Unlock()
	return c.Send(ctx, draft)
}

// Send dispatches text and returns the history entry it produced. Blank
// input is ignored and reported as false. Realtime is used when signed in,
// connected and bound; otherwise the fallback call blocks until it
// resolves or fails. Failures end up in the entry, never in a return value.
func (c *Coordinator) Send(ctx context.Context, text string) (chat.Message, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Message{}, false
	}

	clientID := uuid.NewString()

	c.mu.Lock()
	entry := chat.Message{
		ID:             clientID,
		ClientID:       clientID,
		ConversationID: c.conversationID,
		RequestText:    text,
		Language:       c.language,
		Timestamp:      time.Now().UTC(),
		Pending:        true,
	}
	c.messages = append(c.messages, entry)
	c.draft = ""
	gen := c.bindGen
	conversationID := c.conversationID
	language := c.language
	realtime := c.realtimeLocked()
	if realtime {
		c.awaiting[clientID] = struct{}{}
	}
	c.mu.Unlock()
	c.notify()

	if realtime {
		if c.deps.Transport.SendMessage(text, conversationID, clientID) {
			return entry, true
		}
		log.Warn().Str("component", "session").Str("conversation_id", conversationID).
			Msg("realtime send refused, using fallback")
		c.mu.Lock()
		delete(c.awaiting, clientID)
		c.mu.Unlock()
	}

	sessionID := conversationID
	if sessionID == "" {
		sessionID = c.guestID()
	}

	reply, err := c.deps.Backend.SendMessage(ctx, chat.SendRequest{
		Message:   text,
		Language:  language,
		SessionID: sessionID,
	})

	c.mu.Lock()
	defer c.notify()
	defer c.mu.Unlock()

	if gen != c.bindGen {
		log.Debug().Str("component", "session").Str("client_id", clientID).Msg("discarding reply for previous binding")
		return entry, true
	}

	idx := c.indexByClientID(clientID)
	if idx < 0 {
		return entry, true
	}
	if err != nil {
		log.Warn().Err(err).Str("component", "session").Msg("fallback send failed")
		c.lastErr = errors.Wrap(err, "send message")
		c.failLocked(idx)
		return c.messages[idx], true
	}
	if !c.messages[idx].Resolved() || c.messages[idx].Failed {
		c.messages[idx] = c.messages[idx].Merge(reply)
	}
	return c.messages[idx], true
}

// realtimeLocked reports whether the next send goes over the connector.
func (c *Coordinator) realtimeLocked() bool {
	return c.deps.Transport != nil &&
		c.conversationID != "" &&
		c.deps.Credentials != nil && c.deps.Credentials.Authenticated() &&
		c.deps.Transport.Connected()
}

func (c *Coordinator) guestID() string {
	if c.deps.Guest == nil {
		return ""
	}
	id, err := c.deps.Guest.ID()
	if err != nil {
		log.Warn().Err(err).Str("component", "session").Msg("guest identity not persisted")
	}
	return id
}

func (c *Coordinator) failLocked(idx int) {
	c.messages[idx].ResponseText = FailureResponse
	c.messages[idx].Pending = false
	c.messages[idx].Failed = true
}

// NotifyTyping forwards the local user's typing state while joined.
func (c *Coordinator) NotifyTyping(isTyping bool) {
	c.mu.Lock()
	joined, conversationID := c.joined, c.conversationID
	c.mu.Unlock()
	if joined {
		c.deps.Transport.SendTyping(isTyping, conversationID)
	}
}

// Bind switches the active conversation. The previous one is left before
// the new one is joined, and the new history is fetched when signed in.
// Binding "" is the same as Unbind.
func (c *Coordinator) Bind(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		c.Unbind()
		return nil
	}

	c.mu.Lock()
	previous := c.resetBindingLocked()
	c.conversationID = conversationID
	gen := c.bindGen
	connected := c.deps.Transport != nil && c.deps.Transport.Connected()
	authenticated := c.deps.Credentials != nil && c.deps.Credentials.Authenticated()
	c.mu.Unlock()

	c.leave(previous)
	if connected {
		c.join(conversationID, gen)
	}
	c.notify()

	log.Info().Str("component", "session").Str("conversation_id", conversationID).Msg("bound conversation")

	if !authenticated {
		return nil
	}

	conv, err := c.deps.Backend.GetConversation(ctx, conversationID)

	c.mu.Lock()
	defer c.notify()
	defer c.mu.Unlock()

	if gen != c.bindGen {
		return nil
	}
	if err != nil {
		c.lastErr = errors.Wrapf(err, "load conversation %s", conversationID)
		return c.lastErr
	}

	// entries sent while the fetch was in flight stay after the history
	history := make([]chat.Message, 0, len(conv.Messages)+len(c.messages))
	seen := make(map[string]bool, len(conv.Messages))
	for _, m := range conv.Messages {
		history = append(history, m)
		if m.ID != "" {
			seen[m.ID] = true
		}
	}
	for _, m := range c.messages {
		if !seen[m.ID] {
			history = append(history, m)
		}
	}
	c.messages = history
	return nil
}

// Unbind leaves the current conversation and returns to idle.
func (c *Coordinator) Unbind() {
	c.mu.Lock()
	previous := c.resetBindingLocked()
	c.mu.Unlock()
	c.leave(previous)
	c.notify()
}

// resetBindingLocked clears the bound conversation's history and invalidates
// in-flight results. It returns the conversation to leave, if joined.
func (c *Coordinator) resetBindingLocked() string {
	var previous string
	if c.joined {
		previous = c.conversationID
	}
	c.joined = false
	c.conversationID = ""
	c.messages = nil
	c.assistantTyping = false
	clear(c.awaiting)
	c.bindGen++
	return previous
}

// join and leave write to the socket, so they run without c.mu held.

func (c *Coordinator) join(conversationID string, gen uint64) bool {
	ok := c.deps.Transport.JoinConversation(conversationID)
	if ok {
		c.mu.Lock()
		if gen == c.bindGen {
			c.joined = true
		}
		c.mu.Unlock()
	}
	return ok
}

func (c *Coordinator) leave(conversationID string) {
	if conversationID != "" {
		c.deps.Transport.LeaveConversation(conversationID)
	}
}

// CreateConversation creates a conversation and refreshes the list.
func (c *Coordinator) CreateConversation(ctx context.Context, title string) (chat.Conversation, error) {
	if !c.authenticated() {
		return chat.Conversation{}, ErrNotAuthenticated
	}

	conv, err := c.deps.Backend.CreateConversation(ctx, title)
	if err != nil {
		return chat.Conversation{}, c.recordErr(errors.Wrap(err, "create conversation"))
	}
	if err := c.RefreshConversations(ctx); err != nil {
		log.Warn().Err(err).Str("component", "session").Msg("conversation list refresh failed")
	}
	return conv, nil
}

// DeleteConversation deletes a conversation, unbinding it if bound, and
// refreshes the list.
func (c *Coordinator) DeleteConversation(ctx context.Context, conversationID string) error {
	if !c.authenticated() {
		return ErrNotAuthenticated
	}

	if err := c.deps.Backend.DeleteConversation(ctx, conversationID); err != nil {
		return c.recordErr(errors.Wrapf(err, "delete conversation %s", conversationID))
	}

	c.mu.Lock()
	bound := c.conversationID == conversationID
	c.mu.Unlock()
	if bound {
		c.Unbind()
	}

	if err := c.RefreshConversations(ctx); err != nil {
		log.Warn().Err(err).Str("component", "session").Msg("conversation list refresh failed")
	}
	return nil
}

// RefreshConversations refetches the signed-in user's conversation list.
func (c *Coordinator) RefreshConversations(ctx context.Context) error {
	if !c.authenticated() {
		return ErrNotAuthenticated
	}

	list, err := c.deps.Backend.ListConversations(ctx)
	if err != nil {
		return c.recordErr(errors.Wrap(err, "list conversations"))
	}

	c.mu.Lock()
	c.conversations = list
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *Coordinator) authenticated() bool {
	return c.deps.Credentials != nil && c.deps.Credentials.Authenticated()
}

func (c *Coordinator) recordErr(err error) error {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.notify()
	return err
}

// Run applies connector events until ctx is done or events is closed. A nil
// channel blocks until ctx is done.
func (c *Coordinator) Run(ctx context.Context, events <-chan transport.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.handle(ev)
		}
	}
}

func (c *Coordinator) handle(ev transport.Event) {
	defer c.notify()

	c.mu.Lock()
	var rejoin string
	gen := c.bindGen

	switch e := ev.(type) {
	case transport.ConnectEvent:
		if c.conversationID != "" && !c.joined && c.deps.Transport != nil {
			rejoin = c.conversationID
		}
	case transport.DisconnectEvent:
		c.joined = false
		c.assistantTyping = false
		c.failAwaitingLocked()
	case transport.JoinedEvent:
		if e.ConversationID != "" && e.ConversationID == c.conversationID {
			c.joined = true
		}
	case transport.TypingEvent:
		if c.conversationID != "" && (e.ConversationID == "" || e.ConversationID == c.conversationID) {
			c.assistantTyping = e.IsTyping
		}
	case transport.MessageEvent:
		c.reconcileLocked(e.Message)
	case transport.ErrorEvent:
		c.lastErr = e.Err
	}
	c.mu.Unlock()

	if rejoin != "" {
		joined := c.join(rejoin, gen)
		log.Debug().Str("component", "session").Str("conversation_id", rejoin).
			Bool("joined", joined).Msg("rejoining after connect")
	}
}

// failAwaitingLocked marks realtime turns still waiting for a reply as
// failed; the server drops a client's queued turns with its socket. A late
// reply still replaces the failure.
func (c *Coordinator) failAwaitingLocked() {
	if len(c.awaiting) == 0 {
		return
	}
	for clientID := range c.awaiting {
		if idx := c.indexByClientID(clientID); idx >= 0 && !c.messages[idx].Resolved() {
			c.failLocked(idx)
		}
	}
	clear(c.awaiting)
	c.lastErr = ErrReplyLost
	log.Warn().Str("component", "session").Str("conversation_id", c.conversationID).
		Msg("connection lost with replies outstanding")
}

// reconcileLocked merges a pushed message into history: by client id first,
// then by server id, then, for payloads without a client id, into the oldest
// pending entry with the same request text. Anything else is appended.
func (c *Coordinator) reconcileLocked(msg chat.Message) {
	if c.conversationID == "" {
		log.Debug().Str("component", "session").Str("id", msg.ID).Msg("dropping realtime message while unbound")
		return
	}
	if msg.ConversationID != "" && msg.ConversationID != c.conversationID {
		log.Debug().Str("component", "session").Str("conversation_id", msg.ConversationID).
			Msg("dropping message for another conversation")
		return
	}

	idx := -1
	if msg.ClientID != "" {
		idx = c.indexByClientID(msg.ClientID)
	}
	if idx < 0 && msg.ID != "" {
		idx = c.indexByID(msg.ID)
	}
	if idx < 0 && msg.ClientID == "" && msg.RequestText != "" {
		for i, m := range c.messages {
			if m.Pending && m.RequestText == msg.RequestText {
				idx = i
				break
			}
		}
	}

	if msg.ResponseText != "" {
		c.assistantTyping = false
	}

	if idx < 0 {
		if msg.ConversationID == "" {
			msg.ConversationID = c.conversationID
		}
		msg.Pending = msg.ResponseText == ""
		c.messages = append(c.messages, msg)
		return
	}
	if c.messages[idx].Resolved() && !c.messages[idx].Failed {
		return
	}
	c.messages[idx] = c.messages[idx].Merge(msg)
	if c.messages[idx].Resolved() {
		delete(c.awaiting, c.messages[idx].ClientID)
	}
}

func (c *Coordinator) indexByClientID(clientID string) int {
	for i, m := range c.messages {
		if m.ClientID == clientID {
			return i
		}
	}
	return -1
}

func (c *Coordinator) indexByID(id string) int {
	for i, m := range c.messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// Messages returns a copy of the bound conversation's history.
func (c *Coordinator) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chat.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Coordinator) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.conversationID == "":
		return StateIdle
	case c.joined:
		return StateBoundConnected
	default:
		return StateBoundDisconnected
	}
}

// Connected reports the connector's live status.
func (c *Coordinator) Connected() bool {
	return c.deps.Transport != nil && c.deps.Transport.Connected()
}

func (c *Coordinator) AssistantTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.assistantTyping
}

func (c *Coordinator) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

func (c *Coordinator) Conversations() []chat.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chat.Conversation, len(c.conversations))
	copy(out, c.conversations)
	return out
}

// LastError returns the most recent absorbed failure, or nil.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}
