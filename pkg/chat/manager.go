package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"textbook-chat-be/internal/pkg/logger"
	"textbook-chat-be/pkg/ragapi"

	"github.com/google/uuid"
)

// ErrRequestInFlight rejects a send or retry while another request of the
// same session is still outstanding.
var ErrRequestInFlight = errors.New("chat: a request is already in flight")

// State is a read-only snapshot of a session.
type State struct {
	Messages  []Message         `json:"messages"`
	IsLoading bool              `json:"isLoading"`
	Error     *ragapi.ChatError `json:"error"`
	IsOpen    bool              `json:"isOpen"`
}

type ChangeKind string

const (
	ChangeMessageSent    ChangeKind = "MESSAGE_SENT"
	ChangeAnswerReceived ChangeKind = "ANSWER_RECEIVED"
	ChangeRequestFailed  ChangeKind = "REQUEST_FAILED"
	ChangeErrorCleared   ChangeKind = "ERROR_CLEARED"
	ChangeVisibility     ChangeKind = "VISIBILITY_CHANGED"
)

// Update is delivered to listeners after every state mutation.
type Update struct {
	Kind  ChangeKind
	State State
	// Message is the message appended by this change, if any.
	Message *Message
}

type Listener func(Update)

type Option func(*Manager)

func WithLogger(log logger.ILogger) Option {
	return func(m *Manager) {
		m.logger = log
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) {
		m.newID = newID
	}
}

// Manager owns the conversation of one browser session and is the only
// caller of the RAG client for it. All methods are safe for concurrent use.
type Manager struct {
	asker   ragapi.Asker
	storage Storage
	logger  logger.ILogger
	now     func() time.Time
	newID   func() string

	mu        sync.Mutex
	messages  []Message
	isLoading bool
	err       *ragapi.ChatError
	isOpen    bool
	lastQuery string

	listeners    map[int]Listener
	nextListener int

	// serializes storage writes so the newest snapshot always lands last
	persistMu sync.Mutex
}

// NewManager restores history from storage. A nil storage disables
// persistence.
func NewManager(ctx context.Context, asker ragapi.Asker, storage Storage, opts ...Option) *Manager {
	m := &Manager{
		asker:     asker,
		storage:   storage,
		logger:    logger.NewNopLogger(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.messages = loadHistory(ctx, storage, m.logger)
	return m
}

// State returns a snapshot safe to read without further locking.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) LastQuery() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastQuery
}

// Subscribe registers l and returns a function that removes it.
func (m *Manager) Subscribe(l Listener) func() {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = l
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// SendMessage asks query and records the outcome in the session. Failures
// of the call itself end up in State().Error; the returned error is only
// ErrRequestInFlight.
func (m *Manager) SendMessage(ctx context.Context, query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil
	}

	m.mu.Lock()
	if m.isLoading {
		m.mu.Unlock()
		return ErrRequestInFlight
	}
	return m.sendLocked(ctx, trimmed)
}

// Retry re-sends the last query. A trailing user message for that query is
// dropped first so a successful retry shows it once.
func (m *Manager) Retry(ctx context.Context) error {
	m.mu.Lock()
	if m.lastQuery == "" {
		m.mu.Unlock()
		return nil
	}
	if m.isLoading {
		m.mu.Unlock()
		return ErrRequestInFlight
	}

	query := m.lastQuery
	if n := len(m.messages); n > 0 {
		last := m.messages[n-1]
		if last.Role == RoleUser && last.Content == query {
			m.messages = m.messages[:n-1]
		}
	}
	return m.sendLocked(ctx, query)
}

func (m *Manager) ClearError() {
	m.mu.Lock()
	m.err = nil
	m.mu.Unlock()
	m.notify(ChangeErrorCleared, nil)
}

func (m *Manager) ToggleOpen() {
	m.mu.Lock()
	m.isOpen = !m.isOpen
	m.mu.Unlock()
	m.notify(ChangeVisibility, nil)
}

func (m *Manager) SetOpen(open bool) {
	m.mu.Lock()
	m.isOpen = open
	m.mu.Unlock()
	m.notify(ChangeVisibility, nil)
}

// sendLocked must be entered with m.mu held; it releases the lock before
// the network call.
func (m *Manager) sendLocked(ctx context.Context, query string) error {
	m.err = nil
	m.lastQuery = query
	userMsg := newUserMessage(m.newID(), m.now(), query)
	m.messages = append(m.messages, userMsg)
	m.isLoading = true
	m.mu.Unlock()

	m.persist(ctx)
	m.notify(ChangeMessageSent, &userMsg)

	resp, err := m.ask(ctx, query)

	m.mu.Lock()
	m.isLoading = false
	if err != nil {
		chatErr := toChatError(err, query)
		m.err = chatErr
		m.mu.Unlock()

		m.logger.Warn("ChatSession", "Ask failed", map[string]interface{}{
			"code":      chatErr.Code,
			"retryable": chatErr.Retryable,
		})
		m.notify(ChangeRequestFailed, nil)
		return nil
	}

	assistantMsg := newAssistantMessage(m.newID(), m.now(), resp)
	m.messages = append(m.messages, assistantMsg)
	m.mu.Unlock()

	m.persist(ctx)
	m.notify(ChangeAnswerReceived, &assistantMsg)
	return nil
}

// ask converts a panic in the asker into an ordinary error.
func (m *Manager) ask(ctx context.Context, query string) (resp *ragapi.AskResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("ChatSession", "Asker panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
			resp, err = nil, fmt.Errorf("chat: asker panicked: %v", r)
		}
	}()

	resp, err = m.asker.Ask(ctx, query)
	if err == nil && resp == nil {
		err = errors.New("chat: asker returned no response")
	}
	return resp, err
}

func toChatError(err error, query string) *ragapi.ChatError {
	if chatErr, ok := ragapi.AsChatError(err); ok {
		return chatErr
	}
	return ragapi.NewChatError(ragapi.CodeNetworkError, ragapi.MsgUnexpectedErr, query)
}

func (m *Manager) persist(ctx context.Context) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	messages := append([]Message(nil), m.messages...)
	m.mu.Unlock()

	saveHistory(ctx, m.storage, messages, m.logger)
}

func (m *Manager) notify(kind ChangeKind, msg *Message) {
	m.mu.Lock()
	state := m.snapshotLocked()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	update := Update{Kind: kind, State: state, Message: msg}
	for _, l := range listeners {
		l(update)
	}
}

func (m *Manager) snapshotLocked() State {
	state := State{
		Messages:  append([]Message{}, m.messages...),
		IsLoading: m.isLoading,
		IsOpen:    m.isOpen,
	}
	if m.err != nil {
		errCopy := *m.err
		state.Error = &errCopy
	}
	return state
}
