package service

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"textbook-chat-be/internal/dto"
	"textbook-chat-be/internal/mapper"
	"textbook-chat-be/internal/pkg/logger"
	"textbook-chat-be/internal/repository/contract"
	"textbook-chat-be/pkg/chat"
	"textbook-chat-be/pkg/events"
	"textbook-chat-be/pkg/ragapi"

	"github.com/patrickmn/go-cache"
)

const FrameChatState = "chat_state"

// RagClient is what the gateway needs from the RAG service client.
type RagClient interface {
	ragapi.Asker
	Health(ctx context.Context) (*ragapi.HealthStatus, error)
}

// StateNotifier pushes session state to connected sockets.
type StateNotifier interface {
	Send(sessionId, frameType string, data interface{})
}

type IChatService interface {
	GetState(ctx context.Context, sessionId string) *dto.ChatStateResponse
	SendMessage(ctx context.Context, sessionId string, request *dto.SendMessageRequest) (*dto.ChatStateResponse, error)
	Retry(ctx context.Context, sessionId string) (*dto.ChatStateResponse, error)
	ClearError(ctx context.Context, sessionId string) *dto.ChatStateResponse
	ToggleOpen(ctx context.Context, sessionId string) *dto.ChatStateResponse
	SetOpen(ctx context.Context, sessionId string, request *dto.SetOpenRequest) *dto.ChatStateResponse
	Health(ctx context.Context) *dto.HealthResponse
}

type sessionEntry struct {
	manager     *chat.Manager
	unsubscribe func()
}

type chatService struct {
	ragClient   RagClient
	storageRepo contract.ISessionStorageRepository
	notifier    StateNotifier
	publisher   IPublisherService
	logger      logger.ILogger

	// sessionId -> *sessionEntry, expiring with the session TTL
	sessions *cache.Cache
	mu       sync.Mutex
}

func NewChatService(
	ragClient RagClient,
	storageRepo contract.ISessionStorageRepository,
	notifier StateNotifier,
	publisher IPublisherService,
	log logger.ILogger,
	sessionTTL time.Duration,
) IChatService {
	sessions := cache.New(sessionTTL, 10*time.Minute)
	sessions.OnEvicted(func(_ string, v interface{}) {
		if entry, ok := v.(*sessionEntry); ok {
			entry.unsubscribe()
		}
	})

	return &chatService{
		ragClient:   ragClient,
		storageRepo: storageRepo,
		notifier:    notifier,
		publisher:   publisher,
		logger:      log,
		sessions:    sessions,
	}
}

// manager returns the session's Manager, restoring it from storage on first
// use. Every access extends the session's lifetime. The restore runs
// outside s.mu so a slow store only delays the session being restored.
func (s *chatService) manager(ctx context.Context, sessionId string) *chat.Manager {
	if m, ok := s.lookup(sessionId); ok {
		return m
	}

	m := chat.NewManager(ctx, s.ragClient, s.storageRepo.Scope(sessionId), chat.WithLogger(s.logger))

	s.mu.Lock()
	defer s.mu.Unlock()

	// another request may have restored the same session meanwhile
	if existing, ok := s.touchLocked(sessionId); ok {
		return existing
	}

	entry := &sessionEntry{manager: m}
	entry.unsubscribe = m.Subscribe(s.onUpdate(sessionId))
	s.sessions.Set(sessionId, entry, cache.DefaultExpiration)

	s.logger.Info("ChatService", "Session attached", map[string]interface{}{
		"session_id": sessionId,
		"restored":   len(m.State().Messages),
	})
	return m
}

func (s *chatService) lookup(sessionId string) (*chat.Manager, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touchLocked(sessionId)
}

func (s *chatService) touchLocked(sessionId string) (*chat.Manager, bool) {
	x, found := s.sessions.Get(sessionId)
	if !found {
		return nil, false
	}
	entry := x.(*sessionEntry)
	s.sessions.Set(sessionId, entry, cache.DefaultExpiration)
	return entry.manager, true
}

func (s *chatService) onUpdate(sessionId string) chat.Listener {
	return func(u chat.Update) {
		if s.notifier != nil {
			s.notifier.Send(sessionId, FrameChatState, mapper.ToChatStateResponse(u.State))
		}

		event, ok := activityEvent(sessionId, u)
		if !ok || s.publisher == nil {
			return
		}
		if err := s.publisher.Publish(context.Background(), event); err != nil {
			s.logger.Warn("ChatService", "Failed to publish activity", map[string]interface{}{
				"type":  event.EventType(),
				"error": err.Error(),
			})
		}
	}
}

func activityEvent(sessionId string, u chat.Update) (events.Event, bool) {
	switch u.Kind {
	case chat.ChangeMessageSent:
		if u.Message == nil {
			return nil, false
		}
		return events.NewChatMessageSent(sessionId, u.Message.ID, utf8.RuneCountInString(u.Message.Content), u.Message.Timestamp), true
	case chat.ChangeAnswerReceived:
		if u.Message == nil {
			return nil, false
		}
		return events.NewChatAnswerReceived(sessionId, u.Message.ID, len(u.Message.Sources), len(u.Message.MatchedChunks), u.Message.Timestamp), true
	case chat.ChangeRequestFailed:
		if u.State.Error == nil {
			return nil, false
		}
		return events.NewChatRequestFailed(sessionId, string(u.State.Error.Code), u.State.Error.Retryable, time.Now().UTC()), true
	}
	return nil, false
}

func (s *chatService) GetState(ctx context.Context, sessionId string) *dto.ChatStateResponse {
	return mapper.ToChatStateResponse(s.manager(ctx, sessionId).State())
}

func (s *chatService) SendMessage(ctx context.Context, sessionId string, request *dto.SendMessageRequest) (*dto.ChatStateResponse, error) {
	m := s.manager(ctx, sessionId)
	if err := m.SendMessage(ctx, request.Query); err != nil {
		return nil, err
	}
	return mapper.ToChatStateResponse(m.State()), nil
}

func (s *chatService) Retry(ctx context.Context, sessionId string) (*dto.ChatStateResponse, error) {
	m := s.manager(ctx, sessionId)
	if err := m.Retry(ctx); err != nil {
		return nil, err
	}
	return mapper.ToChatStateResponse(m.State()), nil
}

func (s *chatService) ClearError(ctx context.Context, sessionId string) *dto.ChatStateResponse {
	m := s.manager(ctx, sessionId)
	m.ClearError()
	return mapper.ToChatStateResponse(m.State())
}

func (s *chatService) ToggleOpen(ctx context.Context, sessionId string) *dto.ChatStateResponse {
	m := s.manager(ctx, sessionId)
	m.ToggleOpen()
	return mapper.ToChatStateResponse(m.State())
}

func (s *chatService) SetOpen(ctx context.Context, sessionId string, request *dto.SetOpenRequest) *dto.ChatStateResponse {
	m := s.manager(ctx, sessionId)
	m.SetOpen(*request.Open)
	return mapper.ToChatStateResponse(m.State())
}

func (s *chatService) Health(ctx context.Context) *dto.HealthResponse {
	res := &dto.HealthResponse{Status: "healthy"}

	status, err := s.ragClient.Health(ctx)
	if err != nil {
		res.Status = "degraded"
		res.Upstream = dto.UpstreamHealth{Status: "unreachable", Error: err.Error()}
		var chatErr *ragapi.ChatError
		if errors.As(err, &chatErr) {
			res.Upstream.Error = string(chatErr.Code)
		}
		return res
	}

	res.Upstream = dto.UpstreamHealth{Status: status.Status, Timestamp: status.Timestamp}
	return res
}
