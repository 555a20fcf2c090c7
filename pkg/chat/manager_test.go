package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"textbook-chat-be/pkg/ragapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type askerFunc func(ctx context.Context, query string) (*ragapi.AskResponse, error)

func (f askerFunc) Ask(ctx context.Context, query string) (*ragapi.AskResponse, error) {
	return f(ctx, query)
}

func answering(answer string) askerFunc {
	return func(_ context.Context, query string) (*ragapi.AskResponse, error) {
		return &ragapi.AskResponse{
			Answer:  answer + " (" + query + ")",
			Sources: []string{"https://example.com/docs/intro"},
			MatchedChunks: []ragapi.MatchedChunk{
				{ChunkID: "intro-1", Text: "Physical AI is...", RelevanceScore: 0.87},
			},
		}, nil
	}
}

type memStorage struct {
	mu        sync.Mutex
	data      map[string][]byte
	failGet   bool
	failSet   bool
	setCalls  int
	removeCnt int
}

func newMemStorage() *memStorage {
	return &memStorage{data: make(map[string][]byte)}
}

func (s *memStorage) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return nil, errors.New("storage unavailable")
	}
	v, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *memStorage) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls++
	if s.failSet {
		return errors.New("quota exceeded")
	}
	s.data[key] = value
	return nil
}

func (s *memStorage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeCnt++
	delete(s.data, key)
	return nil
}

func (s *memStorage) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

func fixedClock() func() time.Time {
	var n int64
	base := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		return base.Add(time.Duration(atomic.AddInt64(&n, 1)) * time.Second)
	}
}

func sequentialIDs() func() string {
	var n int64
	return func() string {
		return fmt.Sprintf("msg-%d", atomic.AddInt64(&n, 1))
	}
}

func newTestManager(asker ragapi.Asker, storage Storage) *Manager {
	return NewManager(context.Background(), asker, storage, WithClock(fixedClock()), WithIDGenerator(sequentialIDs()))
}

// --- scenarios ---

func TestSendMessage_Success(t *testing.T) {
	var calls int32
	asker := askerFunc(func(ctx context.Context, q string) (*ragapi.AskResponse, error) {
		atomic.AddInt32(&calls, 1)
		return answering("RAG is retrieval plus generation")(ctx, q)
	})
	m := newTestManager(asker, newMemStorage())

	var loading []bool
	m.Subscribe(func(u Update) { loading = append(loading, u.State.IsLoading) })

	assert.False(t, m.State().IsLoading)
	require.NoError(t, m.SendMessage(context.Background(), "What is RAG?"))

	assert.Equal(t, []bool{true, false}, loading)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	state := m.State()
	require.Len(t, state.Messages, 2)
	assert.Nil(t, state.Error)

	user, assistant := state.Messages[0], state.Messages[1]
	assert.Equal(t, RoleUser, user.Role)
	assert.Equal(t, "What is RAG?", user.Content)
	assert.Nil(t, user.Sources)

	assert.Equal(t, RoleAssistant, assistant.Role)
	assert.Equal(t, "RAG is retrieval plus generation (What is RAG?)", assistant.Content)
	assert.Equal(t, []string{"https://example.com/docs/intro"}, assistant.Sources)
	require.Len(t, assistant.MatchedChunks, 1)
	assert.Equal(t, "intro-1", assistant.MatchedChunks[0].ChunkID)
	assert.NotEqual(t, user.ID, assistant.ID)
	assert.True(t, assistant.Timestamp.After(user.Timestamp))
}

func TestSendMessage_EmptyQueryIsNoop(t *testing.T) {
	var calls int32
	asker := askerFunc(func(ctx context.Context, q string) (*ragapi.AskResponse, error) {
		atomic.AddInt32(&calls, 1)
		return answering("x")(ctx, q)
	})
	storage := newMemStorage()
	m := newTestManager(asker, storage)

	notified := false
	m.Subscribe(func(Update) { notified = true })

	require.NoError(t, m.SendMessage(context.Background(), "   \n"))

	assert.Empty(t, m.State().Messages)
	assert.Empty(t, m.LastQuery())
	assert.False(t, notified)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	assert.False(t, storage.has(StorageKey))
}

func TestSendMessage_EmptyAnswerFieldsOmitted(t *testing.T) {
	asker := askerFunc(func(context.Context, string) (*ragapi.AskResponse, error) {
		return &ragapi.AskResponse{Answer: "I could not find that in the book.", Sources: []string{}, MatchedChunks: nil}, nil
	})
	m := newTestManager(asker, nil)

	require.NoError(t, m.SendMessage(context.Background(), "Unknown topic"))
	assistant := m.State().Messages[1]
	assert.Nil(t, assistant.Sources)
	assert.Nil(t, assistant.MatchedChunks)
}

// fakeRAG is an httptest server whose behaviour can be switched per test.
type fakeRAG struct {
	srv   *httptest.Server
	calls int32
	mode  atomic.Value // "ok" | "slow" | "500"
}

func newFakeRAG(t *testing.T, mode string) *fakeRAG {
	t.Helper()
	f := &fakeRAG{}
	f.mode.Store(mode)
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.calls, 1)
		switch f.mode.Load().(string) {
		case "slow":
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		case "500":
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var req ragapi.AskRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(ragapi.AskResponse{
			Answer:        "answer to " + req.Query,
			Sources:       []string{"https://example.com/ch1"},
			MatchedChunks: []ragapi.MatchedChunk{{ChunkID: "ch1-3", Text: "...", RelevanceScore: 0.5}},
		})
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func TestSendMessage_TooLongQuery(t *testing.T) {
	rag := newFakeRAG(t, "ok")
	m := newTestManager(ragapi.NewClient(ragapi.Config{BaseURL: rag.srv.URL}), newMemStorage())

	require.NoError(t, m.SendMessage(context.Background(), strings.Repeat("x", 1001)))

	state := m.State()
	require.NotNil(t, state.Error)
	assert.Equal(t, ragapi.CodeInvalidInput, state.Error.Code)
	assert.False(t, state.Error.Retryable)
	assert.Equal(t, int32(0), atomic.LoadInt32(&rag.calls))
	for _, msg := range state.Messages {
		assert.NotEqual(t, RoleAssistant, msg.Role)
	}
	assert.False(t, state.IsLoading)
}

func TestSendMessage_TimeoutThenRetry(t *testing.T) {
	rag := newFakeRAG(t, "slow")
	client := ragapi.NewClient(ragapi.Config{BaseURL: rag.srv.URL, Timeout: 50 * time.Millisecond})
	m := newTestManager(client, newMemStorage())

	require.NoError(t, m.SendMessage(context.Background(), "Explain SLAM"))

	state := m.State()
	require.NotNil(t, state.Error)
	assert.Equal(t, ragapi.CodeTimeout, state.Error.Code)
	assert.True(t, state.Error.Retryable)
	assert.Equal(t, "Explain SLAM", state.Error.LastQuery)
	require.Len(t, state.Messages, 1, "failed user message stays in history")

	rag.mode.Store("ok")
	require.NoError(t, m.Retry(context.Background()))

	state = m.State()
	assert.Nil(t, state.Error)
	require.Len(t, state.Messages, 2)
	assert.Equal(t, RoleUser, state.Messages[0].Role)
	assert.Equal(t, "Explain SLAM", state.Messages[0].Content)
	assert.Equal(t, RoleAssistant, state.Messages[1].Role)
	assert.Equal(t, "answer to Explain SLAM", state.Messages[1].Content)
	assert.Equal(t, int32(2), atomic.LoadInt32(&rag.calls))
}

func TestSendMessage_ServerError(t *testing.T) {
	rag := newFakeRAG(t, "500")
	m := newTestManager(ragapi.NewClient(ragapi.Config{BaseURL: rag.srv.URL}), newMemStorage())

	require.NoError(t, m.SendMessage(context.Background(), "What is a URDF?"))

	state := m.State()
	require.NotNil(t, state.Error)
	assert.Equal(t, ragapi.CodeServerError, state.Error.Code)
	require.Len(t, state.Messages, 1)
	assert.Equal(t, "What is a URDF?", state.Messages[0].Content)
	assert.False(t, state.IsLoading)
}

func TestSendMessage_UnexpectedFailures(t *testing.T) {
	tests := []struct {
		name  string
		asker askerFunc
	}{
		{
			name: "plain error",
			asker: func(context.Context, string) (*ragapi.AskResponse, error) {
				return nil, errors.New("boom")
			},
		},
		{
			name: "panic",
			asker: func(context.Context, string) (*ragapi.AskResponse, error) {
				panic("nil map write")
			},
		},
		{
			name: "nil response",
			asker: func(context.Context, string) (*ragapi.AskResponse, error) {
				return nil, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(tt.asker, nil)
			require.NoError(t, m.SendMessage(context.Background(), "hello"))

			state := m.State()
			require.NotNil(t, state.Error)
			assert.Equal(t, ragapi.CodeNetworkError, state.Error.Code)
			assert.Equal(t, ragapi.MsgUnexpectedErr, state.Error.Message)
			assert.True(t, state.Error.Retryable)
			assert.Equal(t, "hello", state.Error.LastQuery)
			assert.False(t, state.IsLoading)
		})
	}
}

func TestSendMessage_RejectsOverlappingRequests(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	asker := askerFunc(func(ctx context.Context, q string) (*ragapi.AskResponse, error) {
		close(started)
		<-release
		return answering("late")(ctx, q)
	})
	m := newTestManager(asker, nil)

	done := make(chan error, 1)
	go func() { done <- m.SendMessage(context.Background(), "first") }()
	<-started

	assert.True(t, m.State().IsLoading)
	assert.ErrorIs(t, m.SendMessage(context.Background(), "second"), ErrRequestInFlight)
	assert.ErrorIs(t, m.Retry(context.Background()), ErrRequestInFlight)

	close(release)
	require.NoError(t, <-done)

	state := m.State()
	require.Len(t, state.Messages, 2)
	assert.Equal(t, "first", state.Messages[0].Content)
	assert.False(t, state.IsLoading)
}

func TestRetry(t *testing.T) {
	t.Run("no last query", func(t *testing.T) {
		var calls int32
		m := newTestManager(askerFunc(func(ctx context.Context, q string) (*ragapi.AskResponse, error) {
			atomic.AddInt32(&calls, 1)
			return answering("x")(ctx, q)
		}), nil)

		require.NoError(t, m.Retry(context.Background()))
		assert.Empty(t, m.State().Messages)
		assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	})

	t.Run("keeps history when last message is not the failed query", func(t *testing.T) {
		m := newTestManager(answering("ok"), nil)
		require.NoError(t, m.SendMessage(context.Background(), "q1"))

		// last message is the assistant answer, so nothing is dropped
		require.NoError(t, m.Retry(context.Background()))

		state := m.State()
		require.Len(t, state.Messages, 4)
		assert.Equal(t, "q1", state.Messages[0].Content)
		assert.Equal(t, "q1", state.Messages[2].Content)
	})
}

func TestClearErrorAndVisibility(t *testing.T) {
	m := newTestManager(askerFunc(func(context.Context, string) (*ragapi.AskResponse, error) {
		return nil, ragapi.NewChatError(ragapi.CodeRateLimit, ragapi.MsgRateLimited, "q")
	}), nil)

	require.NoError(t, m.SendMessage(context.Background(), "q"))
	require.NotNil(t, m.State().Error)

	m.ClearError()
	state := m.State()
	assert.Nil(t, state.Error)
	assert.Len(t, state.Messages, 1)
	assert.Equal(t, "q", m.LastQuery())

	assert.False(t, state.IsOpen)
	m.ToggleOpen()
	assert.True(t, m.State().IsOpen)
	m.ToggleOpen()
	assert.False(t, m.State().IsOpen)
	m.SetOpen(true)
	m.SetOpen(true)
	assert.True(t, m.State().IsOpen)
	assert.Len(t, m.State().Messages, 1)
}

func TestSubscribe_UpdatesAndUnsubscribe(t *testing.T) {
	m := newTestManager(answering("a"), nil)

	var kinds []ChangeKind
	unsubscribe := m.Subscribe(func(u Update) { kinds = append(kinds, u.Kind) })

	require.NoError(t, m.SendMessage(context.Background(), "q"))
	m.ToggleOpen()
	unsubscribe()
	m.ClearError()

	assert.Equal(t, []ChangeKind{ChangeMessageSent, ChangeAnswerReceived, ChangeVisibility}, kinds)
}

func TestState_IsSnapshot(t *testing.T) {
	m := newTestManager(answering("a"), nil)
	require.NoError(t, m.SendMessage(context.Background(), "q"))

	state := m.State()
	state.Messages[0].Content = "mutated"
	state.Messages = append(state.Messages, Message{ID: "x"})

	fresh := m.State()
	assert.Len(t, fresh.Messages, 2)
	assert.Equal(t, "q", fresh.Messages[0].Content)
}

// --- persistence ---

func TestPersistence_RoundTrip(t *testing.T) {
	storage := newMemStorage()
	first := newTestManager(answering("a"), storage)

	require.NoError(t, first.SendMessage(context.Background(), "What is ROS 2?"))
	require.NoError(t, first.SendMessage(context.Background(), "And Gazebo?"))

	reloaded := NewManager(context.Background(), answering("b"), storage)
	assert.Equal(t, first.State().Messages, reloaded.State().Messages)

	var record StorageRecord
	require.NoError(t, json.Unmarshal(storage.data[StorageKey], &record))
	assert.Equal(t, StorageVersion, record.Version)
	assert.Len(t, record.Messages, 4)
}

func TestPersistence_DefaultClockRoundTrip(t *testing.T) {
	storage := newMemStorage()
	first := NewManager(context.Background(), answering("a"), storage)
	require.NoError(t, first.SendMessage(context.Background(), "q"))

	reloaded := NewManager(context.Background(), answering("a"), storage)
	want, got := first.State().Messages, reloaded.State().Messages
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp))
	}
}

func TestPersistence_VersionMismatchDiscarded(t *testing.T) {
	storage := newMemStorage()
	stale, _ := json.Marshal(StorageRecord{
		Version:  StorageVersion + 1,
		Messages: []Message{{ID: "old", Role: RoleUser, Content: "old question"}},
	})
	storage.data[StorageKey] = stale

	m := newTestManager(answering("a"), storage)

	assert.Empty(t, m.State().Messages)
	assert.False(t, storage.has(StorageKey))
	assert.Equal(t, 1, storage.removeCnt)
}

func TestPersistence_UnreadableStorage(t *testing.T) {
	t.Run("corrupt record", func(t *testing.T) {
		storage := newMemStorage()
		storage.data[StorageKey] = []byte("{not json")
		assert.Empty(t, newTestManager(answering("a"), storage).State().Messages)
	})

	t.Run("get fails", func(t *testing.T) {
		storage := newMemStorage()
		storage.failGet = true
		assert.Empty(t, newTestManager(answering("a"), storage).State().Messages)
	})
}

func TestPersistence_WriteFailuresSwallowed(t *testing.T) {
	storage := newMemStorage()
	storage.failSet = true
	m := newTestManager(answering("a"), storage)

	require.NoError(t, m.SendMessage(context.Background(), "q"))

	state := m.State()
	assert.Len(t, state.Messages, 2)
	assert.Nil(t, state.Error)
	assert.Equal(t, 2, storage.setCalls)
}

func TestPersistence_NothingWrittenWithoutMessages(t *testing.T) {
	storage := newMemStorage()
	m := newTestManager(answering("a"), storage)

	m.ToggleOpen()
	m.ClearError()

	assert.Equal(t, 0, storage.setCalls)
}
