package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"neon-assistant-be/internal/constant"
	"neon-assistant-be/internal/dto"
	"neon-assistant-be/internal/entity"
	"neon-assistant-be/internal/repository/contract"
	"neon-assistant-be/internal/repository/memory"
	"neon-assistant-be/internal/repository/specification"
	"neon-assistant-be/internal/repository/unitofwork"
	"neon-assistant-be/pkg/events"
	"neon-assistant-be/pkg/llm"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- in-memory repository fakes ---

type fakeStore struct {
	sessions map[uuid.UUID]*entity.ChatSession
	messages []*entity.ChatMessage
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[uuid.UUID]*entity.ChatSession{}}
}

func (s *fakeStore) addSession(title string) *entity.ChatSession {
	session := &entity.ChatSession{Id: uuid.New(), Title: title, CreatedAt: time.Now()}
	s.sessions[session.Id] = session
	return session
}

type fakeSessionRepo struct{ store *fakeStore }

func (r *fakeSessionRepo) Create(ctx context.Context, session *entity.ChatSession) error {
	session.Id = uuid.New()
	session.CreatedAt = time.Now()
	r.store.sessions[session.Id] = session
	return nil
}

func (r *fakeSessionRepo) Update(ctx context.Context, session *entity.ChatSession) error {
	r.store.sessions[session.Id] = session
	return nil
}

func (r *fakeSessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.store.sessions, id)
	return nil
}

func (r *fakeSessionRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatSession, error) {
	for _, spec := range specs {
		if byID, ok := spec.(specification.ByID); ok {
			return r.store.sessions[byID.ID], nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatSession, error) {
	var out []*entity.ChatSession
	for _, s := range r.store.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeSessionRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	return int64(len(r.store.sessions)), nil
}

type fakeMessageRepo struct{ store *fakeStore }

func (r *fakeMessageRepo) Create(ctx context.Context, message *entity.ChatMessage) error {
	message.Id = uuid.New()
	message.CreatedAt = time.Now()
	r.store.messages = append(r.store.messages, message)
	return nil
}

func (r *fakeMessageRepo) Delete(ctx context.Context, id uuid.UUID) error {
	for i, m := range r.store.messages {
		if m.Id == id {
			r.store.messages = append(r.store.messages[:i], r.store.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeMessageRepo) DeleteByChatSessionId(ctx context.Context, sessionId uuid.UUID) error {
	var kept []*entity.ChatMessage
	for _, m := range r.store.messages {
		if m.ChatSessionId != sessionId {
			kept = append(kept, m)
		}
	}
	r.store.messages = kept
	return nil
}

func (r *fakeMessageRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatMessage, error) {
	all, _ := r.FindAll(ctx, specs...)
	if len(all) == 0 {
		return nil, nil
	}
	return all[0], nil
}

func (r *fakeMessageRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error) {
	var sessionId *uuid.UUID
	for _, spec := range specs {
		if bySession, ok := spec.(specification.ByChatSessionID); ok {
			id := bySession.ChatSessionID
			sessionId = &id
		}
	}

	var out []*entity.ChatMessage
	for _, m := range r.store.messages {
		if sessionId == nil || m.ChatSessionId == *sessionId {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	all, err := r.FindAll(ctx, specs...)
	return int64(len(all)), err
}

type fakeUnitOfWork struct {
	store      *fakeStore
	began      bool
	committed  bool
	rolledBack bool
}

func (u *fakeUnitOfWork) Begin(ctx context.Context) error { u.began = true; return nil }
func (u *fakeUnitOfWork) Commit() error                   { u.committed = true; return nil }
func (u *fakeUnitOfWork) Rollback() error                 { u.rolledBack = true; return nil }

func (u *fakeUnitOfWork) ChatSessionRepository() contract.ChatSessionRepository {
	return &fakeSessionRepo{store: u.store}
}

func (u *fakeUnitOfWork) ChatMessageRepository() contract.ChatMessageRepository {
	return &fakeMessageRepo{store: u.store}
}

type fakeRepoFactory struct{ uow *fakeUnitOfWork }

func (f *fakeRepoFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return f.uow
}

// --- provider / executor / publisher fakes ---

type scriptedProvider struct {
	completion *llm.Completion
	chatReply  string
	chatErr    error
	toolsErr   error

	gotToolPrompt []llm.Message
	gotChatPrompt []llm.Message
}

func (p *scriptedProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	p.gotChatPrompt = history
	return p.chatReply, p.chatErr
}

func (p *scriptedProvider) ChatWithTools(ctx context.Context, history []llm.Message, tools []llm.Tool, options ...llm.Option) (*llm.Completion, error) {
	p.gotToolPrompt = history
	if p.toolsErr != nil {
		return nil, p.toolsErr
	}
	return p.completion, nil
}

type recordingExecutor struct {
	gotAPIKey string
	gotName   string
	gotArgs   string
	result    map[string]any
	err       error
}

func (e *recordingExecutor) Execute(ctx context.Context, apiKey, name, rawArgs string, history []llm.Message) (map[string]any, error) {
	e.gotAPIKey = apiKey
	e.gotName = name
	e.gotArgs = rawArgs
	return e.result, e.err
}

type recordingPublisher struct{ published []events.Event }

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.published = append(p.published, event)
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(module, message string, details map[string]interface{}) {}
func (nopLogger) Info(module, message string, details map[string]interface{})  {}
func (nopLogger) Warn(module, message string, details map[string]interface{})  {}
func (nopLogger) Error(module, message string, details map[string]interface{}) {}
func (nopLogger) Sync() error                                                  { return nil }

// --- harness ---

type harness struct {
	store     *fakeStore
	uow       *fakeUnitOfWork
	provider  *scriptedProvider
	executor  *recordingExecutor
	publisher *recordingPublisher
	cache     *memory.HistoryCache
	svc       IChatService
}

func newHarness(provider *scriptedProvider, executor *recordingExecutor) *harness {
	return newHarnessWithDefaultKey(provider, executor, "")
}

func newHarnessWithDefaultKey(provider *scriptedProvider, executor *recordingExecutor, defaultNeonKey string) *harness {
	store := newFakeStore()
	uow := &fakeUnitOfWork{store: store}
	publisher := &recordingPublisher{}
	cache := memory.NewHistoryCache()

	svc := NewChatService(
		&fakeRepoFactory{uow: uow},
		provider,
		executor,
		cache,
		publisher,
		nopLogger{},
		nil,
		"fn-model",
		"chat-model",
		defaultNeonKey,
	)

	return &harness{
		store:     store,
		uow:       uow,
		provider:  provider,
		executor:  executor,
		publisher: publisher,
		cache:     cache,
		svc:       svc,
	}
}

// --- tests ---

func TestChatUnknownSession(t *testing.T) {
	h := newHarness(&scriptedProvider{completion: &llm.Completion{Content: "hi"}}, &recordingExecutor{})

	_, err := h.svc.Chat(context.Background(), &dto.ChatRequest{
		Query:      "list my projects",
		NeonApiKey: "key",
		ChatId:     uuid.NewString(),
	})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestChatPlainResponse(t *testing.T) {
	h := newHarness(&scriptedProvider{completion: &llm.Completion{Content: "You can create projects with Neon."}}, &recordingExecutor{})
	session := h.store.addSession("New conversation")

	res, err := h.svc.Chat(context.Background(), &dto.ChatRequest{
		Query:      "what can you do?",
		NeonApiKey: "key",
		ChatId:     session.Id.String(),
	})
	require.NoError(t, err)

	assert.Equal(t, "You can create projects with Neon.", res.Response)
	assert.Nil(t, res.ActionResult)

	require.Len(t, h.store.messages, 2)
	assert.Equal(t, constant.ChatMessageRoleUser, h.store.messages[0].Role)
	assert.Equal(t, "what can you do?", h.store.messages[0].Content)
	assert.Equal(t, constant.ChatMessageRoleAssistant, h.store.messages[1].Role)

	assert.True(t, h.uow.committed)
	assert.Equal(t, "what can you do?", h.store.sessions[session.Id].Title)

	// The system prompt leads and the query is prefixed for the model.
	require.NotEmpty(t, h.provider.gotToolPrompt)
	assert.Equal(t, constant.ChatMessageRoleSystem, h.provider.gotToolPrompt[0].Role)
	last := h.provider.gotToolPrompt[len(h.provider.gotToolPrompt)-1]
	assert.Equal(t, constant.UserQueryPrefix+"what can you do?", last.Content)
}

func TestChatEmptyContentFallback(t *testing.T) {
	h := newHarness(&scriptedProvider{completion: &llm.Completion{}}, &recordingExecutor{})
	session := h.store.addSession("New conversation")

	res, err := h.svc.Chat(context.Background(), &dto.ChatRequest{
		Query:      "hm",
		NeonApiKey: "key",
		ChatId:     session.Id.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, constant.EmptyResponseFallback, res.Response)
}

func TestChatToolCallFlow(t *testing.T) {
	provider := &scriptedProvider{
		completion: &llm.Completion{ToolCalls: []llm.ToolCall{{
			ID:        "call_1",
			Name:      "create_project",
			Arguments: `{"name": "demo"}`,
		}}},
		chatReply: "I created the project demo for you.",
	}
	executor := &recordingExecutor{result: map[string]any{"project": map[string]any{"id": "proj-1"}}}
	h := newHarness(provider, executor)
	session := h.store.addSession("New conversation")

	res, err := h.svc.Chat(context.Background(), &dto.ChatRequest{
		Query:      "create a project called demo",
		NeonApiKey: "neon-secret",
		ChatId:     session.Id.String(),
	})
	require.NoError(t, err)

	assert.Equal(t, "I created the project demo for you.", res.Response)
	assert.Equal(t, "proj-1", res.ActionResult["project"].(map[string]any)["id"])

	assert.Equal(t, "neon-secret", executor.gotAPIKey)
	assert.Equal(t, "create_project", executor.gotName)
	assert.JSONEq(t, `{"name": "demo"}`, executor.gotArgs)

	// user, function call marker, summary, action result
	require.Len(t, h.store.messages, 4)
	marker := h.store.messages[1]
	assert.Equal(t, constant.FunctionCallMarkerPrefix+"create_project"+constant.FunctionCallArgsSeparator+`{"name": "demo"}`, marker.Content)
	assert.NotContains(t, marker.Content, "neon-secret")

	resultMsg := h.store.messages[3]
	assert.Contains(t, resultMsg.Content, constant.ActionResultMarkerPrefix)
	require.NotNil(t, resultMsg.ActionResult)
	assert.Equal(t, executor.result, resultMsg.ActionResult)

	require.Len(t, h.publisher.published, 1)
	payload := h.publisher.published[0].Payload()
	assert.Equal(t, "create_project", payload["tool"])
	assert.Equal(t, false, payload["failed"])

	// The summarizer sees the query and the executed call, not the raw history.
	require.Len(t, provider.gotChatPrompt, 2)
	assert.Contains(t, provider.gotChatPrompt[1].Content, "Executed create_project with result:")
}

func TestChatLegacyMarkerContent(t *testing.T) {
	provider := &scriptedProvider{
		completion: &llm.Completion{
			Content: constant.FunctionCallMarkerPrefix + "list_projects" + constant.FunctionCallArgsSeparator + "{}",
		},
		chatReply: "You have two projects.",
	}
	executor := &recordingExecutor{result: map[string]any{"projects": []any{}}}
	h := newHarness(provider, executor)
	session := h.store.addSession("New conversation")

	res, err := h.svc.Chat(context.Background(), &dto.ChatRequest{
		Query:      "list projects",
		NeonApiKey: "key",
		ChatId:     session.Id.String(),
	})
	require.NoError(t, err)

	assert.Equal(t, "list_projects", executor.gotName)
	assert.Equal(t, "You have two projects.", res.Response)
}

func TestChatExecutorFailureIsUpstream(t *testing.T) {
	provider := &scriptedProvider{
		completion: &llm.Completion{ToolCalls: []llm.ToolCall{{Name: "list_projects", Arguments: "{}"}}},
	}
	executor := &recordingExecutor{err: fmt.Errorf("connection refused")}
	h := newHarness(provider, executor)
	session := h.store.addSession("New conversation")

	_, err := h.svc.Chat(context.Background(), &dto.ChatRequest{
		Query:      "list projects",
		NeonApiKey: "key",
		ChatId:     session.Id.String(),
	})
	assert.ErrorIs(t, err, ErrUpstream)
	assert.True(t, h.uow.rolledBack)
	assert.False(t, h.uow.committed)
}

func TestChatProviderFailureIsUpstream(t *testing.T) {
	h := newHarness(&scriptedProvider{toolsErr: errors.New("rate limited")}, &recordingExecutor{})
	session := h.store.addSession("New conversation")

	_, err := h.svc.Chat(context.Background(), &dto.ChatRequest{
		Query:      "anything",
		NeonApiKey: "key",
		ChatId:     session.Id.String(),
	})
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestChatUsesCachedHistory(t *testing.T) {
	h := newHarness(&scriptedProvider{completion: &llm.Completion{Content: "ok"}}, &recordingExecutor{})
	session := h.store.addSession("Existing chat")

	h.cache.Save(session.Id.String(), []llm.Message{
		{Role: constant.ChatMessageRoleUser, Content: "earlier question"},
		{Role: constant.ChatMessageRoleAssistant, Content: "earlier answer"},
	})

	_, err := h.svc.Chat(context.Background(), &dto.ChatRequest{
		Query:      "follow up",
		NeonApiKey: "key",
		ChatId:     session.Id.String(),
	})
	require.NoError(t, err)

	// system + 2 cached + new user query
	require.Len(t, h.provider.gotToolPrompt, 4)
	assert.Equal(t, "earlier question", h.provider.gotToolPrompt[1].Content)

	// The session already had history, its title must not be rewritten.
	assert.Equal(t, "Existing chat", h.store.sessions[session.Id].Title)

	cached, found := h.cache.Get(session.Id.String())
	require.True(t, found)
	assert.Len(t, cached, 4)
}

func TestChatTitleTruncationKeepsValidUTF8(t *testing.T) {
	h := newHarness(&scriptedProvider{completion: &llm.Completion{Content: "ok"}}, &recordingExecutor{})
	session := h.store.addSession("New conversation")

	// A multi-byte rune straddles the truncation point.
	query := strings.Repeat("a", sessionTitleMaxLen-1) + "éé"
	_, err := h.svc.Chat(context.Background(), &dto.ChatRequest{
		Query:      query,
		NeonApiKey: "key",
		ChatId:     session.Id.String(),
	})
	require.NoError(t, err)

	title := h.store.sessions[session.Id].Title
	assert.True(t, utf8.ValidString(title))
	assert.LessOrEqual(t, len(title), sessionTitleMaxLen)
	assert.Equal(t, strings.Repeat("a", sessionTitleMaxLen-1), title)
}

func TestChatDoesNotMutateCachedHistoryInPlace(t *testing.T) {
	h := newHarness(&scriptedProvider{completion: &llm.Completion{Content: "ok"}}, &recordingExecutor{})
	session := h.store.addSession("Existing chat")

	// Cached slices are shared between requests; spare capacity must never
	// be written through.
	shared := make([]llm.Message, 1, 8)
	shared[0] = llm.Message{Role: constant.ChatMessageRoleUser, Content: "earlier question"}
	h.cache.Save(session.Id.String(), shared)

	_, err := h.svc.Chat(context.Background(), &dto.ChatRequest{
		Query:      "follow up",
		NeonApiKey: "key",
		ChatId:     session.Id.String(),
	})
	require.NoError(t, err)

	for _, m := range shared[1:cap(shared)] {
		assert.Equal(t, llm.Message{}, m, "spare capacity of the shared slice was written")
	}

	cached, found := h.cache.Get(session.Id.String())
	require.True(t, found)
	assert.Len(t, cached, 3)
}

func TestChatFallsBackToConfiguredAPIKey(t *testing.T) {
	provider := &scriptedProvider{
		completion: &llm.Completion{ToolCalls: []llm.ToolCall{{Name: "list_projects", Arguments: "{}"}}},
		chatReply:  "Here are your projects.",
	}
	executor := &recordingExecutor{result: map[string]any{"projects": []any{}}}
	h := newHarnessWithDefaultKey(provider, executor, "fallback-key")
	session := h.store.addSession("New conversation")

	_, err := h.svc.Chat(context.Background(), &dto.ChatRequest{
		Query:  "list projects",
		ChatId: session.Id.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, "fallback-key", executor.gotAPIKey)
}

func TestChatWithoutAnyAPIKey(t *testing.T) {
	h := newHarness(&scriptedProvider{completion: &llm.Completion{Content: "ok"}}, &recordingExecutor{})
	session := h.store.addSession("New conversation")

	_, err := h.svc.Chat(context.Background(), &dto.ChatRequest{
		Query:  "list projects",
		ChatId: session.Id.String(),
	})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Empty(t, h.store.messages, "nothing may be persisted without a usable key")
}

func TestCreateSession(t *testing.T) {
	h := newHarness(&scriptedProvider{}, &recordingExecutor{})

	res, err := h.svc.CreateSession(context.Background())
	require.NoError(t, err)

	id, err := uuid.Parse(res.ChatId)
	require.NoError(t, err)
	assert.Contains(t, h.store.sessions, id)
}

func TestGetHistory(t *testing.T) {
	h := newHarness(&scriptedProvider{}, &recordingExecutor{})
	session := h.store.addSession("chat")
	h.store.messages = append(h.store.messages,
		&entity.ChatMessage{Id: uuid.New(), ChatSessionId: session.Id, Role: "user", Content: "q"},
		&entity.ChatMessage{Id: uuid.New(), ChatSessionId: session.Id, Role: "assistant", Content: "a",
			ActionResult: map[string]any{"projects": []any{}}},
	)

	history, err := h.svc.GetHistory(context.Background(), session.Id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "q", history[0].Content)
	assert.NotNil(t, history[1].ActionResult)

	_, err = h.svc.GetHistory(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteSession(t *testing.T) {
	h := newHarness(&scriptedProvider{}, &recordingExecutor{})
	session := h.store.addSession("chat")
	h.store.messages = append(h.store.messages,
		&entity.ChatMessage{Id: uuid.New(), ChatSessionId: session.Id, Role: "user", Content: "q"})
	h.cache.Save(session.Id.String(), []llm.Message{{Role: "user", Content: "q"}})

	err := h.svc.DeleteSession(context.Background(), session.Id)
	require.NoError(t, err)

	assert.NotContains(t, h.store.sessions, session.Id)
	assert.Empty(t, h.store.messages)
	_, found := h.cache.Get(session.Id.String())
	assert.False(t, found)

	err = h.svc.DeleteSession(context.Background(), session.Id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestResolveToolCall(t *testing.T) {
	tests := []struct {
		name       string
		completion *llm.Completion
		wantName   string
		wantArgs   string
		wantOk     bool
	}{
		{
			name:       "native tool call",
			completion: &llm.Completion{ToolCalls: []llm.ToolCall{{Name: "list_projects", Arguments: "{}"}}},
			wantName:   "list_projects",
			wantArgs:   "{}",
			wantOk:     true,
		},
		{
			name: "marker content",
			completion: &llm.Completion{
				Content: constant.FunctionCallMarkerPrefix + "get_project" + constant.FunctionCallArgsSeparator + `{"project_id": "p"}`,
			},
			wantName: "get_project",
			wantArgs: `{"project_id": "p"}`,
			wantOk:   true,
		},
		{
			name:       "plain content",
			completion: &llm.Completion{Content: "Sure, here is what I know."},
			wantOk:     false,
		},
		{
			name:       "marker without separator",
			completion: &llm.Completion{Content: constant.FunctionCallMarkerPrefix + "garbage"},
			wantOk:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, args, ok := resolveToolCall(tt.completion)
			assert.Equal(t, tt.wantOk, ok)
			if tt.wantOk {
				assert.Equal(t, tt.wantName, name)
				assert.Equal(t, tt.wantArgs, args)
			}
		})
	}
}
