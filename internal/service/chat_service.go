package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"neon-assistant-be/internal/constant"
	"neon-assistant-be/internal/dto"
	"neon-assistant-be/internal/entity"
	"neon-assistant-be/internal/pkg/logger"
	"neon-assistant-be/internal/repository/memory"
	"neon-assistant-be/internal/repository/specification"
	"neon-assistant-be/internal/repository/unitofwork"
	"neon-assistant-be/pkg/events"
	"neon-assistant-be/pkg/llm"

	"github.com/google/uuid"
)

const sessionTitleMaxLen = 80

// ActionExecutor runs one tool call chosen by the model. Satisfied by
// neon.Executor; declared here so the service can be tested without a
// live Neon client.
type ActionExecutor interface {
	Execute(ctx context.Context, apiKey, name, rawArgs string, history []llm.Message) (map[string]any, error)
}

type IChatService interface {
	CreateSession(ctx context.Context) (*dto.NewChatResponse, error)
	Chat(ctx context.Context, request *dto.ChatRequest) (*dto.ChatResponse, error)
	GetHistory(ctx context.Context, sessionId uuid.UUID) ([]*dto.GetChatHistoryResponse, error)
	DeleteSession(ctx context.Context, sessionId uuid.UUID) error
}

type ChatService struct {
	repoFactory       unitofwork.RepositoryFactory
	provider          llm.LLMProvider
	executor          ActionExecutor
	historyCache      *memory.HistoryCache
	publisher         IPublisherService
	log               logger.ILogger
	tools             []llm.Tool
	functionCallModel string
	chatModel         string

	// defaultNeonKey backs requests that omit neon_api_key, for local
	// development against a single Neon account.
	defaultNeonKey string
}

func NewChatService(
	repoFactory unitofwork.RepositoryFactory,
	provider llm.LLMProvider,
	executor ActionExecutor,
	historyCache *memory.HistoryCache,
	publisher IPublisherService,
	log logger.ILogger,
	tools []llm.Tool,
	functionCallModel string,
	chatModel string,
	defaultNeonKey string,
) IChatService {
	return &ChatService{
		repoFactory:       repoFactory,
		provider:          provider,
		executor:          executor,
		historyCache:      historyCache,
		publisher:         publisher,
		log:               log,
		tools:             tools,
		functionCallModel: functionCallModel,
		chatModel:         chatModel,
		defaultNeonKey:    defaultNeonKey,
	}
}

func (s *ChatService) CreateSession(ctx context.Context) (*dto.NewChatResponse, error) {
	uow := s.repoFactory.NewUnitOfWork(ctx)

	session := &entity.ChatSession{
		Title: "New conversation",
	}
	if err := uow.ChatSessionRepository().Create(ctx, session); err != nil {
		return nil, err
	}

	s.log.Info("ChatService", "Created chat session", map[string]interface{}{
		"chat_session_id": session.Id.String(),
	})

	return &dto.NewChatResponse{ChatId: session.Id.String()}, nil
}

func (s *ChatService) Chat(ctx context.Context, request *dto.ChatRequest) (*dto.ChatResponse, error) {
	sessionId, err := uuid.Parse(request.ChatId)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	apiKey := request.NeonApiKey
	if apiKey == "" {
		apiKey = s.defaultNeonKey
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	uow := s.repoFactory.NewUnitOfWork(ctx)

	session, err := uow.ChatSessionRepository().FindOne(ctx, specification.ByID{ID: sessionId})
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	history, err := s.loadHistory(ctx, uow, sessionId)
	if err != nil {
		return nil, err
	}

	prompt := make([]llm.Message, 0, len(history)+2)
	prompt = append(prompt, llm.Message{
		Role:    constant.ChatMessageRoleSystem,
		Content: constant.FunctionCallSystemPrompt,
	})
	prompt = append(prompt, history...)
	prompt = append(prompt, llm.Message{
		Role:    constant.ChatMessageRoleUser,
		Content: constant.UserQueryPrefix + request.Query,
	})

	completion, err := s.provider.ChatWithTools(ctx, prompt, s.tools, llm.WithModel(s.functionCallModel))
	if err != nil {
		return nil, fmt.Errorf("%w: function call completion: %v", ErrUpstream, err)
	}

	firstExchange := len(history) == 0

	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}

	response, newMessages, err := s.processCompletion(ctx, uow, session, request.Query, apiKey, completion, history)
	if err != nil {
		_ = uow.Rollback()
		return nil, err
	}

	if firstExchange {
		session.Title = truncateTitle(request.Query)
		if err := uow.ChatSessionRepository().Update(ctx, session); err != nil {
			_ = uow.Rollback()
			return nil, err
		}
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	// The cached slice is shared between requests, never append into its
	// backing array.
	newHistory := make([]llm.Message, 0, len(history)+len(newMessages))
	newHistory = append(newHistory, history...)
	newHistory = append(newHistory, newMessages...)
	s.historyCache.Save(sessionId.String(), newHistory)

	return response, nil
}

// processCompletion persists the exchange and builds the response body. The
// returned messages are the LLM-visible form of what was stored, in order.
func (s *ChatService) processCompletion(
	ctx context.Context,
	uow unitofwork.UnitOfWork,
	session *entity.ChatSession,
	query string,
	apiKey string,
	completion *llm.Completion,
	history []llm.Message,
) (*dto.ChatResponse, []llm.Message, error) {
	messageRepo := uow.ChatMessageRepository()

	userMessage := &entity.ChatMessage{
		ChatSessionId: session.Id,
		Role:          constant.ChatMessageRoleUser,
		Content:       query,
	}
	if err := messageRepo.Create(ctx, userMessage); err != nil {
		return nil, nil, err
	}
	newMessages := []llm.Message{{Role: constant.ChatMessageRoleUser, Content: query}}

	toolName, toolArgs, hasToolCall := resolveToolCall(completion)
	if !hasToolCall {
		content := completion.Content
		if content == "" {
			content = constant.EmptyResponseFallback
		}
		assistantMessage := &entity.ChatMessage{
			ChatSessionId: session.Id,
			Role:          constant.ChatMessageRoleAssistant,
			Content:       content,
		}
		if err := messageRepo.Create(ctx, assistantMessage); err != nil {
			return nil, nil, err
		}
		newMessages = append(newMessages, llm.Message{Role: constant.ChatMessageRoleAssistant, Content: content})
		return &dto.ChatResponse{Response: content}, newMessages, nil
	}

	// The key arrives per request and is injected at execution time only,
	// so the stored marker holds the model's arguments verbatim.
	marker := constant.FunctionCallMarkerPrefix + toolName + constant.FunctionCallArgsSeparator + toolArgs
	markerMessage := &entity.ChatMessage{
		ChatSessionId: session.Id,
		Role:          constant.ChatMessageRoleAssistant,
		Content:       marker,
	}
	if err := messageRepo.Create(ctx, markerMessage); err != nil {
		return nil, nil, err
	}
	newMessages = append(newMessages, llm.Message{Role: constant.ChatMessageRoleAssistant, Content: marker})

	result, err := s.executor.Execute(ctx, apiKey, toolName, toolArgs, history)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: execute %s: %v", ErrUpstream, toolName, err)
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, nil, err
	}

	summary, err := s.summarizeAction(ctx, query, toolName, string(resultJSON))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: summarize %s: %v", ErrUpstream, toolName, err)
	}

	assistantMessage := &entity.ChatMessage{
		ChatSessionId: session.Id,
		Role:          constant.ChatMessageRoleAssistant,
		Content:       summary,
	}
	if err := messageRepo.Create(ctx, assistantMessage); err != nil {
		return nil, nil, err
	}

	resultMessage := &entity.ChatMessage{
		ChatSessionId: session.Id,
		Role:          constant.ChatMessageRoleAssistant,
		Content:       constant.ActionResultMarkerPrefix + string(resultJSON),
		ActionResult:  result,
	}
	if err := messageRepo.Create(ctx, resultMessage); err != nil {
		return nil, nil, err
	}

	newMessages = append(newMessages,
		llm.Message{Role: constant.ChatMessageRoleAssistant, Content: summary},
		llm.Message{Role: constant.ChatMessageRoleAssistant, Content: resultMessage.Content},
	)

	s.publishAction(ctx, session.Id.String(), toolName, toolArgs, result)

	return &dto.ChatResponse{Response: summary, ActionResult: result}, newMessages, nil
}

// summarizeAction turns a raw tool result into a user-facing sentence with a
// second, cheaper completion.
func (s *ChatService) summarizeAction(ctx context.Context, query, toolName, resultJSON string) (string, error) {
	content := fmt.Sprintf("%s%s, Function call: Executed %s with result: %s",
		constant.UserQueryPrefix, query, toolName, resultJSON)

	summary, err := s.provider.Chat(ctx, []llm.Message{
		{Role: constant.ChatMessageRoleSystem, Content: constant.NaturalLanguageResponseSystemPrompt},
		{Role: constant.ChatMessageRoleUser, Content: content},
	}, llm.WithModel(s.chatModel))
	if err != nil {
		return "", err
	}
	if summary == "" {
		summary = constant.EmptyResponseFallback
	}
	return summary, nil
}

func (s *ChatService) publishAction(ctx context.Context, sessionId, toolName, arguments string, result map[string]any) {
	if s.publisher == nil {
		return
	}

	_, failed := result["error"]
	event := events.NewActionExecuted(sessionId, toolName, arguments, failed)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Warn("ChatService", "Failed to publish action event", map[string]interface{}{
			"tool":  toolName,
			"error": err.Error(),
		})
	}
}

func (s *ChatService) GetHistory(ctx context.Context, sessionId uuid.UUID) ([]*dto.GetChatHistoryResponse, error) {
	uow := s.repoFactory.NewUnitOfWork(ctx)

	session, err := uow.ChatSessionRepository().FindOne(ctx, specification.ByID{ID: sessionId})
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	messages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "created_at"},
	)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.GetChatHistoryResponse, len(messages))
	for i, m := range messages {
		responses[i] = &dto.GetChatHistoryResponse{
			Id:           m.Id,
			Role:         m.Role,
			Content:      m.Content,
			ActionResult: m.ActionResult,
			CreatedAt:    m.CreatedAt,
		}
	}
	return responses, nil
}

func (s *ChatService) DeleteSession(ctx context.Context, sessionId uuid.UUID) error {
	uow := s.repoFactory.NewUnitOfWork(ctx)

	session, err := uow.ChatSessionRepository().FindOne(ctx, specification.ByID{ID: sessionId})
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	if err := uow.ChatMessageRepository().DeleteByChatSessionId(ctx, sessionId); err != nil {
		_ = uow.Rollback()
		return err
	}
	if err := uow.ChatSessionRepository().Delete(ctx, sessionId); err != nil {
		_ = uow.Rollback()
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	s.historyCache.Delete(sessionId.String())

	s.log.Info("ChatService", "Deleted chat session", map[string]interface{}{
		"chat_session_id": sessionId.String(),
	})
	return nil
}

// loadHistory returns the replayable LLM history, cache first. Messages with
// an empty role or content are skipped, they add nothing to the prompt.
func (s *ChatService) loadHistory(ctx context.Context, uow unitofwork.UnitOfWork, sessionId uuid.UUID) ([]llm.Message, error) {
	if cached, found := s.historyCache.Get(sessionId.String()); found {
		return cached, nil
	}

	messages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "created_at"},
	)
	if err != nil {
		return nil, err
	}

	history := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "" || m.Content == "" {
			continue
		}
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	return history, nil
}

// resolveToolCall picks the tool call out of a completion. Native tool calls
// win; otherwise the content may still be a persisted function call marker
// replayed by the model, which is parsed back into a call.
func resolveToolCall(completion *llm.Completion) (name, args string, ok bool) {
	if len(completion.ToolCalls) > 0 {
		tc := completion.ToolCalls[0]
		return tc.Name, tc.Arguments, true
	}

	content := completion.Content
	if !strings.HasPrefix(content, constant.FunctionCallMarkerPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(content, constant.FunctionCallMarkerPrefix)
	name, args, found := strings.Cut(rest, constant.FunctionCallArgsSeparator)
	if !found || name == "" {
		return "", "", false
	}
	return name, args, true
}

func truncateTitle(query string) string {
	title := strings.TrimSpace(query)
	if len(title) <= sessionTitleMaxLen {
		return title
	}
	// Cut on a rune boundary, a split rune is invalid UTF-8 and Postgres
	// rejects it on insert.
	cut := sessionTitleMaxLen
	for cut > 0 && !utf8.RuneStart(title[cut]) {
		cut--
	}
	return title[:cut]
}
