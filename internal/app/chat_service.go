package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nimbus/internal/ai"
	"nimbus/internal/config"
	"nimbus/internal/model"
	"nimbus/internal/repository"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageEmpty    = errors.New("message content is empty")
	ErrLLMConfig       = errors.New("llm config is invalid")
)

// imageMarker separates the text of a message from an inline base64
// image. It is part of the message content, so retrieval and history
// both see the marked form.
const imageMarker = "\n[IMAGE_BASE64]\n"

type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.ChatMessage) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, bool, error)
	SetHistory(ctx context.Context, sessionID string, messages []model.ChatMessage) error
	DeleteHistory(ctx context.Context, sessionID string) error
	MarkDirty(ctx context.Context, sessionID string) error
	IsDirty(ctx context.Context, sessionID string) (bool, error)
}

type sessionStore interface {
	Create(session *model.ChatSession) error
	GetBySessionID(sessionID string) (*model.ChatSession, error)
	ListByUsername(username string, limit int) ([]repository.ChatSessionSummary, error)
	Touch(sessionID string) error
	DeleteBySessionIDAndUsername(sessionID, username string) (bool, error)
}

type messageStore interface {
	ListBySessionID(sessionID string) ([]model.ChatMessage, error)
	DeleteBySessionID(sessionID string) error
}

type enabledFilesLister interface {
	ListEnabledFilenames(uploader string) ([]string, error)
}

type chunkRetriever interface {
	Retrieve(ctx context.Context, chatModel, message string, enabledFiles []string) []RetrievedChunk
}

type completionClient interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
	ListModels(ctx context.Context, cfg ai.ChatConfig) ([]string, error)
}

// ChatService orchestrates a chat turn: resolve the session (creating
// it when the client supplies an unknown id), retrieve document context
// for the user's enabled files, call the completion service, and hand
// both sides of the exchange to the async persistence queue.
type ChatService struct {
	sessionRepo  sessionStore
	messageRepo  messageStore
	docs         enabledFilesLister
	retriever    chunkRetriever
	publisher    AsyncMessagePublisher
	historyCache HistoryCache
	llmClient    completionClient
	llm          config.LLMConfig
	rag          config.RAGConfig
	logger       *zap.Logger
}

type SendMessageInput struct {
	Username    string
	SessionID   string
	Model       string
	Content     string
	ImageBase64 string
	// Strict gates the grounding instruction when context is retrieved.
	// Callers default it to true; disabling keeps the retrieved context
	// but drops the answer-only-from-documents mandate.
	Strict bool
}

type SourceRef struct {
	Filename string  `json:"filename"`
	Distance float64 `json:"distance"`
}

type SendMessageResult struct {
	SessionID string            `json:"session_id"`
	Reply     model.ChatMessage `json:"reply"`
	Sources   []SourceRef       `json:"sources,omitempty"`
}

func NewChatService(
	sessionRepo sessionStore,
	messageRepo messageStore,
	docs enabledFilesLister,
	retriever chunkRetriever,
	publisher AsyncMessagePublisher,
	historyCache HistoryCache,
	llmClient completionClient,
	llm config.LLMConfig,
	rag config.RAGConfig,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		docs:         docs,
		retriever:    retriever,
		publisher:    publisher,
		historyCache: historyCache,
		llmClient:    llmClient,
		llm:          llm,
		rag:          rag,
		logger:       logger,
	}
}

// SendMessage runs one chat turn. Retrieval failures degrade to a
// plain completion; completion failures propagate so the handler can
// report the upstream outage. A failed persist is logged, never
// surfaced: the reply the model produced is already in hand.
func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*SendMessageResult, error) {
	username := strings.TrimSpace(input.Username)
	content := strings.TrimSpace(input.Content)
	if username == "" {
		return nil, ErrInvalidInput
	}
	if content == "" {
		return nil, ErrMessageEmpty
	}

	chatModel := strings.TrimSpace(input.Model)
	if chatModel == "" {
		return nil, ErrLLMConfig
	}
	cfg := ai.ChatConfig{BaseURL: s.llm.BaseURL, APIKey: s.llm.APIKey, Model: chatModel}

	// The image rides inside the message text, after the marker, so
	// it reaches retrieval, the prompt, and the stored history alike.
	if input.ImageBase64 != "" {
		content += imageMarker + input.ImageBase64
	}

	session, err := s.resolveSession(username, input.SessionID, content)
	if err != nil {
		return nil, err
	}

	history, err := s.loadHistory(ctx, session.SessionID)
	if err != nil {
		s.logger.Warn("load history failed", zap.String("session_id", session.SessionID), zap.Error(err))
		history = nil
	}
	history = dropTrailingDuplicate(history, content)
	history = trimHistory(history, s.rag.ChatMaxHistory)

	retrieved := s.retrieveContext(ctx, chatModel, username, content)

	promptMessages := BuildPromptMessages(
		s.rag.StrictInstruction, input.Strict, retrieved, history, content, s.rag.SnippetMaxChars)

	completeCtx := ctx
	if s.llm.ChatTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		completeCtx, cancel = context.WithTimeout(ctx, time.Duration(s.llm.ChatTimeoutSeconds)*time.Second)
		defer cancel()
	}
	replyContent, err := s.llmClient.Complete(completeCtx, cfg, promptMessages)
	if err != nil {
		return nil, err
	}
	replyContent = strings.TrimSpace(replyContent)
	if replyContent == "" {
		replyContent = "The model returned an empty response."
	}

	now := time.Now()
	userMessage := model.ChatMessage{
		SessionID: session.SessionID,
		Role:      "user",
		Content:   content,
		Model:     chatModel,
		CreatedAt: now,
	}
	reply := model.ChatMessage{
		SessionID: session.SessionID,
		Role:      "assistant",
		Content:   replyContent,
		Model:     chatModel,
		CreatedAt: now,
	}
	s.persist(ctx, session.SessionID, userMessage, reply)

	result := &SendMessageResult{SessionID: session.SessionID, Reply: reply}
	for _, chunk := range retrieved {
		result.Sources = append(result.Sources, SourceRef{Filename: chunk.Filename, Distance: chunk.Distance})
	}
	return result, nil
}

// resolveSession loads the session, creating it when the id is unknown
// or absent. A session owned by someone else behaves like a missing
// one.
func (s *ChatService) resolveSession(username, sessionID, content string) (*model.ChatSession, error) {
	if sessionID != "" {
		session, err := s.sessionRepo.GetBySessionID(sessionID)
		if err != nil {
			return nil, err
		}
		if session != nil {
			if session.Username != username {
				return nil, ErrSessionNotFound
			}
			return session, nil
		}
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	session := &model.ChatSession{
		SessionID: sessionID,
		Username:  username,
		Title:     sessionTitle(content),
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) retrieveContext(ctx context.Context, chatModel, username, content string) []RetrievedChunk {
	enabledFiles, err := s.docs.ListEnabledFilenames(username)
	if err != nil {
		s.logger.Warn("list enabled documents failed", zap.String("username", username), zap.Error(err))
		return nil
	}
	if len(enabledFiles) == 0 {
		return nil
	}
	return s.retriever.Retrieve(ctx, chatModel, content, enabledFiles)
}

func (s *ChatService) loadHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, sessionID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	messages, err := s.messageRepo.ListBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, sessionID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, sessionID, messages)
		}
	}
	return messages, nil
}

// persist queues both turns for the background writer and invalidates
// the history cache. Failures are logged only.
func (s *ChatService) persist(ctx context.Context, sessionID string, messages ...model.ChatMessage) {
	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, sessionID)
		_ = s.historyCache.DeleteHistory(ctx, sessionID)
	}
	if s.publisher == nil {
		s.logger.Warn("no message publisher configured, chat turn not persisted",
			zap.String("session_id", sessionID))
		return
	}
	for _, msg := range messages {
		if err := s.publisher.Publish(ctx, msg); err != nil {
			s.logger.Error("enqueue chat message failed",
				zap.String("session_id", sessionID), zap.String("role", msg.Role), zap.Error(err))
		}
	}
}

// CreateSession makes an empty session up front. Most clients rely on
// create-on-miss during SendMessage instead.
func (s *ChatService) CreateSession(username, title string) (*model.ChatSession, error) {
	if username == "" {
		return nil, ErrInvalidInput
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New Chat"
	}
	session := &model.ChatSession{
		SessionID: uuid.NewString(),
		Username:  username,
		Title:     sessionTitle(title),
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) GetHistory(ctx context.Context, username, sessionID string) ([]model.ChatMessage, error) {
	session, err := s.ownedSession(username, sessionID)
	if err != nil {
		return nil, err
	}
	return s.loadHistory(ctx, session.SessionID)
}

func (s *ChatService) ListSessions(username string) ([]repository.ChatSessionSummary, error) {
	if username == "" {
		return nil, ErrInvalidInput
	}
	return s.sessionRepo.ListByUsername(username, s.rag.ChatMaxHistory)
}

func (s *ChatService) DeleteSession(ctx context.Context, username, sessionID string) error {
	if username == "" || sessionID == "" {
		return ErrInvalidInput
	}
	deleted, err := s.sessionRepo.DeleteBySessionIDAndUsername(sessionID, username)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrSessionNotFound
	}
	if err := s.messageRepo.DeleteBySessionID(sessionID); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(ctx, sessionID)
	}
	return nil
}

// ListChatModels returns the upstream model list with embedding-only
// models filtered out.
func (s *ChatService) ListChatModels(ctx context.Context) ([]string, error) {
	cfg := ai.ChatConfig{BaseURL: s.llm.BaseURL, APIKey: s.llm.APIKey}
	if s.llm.ModelsTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.llm.ModelsTimeoutSeconds)*time.Second)
		defer cancel()
	}
	names, err := s.llmClient.ListModels(ctx, cfg)
	if err != nil {
		return nil, err
	}
	chatModels := make([]string, 0, len(names))
	for _, name := range names {
		if s.rag.IsChatModel(name) {
			chatModels = append(chatModels, name)
		}
	}
	return chatModels, nil
}

func (s *ChatService) ownedSession(username, sessionID string) (*model.ChatSession, error) {
	if username == "" || sessionID == "" {
		return nil, ErrInvalidInput
	}
	session, err := s.sessionRepo.GetBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.Username != username {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// dropTrailingDuplicate removes the last history entry when it repeats
// the message being sent, which happens when a client persisted the
// user turn before calling.
func dropTrailingDuplicate(history []model.ChatMessage, content string) []model.ChatMessage {
	if n := len(history); n > 0 && history[n-1].Role == "user" && history[n-1].Content == content {
		return history[:n-1]
	}
	return history
}

func trimHistory(history []model.ChatMessage, limit int) []model.ChatMessage {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}

func sessionTitle(content string) string {
	runes := []rune(content)
	if len(runes) > 30 {
		runes = runes[:30]
	}
	title := strings.TrimSpace(string(runes))
	if title == "" {
		title = "New Chat"
	}
	return title
}
