package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"nimbus/internal/model"
)

type ChatSessionRepository struct {
	db *gorm.DB
}

// ChatSessionSummary is a session row plus its message count, for
// listing.
type ChatSessionSummary struct {
	model.ChatSession
	MessageCount int64 `json:"message_count"`
}

func NewChatSessionRepository(db *gorm.DB) *ChatSessionRepository {
	return &ChatSessionRepository{db: db}
}

func (r *ChatSessionRepository) Create(session *model.ChatSession) error {
	if err := r.db.Create(session).Error; err != nil {
		return fmt.Errorf("create chat session failed: %w", err)
	}
	return nil
}

func (r *ChatSessionRepository) GetBySessionID(sessionID string) (*model.ChatSession, error) {
	var session model.ChatSession
	if err := r.db.Where("session_id = ?", sessionID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat session failed: %w", err)
	}
	return &session, nil
}

func (r *ChatSessionRepository) ListByUsername(username string, limit int) ([]ChatSessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	var sessions []model.ChatSession
	if err := r.db.Where("username = ?", username).Order("updated_at DESC").Limit(limit).Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list chat sessions failed: %w", err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	ids := make([]string, len(sessions))
	for i := range sessions {
		ids[i] = sessions[i].SessionID
	}
	type countRow struct {
		SessionID string
		Count     int64
	}
	var counts []countRow
	if err := r.db.Model(&model.ChatMessage{}).
		Select("session_id, COUNT(*) AS count").
		Where("session_id IN ?", ids).
		Group("session_id").
		Find(&counts).Error; err != nil {
		return nil, fmt.Errorf("count chat messages failed: %w", err)
	}
	countBySession := make(map[string]int64, len(counts))
	for _, c := range counts {
		countBySession[c.SessionID] = c.Count
	}

	summaries := make([]ChatSessionSummary, len(sessions))
	for i, s := range sessions {
		summaries[i] = ChatSessionSummary{ChatSession: s, MessageCount: countBySession[s.SessionID]}
	}
	return summaries, nil
}

// Touch bumps updated_at so the session sorts to the top of the list.
func (r *ChatSessionRepository) Touch(sessionID string) error {
	if err := r.db.Model(&model.ChatSession{}).Where("session_id = ?", sessionID).
		Update("updated_at", time.Now()).Error; err != nil {
		return fmt.Errorf("touch chat session failed: %w", err)
	}
	return nil
}

func (r *ChatSessionRepository) DeleteBySessionIDAndUsername(sessionID, username string) (bool, error) {
	res := r.db.Where("session_id = ? AND username = ?", sessionID, username).Delete(&model.ChatSession{})
	if res.Error != nil {
		return false, fmt.Errorf("delete chat session failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
