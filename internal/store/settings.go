package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/defi-yield-agent/internal/model"
)

// GetAISettings returns the saved settings for userID, or ErrNotFound
func (s *Store) GetAISettings(ctx context.Context, userID string) (*model.AISettings, error) {
	var (
		settings  model.AISettings
		rawKeys   []byte
		updatedAt sql.NullTime
		createdAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, provider, api_keys, updated_at, created_at FROM ai_settings WHERE user_id = $1`,
		userID,
	).Scan(&settings.ID, &settings.UserID, &settings.Provider, &rawKeys, &updatedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query ai settings: %w", err)
	}

	settings.APIKeys = map[string]string{}
	if len(rawKeys) > 0 {
		if err := json.Unmarshal(rawKeys, &settings.APIKeys); err != nil {
			return nil, fmt.Errorf("decode api keys: %w", err)
		}
	}
	settings.UpdatedAt = updatedAt.Time
	settings.CreatedAt = createdAt.Time
	return &settings, nil
}

// SaveAISettings upserts the settings row for settings.UserID and returns the stored row
func (s *Store) SaveAISettings(ctx context.Context, settings model.AISettings) (*model.AISettings, error) {
	if settings.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	keys := settings.APIKeys
	if keys == nil {
		keys = map[string]string{}
	}
	rawKeys, err := json.Marshal(keys)
	if err != nil {
		return nil, fmt.Errorf("encode api keys: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ai_settings (id, user_id, provider, api_keys, updated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			provider = excluded.provider,
			api_keys = excluded.api_keys,
			updated_at = excluded.updated_at`,
		uuid.NewString(), settings.UserID, settings.Provider, string(rawKeys), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("save ai settings: %w", err)
	}

	return s.GetAISettings(ctx, settings.UserID)
}
