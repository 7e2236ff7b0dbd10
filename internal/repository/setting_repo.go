package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidqueue/backend/internal/models"
)

type SettingRepo struct {
	pool *pgxpool.Pool
}

func NewSettingRepo(pool *pgxpool.Pool) *SettingRepo {
	return &SettingRepo{pool: pool}
}

// Get returns the setting for key, or nil when unset.
func (r *SettingRepo) Get(ctx context.Context, key string) (*models.Setting, error) {
	var s models.Setting
	err := r.pool.QueryRow(ctx,
		`SELECT key, value, type FROM settings WHERE key = $1`, key).
		Scan(&s.Key, &s.Value, &s.Type)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SettingRepo) Set(ctx context.Context, s *models.Setting) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO settings (key, value, type) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, type = EXCLUDED.type
	`, s.Key, s.Value, s.Type)
	return err
}

// GetBool decodes a boolean setting, returning def when unset.
func (r *SettingRepo) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	s, err := r.Get(ctx, key)
	if err != nil {
		return def, err
	}
	return decodeBoolSetting(s, def), nil
}

// decodeBoolSetting falls back to def when the setting is unset or its value
// does not decode to a boolean.
func decodeBoolSetting(s *models.Setting, def bool) bool {
	if s == nil {
		return def
	}
	v, ok := s.DecodeValue().(bool)
	if !ok {
		return def
	}
	return v
}

func (r *SettingRepo) SetBool(ctx context.Context, key string, v bool) error {
	value := "0"
	if v {
		value = "1"
	}
	return r.Set(ctx, &models.Setting{Key: key, Value: value, Type: models.SettingTypeBoolean})
}
