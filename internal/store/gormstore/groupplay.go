package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yogev77/tophuman-core/pkg/groupplay"
)

// GroupPlayStore implements groupplay.Store using GORM.
type GroupPlayStore struct {
	db *gorm.DB
}

// NewGroupPlayStore returns a store backed by gorm.DB.
func NewGroupPlayStore(db *gorm.DB) *GroupPlayStore {
	return &GroupPlayStore{db: db}
}

func (store *GroupPlayStore) InsertSession(ctx context.Context, session groupplay.GroupSession) error {
	model := GroupSession{
		SessionID:  session.SessionID,
		JoinToken:  session.JoinToken,
		GameTypeID: session.GameTypeID,
		CreatedBy:  session.CreatedBy,
		EndsAt:     session.EndsAt,
		CreatedAt:  session.CreatedAt,
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("%s.%s.%s: %w", errorOperationStore, errorSubjectSession, errorCodeInsert, err)
	}
	return nil
}

func (store *GroupPlayStore) GetSessionByToken(ctx context.Context, joinToken string) (groupplay.GroupSession, error) {
	var model GroupSession
	err := store.db.WithContext(ctx).
		Where("join_token = ?", joinToken).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return groupplay.GroupSession{}, groupplay.ErrSessionNotFound
		}
		return groupplay.GroupSession{}, fmt.Errorf("%s.%s.%s: %w", errorOperationStore, errorSubjectSession, errorCodeGet, err)
	}
	return groupplay.GroupSession{
		SessionID:  model.SessionID,
		JoinToken:  model.JoinToken,
		GameTypeID: model.GameTypeID,
		CreatedBy:  model.CreatedBy,
		EndsAt:     model.EndsAt,
		CreatedAt:  model.CreatedAt,
	}, nil
}
