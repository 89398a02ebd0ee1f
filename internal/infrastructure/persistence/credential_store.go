package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/shared"
)

// Credential is the persisted login of the local user.
type Credential struct {
	Username  string `gorm:"primaryKey;size:150"`
	Token     string `gorm:"type:text;not null"`
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM
func (Credential) TableName() string {
	return "entry_credentials"
}

// Expired reports whether the token's exp claim has passed at now.
func (c Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// CredentialStore holds at most one credential: signing in replaces whoever was
// signed in before.
type CredentialStore struct {
	db *gorm.DB
}

// NewCredentialStore migrates the credential table and returns the store.
func NewCredentialStore(d *Database) (*CredentialStore, error) {
	if err := d.DB.AutoMigrate(&Credential{}); err != nil {
		return nil, fmt.Errorf("failed to migrate credentials: %w", err)
	}
	return &CredentialStore{db: d.DB}, nil
}

// Save replaces the stored credential with c.
func (s *CredentialStore) Save(ctx context.Context, c Credential) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("username <> ?", c.Username).Delete(&Credential{}).Error; err != nil {
			return err
		}
		return tx.Save(&c).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Current returns the stored credential or shared.ErrNoSession.
func (s *CredentialStore) Current(ctx context.Context) (*Credential, error) {
	var c Credential
	err := s.db.WithContext(ctx).Order("updated_at DESC").First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	return &c, nil
}

// UpdateToken stores a refreshed token for username.
func (s *CredentialStore) UpdateToken(ctx context.Context, username, token string, expiresAt *time.Time) error {
	res := s.db.WithContext(ctx).Model(&Credential{}).
		Where("username = ?", username).
		Updates(map[string]any{"token": token, "expires_at": expiresAt, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("failed to update credential: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return shared.ErrNoSession
	}
	return nil
}

// Clear deletes every stored credential.
func (s *CredentialStore) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Credential{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}
