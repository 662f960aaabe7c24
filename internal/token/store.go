package token

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/example/vkube-console/internal/models"
)

// Store persiste registros de refresh token.
type Store interface {
	Create(ctx context.Context, rec *models.RefreshToken) error
	// FindByHash devolve (nil, nil) quando o hash não existe.
	FindByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	// MarkRotated faz a transição condicional issued -> rotated. Devolve false
	// quando o registro já saiu do estado issued (o primeiro resgate venceu).
	MarkRotated(ctx context.Context, id string) (bool, error)
	// RevokeFamily revoga todos os tokens vivos de uma família.
	RevokeFamily(ctx context.Context, familyID string) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore cria o Store padrão sobre gorm/PostgreSQL.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Create(ctx context.Context, rec *models.RefreshToken) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *gormStore) FindByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	var rec models.RefreshToken
	err := s.db.WithContext(ctx).First(&rec, "token_hash = ?", hash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *gormStore) MarkRotated(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("id = ? AND status = ?", id, models.TokenIssued).
		Update("status", models.TokenRotated)
	return res.RowsAffected > 0, res.Error
}

func (s *gormStore) RevokeFamily(ctx context.Context, familyID string) error {
	return s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("family_id = ? AND status <> ?", familyID, models.TokenRevoked).
		Update("status", models.TokenRevoked).Error
}
