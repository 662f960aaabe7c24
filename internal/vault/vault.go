package vault

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/example/vkube-console/internal/models"
)

// ErrNotFound indica registro ausente. Também é usado quando o registro
// existe mas pertence a outro dono, para não vazar existência entre contas.
var ErrNotFound = errors.New("cluster não encontrado")

// Store persiste registros de cluster. O kubeconfig chega e sai sempre
// cifrado; a decifragem acontece só no connection cache.
//
// is_active tem um único escritor: SetActive. As escritas restantes são por
// coluna, para que um registro carregado antes de uma troca de ativo nunca
// grave de volta a flag velha.
type Store interface {
	Create(ctx context.Context, cluster *models.Cluster) error
	Load(ctx context.Context, id string) (*models.Cluster, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Cluster, error)
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, ownerID, id string) error
	// UpdateDetails grava apenas os campos editáveis pelo usuário.
	UpdateDetails(ctx context.Context, cluster *models.Cluster) error
	// UpdateConnStatus grava apenas o último estado de conexão conhecido.
	UpdateConnStatus(ctx context.Context, cluster *models.Cluster) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore cria o Store padrão sobre gorm/PostgreSQL.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Create(ctx context.Context, cluster *models.Cluster) error {
	return s.db.WithContext(ctx).Create(cluster).Error
}

func (s *gormStore) UpdateDetails(ctx context.Context, cluster *models.Cluster) error {
	return s.db.WithContext(ctx).
		Model(&models.Cluster{ID: cluster.ID}).
		Select("Name", "Description", "Context", "EncryptedKubeconfig", "Tags").
		Updates(cluster).Error
}

func (s *gormStore) UpdateConnStatus(ctx context.Context, cluster *models.Cluster) error {
	return s.db.WithContext(ctx).
		Model(&models.Cluster{ID: cluster.ID}).
		Select("IsConnected", "Version", "NodeCount", "PodCount", "LastConnectedAt").
		Updates(cluster).Error
}

func (s *gormStore) Load(ctx context.Context, id string) (*models.Cluster, error) {
	var cluster models.Cluster
	err := s.db.WithContext(ctx).First(&cluster, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cluster, nil
}

func (s *gormStore) ListByOwner(ctx context.Context, ownerID string) ([]models.Cluster, error) {
	var clusters []models.Cluster
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&clusters).Error
	return clusters, err
}

func (s *gormStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&models.Cluster{}, "id = ?", id).Error
}

// SetActive troca o cluster ativo do dono numa única transação: nenhum leitor
// observa dois clusters ativos (ou nenhum) no meio da troca.
func (s *gormStore) SetActive(ctx context.Context, ownerID, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Cluster{}).
			Where("id = ? AND owner_id = ?", id, ownerID).
			Update("is_active", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&models.Cluster{}).
			Where("owner_id = ? AND id <> ?", ownerID, id).
			Update("is_active", false).Error
	})
}
