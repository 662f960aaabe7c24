package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/vkube-console/internal/models"
)

var (
	// ErrNotFound indica usuário inexistente.
	ErrNotFound = errors.New("usuário não encontrado")
	// ErrEmailTaken indica email já registrado.
	ErrEmailTaken = errors.New("email já registrado")
)

// Repo persiste usuários (locais e de provedores externos).
type Repo struct {
	db *gorm.DB
}

// NewRepo cria o repositório de usuários.
func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Create registra um novo usuário local. Falha com ErrEmailTaken se o email
// já existe.
func (r *Repo) Create(ctx context.Context, user *models.User) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", user.Email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrEmailTaken
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByEmail busca um usuário pelo email.
func (r *Repo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByID busca um usuário pelo id.
func (r *Repo) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetOrCreateExternal resolve uma identidade externa verificada (LDAP/OIDC)
// para um usuário local, criando o registro no primeiro login. Se já existir
// um usuário com o mesmo email, a identidade externa é vinculada a ele.
func (r *Repo) GetOrCreateExternal(ctx context.Context, provider, subject, email, name string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		First(&user, "auth_provider = ? AND provider_subject = ?", provider, subject).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	existing, err := r.GetByEmail(ctx, email)
	if err == nil {
		existing.AuthProvider = provider
		existing.ProviderSubject = subject
		if err := r.db.WithContext(ctx).Save(existing).Error; err != nil {
			return nil, err
		}
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	user = models.User{
		ID:              uuid.NewString(),
		Email:           email,
		Name:            name,
		AuthProvider:    provider,
		ProviderSubject: subject,
		IsActive:        true,
		IsVerified:      true,
	}
	if err := r.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// TouchLogin atualiza o timestamp do último login.
func (r *Repo) TouchLogin(ctx context.Context, id string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("last_login_at", &now).Error
}
