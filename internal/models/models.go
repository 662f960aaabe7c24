package models

import "time"

// Provedores de identidade aceitos no login.
const (
	ProviderLocal = "local"
	ProviderLDAP  = "ldap"
	ProviderOIDC  = "oidc"
)

// User representa um usuário do console, autenticado localmente ou via
// provedor externo (LDAP/OIDC). PasswordHash fica vazio para usuários externos.
type User struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	Email           string     `gorm:"uniqueIndex;size:256;not null" json:"email"`
	PasswordHash    string     `gorm:"size:128" json:"-"`
	Name            string     `gorm:"size:256" json:"name"`
	AvatarURL       string     `gorm:"size:512" json:"avatarUrl,omitempty"`
	AuthProvider    string     `gorm:"size:32;default:local" json:"authProvider"`
	ProviderSubject string     `gorm:"size:256" json:"-"`
	IsActive        bool       `gorm:"default:true" json:"isActive"`
	IsVerified      bool       `gorm:"default:false" json:"isVerified"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Cluster representa um cluster Kubernetes registrado, com kubeconfig
// criptografado. Os campos de conexão (IsConnected, Version, contadores) são
// o último estado conhecido, atualizados apenas no teste de conexão explícito.
type Cluster struct {
	ID                  string     `gorm:"primaryKey;size:36" json:"id"`
	OwnerID             string     `gorm:"size:36;index;not null" json:"ownerId"`
	Name                string     `gorm:"size:128;not null" json:"name"`
	Description         string     `gorm:"size:512" json:"description"`
	Context             string     `gorm:"size:128;not null" json:"context"`
	EncryptedKubeconfig []byte     `gorm:"type:bytea" json:"-"`
	IsActive            bool       `gorm:"default:false" json:"isActive"`
	IsConnected         bool       `gorm:"default:false" json:"isConnected"`
	Version             string     `gorm:"size:64" json:"version,omitempty"`
	NodeCount           int        `json:"nodeCount"`
	PodCount            int        `json:"podCount"`
	Tags                []string   `gorm:"serializer:json" json:"tags"`
	LastConnectedAt     *time.Time `json:"lastConnectedAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// Estados de um refresh token. Um token só pode ser resgatado no estado
// issued; qualquer resgate fora disso é sinal de replay.
const (
	TokenIssued  = "issued"
	TokenRotated = "rotated"
	TokenRevoked = "revoked"
)

// RefreshToken representa uma credencial de refresh pendente. Armazena apenas
// o hash SHA-256 do valor, nunca o token em si. FamilyID agrupa a cadeia de
// rotações originada de um mesmo login.
type RefreshToken struct {
	ID            string `gorm:"primaryKey;size:36"`
	UserID        string `gorm:"size:36;index;not null"`
	TokenHash     string `gorm:"uniqueIndex;size:64;not null"`
	FamilyID      string `gorm:"size:36;index;not null"`
	AccessTokenID string `gorm:"size:36"`
	Status        string `gorm:"size:16;default:issued"`
	ExpiresAt     time.Time
	CreatedAt     time.Time
}
