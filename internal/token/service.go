package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/example/vkube-console/internal/models"
)

var (
	// ErrInvalid cobre tokens malformados, desconhecidos ou com claims errados.
	ErrInvalid = errors.New("token inválido")
	// ErrExpired indica token vencido (access ou refresh).
	ErrExpired = errors.New("token expirado")
	// ErrReused indica resgate repetido de um refresh token já rotacionado.
	// A família inteira foi revogada como defesa contra replay.
	ErrReused = errors.New("refresh token já utilizado")
	// ErrRevoked indica resgate de um token explicitamente revogado.
	ErrRevoked = errors.New("refresh token revogado")
	// ErrStore indica falha transitória de armazenamento; o caller pode repetir.
	ErrStore = errors.New("falha temporária de armazenamento")
)

// Pair é o par de credenciais devolvido em login e refresh.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

// Claims do access token.
type Claims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Service emite, verifica e rotaciona pares access/refresh. O access token é
// um JWT HS256 de vida curta; o refresh é um identificador opaco de uso
// único, guardado por hash.
type Service struct {
	store      Store
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewService cria o serviço de tokens.
func NewService(store Store, secret []byte, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		store:      store,
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// IssuePair emite um novo par para o usuário, abrindo uma nova família de
// refresh tokens.
func (s *Service) IssuePair(ctx context.Context, userID string) (*Pair, error) {
	return s.issue(ctx, userID, uuid.NewString())
}

func (s *Service) issue(ctx context.Context, userID, familyID string) (*Pair, error) {
	now := time.Now()
	jti := uuid.NewString()
	claims := &Claims{
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}

	refresh, err := newRefreshValue()
	if err != nil {
		return nil, err
	}
	rec := &models.RefreshToken{
		ID:            uuid.NewString(),
		UserID:        userID,
		TokenHash:     hashToken(refresh),
		FamilyID:      familyID,
		AccessTokenID: jti,
		Status:        models.TokenIssued,
		ExpiresAt:     now.Add(s.refreshTTL),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	return &Pair{
		AccessToken:  signed,
		RefreshToken: refresh,
		ExpiresIn:    int(s.accessTTL.Seconds()),
	}, nil
}

// VerifyAccess valida assinatura e expiração do access token e devolve o
// userID. Não toca o banco: é o caminho quente de toda requisição.
func (s *Service) VerifyAccess(tokenStr string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpired
		}
		return "", ErrInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.TokenType != "access" || claims.Subject == "" {
		return "", ErrInvalid
	}
	return claims.Subject, nil
}

// Redeem rotaciona um refresh token: marca o atual como rotated e emite um
// novo par na mesma família. Um resgate fora do estado issued é tratado como
// sinal de replay e revoga a família inteira, forçando novo login.
func (s *Service) Redeem(ctx context.Context, refresh string) (*Pair, error) {
	rec, err := s.store.FindByHash(ctx, hashToken(refresh))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if rec == nil {
		return nil, ErrInvalid
	}

	if time.Now().After(rec.ExpiresAt) {
		if err := s.store.RevokeFamily(ctx, rec.FamilyID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		return nil, ErrExpired
	}

	if rec.Status != models.TokenIssued {
		if err := s.store.RevokeFamily(ctx, rec.FamilyID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		if rec.Status == models.TokenRevoked {
			return nil, ErrRevoked
		}
		return nil, ErrReused
	}

	ok, err := s.store.MarkRotated(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if !ok {
		// Perdeu a corrida para outro resgate concorrente: replay.
		if err := s.store.RevokeFamily(ctx, rec.FamilyID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		return nil, ErrReused
	}

	return s.issue(ctx, rec.UserID, rec.FamilyID)
}

// Revoke é o logout explícito: revoga a família do refresh token informado.
func (s *Service) Revoke(ctx context.Context, refresh string) error {
	rec, err := s.store.FindByHash(ctx, hashToken(refresh))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if rec == nil {
		return ErrInvalid
	}
	if err := s.store.RevokeFamily(ctx, rec.FamilyID); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

func newRefreshValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
