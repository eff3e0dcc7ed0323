package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/provamed/api/internal/auth"
	"github.com/provamed/api/internal/repo"
)

var (
	// ErrInvalidCredentials indica falha na autenticação.
	ErrInvalidCredentials = errors.New("credenciais inválidas")
	// ErrAccountDisabled indica conta desativada.
	ErrAccountDisabled = errors.New("conta desativada")
	// ErrRefreshInvalid indica refresh token inválido ou expirado.
	ErrRefreshInvalid = errors.New("refresh token inválido")
	// ErrNoRole indica usuário sem papel atribuído.
	ErrNoRole = errors.New("usuário sem papel atribuído")
)

type authRepository interface {
	GetProfileByEmail(ctx context.Context, email string) (repo.Profile, error)
	GetProfileByID(ctx context.Context, id uuid.UUID) (repo.Profile, error)
	GetRoleByUser(ctx context.Context, userID uuid.UUID) (string, error)
	ListProfilesByRole(ctx context.Context, role string) ([]repo.Profile, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, fullName string, phone, oab, crm, specialty *string) error
	InsertRefreshToken(ctx context.Context, arg repo.InsertRefreshTokenParams) (repo.TokenRefresh, error)
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (repo.TokenRefresh, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	InvalidateOtherRefreshTokens(ctx context.Context, subject uuid.UUID, keepHash string) error
	DeleteRefreshTokensBySubject(ctx context.Context, subject uuid.UUID) error
}

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// AuthService concentra autenticação, sessões e perfis.
type AuthService struct {
	repo       authRepository
	redis      redisCommander
	jwt        *auth.JWTManager
	refreshTTL time.Duration
}

// NewAuthService cria novo serviço.
func NewAuthService(r authRepository, redisClient *redis.Client, jwtMgr *auth.JWTManager, refreshTTL time.Duration) *AuthService {
	return &AuthService{repo: r, redis: redisClient, jwt: jwtMgr, refreshTTL: refreshTTL}
}

// JWT expõe gerenciador de JWT (útil em middlewares).
func (s *AuthService) JWT() *auth.JWTManager {
	return s.jwt
}

// UserProfile é a visão pública de um perfil.
type UserProfile struct {
	ID        string  `json:"id"`
	FullName  string  `json:"full_name"`
	Email     string  `json:"email"`
	Phone     *string `json:"phone,omitempty"`
	OABNumber *string `json:"oab_number,omitempty"`
	CRMNumber *string `json:"crm_number,omitempty"`
	Specialty *string `json:"specialty,omitempty"`
	Role      string  `json:"role"`
}

// LoginResult representa retorno padrão de autenticações.
type LoginResult struct {
	AccessToken   string
	RefreshToken  string
	Subject       uuid.UUID
	Role          string
	Profile       *UserProfile
	RefreshExpiry time.Time
}

func publicProfile(p repo.Profile, role string) *UserProfile {
	return &UserProfile{
		ID:        p.ID.String(),
		FullName:  p.FullName,
		Email:     p.Email,
		Phone:     p.Phone,
		OABNumber: p.OABNumber,
		CRMNumber: p.CRMNumber,
		Specialty: p.Specialty,
		Role:      role,
	}
}

// Login autentica por email/senha e abre uma sessão.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	profile, err := s.repo.GetProfileByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Warn().Msg("login: usuário não encontrado")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := auth.Verify(password, profile.SenhaHash)
	if err != nil {
		log.Warn().Err(err).Msg("login: verify password failed")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		log.Warn().Msg("login: senha inválida")
		return nil, ErrInvalidCredentials
	}

	return s.openSession(ctx, profile)
}

func (s *AuthService) openSession(ctx context.Context, profile repo.Profile) (*LoginResult, error) {
	if !profile.Ativo {
		return nil, ErrAccountDisabled
	}

	role, err := s.repo.GetRoleByUser(ctx, profile.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNoRole
		}
		return nil, err
	}

	token, _, err := s.jwt.GenerateAccessToken(profile.ID.String(), role)
	if err != nil {
		return nil, err
	}

	rawRefresh, refreshHash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	expires := time.Now().UTC().Add(s.refreshTTL)
	if err := s.persistRefresh(ctx, profile.ID, refreshHash, expires); err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:   token,
		RefreshToken:  rawRefresh,
		Subject:       profile.ID,
		Role:          role,
		Profile:       publicProfile(profile, role),
		RefreshExpiry: expires,
	}, nil
}

// Refresh troca refresh token válido por nova sessão, revogando o anterior.
func (s *AuthService) Refresh(ctx context.Context, rawToken string) (*LoginResult, error) {
	if rawToken == "" {
		return nil, ErrRefreshInvalid
	}

	hash := auth.HashRefreshToken(rawToken)
	record, err := s.repo.GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	if record.Revogado || time.Now().UTC().After(record.Expiracao) {
		return nil, ErrRefreshInvalid
	}

	redisKey := auth.RefreshRedisKey(hash)
	status, err := s.redis.Get(ctx, redisKey).Result()
	if err == redis.Nil {
		return nil, ErrRefreshInvalid
	}
	if err != nil {
		return nil, err
	}
	if status != "active" {
		return nil, ErrRefreshInvalid
	}

	profile, err := s.repo.GetProfileByID(ctx, record.Subject)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	result, err := s.openSession(ctx, profile)
	if err != nil {
		return nil, err
	}

	// Revoga token anterior (DB + Redis)
	if err := s.repo.RevokeRefreshToken(ctx, hash); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if err := s.redis.Del(ctx, redisKey).Err(); err != nil && err != redis.Nil {
		return nil, err
	}

	return result, nil
}

// Logout revoga refresh token atual.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	hash := auth.HashRefreshToken(rawToken)
	if err := s.repo.RevokeRefreshToken(ctx, hash); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if err := s.redis.Del(ctx, auth.RefreshRedisKey(hash)).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

// GetMe retorna o perfil do subject autenticado.
func (s *AuthService) GetMe(ctx context.Context, subject uuid.UUID) (*UserProfile, error) {
	profile, err := s.repo.GetProfileByID(ctx, subject)
	if err != nil {
		return nil, err
	}
	role, err := s.repo.GetRoleByUser(ctx, subject)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNoRole
		}
		return nil, err
	}
	return publicProfile(profile, role), nil
}

// UpdateProfileInput cobre os campos que o próprio usuário pode editar.
type UpdateProfileInput struct {
	FullName  string
	Phone     *string
	OABNumber *string
	CRMNumber *string
	Specialty *string
}

// UpdateMe atualiza dados profissionais do próprio usuário.
func (s *AuthService) UpdateMe(ctx context.Context, subject uuid.UUID, input UpdateProfileInput) (*UserProfile, error) {
	input.FullName = strings.TrimSpace(input.FullName)
	if input.FullName == "" {
		return nil, errors.New("nome é obrigatório")
	}
	if err := s.repo.UpdateProfile(ctx, subject, input.FullName, input.Phone, input.OABNumber, input.CRMNumber, input.Specialty); err != nil {
		return nil, err
	}
	return s.GetMe(ctx, subject)
}

// ListByRole lista perfis de um papel (seleção de médicos e especialistas).
func (s *AuthService) ListByRole(ctx context.Context, role string) ([]UserProfile, error) {
	switch role {
	case "medico_generalista", "especialista":
	default:
		return nil, errors.New("papel inválido")
	}

	profiles, err := s.repo.ListProfilesByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	out := make([]UserProfile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, *publicProfile(p, role))
	}
	return out, nil
}

// DeleteRefreshTokensBySubject derruba todas as sessões do usuário.
func (s *AuthService) DeleteRefreshTokensBySubject(ctx context.Context, subject uuid.UUID) error {
	return s.repo.DeleteRefreshTokensBySubject(ctx, subject)
}

func (s *AuthService) persistRefresh(ctx context.Context, subject uuid.UUID, hash string, expires time.Time) error {
	_, err := s.repo.InsertRefreshToken(ctx, repo.InsertRefreshTokenParams{
		Subject:   subject,
		TokenHash: hash,
		Expiracao: expires,
	})
	if err != nil {
		return err
	}

	if err := s.repo.InvalidateOtherRefreshTokens(ctx, subject, hash); err != nil {
		return err
	}

	return s.redis.Set(ctx, auth.RefreshRedisKey(hash), "active", time.Until(expires)).Err()
}
