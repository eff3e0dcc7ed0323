package repo

import (
	"time"

	"github.com/google/uuid"
)

// Profile representa um usuário da plataforma com seus dados profissionais.
type Profile struct {
	ID        uuid.UUID
	FullName  string
	Email     string
	SenhaHash string
	Phone     *string
	OABNumber *string
	CRMNumber *string
	Specialty *string
	Ativo     bool
	CriadoEm  time.Time
}

// UserRole vincula usuário a um único papel da plataforma.
type UserRole struct {
	UserID uuid.UUID
	Role   string
}

// TokenRefresh modela tabela de refresh tokens.
type TokenRefresh struct {
	ID        uuid.UUID
	Subject   uuid.UUID
	TokenHash string
	Expiracao time.Time
	CriadoEm  time.Time
	Revogado  bool
}
