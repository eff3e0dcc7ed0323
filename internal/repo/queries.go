package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 3 * time.Second

// Queries fornece acesso às tabelas de perfis, papéis e sessões.
type Queries struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Queries {
	return &Queries{db: db}
}

func (q *Queries) GetProfileByEmail(ctx context.Context, email string) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var p Profile
	err := q.db.QueryRow(ctx, `
		SELECT id, full_name, email, senha_hash, phone, oab_number, crm_number, specialty, ativo, created_at
		FROM profiles
		WHERE lower(email) = lower($1)
	`, email).Scan(&p.ID, &p.FullName, &p.Email, &p.SenhaHash, &p.Phone, &p.OABNumber, &p.CRMNumber, &p.Specialty, &p.Ativo, &p.CriadoEm)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

func (q *Queries) GetProfileByID(ctx context.Context, id uuid.UUID) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var p Profile
	err := q.db.QueryRow(ctx, `
		SELECT id, full_name, email, senha_hash, phone, oab_number, crm_number, specialty, ativo, created_at
		FROM profiles
		WHERE id = $1
	`, id).Scan(&p.ID, &p.FullName, &p.Email, &p.SenhaHash, &p.Phone, &p.OABNumber, &p.CRMNumber, &p.Specialty, &p.Ativo, &p.CriadoEm)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

// GetRoleByUser retorna o papel único do usuário.
func (q *Queries) GetRoleByUser(ctx context.Context, userID uuid.UUID) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var role string
	err := q.db.QueryRow(ctx, `SELECT role FROM user_roles WHERE user_id = $1`, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return role, err
}

// ListProfilesByRole lista profissionais ativos de um papel (seleção de médico/especialista).
func (q *Queries) ListProfilesByRole(ctx context.Context, role string) ([]Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := q.db.Query(ctx, `
		SELECT p.id, p.full_name, p.email, p.senha_hash, p.phone, p.oab_number, p.crm_number, p.specialty, p.ativo, p.created_at
		FROM profiles p
		JOIN user_roles ur ON ur.user_id = p.id
		WHERE ur.role = $1 AND p.ativo = TRUE
		ORDER BY p.full_name
	`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.FullName, &p.Email, &p.SenhaHash, &p.Phone, &p.OABNumber, &p.CRMNumber, &p.Specialty, &p.Ativo, &p.CriadoEm); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// UpdateProfile altera dados editáveis do próprio perfil.
func (q *Queries) UpdateProfile(ctx context.Context, id uuid.UUID, fullName string, phone, oab, crm, specialty *string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := q.db.Exec(ctx, `
		UPDATE profiles
		SET full_name = $2, phone = $3, oab_number = $4, crm_number = $5, specialty = $6, updated_at = now()
		WHERE id = $1
	`, id, fullName, phone, oab, crm, specialty)
	return err
}

// InsertRefreshTokenParams agrupa dados de persistência do refresh.
type InsertRefreshTokenParams struct {
	Subject   uuid.UUID
	TokenHash string
	Expiracao time.Time
}

func (q *Queries) InsertRefreshToken(ctx context.Context, arg InsertRefreshTokenParams) (TokenRefresh, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var t TokenRefresh
	err := q.db.QueryRow(ctx, `
		INSERT INTO refresh_tokens (subject, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, subject, token_hash, expires_at, created_at, revoked
	`, arg.Subject, arg.TokenHash, arg.Expiracao).Scan(&t.ID, &t.Subject, &t.TokenHash, &t.Expiracao, &t.CriadoEm, &t.Revogado)
	return t, err
}

func (q *Queries) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (TokenRefresh, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var t TokenRefresh
	err := q.db.QueryRow(ctx, `
		SELECT id, subject, token_hash, expires_at, created_at, revoked
		FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenHash).Scan(&t.ID, &t.Subject, &t.TokenHash, &t.Expiracao, &t.CriadoEm, &t.Revogado)
	if errors.Is(err, pgx.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

func (q *Queries) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := q.db.Exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token_hash = $1`, tokenHash)
	return err
}

// InvalidateOtherRefreshTokens revoga sessões antigas do mesmo usuário.
func (q *Queries) InvalidateOtherRefreshTokens(ctx context.Context, subject uuid.UUID, keepHash string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := q.db.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE subject = $1 AND token_hash <> $2 AND revoked = FALSE
	`, subject, keepHash)
	return err
}

// DeleteRefreshTokensBySubject remove todas as sessões do usuário (exclusão LGPD).
func (q *Queries) DeleteRefreshTokensBySubject(ctx context.Context, subject uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := q.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE subject = $1`, subject)
	return err
}
