package lgpd

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/provamed/api/internal/db"
)

var errNotFound = errors.New("not found")

const dbTimeout = 5 * time.Second

// Consent é um registro de consentimento dado ou revogado pelo titular.
type Consent struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Kind      string    `json:"kind"`
	Granted   bool      `json:"granted"`
	CreatedAt time.Time `json:"created_at"`
}

// Export agrega tudo que o sistema guarda sobre o titular.
type Export struct {
	GeneratedAt   time.Time         `json:"generated_at"`
	Profile       json.RawMessage   `json:"profile"`
	Cases         []json.RawMessage `json:"cases"`
	Requests      []json.RawMessage `json:"requests"`
	Consultations []json.RawMessage `json:"consultations"`
	Notifications []json.RawMessage `json:"notifications"`
	Consents      []Consent         `json:"consents"`
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (repo *Repository) InsertConsent(ctx context.Context, userID uuid.UUID, kind string, granted bool) (Consent, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var c Consent
	err := repo.db.QueryRow(ctx, `
		INSERT INTO lgpd_consents (user_id, kind, granted)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, kind, granted, created_at
	`, userID, kind, granted).Scan(&c.ID, &c.UserID, &c.Kind, &c.Granted, &c.CreatedAt)
	return c, err
}

func (repo *Repository) ListConsents(ctx context.Context, userID uuid.UUID) ([]Consent, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := repo.db.Query(ctx, `
		SELECT id, user_id, kind, granted, created_at
		FROM lgpd_consents
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Consent
	for rows.Next() {
		var c Consent
		if err := rows.Scan(&c.ID, &c.UserID, &c.Kind, &c.Granted, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// collect roda a query e devolve cada linha como JSON bruto; row_to_json
// poupa um modelo Go por tabela exportada.
func (repo *Repository) collect(ctx context.Context, query string, userID uuid.UUID) ([]json.RawMessage, error) {
	rows, err := repo.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var raw json.RawMessage
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, rows.Err()
}

// BuildExport monta o pacote de portabilidade do titular.
func (repo *Repository) BuildExport(ctx context.Context, userID uuid.UUID) (Export, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	export := Export{GeneratedAt: time.Now().UTC()}

	err := repo.db.QueryRow(ctx, `
		SELECT row_to_json(p) FROM (
			SELECT id, full_name, email, phone, oab_number, crm_number, specialty, created_at
			FROM profiles WHERE id = $1
		) p
	`, userID).Scan(&export.Profile)
	if errors.Is(err, pgx.ErrNoRows) {
		return export, errNotFound
	}
	if err != nil {
		return export, err
	}

	if export.Cases, err = repo.collect(ctx, `
		SELECT row_to_json(c) FROM cases c WHERE c.user_id = $1`, userID); err != nil {
		return export, err
	}
	if export.Requests, err = repo.collect(ctx, `
		SELECT row_to_json(r) FROM case_requests r
		WHERE r.advogado_id = $1 OR r.medico_id = $1 OR r.especialista_id = $1`, userID); err != nil {
		return export, err
	}
	if export.Consultations, err = repo.collect(ctx, `
		SELECT row_to_json(k) FROM consultations k WHERE k.medico_id = $1`, userID); err != nil {
		return export, err
	}
	if export.Notifications, err = repo.collect(ctx, `
		SELECT row_to_json(n) FROM notifications n WHERE n.user_id = $1`, userID); err != nil {
		return export, err
	}
	if export.Consents, err = repo.ListConsents(ctx, userID); err != nil {
		return export, err
	}
	return export, nil
}

// HasOpenWork responde se o titular está no meio de algum fluxo.
func (repo *Repository) HasOpenWork(ctx context.Context, userID uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var open bool
	err := repo.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM case_requests
			WHERE (advogado_id = $1 OR medico_id = $1 OR especialista_id = $1)
			  AND status <> 'concluida'
		)
	`, userID).Scan(&open)
	return open, err
}

// Anonymize desativa a conta e apaga os dados pessoais do perfil numa
// transação, mantendo o UUID para integridade referencial.
func (repo *Repository) Anonymize(ctx context.Context, userID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return db.WithTx(ctx, repo.db, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE profiles
			SET full_name = 'Titular removido',
			    email = 'removido+' || id || '@anonimo.invalid',
			    phone = NULL, oab_number = NULL, crm_number = NULL, specialty = NULL,
			    senha_hash = '', ativo = FALSE
			WHERE id = $1
		`, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errNotFound
		}

		_, err = tx.Exec(ctx, `DELETE FROM notifications WHERE user_id = $1`, userID)
		return err
	})
}
