// Package audit grava a trilha de auditoria exigida pela LGPD:
// eventos append-only de quem fez o quê sobre qual recurso.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 3 * time.Second

// Entry é um registro imutável da trilha.
type Entry struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   *uuid.UUID      `json:"resource_id,omitempty"`
	Details      json.RawMessage `json:"details"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Recorder é o contrato consumido pelos demais módulos.
type Recorder interface {
	Record(ctx context.Context, userID uuid.UUID, action, resourceType string, resourceID *uuid.UUID, details map[string]any) error
}

// Repository persiste e consulta audit_logs.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Record insere uma entrada. Nunca atualiza nem apaga.
func (r *Repository) Record(ctx context.Context, userID uuid.UUID, action, resourceType string, resourceID *uuid.UUID, details map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if details == nil {
		details = map[string]any{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO audit_logs (user_id, action, resource_type, resource_id, details)
		VALUES ($1, $2, $3, $4, $5)
	`, userID, action, resourceType, resourceID, payload)
	return err
}

// ListByUser retorna a trilha do próprio usuário, mais recente primeiro.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, action, resource_type, resource_id, details, created_at
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.ResourceType, &e.ResourceID, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
