package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var errNotFound = errors.New("not found")

const dbTimeout = 3 * time.Second

// Message é uma mensagem trocada entre as partes de um caso.
type Message struct {
	ID         uuid.UUID `json:"id"`
	CaseID     uuid.UUID `json:"case_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListByCase devolve o histórico em ordem cronológica.
func (repo *Repository) ListByCase(ctx context.Context, caseID uuid.UUID, limit int) ([]Message, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if limit <= 0 || limit > 500 {
		limit = 200
	}

	rows, err := repo.db.Query(ctx, `
		SELECT m.id, m.case_id, m.sender_id, p.full_name, m.content, m.created_at
		FROM case_messages m
		JOIN profiles p ON p.id = m.sender_id
		WHERE m.case_id = $1
		ORDER BY m.created_at ASC
		LIMIT $2
	`, caseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.CaseID, &m.SenderID, &m.SenderName, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (repo *Repository) Insert(ctx context.Context, caseID, senderID uuid.UUID, content string) (Message, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var m Message
	err := repo.db.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO case_messages (case_id, sender_id, content)
			VALUES ($1, $2, $3)
			RETURNING id, case_id, sender_id, content, created_at
		)
		SELECT i.id, i.case_id, i.sender_id, p.full_name, i.content, i.created_at
		FROM inserted i
		JOIN profiles p ON p.id = i.sender_id
	`, caseID, senderID, content).Scan(&m.ID, &m.CaseID, &m.SenderID, &m.SenderName, &m.Content, &m.CreatedAt)
	return m, err
}

// Participants devolve todos os usuários ligados ao caso: o advogado dono e
// os profissionais das solicitações.
func (repo *Repository) Participants(ctx context.Context, caseID uuid.UUID) ([]uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := repo.db.Query(ctx, `
		SELECT user_id FROM cases WHERE id = $1
		UNION
		SELECT medico_id FROM case_requests WHERE case_id = $1 AND medico_id IS NOT NULL
		UNION
		SELECT especialista_id FROM case_requests WHERE case_id = $1 AND especialista_id IS NOT NULL
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, errNotFound
	}
	return out, rows.Err()
}
