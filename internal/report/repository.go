package report

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var errNotFound = errors.New("not found")

const dbTimeout = 3 * time.Second

// Report é um laudo entregue (type laudo) ou um parecer preliminar do
// especialista (type pre_laudo).
type Report struct {
	ID            uuid.UUID `json:"id"`
	CaseRequestID uuid.UUID `json:"case_request_id"`
	AuthorID      uuid.UUID `json:"author_id"`
	Title         string    `json:"title"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	Content       *string   `json:"content,omitempty"`
	FilePath      *string   `json:"file_path,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const (
	TypeLaudo    = "laudo"
	TypePreLaudo = "pre_laudo"

	StatusRascunho  = "rascunho"
	StatusConcluido = "concluido"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const reportColumns = `id, case_request_id, author_id, title, type, status, content, file_path, created_at, updated_at`

func scanReport(row pgx.Row) (Report, error) {
	var r Report
	err := row.Scan(&r.ID, &r.CaseRequestID, &r.AuthorID, &r.Title, &r.Type,
		&r.Status, &r.Content, &r.FilePath, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (repo *Repository) GetByID(ctx context.Context, id uuid.UUID) (Report, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	r, err := scanReport(repo.db.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return r, errNotFound
	}
	return r, err
}

// ListByAuthor devolve os laudos escritos pelo profissional.
func (repo *Repository) ListByAuthor(ctx context.Context, authorID uuid.UUID) ([]Report, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return repo.list(ctx, `SELECT `+reportColumns+` FROM reports WHERE author_id = $1 ORDER BY created_at DESC`, authorID)
}

// ListByRequest devolve os laudos de uma solicitação.
func (repo *Repository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]Report, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return repo.list(ctx, `SELECT `+reportColumns+` FROM reports WHERE case_request_id = $1 ORDER BY created_at DESC`, requestID)
}

// ListForAdvogado devolve os laudos concluídos das solicitações do advogado.
func (repo *Repository) ListForAdvogado(ctx context.Context, advogadoID uuid.UUID) ([]Report, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return repo.list(ctx, `
		SELECT p.id, p.case_request_id, p.author_id, p.title, p.type, p.status,
		       p.content, p.file_path, p.created_at, p.updated_at
		FROM reports p
		JOIN case_requests r ON r.id = p.case_request_id
		WHERE r.advogado_id = $1 AND p.status = '`+StatusConcluido+`'
		ORDER BY p.created_at DESC
	`, advogadoID)
}

func (repo *Repository) list(ctx context.Context, query string, args ...any) ([]Report, error) {
	rows, err := repo.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (repo *Repository) Insert(ctx context.Context, r Report) (Report, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := repo.db.QueryRow(ctx, `
		INSERT INTO reports (case_request_id, author_id, title, type, status, content, file_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+reportColumns+`
	`, r.CaseRequestID, r.AuthorID, r.Title, r.Type, r.Status, r.Content, r.FilePath)
	return scanReport(row)
}

func (repo *Repository) Update(ctx context.Context, id uuid.UUID, title string, content *string, status string) (Report, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := repo.db.QueryRow(ctx, `
		UPDATE reports SET title = $2, content = $3, status = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+reportColumns+`
	`, id, title, content, status)
	r, err := scanReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, errNotFound
	}
	return r, err
}

// RequestParties devolve advogado, médico e especialista da solicitação.
func (repo *Repository) RequestParties(ctx context.Context, requestID uuid.UUID) (advogado uuid.UUID, medico, especialista *uuid.UUID, err error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err = repo.db.QueryRow(ctx, `
		SELECT advogado_id, medico_id, especialista_id FROM case_requests WHERE id = $1
	`, requestID).Scan(&advogado, &medico, &especialista)
	if errors.Is(err, pgx.ErrNoRows) {
		err = errNotFound
	}
	return advogado, medico, especialista, err
}
