package document

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/provamed/api/internal/db"
)

var errNotFound = errors.New("not found")

const dbTimeout = 3 * time.Second

// Document é um anexo do caso. FilePath é a chave no bucket, nunca uma URL.
type Document struct {
	ID          uuid.UUID `json:"id"`
	CaseID      uuid.UUID `json:"case_id"`
	FileName    string    `json:"file_name"`
	FilePath    string    `json:"file_path"`
	FileSize    int64     `json:"file_size"`
	FileType    string    `json:"file_type"`
	Description *string   `json:"description,omitempty"`
	UploadedBy  uuid.UUID `json:"uploaded_by"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
}

// Version é uma versão anterior preservada de um documento.
type Version struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Version    int       `json:"version"`
	FilePath   string    `json:"file_path"`
	FileSize   int64     `json:"file_size"`
	UploadedBy uuid.UUID `json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at"`
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const documentColumns = `id, case_id, file_name, file_path, file_size, file_type, description, uploaded_by, version, created_at`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.CaseID, &d.FileName, &d.FilePath, &d.FileSize,
		&d.FileType, &d.Description, &d.UploadedBy, &d.Version, &d.CreatedAt)
	return d, err
}

func (repo *Repository) GetByID(ctx context.Context, id uuid.UUID) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	d, err := scanDocument(repo.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return d, errNotFound
	}
	return d, err
}

func (repo *Repository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]Document, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := repo.db.Query(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE case_id = $1
		ORDER BY created_at DESC
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (repo *Repository) Insert(ctx context.Context, d Document) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := repo.db.QueryRow(ctx, `
		INSERT INTO documents (case_id, file_name, file_path, file_size, file_type, description, uploaded_by, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
		RETURNING `+documentColumns+`
	`, d.CaseID, d.FileName, d.FilePath, d.FileSize, d.FileType, d.Description, d.UploadedBy)
	return scanDocument(row)
}

// ReplaceWithVersion guarda a versão corrente em document_versions e troca o
// arquivo do documento numa única transação.
func (repo *Repository) ReplaceWithVersion(ctx context.Context, id uuid.UUID, filePath string, fileSize int64, fileType string, uploadedBy uuid.UUID) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var updated Document
	err := db.WithTx(ctx, repo.db, func(ctx context.Context, tx pgx.Tx) error {
		current, err := scanDocument(tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return errNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO document_versions (document_id, version, file_path, file_size, uploaded_by)
			VALUES ($1, $2, $3, $4, $5)
		`, current.ID, current.Version, current.FilePath, current.FileSize, current.UploadedBy); err != nil {
			return err
		}

		updated, err = scanDocument(tx.QueryRow(ctx, `
			UPDATE documents
			SET file_path = $2, file_size = $3, file_type = $4, uploaded_by = $5, version = version + 1
			WHERE id = $1
			RETURNING `+documentColumns+`
		`, id, filePath, fileSize, fileType, uploadedBy))
		return err
	})
	if err != nil {
		return Document{}, err
	}
	return updated, nil
}

func (repo *Repository) ListVersions(ctx context.Context, documentID uuid.UUID) ([]Version, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := repo.db.Query(ctx, `
		SELECT id, document_id, version, file_path, file_size, uploaded_by, created_at
		FROM document_versions
		WHERE document_id = $1
		ORDER BY version DESC
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.Version, &v.FilePath, &v.FileSize, &v.UploadedBy, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (repo *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return db.WithTx(ctx, repo.db, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM document_versions WHERE document_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errNotFound
		}
		return nil
	})
}

// CanAccessCase responde se o usuário é dono do caso ou profissional
// designado em alguma solicitação dele.
func (repo *Repository) CanAccessCase(ctx context.Context, userID, caseID uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var ok bool
	err := repo.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM cases WHERE id = $1 AND user_id = $2)
		    OR EXISTS (
			SELECT 1 FROM case_requests
			WHERE case_id = $1 AND (medico_id = $2 OR especialista_id = $2)
		    )
	`, caseID, userID).Scan(&ok)
	return ok, err
}
