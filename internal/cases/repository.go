package cases

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

// Case é o processo jurídico que ancora solicitações, documentos e laudos.
type Case struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	Title         string     `json:"title"`
	PatientName   string     `json:"patient_name"`
	PatientCPF    *string    `json:"patient_cpf,omitempty"`
	ProcessNumber *string    `json:"process_number,omitempty"`
	Description   *string    `json:"description,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	Status        string     `json:"status"`
	Priority      string     `json:"priority"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Estados do caso; seguem o andamento da solicitação vinculada.
const (
	StatusAberto          = "aberto"
	StatusEmAndamento     = "em_andamento"
	StatusAguardandoLaudo = "aguardando_laudo"
	StatusConcluido       = "concluido"
	StatusArquivado       = "arquivado"
)

const (
	PriorityNormal  = "normal"
	PriorityAlta    = "alta"
	PriorityUrgente = "urgente"
)

func ValidPriority(p string) bool {
	return p == PriorityNormal || p == PriorityAlta || p == PriorityUrgente
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const caseColumns = `id, user_id, title, patient_name, patient_cpf, process_number, description, deadline, status, priority, created_at, updated_at`

func scanCase(row pgx.Row) (Case, error) {
	var c Case
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.PatientName, &c.PatientCPF,
		&c.ProcessNumber, &c.Description, &c.Deadline, &c.Status, &c.Priority, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (repo *Repository) Insert(ctx context.Context, c Case) (Case, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := repo.db.QueryRow(ctx, `
		INSERT INTO cases (user_id, title, patient_name, patient_cpf, process_number, description, deadline, status, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+caseColumns+`
	`, c.UserID, c.Title, c.PatientName, c.PatientCPF, c.ProcessNumber, c.Description, c.Deadline, StatusAberto, c.Priority)
	return scanCase(row)
}

func (repo *Repository) GetByID(ctx context.Context, id uuid.UUID) (Case, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	c, err := scanCase(repo.db.QueryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return c, errNotFound
	}
	return c, err
}

// ListByOwner devolve os casos do advogado, mais recentes primeiro. O termo
// de busca filtra por título ou nome do paciente.
func (repo *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID, includeArchived bool, search string) ([]Case, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `SELECT ` + caseColumns + ` FROM cases WHERE user_id = $1`
	args := []any{ownerID}
	if !includeArchived {
		query += ` AND status <> '` + StatusArquivado + `'`
	}
	if search != "" {
		query += ` AND (title ILIKE $2 OR patient_name ILIKE $2)`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := repo.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListByMedico devolve os casos em que o médico tem solicitação.
func (repo *Repository) ListByMedico(ctx context.Context, medicoID uuid.UUID) ([]Case, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := repo.db.Query(ctx, `
		SELECT DISTINCT c.id, c.user_id, c.title, c.patient_name, c.patient_cpf,
		       c.process_number, c.description, c.deadline, c.status, c.priority, c.created_at, c.updated_at
		FROM cases c
		JOIN case_requests r ON r.case_id = c.id
		WHERE r.medico_id = $1
		ORDER BY c.created_at DESC
	`, medicoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (repo *Repository) Update(ctx context.Context, c Case) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := repo.db.Exec(ctx, `
		UPDATE cases
		SET title = $2, patient_name = $3, patient_cpf = $4, process_number = $5,
		    description = $6, deadline = $7, priority = $8, updated_at = now()
		WHERE id = $1
	`, c.ID, c.Title, c.PatientName, c.PatientCPF, c.ProcessNumber, c.Description, c.Deadline, c.Priority)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errNotFound
	}
	return nil
}

func (repo *Repository) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := repo.db.Exec(ctx, `
		UPDATE cases SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errNotFound
	}
	return nil
}

// HasActiveRequest indica se o caso tem solicitação ainda aberta; usado
// para impedir arquivamento no meio do fluxo.
func (repo *Repository) HasActiveRequest(ctx context.Context, caseID uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var exists bool
	err := repo.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM case_requests WHERE case_id = $1 AND status <> 'concluida'
		)
	`, caseID).Scan(&exists)
	return exists, err
}
