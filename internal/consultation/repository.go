package consultation

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

// Consultation é o atendimento presencial agendado na aceitação da
// solicitação.
type Consultation struct {
	ID            uuid.UUID `json:"id"`
	CaseRequestID uuid.UUID `json:"case_request_id"`
	MedicoID      uuid.UUID `json:"medico_id"`
	PatientName   string    `json:"patient_name"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	Status        string    `json:"status"`
	Notes         *string   `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	RequestStatus string `json:"request_status,omitempty"`
}

const (
	StatusAgendada  = "agendada"
	StatusRealizada = "realizada"
	StatusCancelada = "cancelada"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const consultationColumns = `
	k.id, k.case_request_id, k.medico_id, k.patient_name, k.scheduled_at,
	k.status, k.notes, k.created_at, k.updated_at, r.status`

func scanConsultation(row pgx.Row) (Consultation, error) {
	var c Consultation
	err := row.Scan(&c.ID, &c.CaseRequestID, &c.MedicoID, &c.PatientName,
		&c.ScheduledAt, &c.Status, &c.Notes, &c.CreatedAt, &c.UpdatedAt, &c.RequestStatus)
	return c, err
}

func (repo *Repository) GetByID(ctx context.Context, id uuid.UUID) (Consultation, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := repo.db.QueryRow(ctx, `
		SELECT `+consultationColumns+`
		FROM consultations k
		JOIN case_requests r ON r.id = k.case_request_id
		WHERE k.id = $1
	`, id)
	c, err := scanConsultation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, errNotFound
	}
	return c, err
}

// ListByMedico devolve a agenda do médico a partir da data informada.
func (repo *Repository) ListByMedico(ctx context.Context, medicoID uuid.UUID, from time.Time) ([]Consultation, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := repo.db.Query(ctx, `
		SELECT `+consultationColumns+`
		FROM consultations k
		JOIN case_requests r ON r.id = k.case_request_id
		WHERE k.medico_id = $1 AND k.scheduled_at >= $2
		ORDER BY k.scheduled_at ASC
	`, medicoID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (repo *Repository) SetStatus(ctx context.Context, id uuid.UUID, status string, notes *string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := repo.db.Exec(ctx, `
		UPDATE consultations
		SET status = $2, notes = COALESCE($3, notes), updated_at = now()
		WHERE id = $1
	`, id, status, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errNotFound
	}
	return nil
}

// Reschedule move o horário; só faz sentido enquanto a consulta está agendada.
func (repo *Repository) Reschedule(ctx context.Context, id uuid.UUID, scheduledAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := repo.db.Exec(ctx, `
		UPDATE consultations
		SET scheduled_at = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`, id, scheduledAt, StatusAgendada)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errNotFound
	}
	return nil
}

// AdvogadoForRequest localiza quem notificar sobre mudanças na agenda.
func (repo *Repository) AdvogadoForRequest(ctx context.Context, requestID uuid.UUID) (uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var advogadoID uuid.UUID
	err := repo.db.QueryRow(ctx, `SELECT advogado_id FROM case_requests WHERE id = $1`, requestID).Scan(&advogadoID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, errNotFound
	}
	return advogadoID, err
}
