package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/provamed/api/internal/db"
)

var (
	errNotFound = errors.New("not found")

	// ErrConflict indica que o status mudou entre a leitura e a escrita
	// (outro ator agiu primeiro); o update condicional não encontrou a linha.
	ErrConflict = errors.New("estado da solicitação mudou")
)

const dbTimeout = 3 * time.Second

// Request é a solicitação de prova técnica persistida em case_requests.
type Request struct {
	ID                 uuid.UUID  `json:"id"`
	CaseID             uuid.UUID  `json:"case_id"`
	AdvogadoID         uuid.UUID  `json:"advogado_id"`
	MedicoID           *uuid.UUID `json:"medico_id"`
	EspecialistaID     *uuid.UUID `json:"especialista_id,omitempty"`
	Type               string     `json:"type"`
	Status             Status     `json:"status"`
	Description        *string    `json:"description,omitempty"`
	Deadline           *time.Time `json:"deadline,omitempty"`
	ReportForecastDate *time.Time `json:"report_forecast_date,omitempty"`
	CancelRequestedBy  *uuid.UUID `json:"cancel_requested_by,omitempty"`
	Notes              *string    `json:"notes,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	Case *CaseSummary `json:"case,omitempty"`
}

// CaseSummary carrega os dados do caso exibidos junto à solicitação.
type CaseSummary struct {
	ID            uuid.UUID `json:"id"`
	Title         string    `json:"title"`
	PatientName   string    `json:"patient_name"`
	PatientCPF    *string   `json:"patient_cpf,omitempty"`
	ProcessNumber *string   `json:"process_number,omitempty"`
}

// DocumentRow é o vínculo de um anexo na criação da solicitação.
type DocumentRow struct {
	CaseID      uuid.UUID
	FileName    string
	FilePath    string
	FileSize    int64
	FileType    string
	Description string
	UploadedBy  uuid.UUID
}

// Repository concentra as escritas e leituras do workflow.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const requestColumns = `
	r.id, r.case_id, r.advogado_id, r.medico_id, r.especialista_id, r.type,
	r.status, r.description, r.deadline, r.report_forecast_date,
	r.cancel_requested_by, r.notes, r.created_at, r.updated_at,
	c.id, c.title, c.patient_name, c.patient_cpf, c.process_number`

func scanRequest(row pgx.Row) (Request, error) {
	var r Request
	var cs CaseSummary
	err := row.Scan(
		&r.ID, &r.CaseID, &r.AdvogadoID, &r.MedicoID, &r.EspecialistaID, &r.Type,
		&r.Status, &r.Description, &r.Deadline, &r.ReportForecastDate,
		&r.CancelRequestedBy, &r.Notes, &r.CreatedAt, &r.UpdatedAt,
		&cs.ID, &cs.Title, &cs.PatientName, &cs.PatientCPF, &cs.ProcessNumber,
	)
	if err != nil {
		return r, err
	}
	r.Case = &cs
	return r, nil
}

func (repo *Repository) GetRequest(ctx context.Context, id uuid.UUID) (Request, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := repo.db.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM case_requests r
		JOIN cases c ON c.id = r.case_id
		WHERE r.id = $1
	`, id)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return req, errNotFound
	}
	return req, err
}

// ListByActor devolve as solicitações visíveis ao ator conforme seu papel.
func (repo *Repository) ListByActor(ctx context.Context, actor Actor) ([]Request, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var column string
	switch actor.Role {
	case RoleAdvogado:
		column = "r.advogado_id"
	case RoleMedico:
		column = "r.medico_id"
	case RoleEspecialista:
		column = "r.especialista_id"
	default:
		return nil, errNotFound
	}

	rows, err := repo.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM case_requests r
		JOIN cases c ON c.id = r.case_id
		WHERE `+column+` = $1
		ORDER BY r.created_at DESC
	`, actor.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// GetCaseOwner retorna o advogado dono do caso e o nome do paciente.
func (repo *Repository) GetCaseOwner(ctx context.Context, caseID uuid.UUID) (uuid.UUID, string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var owner uuid.UUID
	var patient string
	err := repo.db.QueryRow(ctx, `SELECT user_id, patient_name FROM cases WHERE id = $1`, caseID).Scan(&owner, &patient)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, "", errNotFound
	}
	return owner, patient, err
}

// GetUserRole devolve o papel cadastrado do usuário.
func (repo *Repository) GetUserRole(ctx context.Context, userID uuid.UUID) (Role, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var role Role
	err := repo.db.QueryRow(ctx, `SELECT role FROM user_roles WHERE user_id = $1`, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", errNotFound
	}
	return role, err
}

// CaseHasActiveRequest verifica se já existe solicitação não concluída no caso.
func (repo *Repository) CaseHasActiveRequest(ctx context.Context, caseID uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var exists bool
	err := repo.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM case_requests
			WHERE case_id = $1 AND status <> $2
		)
	`, caseID, StatusConcluida).Scan(&exists)
	return exists, err
}

// InsertRequest cria a solicitação em estado pendente.
func (repo *Repository) InsertRequest(ctx context.Context, r Request) (uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var id uuid.UUID
	err := repo.db.QueryRow(ctx, `
		INSERT INTO case_requests (case_id, advogado_id, medico_id, especialista_id, type, status, description, deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, r.CaseID, r.AdvogadoID, r.MedicoID, r.EspecialistaID, r.Type, StatusPendente, r.Description, r.Deadline).Scan(&id)
	return id, err
}

// InsertDocument vincula um anexo ao caso. Chamado fora de transação:
// falhas individuais não desfazem a solicitação (política best-effort).
func (repo *Repository) InsertDocument(ctx context.Context, d DocumentRow) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := repo.db.Exec(ctx, `
		INSERT INTO documents (case_id, file_name, file_path, file_size, file_type, description, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.CaseID, d.FileName, d.FilePath, d.FileSize, d.FileType, d.Description, d.UploadedBy)
	return err
}

// AcceptAndSchedule executa a transição pendente → em_agendamento numa única
// transação: consulta criada, previsão estampada e caso movido para
// em_andamento. O update condicional garante que dois atores não aceitem a
// mesma solicitação.
func (repo *Repository) AcceptAndSchedule(ctx context.Context, requestID, medicoID uuid.UUID, patientName string, scheduledAt, forecast time.Time, notes *string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return db.WithTx(ctx, repo.db, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE case_requests
			SET status = $2, report_forecast_date = $3, updated_at = now()
			WHERE id = $1 AND status = $4
		`, requestID, StatusEmAgendamento, forecast, StatusPendente)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO consultations (case_request_id, medico_id, patient_name, scheduled_at, status, notes)
			VALUES ($1, $2, $3, $4, 'agendada', $5)
		`, requestID, medicoID, patientName, scheduledAt, notes); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE cases SET status = 'em_andamento', updated_at = now()
			WHERE id = (SELECT case_id FROM case_requests WHERE id = $1)
		`, requestID)
		return err
	})
}

// UpdateStatus move o status com verificação do estado esperado.
func (repo *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := repo.db.Exec(ctx, `
		UPDATE case_requests SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`, id, to, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// ProposeCancellation grava o iniciador junto com a mudança de status.
func (repo *Repository) ProposeCancellation(ctx context.Context, id uuid.UUID, from []Status, initiator uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}

	tag, err := repo.db.Exec(ctx, `
		UPDATE case_requests
		SET status = $2, cancel_requested_by = $3, updated_at = now()
		WHERE id = $1 AND status = ANY($4) AND cancel_requested_by IS NULL
	`, id, StatusSolicitandoCancelamento, initiator, statuses)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// ConfirmCancellation apaga a solicitação e as consultas vinculadas.
func (repo *Repository) ConfirmCancellation(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return db.WithTx(ctx, repo.db, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM consultations WHERE case_request_id = $1`, id); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			DELETE FROM case_requests WHERE id = $1 AND status = $2
		`, id, StatusSolicitandoCancelamento)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}
		return nil
	})
}

// RevertCancellation restaura o status anterior e limpa o iniciador.
func (repo *Repository) RevertCancellation(ctx context.Context, id uuid.UUID, to Status) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := repo.db.Exec(ctx, `
		UPDATE case_requests
		SET status = $2, cancel_requested_by = NULL, updated_at = now()
		WHERE id = $1 AND status = $3
	`, id, to, StatusSolicitandoCancelamento)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// RequestUpdate agrupa os campos mutáveis de uma solicitação destravada.
type RequestUpdate struct {
	MedicoID    *uuid.UUID
	Type        string
	Description *string
	Deadline    *time.Time
}

// Resubmit aplica a edição do advogado e devolve a solicitação a pendente,
// limpando a previsão de laudo comprometida com a versão anterior.
func (repo *Repository) Resubmit(ctx context.Context, id uuid.UUID, upd RequestUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := repo.db.Exec(ctx, `
		UPDATE case_requests
		SET medico_id = $2, type = $3, description = $4, deadline = $5,
		    status = $6, report_forecast_date = NULL, updated_at = now()
		WHERE id = $1 AND status = $7
	`, id, upd.MedicoID, upd.Type, upd.Description, upd.Deadline, StatusPendente, StatusEmAjuste)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// UpdateFields altera campos sem mudar o status; usado apenas em estados
// destravados, e a troca de médico somente em pendente/em_ajuste.
func (repo *Repository) UpdateFields(ctx context.Context, id uuid.UUID, upd RequestUpdate, expected Status) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := repo.db.Exec(ctx, `
		UPDATE case_requests
		SET medico_id = $2, type = $3, description = $4, deadline = $5, updated_at = now()
		WHERE id = $1 AND status = $6
	`, id, upd.MedicoID, upd.Type, upd.Description, upd.Deadline, expected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// Delete remove a solicitação enquanto ainda pendente.
func (repo *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := repo.db.Exec(ctx, `
		DELETE FROM case_requests WHERE id = $1 AND status = $2
	`, id, StatusPendente)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// SetEspecialista designa o especialista mantendo a checagem de estado.
func (repo *Repository) SetEspecialista(ctx context.Context, id uuid.UUID, especialistaID *uuid.UUID, expected Status) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := repo.db.Exec(ctx, `
		UPDATE case_requests SET especialista_id = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`, id, especialistaID, expected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// HasConsultation indica se a solicitação já passou pela aceitação.
func (repo *Repository) HasConsultation(ctx context.Context, requestID uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var exists bool
	err := repo.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM consultations WHERE case_request_id = $1)
	`, requestID).Scan(&exists)
	return exists, err
}

// DeliverReport conclui a solicitação numa única transação: laudo inserido,
// solicitação movida para concluida e caso encerrado.
func (repo *Repository) DeliverReport(ctx context.Context, requestID uuid.UUID, from []Status, authorID uuid.UUID, title, reportType, filePath string) (uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}

	var reportID uuid.UUID
	err := db.WithTx(ctx, repo.db, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE case_requests SET status = $2, updated_at = now()
			WHERE id = $1 AND status = ANY($3)
		`, requestID, StatusConcluida, statuses)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}

		if err := tx.QueryRow(ctx, `
			INSERT INTO reports (case_request_id, author_id, title, type, status, file_path)
			VALUES ($1, $2, $3, $4, 'concluido', $5)
			RETURNING id
		`, requestID, authorID, title, reportType, filePath).Scan(&reportID); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE cases SET status = 'concluido', updated_at = now()
			WHERE id = (SELECT case_id FROM case_requests WHERE id = $1)
		`, requestID)
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}
	return reportID, nil
}
