package cases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/provamed/api/internal/util"
	"github.com/provamed/api/internal/workflow"
)

var (
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validação")
)

func validationErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

type repository interface {
	Insert(ctx context.Context, c Case) (Case, error)
	GetByID(ctx context.Context, id uuid.UUID) (Case, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, includeArchived bool, search string) ([]Case, error)
	ListByMedico(ctx context.Context, medicoID uuid.UUID) ([]Case, error)
	Update(ctx context.Context, c Case) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	HasActiveRequest(ctx context.Context, caseID uuid.UUID) (bool, error)
}

type auditor interface {
	Record(ctx context.Context, userID uuid.UUID, action, resourceType string, resourceID *uuid.UUID, details map[string]any) error
}

// Service aplica as regras de propriedade e ciclo de vida dos casos. O caso
// pertence ao advogado que o criou; o médico enxerga apenas os casos em que
// foi designado.
type Service struct {
	repo  repository
	audit auditor
	now   func() time.Time
}

func NewService(repo repository, rec auditor) *Service {
	return &Service{repo: repo, audit: rec, now: time.Now}
}

// CaseInput reúne os campos editáveis de um caso.
type CaseInput struct {
	Title         string
	PatientName   string
	PatientCPF    string
	ProcessNumber *string
	Description   *string
	Deadline      *time.Time
	Priority      string
}

func (s *Service) validate(input *CaseInput) (*string, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.PatientName = strings.TrimSpace(input.PatientName)
	if input.Title == "" {
		return nil, validationErr("título é obrigatório")
	}
	if input.PatientName == "" {
		return nil, validationErr("nome do paciente é obrigatório")
	}
	if input.Priority == "" {
		input.Priority = PriorityNormal
	}
	if !ValidPriority(input.Priority) {
		return nil, validationErr("prioridade inválida")
	}
	if input.Deadline != nil {
		d := workflow.TruncateToMinute(*input.Deadline)
		if workflow.DeadlineInPast(d, s.now()) {
			return nil, validationErr("prazo não pode estar no passado")
		}
		input.Deadline = &d
	}

	var cpf *string
	if input.PatientCPF != "" {
		normalized, err := util.NormalizeCPF(input.PatientCPF)
		if err != nil {
			return nil, validationErr("CPF inválido")
		}
		cpf = &normalized
	}
	return cpf, nil
}

func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, input CaseInput) (Case, error) {
	cpf, err := s.validate(&input)
	if err != nil {
		return Case{}, err
	}

	created, err := s.repo.Insert(ctx, Case{
		UserID:        ownerID,
		Title:         input.Title,
		PatientName:   input.PatientName,
		PatientCPF:    cpf,
		ProcessNumber: input.ProcessNumber,
		Description:   input.Description,
		Deadline:      input.Deadline,
		Priority:      input.Priority,
	})
	if err != nil {
		return Case{}, err
	}

	s.recordAudit(ctx, ownerID, "case_created", created.ID)
	return created, nil
}

// Get devolve o caso se o chamador for o dono. O médico designado consulta
// o caso através da solicitação, não por aqui.
func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (Case, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Case{}, err
	}
	if c.UserID != ownerID {
		return Case{}, ErrForbidden
	}
	return c, nil
}

func (s *Service) ListOwned(ctx context.Context, ownerID uuid.UUID, includeArchived bool, search string) ([]Case, error) {
	return s.repo.ListByOwner(ctx, ownerID, includeArchived, strings.TrimSpace(search))
}

func (s *Service) ListAssigned(ctx context.Context, medicoID uuid.UUID) ([]Case, error) {
	return s.repo.ListByMedico(ctx, medicoID)
}

func (s *Service) Update(ctx context.Context, ownerID, id uuid.UUID, input CaseInput) (Case, error) {
	c, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return Case{}, err
	}
	if c.Status == StatusArquivado {
		return Case{}, validationErr("caso arquivado não aceita edição")
	}

	cpf, err := s.validate(&input)
	if err != nil {
		return Case{}, err
	}

	c.Title = input.Title
	c.PatientName = input.PatientName
	c.PatientCPF = cpf
	c.ProcessNumber = input.ProcessNumber
	c.Description = input.Description
	c.Deadline = input.Deadline
	c.Priority = input.Priority

	if err := s.repo.Update(ctx, c); err != nil {
		return Case{}, err
	}
	s.recordAudit(ctx, ownerID, "case_updated", id)
	return s.repo.GetByID(ctx, id)
}

// Archive tira o caso das listagens correntes. Caso com solicitação aberta
// não arquiva: o fluxo precisa terminar ou ser cancelado antes.
func (s *Service) Archive(ctx context.Context, ownerID, id uuid.UUID) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}

	active, err := s.repo.HasActiveRequest(ctx, id)
	if err != nil {
		return err
	}
	if active {
		return validationErr("o caso tem solicitação em andamento")
	}

	if err := s.repo.SetStatus(ctx, id, StatusArquivado); err != nil {
		return err
	}
	s.recordAudit(ctx, ownerID, "case_archived", id)
	return nil
}

// Unarchive devolve o caso arquivado à listagem.
func (s *Service) Unarchive(ctx context.Context, ownerID, id uuid.UUID) error {
	c, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if c.Status != StatusArquivado {
		return validationErr("o caso não está arquivado")
	}

	if err := s.repo.SetStatus(ctx, id, StatusAberto); err != nil {
		return err
	}
	s.recordAudit(ctx, ownerID, "case_unarchived", id)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, userID uuid.UUID, action string, caseID uuid.UUID) {
	if s.audit == nil {
		return
	}
	id := caseID
	if err := s.audit.Record(ctx, userID, action, "case", &id, nil); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("cases auditoria falhou")
	}
}
