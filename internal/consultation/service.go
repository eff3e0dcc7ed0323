package consultation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validação")
)

func validationErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

type repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (Consultation, error)
	ListByMedico(ctx context.Context, medicoID uuid.UUID, from time.Time) ([]Consultation, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string, notes *string) error
	Reschedule(ctx context.Context, id uuid.UUID, scheduledAt time.Time) error
	AdvogadoForRequest(ctx context.Context, requestID uuid.UUID) (uuid.UUID, error)
}

type notifier interface {
	Send(ctx context.Context, userID uuid.UUID, title, message, typ string, link *string) error
}

// Service gerencia a agenda do médico. A consulta nasce no fluxo de
// aceitação; aqui ficam só as operações sobre ela.
type Service struct {
	repo  repository
	notif notifier
	now   func() time.Time
}

func NewService(repo repository, notif notifier) *Service {
	return &Service{repo: repo, notif: notif, now: time.Now}
}

// Agenda devolve as consultas do médico a partir de hoje.
func (s *Service) Agenda(ctx context.Context, medicoID uuid.UUID) ([]Consultation, error) {
	today := s.now().Truncate(24 * time.Hour)
	return s.repo.ListByMedico(ctx, medicoID, today)
}

// History devolve toda a agenda, passado incluído.
func (s *Service) History(ctx context.Context, medicoID uuid.UUID) ([]Consultation, error) {
	return s.repo.ListByMedico(ctx, medicoID, time.Time{})
}

func (s *Service) get(ctx context.Context, medicoID, id uuid.UUID) (Consultation, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Consultation{}, err
	}
	if c.MedicoID != medicoID {
		return Consultation{}, ErrForbidden
	}
	return c, nil
}

// MarkDone registra a realização da consulta com as observações clínicas.
func (s *Service) MarkDone(ctx context.Context, medicoID, id uuid.UUID, notes *string) error {
	c, err := s.get(ctx, medicoID, id)
	if err != nil {
		return err
	}
	if c.Status != StatusAgendada {
		return validationErr("a consulta não está agendada")
	}
	return s.repo.SetStatus(ctx, id, StatusRealizada, notes)
}

// Reschedule move o horário e avisa o advogado.
func (s *Service) Reschedule(ctx context.Context, medicoID, id uuid.UUID, scheduledAt time.Time) error {
	c, err := s.get(ctx, medicoID, id)
	if err != nil {
		return err
	}
	if c.Status != StatusAgendada {
		return validationErr("a consulta não está agendada")
	}
	scheduled := scheduledAt.Truncate(time.Minute)
	if scheduled.Before(s.now().Truncate(time.Minute)) {
		return validationErr("o novo horário não pode estar no passado")
	}

	if err := s.repo.Reschedule(ctx, id, scheduled); err != nil {
		return err
	}

	if s.notif != nil {
		advogadoID, err := s.repo.AdvogadoForRequest(ctx, c.CaseRequestID)
		if err == nil {
			link := "/solicitacoes/" + c.CaseRequestID.String()
			if err := s.notif.Send(ctx, advogadoID, "Consulta remarcada",
				"O médico remarcou a consulta para "+scheduled.Format("02/01/2006 15:04")+".",
				"consultation", &link); err != nil {
				log.Warn().Err(err).Msg("consultation notificação falhou")
			}
		}
	}
	return nil
}
