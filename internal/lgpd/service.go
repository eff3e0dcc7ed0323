package lgpd

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrValidation = errors.New("validação")

var validKinds = map[string]bool{
	"tratamento_dados": true,
	"comunicacoes":     true,
	"compartilhamento": true,
}

type repository interface {
	InsertConsent(ctx context.Context, userID uuid.UUID, kind string, granted bool) (Consent, error)
	ListConsents(ctx context.Context, userID uuid.UUID) ([]Consent, error)
	BuildExport(ctx context.Context, userID uuid.UUID) (Export, error)
	HasOpenWork(ctx context.Context, userID uuid.UUID) (bool, error)
	Anonymize(ctx context.Context, userID uuid.UUID) error
}

type sessionRevoker interface {
	DeleteRefreshTokensBySubject(ctx context.Context, subject uuid.UUID) error
}

type auditor interface {
	Record(ctx context.Context, userID uuid.UUID, action, resourceType string, resourceID *uuid.UUID, details map[string]any) error
}

// Service implementa os direitos do titular: consentimento, portabilidade e
// eliminação.
type Service struct {
	repo     repository
	sessions sessionRevoker
	audit    auditor
}

func NewService(repo repository, sessions sessionRevoker, rec auditor) *Service {
	return &Service{repo: repo, sessions: sessions, audit: rec}
}

func (s *Service) RecordConsent(ctx context.Context, userID uuid.UUID, kind string, granted bool) (Consent, error) {
	if !validKinds[kind] {
		return Consent{}, fmt.Errorf("%w: tipo de consentimento desconhecido", ErrValidation)
	}
	c, err := s.repo.InsertConsent(ctx, userID, kind, granted)
	if err != nil {
		return Consent{}, err
	}
	s.recordAudit(ctx, userID, "consent_recorded", map[string]any{"kind": kind, "granted": granted})
	return c, nil
}

func (s *Service) ListConsents(ctx context.Context, userID uuid.UUID) ([]Consent, error) {
	return s.repo.ListConsents(ctx, userID)
}

// ExportData devolve o pacote completo do titular e audita a extração.
func (s *Service) ExportData(ctx context.Context, userID uuid.UUID) (Export, error) {
	export, err := s.repo.BuildExport(ctx, userID)
	if err != nil {
		return Export{}, err
	}
	s.recordAudit(ctx, userID, "data_exported", nil)
	return export, nil
}

// EraseAccount anonimiza o perfil e derruba as sessões. Conta com fluxo em
// andamento não é apagada: o titular encerra ou cancela primeiro.
func (s *Service) EraseAccount(ctx context.Context, userID uuid.UUID) error {
	open, err := s.repo.HasOpenWork(ctx, userID)
	if err != nil {
		return err
	}
	if open {
		return fmt.Errorf("%w: há solicitações em andamento vinculadas à conta", ErrValidation)
	}

	if err := s.repo.Anonymize(ctx, userID); err != nil {
		return err
	}

	if s.sessions != nil {
		if err := s.sessions.DeleteRefreshTokensBySubject(ctx, userID); err != nil {
			log.Warn().Err(err).Msg("lgpd revogação de sessões falhou")
		}
	}

	s.recordAudit(ctx, userID, "account_erased", nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, userID uuid.UUID, action string, details map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, userID, action, "profile", &userID, details); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("lgpd auditoria falhou")
	}
}
