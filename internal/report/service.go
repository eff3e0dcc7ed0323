package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/provamed/api/internal/storage"
)

var (
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validação")
)

func validationErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

const defaultSignedURLTTL = time.Hour

type repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (Report, error)
	ListByAuthor(ctx context.Context, authorID uuid.UUID) ([]Report, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]Report, error)
	ListForAdvogado(ctx context.Context, advogadoID uuid.UUID) ([]Report, error)
	Insert(ctx context.Context, r Report) (Report, error)
	Update(ctx context.Context, id uuid.UUID, title string, content *string, status string) (Report, error)
	RequestParties(ctx context.Context, requestID uuid.UUID) (uuid.UUID, *uuid.UUID, *uuid.UUID, error)
}

type notifier interface {
	Send(ctx context.Context, userID uuid.UUID, title, message, typ string, link *string) error
}

type auditor interface {
	Record(ctx context.Context, userID uuid.UUID, action, resourceType string, resourceID *uuid.UUID, details map[string]any) error
}

// Service cuida da leitura de laudos e do parecer preliminar do
// especialista. A entrega do laudo final não passa por aqui: ela é uma
// transição do fluxo da solicitação.
type Service struct {
	repo   repository
	store  storage.Client
	notif  notifier
	audit  auditor
	urlTTL time.Duration
}

func NewService(repo repository, store storage.Client, notif notifier, rec auditor, urlTTL time.Duration) *Service {
	if urlTTL <= 0 {
		urlTTL = defaultSignedURLTTL
	}
	return &Service{repo: repo, store: store, notif: notif, audit: rec, urlTTL: urlTTL}
}

// ListMine devolve os laudos de autoria do profissional.
func (s *Service) ListMine(ctx context.Context, authorID uuid.UUID) ([]Report, error) {
	return s.repo.ListByAuthor(ctx, authorID)
}

// ListDelivered devolve ao advogado os laudos concluídos dos seus casos.
func (s *Service) ListDelivered(ctx context.Context, advogadoID uuid.UUID) ([]Report, error) {
	return s.repo.ListForAdvogado(ctx, advogadoID)
}

func (s *Service) isParty(ctx context.Context, userID, requestID uuid.UUID) (bool, error) {
	advogado, medico, especialista, err := s.repo.RequestParties(ctx, requestID)
	if err != nil {
		return false, err
	}
	if advogado == userID {
		return true, nil
	}
	if medico != nil && *medico == userID {
		return true, nil
	}
	if especialista != nil && *especialista == userID {
		return true, nil
	}
	return false, nil
}

// ListByRequest devolve os laudos da solicitação para qualquer parte dela.
// Pré-laudos em rascunho só aparecem para o autor.
func (s *Service) ListByRequest(ctx context.Context, userID, requestID uuid.UUID) ([]Report, error) {
	party, err := s.isParty(ctx, userID, requestID)
	if err != nil {
		return nil, err
	}
	if !party {
		return nil, ErrForbidden
	}

	all, err := s.repo.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	out := all[:0]
	for _, r := range all {
		if r.Status == StatusRascunho && r.AuthorID != userID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// SignedURL emite o link temporário do arquivo do laudo e audita o acesso.
func (s *Service) SignedURL(ctx context.Context, userID, reportID uuid.UUID) (string, error) {
	r, err := s.repo.GetByID(ctx, reportID)
	if err != nil {
		return "", err
	}

	party, err := s.isParty(ctx, userID, r.CaseRequestID)
	if err != nil {
		return "", err
	}
	if !party {
		return "", ErrForbidden
	}
	if r.FilePath == nil {
		return "", validationErr("o laudo não tem arquivo anexado")
	}

	url, err := s.store.PresignGet(*r.FilePath, s.urlTTL)
	if err != nil {
		return "", err
	}

	s.recordAudit(ctx, userID, "report_downloaded", reportID)
	return url, nil
}

// PreLaudoInput é o parecer textual do especialista.
type PreLaudoInput struct {
	Title   string
	Content string
	Final   bool
}

// CreatePreLaudo registra o parecer do especialista designado na
// solicitação. Final=false mantém em rascunho, invisível às outras partes.
func (s *Service) CreatePreLaudo(ctx context.Context, authorID, requestID uuid.UUID, input PreLaudoInput) (Report, error) {
	_, medico, especialista, err := s.repo.RequestParties(ctx, requestID)
	if err != nil {
		return Report{}, err
	}
	if especialista == nil || *especialista != authorID {
		return Report{}, ErrForbidden
	}
	if input.Title == "" {
		return Report{}, validationErr("título é obrigatório")
	}
	if input.Content == "" {
		return Report{}, validationErr("conteúdo é obrigatório")
	}

	status := StatusRascunho
	if input.Final {
		status = StatusConcluido
	}

	created, err := s.repo.Insert(ctx, Report{
		CaseRequestID: requestID,
		AuthorID:      authorID,
		Title:         input.Title,
		Type:          TypePreLaudo,
		Status:        status,
		Content:       &input.Content,
	})
	if err != nil {
		return Report{}, err
	}

	s.recordAudit(ctx, authorID, "pre_laudo_created", created.ID)
	if input.Final && medico != nil && s.notif != nil {
		link := "/solicitacoes/" + requestID.String()
		if err := s.notif.Send(ctx, *medico, "Pré-laudo disponível",
			"O especialista concluiu o parecer preliminar.", "report", &link); err != nil {
			log.Warn().Err(err).Msg("report notificação falhou")
		}
	}
	return created, nil
}

// UpdatePreLaudo edita um parecer ainda em rascunho.
func (s *Service) UpdatePreLaudo(ctx context.Context, authorID, reportID uuid.UUID, input PreLaudoInput) (Report, error) {
	r, err := s.repo.GetByID(ctx, reportID)
	if err != nil {
		return Report{}, err
	}
	if r.AuthorID != authorID || r.Type != TypePreLaudo {
		return Report{}, ErrForbidden
	}
	if r.Status != StatusRascunho {
		return Report{}, validationErr("parecer concluído não aceita edição")
	}
	if input.Title == "" || input.Content == "" {
		return Report{}, validationErr("título e conteúdo são obrigatórios")
	}

	status := StatusRascunho
	if input.Final {
		status = StatusConcluido
	}

	updated, err := s.repo.Update(ctx, reportID, input.Title, &input.Content, status)
	if err != nil {
		return Report{}, err
	}

	if input.Final && s.notif != nil {
		_, medico, _, err := s.repo.RequestParties(ctx, r.CaseRequestID)
		if err == nil && medico != nil {
			link := "/solicitacoes/" + r.CaseRequestID.String()
			if err := s.notif.Send(ctx, *medico, "Pré-laudo disponível",
				"O especialista concluiu o parecer preliminar.", "report", &link); err != nil {
				log.Warn().Err(err).Msg("report notificação falhou")
			}
		}
	}
	return updated, nil
}

func (s *Service) recordAudit(ctx context.Context, userID uuid.UUID, action string, reportID uuid.UUID) {
	if s.audit == nil {
		return
	}
	id := reportID
	if err := s.audit.Record(ctx, userID, action, "report", &id, nil); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("report auditoria falhou")
	}
}
