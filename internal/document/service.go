package document

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

// defaultSignedURLTTL é a validade do link de download quando nenhuma for
// configurada; depois disso o cliente pede outro.
const defaultSignedURLTTL = time.Hour

type repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (Document, error)
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]Document, error)
	Insert(ctx context.Context, d Document) (Document, error)
	ReplaceWithVersion(ctx context.Context, id uuid.UUID, filePath string, fileSize int64, fileType string, uploadedBy uuid.UUID) (Document, error)
	ListVersions(ctx context.Context, documentID uuid.UUID) ([]Version, error)
	Delete(ctx context.Context, id uuid.UUID) error
	CanAccessCase(ctx context.Context, userID, caseID uuid.UUID) (bool, error)
}

type auditor interface {
	Record(ctx context.Context, userID uuid.UUID, action, resourceType string, resourceID *uuid.UUID, details map[string]any) error
}

// Service controla anexos do caso: upload, versionamento e links assinados
// de leitura. O bucket nunca é exposto diretamente.
type Service struct {
	repo   repository
	store  storage.Client
	audit  auditor
	urlTTL time.Duration
	now    func() time.Time
}

func NewService(repo repository, store storage.Client, rec auditor, urlTTL time.Duration) *Service {
	if urlTTL <= 0 {
		urlTTL = defaultSignedURLTTL
	}
	return &Service{repo: repo, store: store, audit: rec, urlTTL: urlTTL, now: time.Now}
}

func (s *Service) checkAccess(ctx context.Context, userID, caseID uuid.UUID) error {
	ok, err := s.repo.CanAccessCase(ctx, userID, caseID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func (s *Service) List(ctx context.Context, userID, caseID uuid.UUID) ([]Document, error) {
	if err := s.checkAccess(ctx, userID, caseID); err != nil {
		return nil, err
	}
	return s.repo.ListByCase(ctx, caseID)
}

// UploadInput descreve um anexo novo ou uma nova versão.
type UploadInput struct {
	FileName    string
	ContentType string
	Description *string
	Content     []byte
}

func (s *Service) Upload(ctx context.Context, userID, caseID uuid.UUID, input UploadInput) (Document, error) {
	if err := s.checkAccess(ctx, userID, caseID); err != nil {
		return Document{}, err
	}
	if input.FileName == "" || len(input.Content) == 0 {
		return Document{}, validationErr("arquivo é obrigatório")
	}

	key := fmt.Sprintf("%s/avulso_%d_%s", caseID, s.now().UnixMilli(), input.FileName)
	if _, err := s.store.Upload(ctx, storage.UploadInput{
		Key:         key,
		Body:        input.Content,
		ContentType: input.ContentType,
	}); err != nil {
		return Document{}, fmt.Errorf("upload: %w", err)
	}

	doc, err := s.repo.Insert(ctx, Document{
		CaseID:      caseID,
		FileName:    input.FileName,
		FilePath:    key,
		FileSize:    int64(len(input.Content)),
		FileType:    input.ContentType,
		Description: input.Description,
		UploadedBy:  userID,
	})
	if err != nil {
		return Document{}, err
	}

	s.recordAudit(ctx, userID, "document_uploaded", doc.ID, map[string]any{"case_id": caseID})
	return doc, nil
}

// UploadVersion troca o arquivo preservando a versão anterior.
func (s *Service) UploadVersion(ctx context.Context, userID, documentID uuid.UUID, input UploadInput) (Document, error) {
	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		return Document{}, err
	}
	if err := s.checkAccess(ctx, userID, doc.CaseID); err != nil {
		return Document{}, err
	}
	if input.FileName == "" || len(input.Content) == 0 {
		return Document{}, validationErr("arquivo é obrigatório")
	}

	key := fmt.Sprintf("%s/v%d_%d_%s", doc.CaseID, doc.Version+1, s.now().UnixMilli(), input.FileName)
	if _, err := s.store.Upload(ctx, storage.UploadInput{
		Key:         key,
		Body:        input.Content,
		ContentType: input.ContentType,
	}); err != nil {
		return Document{}, fmt.Errorf("upload: %w", err)
	}

	updated, err := s.repo.ReplaceWithVersion(ctx, documentID, key, int64(len(input.Content)), input.ContentType, userID)
	if err != nil {
		return Document{}, err
	}

	s.recordAudit(ctx, userID, "document_version_uploaded", documentID, map[string]any{"version": updated.Version})
	return updated, nil
}

func (s *Service) ListVersions(ctx context.Context, userID, documentID uuid.UUID) ([]Version, error) {
	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkAccess(ctx, userID, doc.CaseID); err != nil {
		return nil, err
	}
	return s.repo.ListVersions(ctx, documentID)
}

// SignedURL emite o link temporário de download e registra o acesso.
func (s *Service) SignedURL(ctx context.Context, userID, documentID uuid.UUID) (string, error) {
	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		return "", err
	}
	if err := s.checkAccess(ctx, userID, doc.CaseID); err != nil {
		return "", err
	}

	url, err := s.store.PresignGet(doc.FilePath, s.urlTTL)
	if err != nil {
		return "", err
	}

	s.recordAudit(ctx, userID, "document_downloaded", documentID, map[string]any{"file_name": doc.FileName})
	return url, nil
}

// Delete remove o registro; só quem subiu o arquivo ou o dono do caso.
func (s *Service) Delete(ctx context.Context, userID, documentID uuid.UUID) error {
	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.UploadedBy != userID {
		ok, err := s.repo.CanAccessCase(ctx, userID, doc.CaseID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrForbidden
		}
	}

	if err := s.repo.Delete(ctx, documentID); err != nil {
		return err
	}
	s.recordAudit(ctx, userID, "document_deleted", documentID, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, userID uuid.UUID, action string, documentID uuid.UUID, details map[string]any) {
	if s.audit == nil {
		return
	}
	id := documentID
	if err := s.audit.Record(ctx, userID, action, "document", &id, details); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("document auditoria falhou")
	}
}
