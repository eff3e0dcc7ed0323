package document

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/provamed/api/internal/storage"
)

type memRepo struct {
	docs     map[uuid.UUID]*Document
	versions map[uuid.UUID][]Version
	access   map[uuid.UUID]map[uuid.UUID]bool // caseID -> userID -> ok
}

func newMemRepo() *memRepo {
	return &memRepo{
		docs:     map[uuid.UUID]*Document{},
		versions: map[uuid.UUID][]Version{},
		access:   map[uuid.UUID]map[uuid.UUID]bool{},
	}
}

func (m *memRepo) allow(caseID, userID uuid.UUID) {
	if m.access[caseID] == nil {
		m.access[caseID] = map[uuid.UUID]bool{}
	}
	m.access[caseID][userID] = true
}

func (m *memRepo) GetByID(ctx context.Context, id uuid.UUID) (Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return Document{}, errNotFound
	}
	return *d, nil
}

func (m *memRepo) ListByCase(ctx context.Context, caseID uuid.UUID) ([]Document, error) {
	var out []Document
	for _, d := range m.docs {
		if d.CaseID == caseID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memRepo) Insert(ctx context.Context, d Document) (Document, error) {
	d.ID = uuid.New()
	d.Version = 1
	d.CreatedAt = time.Now()
	m.docs[d.ID] = &d
	return d, nil
}

func (m *memRepo) ReplaceWithVersion(ctx context.Context, id uuid.UUID, filePath string, fileSize int64, fileType string, uploadedBy uuid.UUID) (Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return Document{}, errNotFound
	}
	m.versions[id] = append(m.versions[id], Version{
		ID: uuid.New(), DocumentID: id, Version: d.Version,
		FilePath: d.FilePath, FileSize: d.FileSize, UploadedBy: d.UploadedBy,
	})
	d.FilePath = filePath
	d.FileSize = fileSize
	d.FileType = fileType
	d.UploadedBy = uploadedBy
	d.Version++
	return *d, nil
}

func (m *memRepo) ListVersions(ctx context.Context, documentID uuid.UUID) ([]Version, error) {
	return m.versions[documentID], nil
}

func (m *memRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.docs[id]; !ok {
		return errNotFound
	}
	delete(m.docs, id)
	delete(m.versions, id)
	return nil
}

func (m *memRepo) CanAccessCase(ctx context.Context, userID, caseID uuid.UUID) (bool, error) {
	return m.access[caseID][userID], nil
}

type memStorage struct {
	uploads    []string
	lastExpiry time.Duration
}

func (m *memStorage) Upload(ctx context.Context, input storage.UploadInput) (*storage.UploadResult, error) {
	m.uploads = append(m.uploads, input.Key)
	return &storage.UploadResult{URL: "https://bucket/" + input.Key}, nil
}

func (m *memStorage) PresignGet(key string, expiry time.Duration) (string, error) {
	m.lastExpiry = expiry
	return "https://bucket/" + key + "?X-Amz-Signature=abc", nil
}

type memAuditor struct {
	actions []string
}

func (m *memAuditor) Record(ctx context.Context, userID uuid.UUID, action, resourceType string, resourceID *uuid.UUID, details map[string]any) error {
	m.actions = append(m.actions, action)
	return nil
}

func setup() (*Service, *memRepo, *memStorage, *memAuditor, uuid.UUID, uuid.UUID) {
	repo := newMemRepo()
	store := &memStorage{}
	rec := &memAuditor{}
	svc := NewService(repo, store, rec, 0)
	svc.now = func() time.Time { return time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC) }

	userID := uuid.New()
	caseID := uuid.New()
	repo.allow(caseID, userID)
	return svc, repo, store, rec, userID, caseID
}

func TestUploadAndVersioning(t *testing.T) {
	svc, _, store, _, userID, caseID := setup()
	ctx := context.Background()

	doc, err := svc.Upload(ctx, userID, caseID, UploadInput{
		FileName:    "exame.pdf",
		ContentType: "application/pdf",
		Content:     []byte("v1"),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if doc.Version != 1 {
		t.Fatalf("version = %d, want 1", doc.Version)
	}

	updated, err := svc.UploadVersion(ctx, userID, doc.ID, UploadInput{
		FileName:    "exame.pdf",
		ContentType: "application/pdf",
		Content:     []byte("v2 maior"),
	})
	if err != nil {
		t.Fatalf("UploadVersion: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("version = %d, want 2", updated.Version)
	}

	versions, err := svc.ListVersions(ctx, userID, doc.ID)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 1 || versions[0].Version != 1 {
		t.Fatalf("versões = %+v, want a v1 preservada", versions)
	}
	if versions[0].FilePath == updated.FilePath {
		t.Fatal("a versão antiga deveria apontar para a chave antiga")
	}
	if len(store.uploads) != 2 {
		t.Fatalf("uploads = %d, want 2", len(store.uploads))
	}
}

func TestUploadForbidden(t *testing.T) {
	svc, _, _, _, _, caseID := setup()
	_, err := svc.Upload(context.Background(), uuid.New(), caseID, UploadInput{
		FileName: "x.pdf", Content: []byte("x"),
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestSignedURLAuditsDownload(t *testing.T) {
	svc, _, _, rec, userID, caseID := setup()
	ctx := context.Background()

	doc, err := svc.Upload(ctx, userID, caseID, UploadInput{
		FileName: "laudo.pdf", ContentType: "application/pdf", Content: []byte("x"),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	url, err := svc.SignedURL(ctx, userID, doc.ID)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if !strings.Contains(url, "X-Amz-Signature") {
		t.Fatalf("url = %s, want signed", url)
	}

	found := false
	for _, a := range rec.actions {
		if a == "document_downloaded" {
			found = true
		}
	}
	if !found {
		t.Fatal("download deveria ter sido auditado")
	}
}

func TestSignedURLUsesConfiguredTTL(t *testing.T) {
	repo := newMemRepo()
	store := &memStorage{}
	svc := NewService(repo, store, nil, 15*time.Minute)
	svc.now = func() time.Time { return time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC) }

	userID := uuid.New()
	caseID := uuid.New()
	repo.allow(caseID, userID)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, userID, caseID, UploadInput{
		FileName: "exame.pdf", ContentType: "application/pdf", Content: []byte("x"),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if _, err := svc.SignedURL(ctx, userID, doc.ID); err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if store.lastExpiry != 15*time.Minute {
		t.Fatalf("expiry = %v, want 15m", store.lastExpiry)
	}

	// zero cai no default
	svc = NewService(repo, store, nil, 0)
	svc.now = func() time.Time { return time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC) }
	if _, err := svc.SignedURL(ctx, userID, doc.ID); err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if store.lastExpiry != time.Hour {
		t.Fatalf("expiry = %v, want 1h", store.lastExpiry)
	}
}

func TestDelete(t *testing.T) {
	svc, repo, _, _, userID, caseID := setup()
	ctx := context.Background()

	doc, err := svc.Upload(ctx, userID, caseID, UploadInput{
		FileName: "x.pdf", Content: []byte("x"),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	estranho := uuid.New()
	if err := svc.Delete(ctx, estranho, doc.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}

	if err := svc.Delete(ctx, userID, doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := repo.docs[doc.ID]; ok {
		t.Fatal("documento deveria ter sido removido")
	}
}
