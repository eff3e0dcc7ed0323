package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/provamed/api/internal/storage"
)

type requestParties struct {
	advogado     uuid.UUID
	medico       *uuid.UUID
	especialista *uuid.UUID
}

type memRepo struct {
	reports map[uuid.UUID]*Report
	parties map[uuid.UUID]requestParties
}

func newMemRepo() *memRepo {
	return &memRepo{reports: map[uuid.UUID]*Report{}, parties: map[uuid.UUID]requestParties{}}
}

func (m *memRepo) GetByID(ctx context.Context, id uuid.UUID) (Report, error) {
	r, ok := m.reports[id]
	if !ok {
		return Report{}, errNotFound
	}
	return *r, nil
}

func (m *memRepo) ListByAuthor(ctx context.Context, authorID uuid.UUID) ([]Report, error) {
	var out []Report
	for _, r := range m.reports {
		if r.AuthorID == authorID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRepo) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]Report, error) {
	var out []Report
	for _, r := range m.reports {
		if r.CaseRequestID == requestID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRepo) ListForAdvogado(ctx context.Context, advogadoID uuid.UUID) ([]Report, error) {
	var out []Report
	for _, r := range m.reports {
		p, ok := m.parties[r.CaseRequestID]
		if ok && p.advogado == advogadoID && r.Status == StatusConcluido {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRepo) Insert(ctx context.Context, r Report) (Report, error) {
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	m.reports[r.ID] = &r
	return r, nil
}

func (m *memRepo) Update(ctx context.Context, id uuid.UUID, title string, content *string, status string) (Report, error) {
	r, ok := m.reports[id]
	if !ok {
		return Report{}, errNotFound
	}
	r.Title = title
	r.Content = content
	r.Status = status
	return *r, nil
}

func (m *memRepo) RequestParties(ctx context.Context, requestID uuid.UUID) (uuid.UUID, *uuid.UUID, *uuid.UUID, error) {
	p, ok := m.parties[requestID]
	if !ok {
		return uuid.Nil, nil, nil, errNotFound
	}
	return p.advogado, p.medico, p.especialista, nil
}

type memStorage struct{}

func (m *memStorage) Upload(ctx context.Context, input storage.UploadInput) (*storage.UploadResult, error) {
	return &storage.UploadResult{URL: "https://bucket/" + input.Key}, nil
}

func (m *memStorage) PresignGet(key string, expiry time.Duration) (string, error) {
	return "https://bucket/" + key + "?signed", nil
}

type memNotifier struct {
	sent []uuid.UUID
}

func (m *memNotifier) Send(ctx context.Context, userID uuid.UUID, title, message, typ string, link *string) error {
	m.sent = append(m.sent, userID)
	return nil
}

func setup() (*Service, *memRepo, *memNotifier, uuid.UUID, requestParties) {
	repo := newMemRepo()
	notif := &memNotifier{}
	svc := NewService(repo, &memStorage{}, notif, nil, 0)

	medico := uuid.New()
	especialista := uuid.New()
	parties := requestParties{advogado: uuid.New(), medico: &medico, especialista: &especialista}
	requestID := uuid.New()
	repo.parties[requestID] = parties
	return svc, repo, notif, requestID, parties
}

func TestCreatePreLaudo(t *testing.T) {
	svc, _, notif, requestID, parties := setup()
	ctx := context.Background()

	t.Run("apenas o especialista designado", func(t *testing.T) {
		_, err := svc.CreatePreLaudo(ctx, uuid.New(), requestID, PreLaudoInput{Title: "Parecer", Content: "..."})
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("err = %v, want ErrForbidden", err)
		}
	})

	t.Run("rascunho nao notifica", func(t *testing.T) {
		r, err := svc.CreatePreLaudo(ctx, *parties.especialista, requestID, PreLaudoInput{
			Title: "Parecer ortopédico", Content: "análise preliminar",
		})
		if err != nil {
			t.Fatalf("CreatePreLaudo: %v", err)
		}
		if r.Status != StatusRascunho || r.Type != TypePreLaudo {
			t.Fatalf("laudo = %+v, want rascunho/pre_laudo", r)
		}
		if len(notif.sent) != 0 {
			t.Fatal("rascunho não deveria notificar")
		}
	})

	t.Run("final notifica o medico", func(t *testing.T) {
		_, err := svc.CreatePreLaudo(ctx, *parties.especialista, requestID, PreLaudoInput{
			Title: "Parecer final", Content: "conclusão", Final: true,
		})
		if err != nil {
			t.Fatalf("CreatePreLaudo: %v", err)
		}
		if len(notif.sent) != 1 || notif.sent[0] != *parties.medico {
			t.Fatal("médico deveria ter sido notificado")
		}
	})
}

func TestDraftVisibility(t *testing.T) {
	svc, _, _, requestID, parties := setup()
	ctx := context.Background()

	if _, err := svc.CreatePreLaudo(ctx, *parties.especialista, requestID, PreLaudoInput{
		Title: "Rascunho", Content: "wip",
	}); err != nil {
		t.Fatalf("CreatePreLaudo: %v", err)
	}

	// o médico não enxerga o rascunho do especialista
	list, err := svc.ListByRequest(ctx, *parties.medico, requestID)
	if err != nil {
		t.Fatalf("ListByRequest: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("médico enxergou %d laudos, want 0", len(list))
	}

	// o autor enxerga
	list, err = svc.ListByRequest(ctx, *parties.especialista, requestID)
	if err != nil {
		t.Fatalf("ListByRequest: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("autor enxergou %d laudos, want 1", len(list))
	}
}

func TestUpdatePreLaudo(t *testing.T) {
	svc, _, _, requestID, parties := setup()
	ctx := context.Background()

	r, err := svc.CreatePreLaudo(ctx, *parties.especialista, requestID, PreLaudoInput{
		Title: "Parecer", Content: "v1",
	})
	if err != nil {
		t.Fatalf("CreatePreLaudo: %v", err)
	}

	updated, err := svc.UpdatePreLaudo(ctx, *parties.especialista, r.ID, PreLaudoInput{
		Title: "Parecer", Content: "v2", Final: true,
	})
	if err != nil {
		t.Fatalf("UpdatePreLaudo: %v", err)
	}
	if updated.Status != StatusConcluido {
		t.Fatalf("status = %s, want concluido", updated.Status)
	}

	// concluído não edita mais
	if _, err := svc.UpdatePreLaudo(ctx, *parties.especialista, r.ID, PreLaudoInput{
		Title: "Parecer", Content: "v3",
	}); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestSignedURLPartyOnly(t *testing.T) {
	svc, repo, _, requestID, parties := setup()
	ctx := context.Background()

	path := "req/laudo.pdf"
	laudo, _ := repo.Insert(ctx, Report{
		CaseRequestID: requestID,
		AuthorID:      *parties.medico,
		Title:         "Laudo",
		Type:          TypeLaudo,
		Status:        StatusConcluido,
		FilePath:      &path,
	})

	if _, err := svc.SignedURL(ctx, uuid.New(), laudo.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}

	url, err := svc.SignedURL(ctx, parties.advogado, laudo.ID)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if url == "" {
		t.Fatal("url vazia")
	}
}
