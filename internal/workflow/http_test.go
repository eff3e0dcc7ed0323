package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	httpmiddleware "github.com/provamed/api/internal/http/middleware"
)

func newTestHandler(t *testing.T) (*Handler, *fixture) {
	t.Helper()
	f := newFixture(t)
	return NewHandler(f.svc), f
}

func withActor(req *http.Request, actor Actor) *http.Request {
	ctx := req.Context()
	ctx = context.WithValue(ctx, httpmiddleware.ContextKeySubject, actor.ID.String())
	ctx = context.WithValue(ctx, httpmiddleware.ContextKeyRole, string(actor.Role))
	return req.WithContext(ctx)
}

func serve(handler *Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	r.ServeHTTP(rec, req)
	return rec
}

func jsonBody(body any) *bytes.Buffer {
	if body == nil {
		return bytes.NewBuffer(nil)
	}
	b, _ := json.Marshal(body)
	return bytes.NewBuffer(b)
}

func TestWorkflowHandlers(t *testing.T) {
	handler, f := newTestHandler(t)
	req := f.createRequest(t)

	accepted := func() uuid.UUID {
		id := f.createRequestOnCase(t, uuid.New())
		if err := f.svc.AcceptAndSchedule(context.Background(), f.medico, id, AcceptInput{
			ScheduledAt:        time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC),
			ReportForecastDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		}); err != nil {
			t.Fatalf("aceitar: %v", err)
		}
		return id
	}

	tests := []struct {
		name   string
		method string
		path   func() string
		actor  func() Actor
		body   any
		status int
	}{
		{"list", http.MethodGet, func() string { return "/solicitacoes/" }, func() Actor { return f.advogado }, nil, http.StatusOK},
		{"get", http.MethodGet, func() string { return "/solicitacoes/" + req.ID.String() }, func() Actor { return f.advogado }, nil, http.StatusOK},
		{"get id invalido", http.MethodGet, func() string { return "/solicitacoes/nao-uuid" }, func() Actor { return f.advogado }, nil, http.StatusBadRequest},
		{"get inexistente", http.MethodGet, func() string { return "/solicitacoes/" + uuid.NewString() }, func() Actor { return f.advogado }, nil, http.StatusNotFound},
		{"aceitar", http.MethodPost, func() string { return "/solicitacoes/" + f.createRequestOnCase(t, uuid.New()).String() + "/aceitar" },
			func() Actor { return f.medico },
			map[string]any{"scheduled_at": "2026-05-20T09:00:00Z", "report_forecast_date": "2026-06-01T00:00:00Z"},
			http.StatusOK},
		{"aceitar sem papel de medico", http.MethodPost, func() string { return "/solicitacoes/" + req.ID.String() + "/aceitar" },
			func() Actor { return f.advogado },
			map[string]any{"scheduled_at": "2026-05-20T09:00:00Z", "report_forecast_date": "2026-06-01T00:00:00Z"},
			http.StatusForbidden},
		{"aceitar ja aceita", http.MethodPost, func() string { return "/solicitacoes/" + accepted().String() + "/aceitar" },
			func() Actor { return f.medico },
			map[string]any{"scheduled_at": "2026-05-20T09:00:00Z", "report_forecast_date": "2026-06-01T00:00:00Z"},
			http.StatusForbidden},
		{"solicitar ajuste", http.MethodPost, func() string { return "/solicitacoes/" + accepted().String() + "/solicitar-ajuste" },
			func() Actor { return f.advogado },
			map[string]any{"message": "trocar data"},
			http.StatusOK},
		{"solicitar ajuste sem mensagem", http.MethodPost, func() string { return "/solicitacoes/" + accepted().String() + "/solicitar-ajuste" },
			func() Actor { return f.advogado },
			map[string]any{},
			http.StatusBadRequest},
		{"propor cancelamento", http.MethodPost, func() string { return "/solicitacoes/" + accepted().String() + "/cancelamento" },
			func() Actor { return f.advogado },
			map[string]any{"reason": "acordo"},
			http.StatusOK},
		{"excluir pendente", http.MethodDelete, func() string { return "/solicitacoes/" + f.createRequestOnCase(t, uuid.New()).String() }, func() Actor { return f.advogado }, nil, http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			httpReq := httptest.NewRequest(tc.method, tc.path(), jsonBody(tc.body))
			httpReq.Header.Set("Content-Type", "application/json")
			httpReq = withActor(httpReq, tc.actor())

			rec := serve(handler, httpReq)
			if rec.Code != tc.status {
				t.Fatalf("%s %s: status = %d, want %d (body %s)", tc.method, tc.path(), rec.Code, tc.status, rec.Body.String())
			}
		})
	}
}

func TestWorkflowHandlerAuth(t *testing.T) {
	handler, _ := newTestHandler(t)

	httpReq := httptest.NewRequest(http.MethodGet, "/solicitacoes/", nil)
	rec := serve(handler, httpReq)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("sem contexto: status = %d, want 401", rec.Code)
	}
}

func TestCreateHandlerMultipart(t *testing.T) {
	handler, f := newTestHandler(t)
	caseID := uuid.New()
	f.repo.caseOwners[caseID] = f.advogado.ID

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("case_id", caseID.String())
	_ = mw.WriteField("medico_id", f.medico.ID.String())
	_ = mw.WriteField("type", "pericia_ortopedica")
	_ = mw.WriteField("deadline", "2026-07-01T12:00:00Z")
	for _, cat := range []string{CategoryIdentificacao, CategoryComprovanteResidencia} {
		part, err := mw.CreateFormFile(cat, cat+".pdf")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		if _, err := part.Write([]byte("conteudo")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	mw.Close()

	httpReq := httptest.NewRequest(http.MethodPost, "/solicitacoes/", &buf)
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq = withActor(httpReq, f.advogado)

	rec := serve(handler, httpReq)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Data struct {
			Request Request `json:"request"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Request.Status != StatusPendente {
		t.Fatalf("status = %s, want pendente", envelope.Data.Request.Status)
	}
	if len(f.docs.uploads) != 2 {
		t.Fatalf("uploads = %d, want 2", len(f.docs.uploads))
	}
}

func TestDeliverReportHandler(t *testing.T) {
	handler, f := newTestHandler(t)
	id := f.createRequest(t).ID
	if err := f.svc.AcceptAndSchedule(context.Background(), f.medico, id, AcceptInput{
		ScheduledAt:        time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC),
		ReportForecastDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("aceitar: %v", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("title", "Laudo pericial")
	part, _ := mw.CreateFormFile("file", "laudo.pdf")
	_, _ = part.Write([]byte("laudo"))
	mw.Close()

	httpReq := httptest.NewRequest(http.MethodPost, "/solicitacoes/"+id.String()+"/laudo", &buf)
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq = withActor(httpReq, f.medico)

	rec := serve(handler, httpReq)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}

	got, _ := f.repo.GetRequest(context.Background(), id)
	if got.Status != StatusConcluida {
		t.Fatalf("status = %s, want concluida", got.Status)
	}
}
