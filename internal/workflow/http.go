package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	httpmiddleware "github.com/provamed/api/internal/http/middleware"
)

const maxUploadBytes = 32 << 20

// Handler expõe as rotas de solicitações de prova técnica.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/solicitacoes", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Patch("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
		r.Post("/{id}/aceitar", h.handleAccept)
		r.Post("/{id}/solicitar-ajuste", h.handleRequestAdjustment)
		r.Post("/{id}/liberar-ajuste", h.handleAllowEdit)
		r.Post("/{id}/reenviar", h.handleResubmit)
		r.Post("/{id}/cancelamento", h.handleProposeCancel)
		r.Post("/{id}/cancelamento/confirmar", h.handleConfirmCancel)
		r.Post("/{id}/cancelamento/reverter", h.handleRevertCancel)
		r.Post("/{id}/especialista", h.handleAssignEspecialista)
		r.Post("/{id}/laudo", h.handleDeliverReport)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := actorFromContext(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	requests, err := h.service.ListRequests(ctx, actor)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"solicitacoes": requests})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := actorFromContext(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	req, err := h.service.GetRequest(ctx, actor, id)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"solicitacao": req})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	actor, err := actorFromContext(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "multipart inválido", nil)
		return
	}

	caseID, err := uuid.Parse(r.FormValue("case_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "case_id inválido", nil)
		return
	}
	medicoID, err := uuid.Parse(r.FormValue("medico_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "medico_id inválido", nil)
		return
	}

	input := CreateRequestInput{
		CaseID:   caseID,
		MedicoID: medicoID,
		Type:     r.FormValue("type"),
	}
	if desc := r.FormValue("description"); desc != "" {
		input.Description = &desc
	}
	if raw := r.FormValue("deadline"); raw != "" {
		deadline, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "deadline inválido", nil)
			return
		}
		input.Deadline = &deadline
	}

	input.Files, err = collectFiles(r.MultipartForm)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "falha lendo anexos", nil)
		return
	}

	result, err := h.service.CreateRequest(ctx, actor, input)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "POST /solicitacoes", actor.ID, start)
	writeJSON(w, http.StatusCreated, result)
}

func collectFiles(form *multipart.Form) ([]FileUpload, error) {
	if form == nil {
		return nil, nil
	}
	var files []FileUpload
	for category := range validCategories {
		for _, header := range form.File[category] {
			f, err := header.Open()
			if err != nil {
				return nil, err
			}
			content, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, err
			}
			files = append(files, FileUpload{
				Category:    category,
				FileName:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Content:     content,
			})
		}
	}
	return files, nil
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	actor, err := actorFromContext(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	var payload struct {
		ScheduledAt        time.Time `json:"scheduled_at"`
		ReportForecastDate time.Time `json:"report_forecast_date"`
		Notes              *string   `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "payload inválido", nil)
		return
	}

	if err := h.service.AcceptAndSchedule(ctx, actor, id, AcceptInput{
		ScheduledAt:        payload.ScheduledAt,
		ReportForecastDate: payload.ReportForecastDate,
		Notes:              payload.Notes,
	}); err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "POST /solicitacoes/aceitar", actor.ID, start)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	h.applyUpdate(w, r, false)
}

func (h *Handler) handleResubmit(w http.ResponseWriter, r *http.Request) {
	h.applyUpdate(w, r, true)
}

func (h *Handler) applyUpdate(w http.ResponseWriter, r *http.Request, resubmit bool) {
	ctx := r.Context()
	actor, err := actorFromContext(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	var payload struct {
		MedicoID    uuid.UUID  `json:"medico_id"`
		Type        string     `json:"type"`
		Description *string    `json:"description"`
		Deadline    *time.Time `json:"deadline"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "payload inválido", nil)
		return
	}

	input := UpdateInput{
		MedicoID:    payload.MedicoID,
		Type:        payload.Type,
		Description: payload.Description,
		Deadline:    payload.Deadline,
	}

	if resubmit {
		err = h.service.ResubmitRequest(ctx, actor, id, input)
	} else {
		err = h.service.UpdateRequest(ctx, actor, id, input)
	}
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := actorFromContext(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	if err := h.service.DeleteRequest(ctx, actor, id); err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleRequestAdjustment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := actorFromContext(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "payload inválido", nil)
		return
	}

	if err := h.service.RequestAdjustment(ctx, actor, id, payload.Message); err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleAllowEdit(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, func(ctx context.Context, actor Actor, id uuid.UUID) error {
		return h.service.AllowEdit(ctx, actor, id)
	})
}

func (h *Handler) handleConfirmCancel(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, func(ctx context.Context, actor Actor, id uuid.UUID) error {
		return h.service.ConfirmCancellation(ctx, actor, id)
	})
}

func (h *Handler) handleRevertCancel(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, func(ctx context.Context, actor Actor, id uuid.UUID) error {
		return h.service.RevertCancellation(ctx, actor, id)
	})
}

func (h *Handler) simpleTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, Actor, uuid.UUID) error) {
	ctx := r.Context()
	actor, err := actorFromContext(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	if err := fn(ctx, actor, id); err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleProposeCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := actorFromContext(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	var payload struct {
		Reason string `json:"reason"`
	}
	// corpo vazio é aceito: motivo é opcional
	_ = json.NewDecoder(r.Body).Decode(&payload)

	if err := h.service.ProposeCancellation(ctx, actor, id, payload.Reason); err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleAssignEspecialista(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := actorFromContext(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	var payload struct {
		EspecialistaID *uuid.UUID `json:"especialista_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "payload inválido", nil)
		return
	}

	if err := h.service.AssignEspecialista(ctx, actor, id, payload.EspecialistaID); err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleDeliverReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	actor, err := actorFromContext(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "multipart inválido", nil)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "arquivo do laudo é obrigatório", nil)
		return
	}
	content, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "falha lendo arquivo", nil)
		return
	}

	reportID, err := h.service.DeliverReport(ctx, actor, id, DeliverInput{
		Title:       r.FormValue("title"),
		Type:        r.FormValue("type"),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "POST /solicitacoes/laudo", actor.ID, start)
	writeJSON(w, http.StatusCreated, map[string]any{"report_id": reportID})
}

func actorFromContext(ctx context.Context) (Actor, error) {
	id, err := uuid.Parse(httpmiddleware.GetSubject(ctx))
	if err != nil {
		return Actor{}, err
	}
	role := Role(httpmiddleware.GetRole(ctx))
	if role == "" {
		return Actor{}, errors.New("papel ausente")
	}
	return Actor{ID: id, Role: role}, nil
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "sem acesso", nil)
	case errors.Is(err, errNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "registro não encontrado", nil)
	case errors.Is(err, ErrConflict):
		writeError(w, http.StatusConflict, "CONFLICT", "a solicitação mudou de estado, recarregue", nil)
	case errors.Is(err, ErrValidation):
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	default:
		writeInternalError(w, err)
	}
}

func writeInternalError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("workflow handler error")
	writeError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
}

func logRequest(ctx context.Context, label string, userID uuid.UUID, start time.Time) {
	logger := log.Ctx(ctx)
	if logger == nil {
		logger = &log.Logger
	}
	reqID := chimiddleware.GetReqID(ctx)
	logger.Info().Str("request_id", reqID).Str("user_id", userID.String()).Str("label", label).Dur("duration", time.Since(start)).Msg("workflow_request")
}

type successEnvelope struct {
	Data  any `json:"data"`
	Error any `json:"error"`
}

type errorEnvelope struct {
	Data  any            `json:"data"`
	Error *errorResponse `json:"error"`
}

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(successEnvelope{Data: payload, Error: nil})
}

func writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Data: nil, Error: &errorResponse{Code: code, Message: message, Details: details}})
}
