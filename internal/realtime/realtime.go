package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	httpmiddleware "github.com/provamed/api/internal/http/middleware"
)

// Event descreve uma invalidação publicada para os clientes.
// O canal serve apenas para refresh de tela; nenhuma decisão de
// autorização ou de workflow depende dele.
type Event struct {
	Kind       string    `json:"kind"`
	ResourceID string    `json:"resource_id,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher envia eventos de invalidação via redis pub/sub.
type Publisher struct {
	redis *redis.Client
}

func NewPublisher(redisClient *redis.Client) *Publisher {
	return &Publisher{redis: redisClient}
}

func caseChannel(caseID uuid.UUID) string {
	return fmt.Sprintf("rt:case:%s", caseID)
}

func userChannel(userID uuid.UUID) string {
	return fmt.Sprintf("rt:user:%s", userID)
}

// PublishCase notifica assinantes de um caso. Falhas são apenas logadas.
func (p *Publisher) PublishCase(ctx context.Context, caseID uuid.UUID, kind, resourceID string) {
	if p == nil || p.redis == nil {
		return
	}
	p.publish(ctx, caseChannel(caseID), kind, resourceID)
}

// PublishUser notifica o canal pessoal de um usuário.
func (p *Publisher) PublishUser(ctx context.Context, userID uuid.UUID, kind, resourceID string) {
	if p == nil || p.redis == nil {
		return
	}
	p.publish(ctx, userChannel(userID), kind, resourceID)
}

func (p *Publisher) publish(ctx context.Context, channel, kind, resourceID string) {
	payload, err := json.Marshal(Event{Kind: kind, ResourceID: resourceID, At: time.Now().UTC()})
	if err != nil {
		return
	}
	if err := p.redis.Publish(ctx, channel, payload).Err(); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("realtime publish falhou")
	}
}

// Handler expõe os canais como server-sent events.
type Handler struct {
	redis *redis.Client
}

func NewHandler(redisClient *redis.Client) *Handler {
	return &Handler{redis: redisClient}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/rt", func(r chi.Router) {
		r.Get("/cases/{id}", h.handleCaseStream)
		r.Get("/me", h.handleUserStream)
	})
}

func (h *Handler) handleCaseStream(w http.ResponseWriter, r *http.Request) {
	caseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "caso inválido", http.StatusBadRequest)
		return
	}
	h.stream(w, r, caseChannel(caseID))
}

func (h *Handler) handleUserStream(w http.ResponseWriter, r *http.Request) {
	subject, err := uuid.Parse(httpmiddleware.GetSubject(r.Context()))
	if err != nil {
		http.Error(w, "identificação inválida", http.StatusUnauthorized)
		return
	}
	h.stream(w, r, userChannel(subject))
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request, channel string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming não suportado", http.StatusInternalServerError)
		return
	}

	sub := h.redis.Subscribe(r.Context(), channel)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	ch := sub.Channel()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg, open := <-ch:
			if !open {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", msg.Payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
