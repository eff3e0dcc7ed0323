package consultation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type memRepo struct {
	consultations map[uuid.UUID]*Consultation
	advogadoID    uuid.UUID
}

func (m *memRepo) GetByID(ctx context.Context, id uuid.UUID) (Consultation, error) {
	c, ok := m.consultations[id]
	if !ok {
		return Consultation{}, errNotFound
	}
	return *c, nil
}

func (m *memRepo) ListByMedico(ctx context.Context, medicoID uuid.UUID, from time.Time) ([]Consultation, error) {
	var out []Consultation
	for _, c := range m.consultations {
		if c.MedicoID == medicoID && !c.ScheduledAt.Before(from) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memRepo) SetStatus(ctx context.Context, id uuid.UUID, status string, notes *string) error {
	c, ok := m.consultations[id]
	if !ok {
		return errNotFound
	}
	c.Status = status
	if notes != nil {
		c.Notes = notes
	}
	return nil
}

func (m *memRepo) Reschedule(ctx context.Context, id uuid.UUID, scheduledAt time.Time) error {
	c, ok := m.consultations[id]
	if !ok || c.Status != StatusAgendada {
		return errNotFound
	}
	c.ScheduledAt = scheduledAt
	return nil
}

func (m *memRepo) AdvogadoForRequest(ctx context.Context, requestID uuid.UUID) (uuid.UUID, error) {
	return m.advogadoID, nil
}

type memNotifier struct {
	sent []uuid.UUID
}

func (m *memNotifier) Send(ctx context.Context, userID uuid.UUID, title, message, typ string, link *string) error {
	m.sent = append(m.sent, userID)
	return nil
}

func setup() (*Service, *memRepo, *memNotifier, uuid.UUID, uuid.UUID) {
	medicoID := uuid.New()
	id := uuid.New()
	repo := &memRepo{
		consultations: map[uuid.UUID]*Consultation{
			id: {
				ID:            id,
				CaseRequestID: uuid.New(),
				MedicoID:      medicoID,
				PatientName:   "Paciente",
				ScheduledAt:   time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC),
				Status:        StatusAgendada,
			},
		},
		advogadoID: uuid.New(),
	}
	notif := &memNotifier{}
	svc := NewService(repo, notif)
	svc.now = func() time.Time { return time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC) }
	return svc, repo, notif, medicoID, id
}

func TestMarkDone(t *testing.T) {
	svc, repo, _, medicoID, id := setup()
	ctx := context.Background()

	notes := "sem alterações relevantes"
	if err := svc.MarkDone(ctx, medicoID, id, &notes); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	if repo.consultations[id].Status != StatusRealizada {
		t.Fatalf("status = %s, want realizada", repo.consultations[id].Status)
	}
	if repo.consultations[id].Notes == nil || *repo.consultations[id].Notes != notes {
		t.Fatal("observações não gravadas")
	}

	// repetir não é permitido
	if err := svc.MarkDone(ctx, medicoID, id, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestMarkDoneForbidden(t *testing.T) {
	svc, _, _, _, id := setup()
	if err := svc.MarkDone(context.Background(), uuid.New(), id, nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestReschedule(t *testing.T) {
	svc, repo, notif, medicoID, id := setup()
	ctx := context.Background()

	novo := time.Date(2026, 5, 25, 14, 0, 0, 0, time.UTC)
	if err := svc.Reschedule(ctx, medicoID, id, novo); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if !repo.consultations[id].ScheduledAt.Equal(novo) {
		t.Fatalf("scheduled_at = %v, want %v", repo.consultations[id].ScheduledAt, novo)
	}
	if len(notif.sent) != 1 || notif.sent[0] != repo.advogadoID {
		t.Fatal("advogado deveria ter sido notificado da remarcação")
	}
}

func TestRescheduleRejectsPast(t *testing.T) {
	svc, _, _, medicoID, id := setup()
	err := svc.Reschedule(context.Background(), medicoID, id, time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
