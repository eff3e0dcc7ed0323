package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type memRepo struct {
	advogadoCalls int
}

func (m *memRepo) AdvogadoStats(ctx context.Context, userID uuid.UUID) (AdvogadoStats, error) {
	m.advogadoCalls++
	return AdvogadoStats{TotalCasos: 3, CasosAbertos: 2, SolicitacoesAtivas: 1, LaudosEntregues: 1}, nil
}

func (m *memRepo) MedicoStats(ctx context.Context, userID uuid.UUID) (MedicoStats, error) {
	return MedicoStats{SolicitacoesPendentes: 4}, nil
}

func (m *memRepo) EspecialistaStats(ctx context.Context, userID uuid.UUID) (EspecialistaStats, error) {
	return EspecialistaStats{Designacoes: 2}, nil
}

func TestStatsPerRole(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, nil)
	ctx := context.Background()
	userID := uuid.New()

	raw, err := svc.Stats(ctx, userID, "advogado")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	var adv AdvogadoStats
	if err := json.Unmarshal(raw, &adv); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if adv.TotalCasos != 3 {
		t.Fatalf("total_casos = %d, want 3", adv.TotalCasos)
	}

	raw, err = svc.Stats(ctx, userID, "medico_generalista")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	var med MedicoStats
	if err := json.Unmarshal(raw, &med); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if med.SolicitacoesPendentes != 4 {
		t.Fatalf("pendentes = %d, want 4", med.SolicitacoesPendentes)
	}

	if _, err := svc.Stats(ctx, userID, "estagiario"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("err = %v, want ErrUnknownRole", err)
	}
}
