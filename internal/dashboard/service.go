package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrUnknownRole indica papel sem painel definido.
var ErrUnknownRole = errors.New("papel sem painel")

const cacheTTL = 60 * time.Second

type repository interface {
	AdvogadoStats(ctx context.Context, userID uuid.UUID) (AdvogadoStats, error)
	MedicoStats(ctx context.Context, userID uuid.UUID) (MedicoStats, error)
	EspecialistaStats(ctx context.Context, userID uuid.UUID) (EspecialistaStats, error)
}

// Service monta o painel de cada papel. Os números toleram um minuto de
// atraso, então ficam em cache no redis.
type Service struct {
	repo  repository
	cache *redis.Client
}

func NewService(repo repository, cache *redis.Client) *Service {
	return &Service{repo: repo, cache: cache}
}

// Stats devolve o painel do papel informado como JSON pronto para resposta.
func (s *Service) Stats(ctx context.Context, userID uuid.UUID, role string) (json.RawMessage, error) {
	key := fmt.Sprintf("dash:%s:%s", role, userID.String())
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			return data, nil
		}
	}

	var stats any
	var err error
	switch role {
	case "advogado":
		stats, err = s.repo.AdvogadoStats(ctx, userID)
	case "medico_generalista":
		stats, err = s.repo.MedicoStats(ctx, userID)
	case "especialista":
		stats, err = s.repo.EspecialistaStats(ctx, userID)
	default:
		return nil, ErrUnknownRole
	}
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(stats)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, payload, cacheTTL).Err()
	}
	return payload, nil
}
