package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/provamed/api/internal/realtime"
)

var (
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validação")
)

const maxMessageLen = 4000

type repository interface {
	ListByCase(ctx context.Context, caseID uuid.UUID, limit int) ([]Message, error)
	Insert(ctx context.Context, caseID, senderID uuid.UUID, content string) (Message, error)
	Participants(ctx context.Context, caseID uuid.UUID) ([]uuid.UUID, error)
}

type notifier interface {
	Send(ctx context.Context, userID uuid.UUID, title, message, typ string, link *string) error
}

// Service é o chat por caso. A entrega em tempo real sai pelo canal do caso;
// a notificação persistida garante que quem estava offline fique sabendo.
type Service struct {
	repo  repository
	rt    *realtime.Publisher
	notif notifier
}

func NewService(repo repository, rt *realtime.Publisher, notif notifier) *Service {
	return &Service{repo: repo, rt: rt, notif: notif}
}

func (s *Service) isParticipant(ctx context.Context, userID, caseID uuid.UUID) ([]uuid.UUID, error) {
	participants, err := s.repo.Participants(ctx, caseID)
	if err != nil {
		return nil, err
	}
	for _, p := range participants {
		if p == userID {
			return participants, nil
		}
	}
	return nil, ErrForbidden
}

func (s *Service) List(ctx context.Context, userID, caseID uuid.UUID, limit int) ([]Message, error) {
	if _, err := s.isParticipant(ctx, userID, caseID); err != nil {
		return nil, err
	}
	return s.repo.ListByCase(ctx, caseID, limit)
}

// Send grava a mensagem, publica no canal do caso e notifica os demais
// participantes.
func (s *Service) Send(ctx context.Context, userID, caseID uuid.UUID, content string) (Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Message{}, fmt.Errorf("%w: mensagem vazia", ErrValidation)
	}
	if len(content) > maxMessageLen {
		return Message{}, fmt.Errorf("%w: mensagem longa demais", ErrValidation)
	}

	participants, err := s.isParticipant(ctx, userID, caseID)
	if err != nil {
		return Message{}, err
	}

	msg, err := s.repo.Insert(ctx, caseID, userID, content)
	if err != nil {
		return Message{}, err
	}

	if s.rt != nil {
		s.rt.PublishCase(ctx, caseID, "chat_message", msg.ID.String())
	}

	if s.notif != nil {
		link := "/casos/" + caseID.String()
		for _, p := range participants {
			if p == userID {
				continue
			}
			if err := s.notif.Send(ctx, p, "Nova mensagem no caso",
				msg.SenderName+" enviou uma mensagem.", "chat", &link); err != nil {
				log.Warn().Err(err).Str("user_id", p.String()).Msg("chat notificação falhou")
			}
		}
	}
	return msg, nil
}
