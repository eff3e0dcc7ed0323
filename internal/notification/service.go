package notification

import (
	"context"

	"github.com/google/uuid"

	"github.com/provamed/api/internal/realtime"
)

// Sender é o contrato consumido pelos módulos que disparam avisos.
type Sender interface {
	Send(ctx context.Context, userID uuid.UUID, title, message, typ string, link *string) error
}

type notificationRepository interface {
	Insert(context.Context, Notification) (uuid.UUID, error)
	ListByUser(context.Context, uuid.UUID) ([]Notification, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(context.Context, uuid.UUID) error
	CountUnread(context.Context, uuid.UUID) (int, error)
}

// Service insere notificações e publica invalidações em tempo real.
type Service struct {
	repo      notificationRepository
	publisher *realtime.Publisher
}

func NewService(repo notificationRepository, publisher *realtime.Publisher) *Service {
	return &Service{repo: repo, publisher: publisher}
}

func (s *Service) Send(ctx context.Context, userID uuid.UUID, title, message, typ string, link *string) error {
	id, err := s.repo.Insert(ctx, Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    typ,
		Link:    link,
	})
	if err != nil {
		return err
	}

	s.publisher.PublishUser(ctx, userID, "notification", id.String())
	return nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]Notification, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	return s.repo.MarkRead(ctx, userID, notificationID)
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *Service) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}
