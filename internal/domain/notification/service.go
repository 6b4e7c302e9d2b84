package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/caresync/caresync/internal/platform/apperr"
	"github.com/caresync/caresync/internal/platform/janitor"
	"github.com/caresync/caresync/internal/platform/mail"
	"github.com/caresync/caresync/internal/platform/ws"
)

// ChannelNotifications is the ws channel for per-user notification pushes.
const ChannelNotifications = "notifications"

// pushFrame is what a connected notification socket receives.
type pushFrame struct {
	UID       string                 `json:"uid"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// Service persists notifications, pushes them to connected sockets and hands
// outbound email to the mail dispatcher. It satisfies the appointment
// workflow's Notifier interface.
type Service struct {
	repo   Repository
	hub    *ws.Hub
	mailer *mail.Dispatcher
	logger zerolog.Logger
}

func NewService(repo Repository, hub *ws.Hub, mailer *mail.Dispatcher, logger zerolog.Logger) *Service {
	return &Service{repo: repo, hub: hub, mailer: mailer, logger: logger}
}

// Notify stores a notification and pushes it to the user's socket room.
// It is fire-and-forget: failures are logged and swallowed so the mutation
// that triggered the notification never fails on delivery.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, title, body string, data map[string]interface{}) {
	n := &Notification{UserID: userID, Title: title, Body: body, Data: data}
	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID.String()).Msg("failed to persist notification")
		return
	}

	room := ws.Room{Channel: ChannelNotifications, ID: userID.String()}
	frame := pushFrame{
		UID:       n.ID.String(),
		Title:     title,
		Body:      body,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.hub.Publish(room, frame); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID.String()).Msg("failed to push notification")
	}
}

// Email queues an outbound email for asynchronous retry-backed delivery.
func (s *Service) Email(to, subject, body string) {
	s.mailer.Enqueue(mail.Message{To: to, Subject: subject, Body: body})
}

// List returns a user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Notification, int, error) {
	items, total, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	return items, total, nil
}

// MarkRead flags one of the user's notifications as read.
func (s *Service) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	err := s.repo.MarkRead(ctx, id, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("notification %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead flags every unread notification of the user and reports how
// many were flipped.
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return n, nil
}

// UnreadCount returns the user's unread badge count.
func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// PurgeTask returns a janitor task deleting read notifications older than
// retention.
func (s *Service) PurgeTask(retention time.Duration) janitor.Task {
	return func(ctx context.Context) (int, error) {
		n, err := s.repo.DeleteReadOlderThan(ctx, time.Now().Add(-retention))
		if err != nil {
			return 0, fmt.Errorf("purge notifications: %w", err)
		}
		return n, nil
	}
}
