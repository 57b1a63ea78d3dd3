package notifications

import (
	"context"

	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/session"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

// Service is the signed-in user's view of their own notifications.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, sess *session.Session) ([]*models.Notification, error) {
	const op = "notifications.List"
	if err := session.Require(sess, op); err != nil {
		return nil, err
	}
	list, err := s.repo.ListForUser(ctx, sess.UserID)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return list, nil
}

func (s *Service) UnreadCount(ctx context.Context, sess *session.Session) (int, error) {
	const op = "notifications.UnreadCount"
	if err := session.Require(sess, op); err != nil {
		return 0, err
	}
	n, err := s.repo.CountUnread(ctx, sess.UserID)
	if err != nil {
		return 0, apperr.Wrap(op, err)
	}
	return n, nil
}

func (s *Service) MarkAllRead(ctx context.Context, sess *session.Session) (int, error) {
	const op = "notifications.MarkAllRead"
	if err := session.Require(sess, op); err != nil {
		return 0, err
	}
	n, err := s.repo.MarkAllRead(ctx, sess.UserID)
	if err != nil {
		return 0, apperr.Wrap(op, err)
	}
	return n, nil
}

func (s *Service) MarkRead(ctx context.Context, sess *session.Session, id string) error {
	const op = "notifications.MarkRead"
	if err := session.Require(sess, op); err != nil {
		return err
	}
	if id == "" {
		return apperr.Invalid(op, "id", "is required")
	}
	return apperr.Wrap(op, s.repo.MarkRead(ctx, sess.UserID, id))
}

func (s *Service) DeleteAll(ctx context.Context, sess *session.Session) (int, error) {
	const op = "notifications.DeleteAll"
	if err := session.Require(sess, op); err != nil {
		return 0, err
	}
	n, err := s.repo.DeleteAll(ctx, sess.UserID)
	if err != nil {
		return 0, apperr.Wrap(op, err)
	}
	return n, nil
}

func (s *Service) Delete(ctx context.Context, sess *session.Session, id string) error {
	const op = "notifications.Delete"
	if err := session.Require(sess, op); err != nil {
		return err
	}
	if id == "" {
		return apperr.Invalid(op, "id", "is required")
	}
	return apperr.Wrap(op, s.repo.Delete(ctx, sess.UserID, id))
}
