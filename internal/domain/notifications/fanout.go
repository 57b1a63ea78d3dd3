package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/swapcard/marketplace/internal/gateways/database/models"
	"github.com/swapcard/marketplace/internal/gateways/mailer"
)

const dispatchTimeout = 15 * time.Second

// Event is one state transition worth telling a user about.
type Event struct {
	Recipient  *models.User
	Type       models.NotificationType
	Message    string
	Subject    string
	CardNumber string
}

// Fanout writes one notification and attempts one email per event. Nothing
// it does is reported back to the caller. Emails go out in the background;
// Wait blocks until they have all been attempted.
type Fanout struct {
	repo Repository
	mail Mailer
	wg   sync.WaitGroup
}

func NewFanout(repo Repository, mail Mailer) *Fanout {
	return &Fanout{repo: repo, mail: mail}
}

func (f *Fanout) Notify(ctx context.Context, ev Event) {
	if ev.Recipient == nil {
		slog.Warn("Notification without recipient dropped",
			slog.String("type", "swap"),
			slog.String("kind", string(ev.Type)))
		return
	}

	// The decision has already committed; a caller going away must not
	// cancel the side effects.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()

	n := &models.Notification{
		UserID:  ev.Recipient.ID,
		Type:    ev.Type,
		Message: ev.Message,
	}
	if err := f.repo.Create(ctx, n); err != nil {
		slog.Warn("Failed to store notification",
			slog.String("type", "swap"),
			slog.String("user_id", ev.Recipient.ID),
			slog.String("kind", string(ev.Type)),
			slog.Any("error", err))
	}

	if f.mail == nil || ev.Recipient.Email == "" {
		return
	}
	msg := mailer.Message{
		DisplayName: ev.Recipient.DisplayName,
		Email:       ev.Recipient.Email,
		Subject:     ev.Subject,
		Content:     ev.Message,
		CardNumber:  ev.CardNumber,
	}
	mailCtx, mailCancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer mailCancel()
		if err := f.mail.SendNotification(mailCtx, msg); err != nil {
			slog.Warn("Failed to send notification email",
				slog.String("type", "mail"),
				slog.String("user_id", ev.Recipient.ID),
				slog.String("kind", string(ev.Type)),
				slog.Any("error", err))
		}
	}()
}

func (f *Fanout) Wait() { f.wg.Wait() }
