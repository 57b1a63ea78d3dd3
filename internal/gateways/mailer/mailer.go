// Package mailer posts form-encoded messages to the external mail API.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Message is one transactional email. Empty optional fields are not sent.
type Message struct {
	DisplayName string
	Email       string
	Subject     string
	Content     string
	CardNumber  string
}

func (m Message) fields() map[string]string {
	f := map[string]string{
		"displayName": m.DisplayName,
		"email":       m.Email,
		"subject":     m.Subject,
		"content":     m.Content,
	}
	if m.CardNumber != "" {
		f["cardNumber"] = m.CardNumber
	}
	return f
}

type Options struct {
	BaseURL          string
	VerificationPath string
	NotificationPath string
	Timeout          time.Duration
	Disabled         bool
}

type Client struct {
	opts Options
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Client{opts: opts}
}

func (c *Client) SendNotification(ctx context.Context, msg Message) error {
	if msg.Email == "" {
		return errors.New("mailer: recipient email is empty")
	}
	return c.post(ctx, c.opts.NotificationPath, msg.fields())
}

func (c *Client) SendVerification(ctx context.Context, displayName, email string) error {
	if email == "" {
		return errors.New("mailer: recipient email is empty")
	}
	return c.post(ctx, c.opts.VerificationPath, map[string]string{
		"user":  displayName,
		"email": email,
	})
}

func (c *Client) endpoint(path string) (string, error) {
	base, err := url.Parse(c.opts.BaseURL)
	if err != nil {
		return "", fmt.Errorf("mailer: invalid base url: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	rel, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", fmt.Errorf("mailer: invalid path %q: %w", path, err)
	}
	return base.ResolveReference(rel).String(), nil
}

func (c *Client) post(ctx context.Context, path string, fields map[string]string) error {
	if c.opts.Disabled {
		slog.Debug("Mail delivery disabled, dropping message",
			slog.String("type", "mail"),
			slog.String("path", path))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	target, err := c.endpoint(path)
	if err != nil {
		return err
	}

	timeout := c.opts.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	args := fiber.AcquireArgs()
	defer fiber.ReleaseArgs(args)
	for k, v := range fields {
		args.Set(k, v)
	}

	start := time.Now()
	agent := fiber.Post(target).
		Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON).
		Form(args).
		Timeout(timeout)

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("mailer: post %s: %w", path, errors.Join(errs...))
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("mailer: post %s: unexpected status %d: %s", path, code, truncate(body, 200))
	}

	slog.Info("Mail dispatched",
		slog.String("type", "mail"),
		slog.String("path", path),
		slog.Int("status", code),
		slog.Duration("took", time.Since(start)))
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
