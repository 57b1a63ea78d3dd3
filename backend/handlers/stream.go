package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/swapcard/marketplace/backend/utils"
	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/session"
	"github.com/swapcard/marketplace/internal/gateways/feed"
)

const defaultHeartbeat = 15 * time.Second

// Stream serves change events as server-sent events. Every event names
// what changed; clients refetch through the regular endpoints.
//
//	/api/stream/listings
//	/api/stream/notifications
//	/api/stream/swaps
//	/api/stream/messages/:id
//	/api/stream/all (admins)
func Stream(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess := utils.ExtractSession(c)
		topic, err := streamTopic(c.Context(), webApp, sess, c.Params("topic"), c.Params("id"))
		if err != nil {
			return utils.SendAppError(c, err)
		}

		// The stream outlives the handler, so it cannot use the request context.
		ctx, cancel := context.WithCancel(context.Background())
		sub, err := webApp.Streams.Subscribe(ctx, topic)
		if err != nil {
			cancel()
			return utils.SendAppError(c, apperr.Wrap("stream.Subscribe", err))
		}

		heartbeat := webApp.StreamHeartbeat
		if heartbeat <= 0 {
			heartbeat = defaultHeartbeat
		}

		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer cancel()
			defer sub.Close()

			fmt.Fprintf(w, "retry: %d\n\n", heartbeat.Milliseconds())
			if err := w.Flush(); err != nil {
				return
			}

			ticker := time.NewTicker(heartbeat)
			defer ticker.Stop()
			for {
				select {
				case ev, ok := <-sub.Events():
					if !ok {
						return
					}
					if err := writeEvent(w, ev); err != nil {
						return
					}
				case <-ticker.C:
					if _, err := w.WriteString(": ping\n\n"); err != nil {
						return
					}
					if err := w.Flush(); err != nil {
						return
					}
				}
			}
		}))
		return nil
	}
}

func writeEvent(w *bufio.Writer, ev feed.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
		return err
	}
	return w.Flush()
}

// streamTopic maps a stream name onto the caller's feed topic. Per-user
// topics are always the caller's own.
func streamTopic(ctx context.Context, webApp *WebApp, sess *session.Session, name, id string) (string, error) {
	const op = "stream.Topic"
	if err := session.Require(sess, op); err != nil {
		return "", err
	}
	switch name {
	case "listings":
		return feed.ListingsTopic(), nil
	case "notifications":
		return feed.NotificationsTopic(sess.UserID), nil
	case "swaps":
		return feed.SwapRequestsTopic(sess.UserID), nil
	case "messages":
		if id == "" {
			return "", apperr.Invalid(op, "id", "conversation id is required")
		}
		if _, err := webApp.Chats.Authorize(ctx, sess, id); err != nil {
			return "", err
		}
		return feed.MessagesTopic(id), nil
	case "all":
		if err := session.RequireAdmin(sess, op); err != nil {
			return "", err
		}
		return "*", nil
	}
	return "", apperr.E(apperr.NotFound, op, fmt.Errorf("unknown stream %q", name))
}
