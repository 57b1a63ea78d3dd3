package utils

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/swapcard/marketplace/backend/models"
	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/session"
)

// SessionKey is the fiber.Locals key holding the caller's *session.Session.
const SessionKey = "session"

func SendJSON(c *fiber.Ctx, statusCode int, data any) error {
	return c.Status(statusCode).JSON(data)
}

func SendSuccess(c *fiber.Ctx, data any, message string) error {
	return SendJSON(c, http.StatusOK, models.NewSuccessResponse(data, message))
}

func SendCreated(c *fiber.Ctx, data any, message string) error {
	return SendJSON(c, http.StatusCreated, models.NewSuccessResponse(data, message))
}

func SendError(c *fiber.Ctx, statusCode int, code, message string, details map[string]string) error {
	return SendJSON(c, statusCode, models.NewErrorResponse(code, message, details))
}

func SendBadRequest(c *fiber.Ctx, message string, details map[string]string) error {
	return SendError(c, http.StatusBadRequest, "BAD_REQUEST", message, details)
}

func SendUnauthorized(c *fiber.Ctx, message string) error {
	return SendError(c, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

func SendForbidden(c *fiber.Ctx, message string) error {
	return SendError(c, http.StatusForbidden, "FORBIDDEN", message, nil)
}

func SendNotFound(c *fiber.Ctx, message string) error {
	return SendError(c, http.StatusNotFound, "NOT_FOUND", message, nil)
}

func SendNoContent(c *fiber.Ctx) error {
	return c.SendStatus(http.StatusNoContent)
}

// SendAppError maps a domain error onto its status code and envelope.
func SendAppError(c *fiber.Ctx, err error) error {
	status, code := StatusOf(err)

	var details map[string]string
	var e *apperr.Error
	if apperr.KindOf(err) == apperr.Validation && asField(err, &e) {
		details = map[string]string{e.Field: apperr.Message(e.Err)}
	}

	if status >= http.StatusInternalServerError {
		slog.Error("Request failed",
			slog.String("type", "http"),
			slog.String("path", c.Path()),
			slog.Any("error", err))
	}
	return SendError(c, status, code, apperr.Message(err), details)
}

// StatusOf is the HTTP status and error code for err's kind.
func StatusOf(err error) (int, string) {
	switch apperr.KindOf(err) {
	case apperr.Validation:
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR"
	case apperr.NotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case apperr.AlreadyDecided:
		return http.StatusConflict, "ALREADY_DECIDED"
	case apperr.Conflict:
		return http.StatusConflict, "CONFLICT"
	case apperr.AuthFailure:
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case apperr.Forbidden:
		return http.StatusForbidden, "FORBIDDEN"
	default:
		return http.StatusBadGateway, "REMOTE_WRITE_FAILED"
	}
}

// asField finds the innermost error in the chain that names a field.
func asField(err error, target **apperr.Error) bool {
	found := false
	for err != nil {
		e, ok := err.(*apperr.Error)
		if !ok {
			break
		}
		if e.Field != "" {
			*target = e
			found = true
		}
		err = e.Err
	}
	return found
}

// ExtractSession returns the caller set by the auth middleware, or nil.
func ExtractSession(c *fiber.Ctx) *session.Session {
	sess, _ := c.Locals(SessionKey).(*session.Session)
	return sess
}

func GetIPAddress(c *fiber.Ctx) string {
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := c.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return c.IP()
}

func GetUserAgent(c *fiber.Ctx) string {
	return c.Get("User-Agent")
}
