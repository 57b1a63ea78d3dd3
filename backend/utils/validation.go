package utils

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/swapcard/marketplace/internal/domain/apperr"
)

var (
	ValidImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

	MaxImageSize int64 = 10 * 1024 * 1024

	unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9.\-_]`)
)

// Upload is a validated multipart file opened for reading.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	File        multipart.File
}

func (u *Upload) Close() error { return u.File.Close() }

// FormImage opens the image in field. It returns nil, nil when the field
// is absent and required is false.
func FormImage(c *fiber.Ctx, field string, required bool) (*Upload, error) {
	const op = "upload.FormImage"
	header, err := c.FormFile(field)
	if err != nil {
		if required {
			return nil, apperr.Invalid(op, field, "an image is required")
		}
		return nil, nil
	}
	if err := ValidateImageFile(field, header); err != nil {
		return nil, err
	}
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Upload{
		Filename:    SanitizeFilename(header.Filename),
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		File:        f,
	}, nil
}

func ValidateImageFile(field string, header *multipart.FileHeader) error {
	const op = "upload.ValidateImageFile"
	if header.Size > MaxImageSize {
		return apperr.Invalid(op, field, fmt.Sprintf("image must be smaller than %dMB", MaxImageSize/(1024*1024)))
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !slices.Contains(ValidImageExtensions, ext) {
		return apperr.Invalid(op, field, fmt.Sprintf("invalid image format, allowed: %s", strings.Join(ValidImageExtensions, ", ")))
	}
	return nil
}

// SanitizeFilename makes filename safe to use inside an object key.
func SanitizeFilename(filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	filename = strings.ReplaceAll(filename, "..", "_")
	filename = strings.ReplaceAll(filename, " ", "_")
	return unsafeFilename.ReplaceAllString(filename, "_")
}
