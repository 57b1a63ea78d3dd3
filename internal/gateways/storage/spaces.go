// Package storage keeps listing images and profile photos in an
// S3-compatible bucket (DigitalOcean Spaces in production).
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// Object is an upload waiting for a key.
type Object struct {
	Key         string
	ContentType string
	Size        int64
	Body        io.Reader
}

type Options struct {
	Key       string
	Secret    string
	Region    string
	Bucket    string
	Endpoint  string
	PublicURL string
	Root      string
}

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type SpacesService struct {
	client    objectAPI
	bucket    string
	publicURL string
	root      string
}

func NewSpacesService(ctx context.Context, opts Options) (*SpacesService, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.Key, opts.Secret, "")),
		config.WithRegion(opts.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load spaces config: %w", err)
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.digitaloceanspaces.com", opts.Region)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	return newSpacesService(client, opts, endpoint), nil
}

func newSpacesService(client objectAPI, opts Options, endpoint string) *SpacesService {
	publicURL := opts.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("%s/%s", strings.TrimSuffix(endpoint, "/"), opts.Bucket)
	}
	return &SpacesService{
		client:    client,
		bucket:    opts.Bucket,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		root:      strings.Trim(opts.Root, "/"),
	}
}

// URL is the public address of key.
func (s *SpacesService) URL(key string) string {
	return s.publicURL + "/" + strings.TrimPrefix(key, "/")
}

// Put uploads obj under the configured root and returns its public URL.
// The key stored in obj.Key is taken relative to the root.
func (s *SpacesService) Put(ctx context.Context, obj Object) (string, error) {
	key := s.fullKey(obj.Key)
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	start := time.Now()
	in := &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         obj.Body,
		ContentType:  aws.String(contentType),
		ACL:          types.ObjectCannedACLPublicRead,
		CacheControl: aws.String("public, max-age=31536000"),
	}
	if obj.Size > 0 {
		in.ContentLength = aws.Int64(obj.Size)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	slog.Info("Object uploaded",
		slog.String("type", "sys"),
		slog.String("key", key),
		slog.Int64("size", obj.Size),
		slog.Duration("took", time.Since(start)))
	return s.URL(key), nil
}

func (s *SpacesService) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	full := s.fullKey(key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(full),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", full, err)
	}
	return nil
}

func (s *SpacesService) fullKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if s.root == "" || strings.HasPrefix(key, s.root+"/") {
		return key
	}
	return s.root + "/" + key
}

// ListingImageKey names a new listing image: cards/<uid>/<uuid><ext>.
func ListingImageKey(uid, filename string) string {
	return path.Join("cards", uid, uuid.NewString()+ext(filename))
}

// ProfilePhotoKey names a profile photo: profiles/<uid>/<uuid><ext>.
func ProfilePhotoKey(uid, filename string) string {
	return path.Join("profiles", uid, uuid.NewString()+ext(filename))
}

func ext(filename string) string {
	e := strings.ToLower(path.Ext(filename))
	if len(e) > 8 {
		return ""
	}
	return e
}
