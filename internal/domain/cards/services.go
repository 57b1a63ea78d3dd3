// Package cards is the listing store: users post cards, edit and remove
// them, and browse everyone else's open listings.
package cards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"

	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/session"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
	"github.com/swapcard/marketplace/internal/gateways/storage"
)

type Service interface {
	Create(ctx context.Context, sess *session.Session, in Input, img *Image) (*models.CardListing, error)
	Update(ctx context.Context, sess *session.Session, id string, in Input, img *Image) (*models.CardListing, error)
	Delete(ctx context.Context, sess *session.Session, id string) error
	Get(ctx context.Context, sess *session.Session, id string) (*Detail, error)
	ListOpenExcluding(ctx context.Context, viewerID, query string) ([]*models.CardListing, error)
	ListOwnedBy(ctx context.Context, uid string) ([]*models.CardListing, error)
	ListRecent(ctx context.Context, viewerID string) ([]*models.CardListing, error)
}

type service struct {
	repository Repository
	images     ImageStore
	users      Users
	offers     Offers
	ttl        time.Duration
	recent     time.Duration
	now        func() time.Time
}

// NewService builds the listing store. ttl is how long a listing stays
// browsable; recent is the home feed window.
func NewService(repository Repository, images ImageStore, users Users, offers Offers, ttl, recent time.Duration) *service {
	return &service{
		repository: repository,
		images:     images,
		users:      users,
		offers:     offers,
		ttl:        ttl,
		recent:     recent,
		now:        time.Now,
	}
}

func (s *service) Create(ctx context.Context, sess *session.Session, in Input, img *Image) (*models.CardListing, error) {
	const op = "cards.Create"
	if err := session.Require(sess, op); err != nil {
		return nil, err
	}
	in.normalize()
	if err := in.validate(op); err != nil {
		return nil, err
	}
	if img == nil || img.Body == nil {
		return nil, apperr.Invalid(op, "image", "is required")
	}

	key, url, err := s.upload(ctx, sess.UserID, img)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}

	now := s.now()
	l := &models.CardListing{
		ID:             uuid.NewString(),
		UID:            sess.UserID,
		ImageURL:       url,
		ImageKey:       key,
		Status:         models.ListingOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpirationDate: now.Add(s.ttl),
	}
	in.apply(l)

	if err := s.repository.Create(ctx, l); err != nil {
		s.dropImage(ctx, key)
		return nil, apperr.Wrap(op, err)
	}

	slog.Info("Listing created",
		slog.String("type", "swap"),
		slog.String("listing_id", l.ID),
		slog.String("uid", l.UID))
	return l, nil
}

// Update edits the owner's open listing. A new image replaces the old one
// and the listing gets a fresh expiration.
func (s *service) Update(ctx context.Context, sess *session.Session, id string, in Input, img *Image) (*models.CardListing, error) {
	const op = "cards.Update"
	if err := session.Require(sess, op); err != nil {
		return nil, err
	}
	in.normalize()
	if err := in.validate(op); err != nil {
		return nil, err
	}

	l, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if l.UID != sess.UserID {
		return nil, apperr.E(apperr.Forbidden, op, errors.New("only the owner can edit this listing"))
	}
	if !l.IsOpen() {
		return nil, apperr.Wrap(op, apperr.ErrListingClosed)
	}

	oldKey := ""
	if img != nil && img.Body != nil {
		key, url, err := s.upload(ctx, sess.UserID, img)
		if err != nil {
			return nil, apperr.Wrap(op, err)
		}
		oldKey = l.ImageKey
		l.ImageKey, l.ImageURL = key, url
	}

	now := s.now()
	in.apply(l)
	l.UpdatedAt = now
	l.ExpirationDate = now.Add(s.ttl)

	if err := s.repository.Update(ctx, l); err != nil {
		if oldKey != "" {
			s.dropImage(ctx, l.ImageKey)
		}
		return nil, apperr.Wrap(op, err)
	}
	s.dropImage(ctx, oldKey)
	return l, nil
}

// Delete removes the listing, then its image. Image cleanup failures are
// logged only.
func (s *service) Delete(ctx context.Context, sess *session.Session, id string) error {
	const op = "cards.Delete"
	if err := session.Require(sess, op); err != nil {
		return err
	}
	l, err := s.load(ctx, op, id)
	if err != nil {
		return err
	}
	if l.UID != sess.UserID && !sess.IsAdmin() {
		return apperr.E(apperr.Forbidden, op, errors.New("only the owner can delete this listing"))
	}

	if err := s.repository.Delete(ctx, l.ID); err != nil {
		return apperr.Wrap(op, err)
	}
	s.dropImage(ctx, l.ImageKey)

	slog.Info("Listing deleted",
		slog.String("type", "swap"),
		slog.String("listing_id", l.ID),
		slog.String("by", sess.UserID))
	return nil
}

func (s *service) Get(ctx context.Context, sess *session.Session, id string) (*Detail, error) {
	const op = "cards.Get"
	l, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}

	d := &Detail{CardListing: l}
	owner, err := s.users.GetByID(ctx, l.UID)
	switch {
	case err == nil:
		d.Owner = owner.Public()
		l.OwnerName = owner.DisplayName
	case !apperr.Is(err, apperr.NotFound):
		return nil, apperr.Wrap(op, err)
	}

	if sess != nil && (sess.UserID == l.UID || sess.IsAdmin()) {
		offers, err := s.offers.ListForCard(ctx, l.ID, l.UID)
		if err != nil {
			return nil, apperr.Wrap(op, err)
		}
		d.Offers = offers
	}
	return d, nil
}

// ListOpenExcluding returns what viewerID may browse: open, unexpired
// listings owned by others. A non-empty query ranks results by fuzzy match,
// otherwise they are newest first.
func (s *service) ListOpenExcluding(ctx context.Context, viewerID, query string) ([]*models.CardListing, error) {
	const op = "cards.ListOpenExcluding"
	now := s.now()
	all, err := s.repository.ListOpen(ctx, viewerID, now)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}

	out := browsable(all, viewerID, now)
	if q := strings.ToLower(strings.TrimSpace(query)); q != "" {
		matches := fuzzy.FindFrom(q, searchItems(out))
		ranked := make([]*models.CardListing, len(matches))
		for i, m := range matches {
			ranked[i] = out[m.Index]
		}
		out = ranked
	}

	if err := s.fillOwners(ctx, out); err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return out, nil
}

func (s *service) ListOwnedBy(ctx context.Context, uid string) ([]*models.CardListing, error) {
	const op = "cards.ListOwnedBy"
	if uid == "" {
		return nil, apperr.Invalid(op, "uid", "is required")
	}
	list, err := s.repository.ListByOwner(ctx, uid)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return list, nil
}

// ListRecent is the home feed: browsable listings created within the
// recent window.
func (s *service) ListRecent(ctx context.Context, viewerID string) ([]*models.CardListing, error) {
	const op = "cards.ListRecent"
	now := s.now()
	list, err := s.repository.ListCreatedSince(ctx, now.Add(-s.recent))
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	out := browsable(list, viewerID, now)
	if err := s.fillOwners(ctx, out); err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return out, nil
}

func (s *service) load(ctx context.Context, op, id string) (*models.CardListing, error) {
	if id == "" {
		return nil, apperr.Invalid(op, "id", "is required")
	}
	l, err := s.repository.GetByID(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, apperr.Wrap(op, apperr.ErrCardMissing)
		}
		return nil, apperr.Wrap(op, err)
	}
	return l, nil
}

func (s *service) upload(ctx context.Context, uid string, img *Image) (string, string, error) {
	key := storage.ListingImageKey(uid, img.Filename)
	url, err := s.images.Put(ctx, storage.Object{
		Key:         key,
		ContentType: img.ContentType,
		Size:        img.Size,
		Body:        img.Body,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to upload image: %w", err)
	}
	return key, url, nil
}

func (s *service) dropImage(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.images.Delete(context.WithoutCancel(ctx), key); err != nil {
		slog.Warn("Failed to delete listing image",
			slog.String("type", "swap"),
			slog.String("key", key),
			slog.Any("error", err))
	}
}

// fillOwners sets OwnerName, looking each owner up once.
func (s *service) fillOwners(ctx context.Context, list []*models.CardListing) error {
	names := make(map[string]string)
	for _, l := range list {
		name, ok := names[l.UID]
		if !ok {
			u, err := s.users.GetByID(ctx, l.UID)
			switch {
			case err == nil:
				name = u.DisplayName
			case apperr.Is(err, apperr.NotFound):
			default:
				return err
			}
			names[l.UID] = name
		}
		l.OwnerName = name
	}
	return nil
}

// browsable applies the browse filter and sorts newest first.
func browsable(list []*models.CardListing, viewerID string, now time.Time) []*models.CardListing {
	out := make([]*models.CardListing, 0, len(list))
	for _, l := range list {
		if l.BrowsableBy(viewerID, now) {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
