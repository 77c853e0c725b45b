package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/curator-backend/internal/data/repos"
	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/modules/curation/dedup"
	"github.com/yungbote/curator-backend/internal/modules/curation/fingerprint"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/curator-backend/internal/pkg/errors"
	"github.com/yungbote/curator-backend/internal/platform/ctxutil"
	"github.com/yungbote/curator-backend/internal/platform/logger"
)

// ItemInput is a scraped candidate as delivered by a source client.
type ItemInput struct {
	Platform       string         `json:"platform"`
	Author         string         `json:"author"`
	Category       string         `json:"category"`
	SourceID       string         `json:"source_id"`
	Text           string         `json:"text"`
	MediaURL       string         `json:"media_url"`
	URL            string         `json:"url"`
	Media          []byte         `json:"media,omitempty"`
	Fingerprint    string         `json:"fingerprint"`
	PerceptualHash string         `json:"perceptual_hash"`
	Confidence     float64        `json:"confidence"`
	CreatedAt      time.Time      `json:"created_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type ItemService interface {
	InsertCandidate(dbc dbctx.Context, in ItemInput) (*types.ContentItem, error)
	GetByID(dbc dbctx.Context, id string) (*types.ContentItem, error)
	BackfillFingerprints(dbc dbctx.Context, batch int) (int, error)
}

type itemService struct {
	db    *gorm.DB
	log   *logger.Logger
	items repos.ContentItemRepo
}

func NewItemService(db *gorm.DB, baseLog *logger.Logger, items repos.ContentItemRepo) ItemService {
	return &itemService{
		db:    db,
		log:   baseLog.With("service", "ItemService"),
		items: items,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), pkgerrors.ErrInvalidArgument)
}

// InsertCandidate validates a candidate and stores it as discovered. The
// content fingerprint and canonical URL are derived when the source did not
// supply them; a perceptual hash is computed from decodable media bytes.
func (s *itemService) InsertCandidate(dbc dbctx.Context, in ItemInput) (*types.ContentItem, error) {
	platform := strings.ToLower(strings.TrimSpace(in.Platform))
	if platform == "" {
		return nil, invalid("platform is required")
	}
	category := strings.ToLower(strings.TrimSpace(in.Category))
	if category == "" {
		return nil, invalid("category is required")
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return nil, invalid("confidence must be within [0,1], got %v", in.Confidence)
	}
	if strings.TrimSpace(in.Text) == "" && len(in.Media) == 0 && strings.TrimSpace(in.MediaURL) == "" {
		return nil, invalid("one of text, media or media_url is required")
	}
	if in.PerceptualHash != "" {
		if _, err := fingerprint.ParseHash(in.PerceptualHash); err != nil {
			return nil, invalid("perceptual_hash: %v", err)
		}
	}

	item := &types.ContentItem{
		Platform:       platform,
		Author:         strings.TrimSpace(in.Author),
		Category:       category,
		SourceID:       strings.TrimSpace(in.SourceID),
		Text:           in.Text,
		MediaURL:       strings.TrimSpace(in.MediaURL),
		Fingerprint:    strings.ToLower(strings.TrimSpace(in.Fingerprint)),
		PerceptualHash: strings.ToLower(strings.TrimSpace(in.PerceptualHash)),
		Confidence:     in.Confidence,
		CreatedAt:      in.CreatedAt,
	}
	if item.Fingerprint == "" {
		item.Fingerprint = contentHash(item.Text, in.Media, item.MediaURL)
	}
	link := in.URL
	if link == "" {
		link = item.MediaURL
	}
	item.CanonicalURL = dedup.CanonicalURL(link)
	if item.PerceptualHash == "" && len(in.Media) > 0 {
		if ph, err := fingerprint.PerceptualHash(bytes.NewReader(in.Media)); err == nil {
			item.PerceptualHash = ph
		} else {
			s.log.Debug("Media not decodable as image; skipping perceptual hash", "platform", platform, "error", err)
		}
	}
	if len(in.Metadata) > 0 {
		raw, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, invalid("metadata: %v", err)
		}
		item.Metadata = datatypes.JSON(raw)
	}

	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	out, err := s.items.InsertCandidate(dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}, item)
	if err != nil {
		return nil, fmt.Errorf("insert candidate: %w", err)
	}
	s.log.Debug("Candidate stored", "item_id", out.ID, "platform", out.Platform, "category", out.Category)
	return out, nil
}

// contentHash prefers media bytes; a bare locator stands in when the scraper
// only sent the URL.
func contentHash(text string, media []byte, mediaURL string) string {
	if len(media) == 0 && mediaURL != "" {
		media = []byte(mediaURL)
	}
	return fingerprint.ContentHash(text, media)
}

func (s *itemService) GetByID(dbc dbctx.Context, id string) (*types.ContentItem, error) {
	uid, err := parseUUID(id)
	if err != nil {
		return nil, err
	}
	item, err := s.items.GetByID(dbc, uid)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, pkgerrors.ErrNotFound
	}
	return item, nil
}

// BackfillFingerprints fills empty fingerprints on discovered items, batch
// at a time, and returns how many rows it updated.
func (s *itemService) BackfillFingerprints(dbc dbctx.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 500
	}
	total := 0
	for {
		if err := ctxutil.Default(dbc.Ctx).Err(); err != nil {
			return total, err
		}
		rows, err := s.items.QueryByState(dbc, types.StateDiscovered, repos.ItemFilter{
			MissingHash: true,
			OrderBy:     repos.OrderCreatedAsc,
			Limit:       batch,
		})
		if err != nil {
			return total, fmt.Errorf("load items missing fingerprints: %w", err)
		}
		if len(rows) == 0 {
			return total, nil
		}
		progressed := 0
		for _, it := range rows {
			fp := contentHash(it.Text, nil, it.MediaURL)
			if fp == "" {
				continue
			}
			ok, err := s.items.ConditionalUpdateState(dbc, it.ID, types.StateDiscovered, types.StateDiscovered, types.ItemPatch{Fingerprint: &fp, ClearInputError: true})
			if err != nil {
				return total, fmt.Errorf("update fingerprint for %s: %w", it.ID, err)
			}
			if ok {
				total++
				progressed++
			}
		}
		if progressed == 0 || len(rows) < batch {
			s.log.Info("Fingerprint backfill finished", "updated", total)
			return total, nil
		}
	}
}

func parseUUID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, invalid("invalid id %q", raw)
	}
	return id, nil
}
