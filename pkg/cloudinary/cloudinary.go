package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	Tags      []string
}

// SnapshotStore stores proctoring webcam frames as private-by-URL images.
type SnapshotStore struct {
	client *cloudinary.Cloudinary
	folder string
	tags   []string
	logger zerolog.Logger
}

// New constructs a Cloudinary backed snapshot store.
func New(cfg Config, logger zerolog.Logger) (*SnapshotStore, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	tags := cfg.Tags
	if len(tags) == 0 {
		tags = []string{"proctoring", "webcam-snapshot"}
	}

	return &SnapshotStore{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		tags:   tags,
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Upload stores one frame and returns its secure URL.
func (s *SnapshotStore) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	params := uploader.UploadParams{
		Folder:         s.folder,
		PublicID:       PublicID(name),
		ResourceType:   "image",
		Tags:           api.CldAPIArray(s.tags),
		Overwrite:      api.Bool(false),
		UniqueFilename: api.Bool(false),
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload snapshot: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("cloudinary rejected snapshot: %s", result.Error.Message)
	}

	s.logger.Debug().Str("public_id", result.PublicID).Int("bytes", result.Bytes).Msg("snapshot uploaded")
	return result.SecureURL, nil
}

// PublicID turns an upload name into a Cloudinary-safe identifier.
func PublicID(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)

	base = strings.Trim(base, "-")
	if base == "" {
		return "snapshot"
	}
	return strings.ToLower(base)
}
