package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"inkwell/config"
)

var ErrUnsupportedFormat = errors.New("unsupported cover format")

// CoverStore persists article cover images and hands back the stored name.
type CoverStore interface {
	Save(ctx context.Context, data string) (string, error)
	Delete(ctx context.Context, name string) error
	URL(name string) string
}

func NewCoverStore(cfg *config.Config, logger *zap.Logger) (CoverStore, error) {
	switch cfg.CoverStorage {
	case "s3":
		client, err := NewS3Client(cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("covers stored on s3", zap.String("bucket", cfg.S3Bucket))
		return NewS3Store(client, cfg), nil
	default:
		logger.Info("covers stored on disk", zap.String("dir", cfg.CoverDir))
		return NewDiskStore(cfg.CoverDir)
	}
}

var extensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
}

// decodeImage accepts a data URI or bare base64 and only lets png and jpeg
// through.
func decodeImage(data string) ([]byte, string, error) {
	data = strings.TrimSpace(data)
	declared := ""
	if strings.HasPrefix(data, "data:") {
		comma := strings.Index(data, ",")
		if comma < 0 {
			return nil, "", ErrUnsupportedFormat
		}
		header := data[len("data:"):comma]
		if !strings.HasSuffix(header, ";base64") {
			return nil, "", ErrUnsupportedFormat
		}
		declared = strings.TrimSuffix(header, ";base64")
		if _, ok := extensions[declared]; !ok {
			return nil, "", ErrUnsupportedFormat
		}
		data = data[comma+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, "", ErrUnsupportedFormat
	}

	ext, ok := extensions[http.DetectContentType(raw)]
	if !ok {
		return nil, "", ErrUnsupportedFormat
	}
	return raw, ext, nil
}

func coverName(raw []byte, ext string) string {
	return fmt.Sprintf("%016x-%s.%s", xxhash.Sum64(raw), uuid.NewString()[:8], ext)
}

func contentType(name string) string {
	if strings.HasSuffix(name, ".png") {
		return "image/png"
	}
	return "image/jpeg"
}
