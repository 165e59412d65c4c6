package imagestore

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "golang.org/x/image/webp"

	"github.com/plateful-labs/cookbook-back/internal/config"
)

// Store keeps uploaded recipe images on disk under the configured media dir.
type Store struct {
	dir string
}

func NewStore(cfg *config.Config) (*Store, error) {
	if err := os.MkdirAll(cfg.MediaDir, 0755); err != nil {
		return nil, errors.Wrap(err, "create media dir")
	}
	return &Store{dir: cfg.MediaDir}, nil
}

// Save accepts a "data:image/...;base64,..." payload or bare base64, verifies
// it decodes to a non-empty image of a registered format (png, jpeg, gif,
// webp) and writes it out under a fresh name. Returns the stored file name.
func (s *Store) Save(payload string) (string, error) {
	raw := payload
	if strings.HasPrefix(raw, "data:") {
		idx := strings.Index(raw, ",")
		if idx == -1 {
			return "", errors.New("malformed data URI")
		}
		raw = raw[idx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return "", errors.Wrap(err, "decode base64")
	}

	imgCfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, "decode image")
	}
	if imgCfg.Width == 0 || imgCfg.Height == 0 {
		return "", errors.New("image is empty")
	}

	name := uuid.New().String() + "." + format
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0644); err != nil {
		return "", errors.Wrap(err, "write image file")
	}
	return name, nil
}
