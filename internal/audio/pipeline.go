package audio

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"memejoin/internal/storage"
)

// Pipeline resolves an intro's asset reference and opens it as a frame
// stream. Failures are returned to the caller; they never take down the
// session that requested the playback.
type Pipeline struct {
	soundsDir string
	cache     *Cache
}

func NewPipeline(soundsDir string, cache *Cache) *Pipeline {
	return &Pipeline{soundsDir: soundsDir, cache: cache}
}

// Open produces the frame stream for one playback of an intro. The intro's
// volume is clamped and applied as gain on the decode path. Pre-encoded .dca
// assets skip decoding entirely, so gain does not apply to them.
func (p *Pipeline) Open(ctx context.Context, intro *storage.Intro) (Source, error) {
	path, err := p.resolvePath(ctx, intro.Filename)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".dca") {
		if intro.Volume != 1.0 {
			log.WithFields(log.Fields{
				"intro":  intro.Name,
				"volume": intro.Volume,
			}).Debug("volume ignored for pre-encoded dca asset")
		}
		frames, err := loadDCA(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", intro.Filename, err)
		}
		return &frameSource{frames: frames}, nil
	}

	return newFFmpegSource(path, clampGain(intro.Volume))
}

// resolvePath maps an asset reference to a local file: remote references go
// through the cache, local ones live in the sounds directory.
func (p *Pipeline) resolvePath(ctx context.Context, reference string) (string, error) {
	if strings.HasPrefix(reference, "http://") || strings.HasPrefix(reference, "https://") {
		return p.cache.Get(ctx, reference)
	}

	name := filepath.Base(filepath.Clean(reference))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid asset reference %q", reference)
	}
	return filepath.Join(p.soundsDir, name), nil
}
