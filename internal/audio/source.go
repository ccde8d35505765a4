// Package audio turns an intro's asset reference into a finite stream of
// opus frames ready to send over a voice connection. Local .dca files load
// straight into frames; everything else is decoded by ffmpeg to PCM, gain
// adjusted and opus encoded. Remote references are fetched once and cached
// on disk, content-addressed by reference.
package audio

import "io"

const (
	channels   = 2
	sampleRate = 48000
	frameSize  = 960 // 20ms at 48kHz
)

// Source is a finite, single-pass stream of opus frames. Next returns io.EOF
// after the last frame. Sources are not restartable; open a new one per
// playback.
type Source interface {
	Next() ([]byte, error)
	Close() error
}

// frameSource serves preloaded frames, used for .dca assets.
type frameSource struct {
	frames [][]byte
	pos    int
}

func (s *frameSource) Next() ([]byte, error) {
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	frame := s.frames[s.pos]
	s.pos++
	return frame, nil
}

func (s *frameSource) Close() error { return nil }
