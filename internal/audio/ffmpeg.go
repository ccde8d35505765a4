package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"

	"layeh.com/gopus"
)

// ffmpegSource decodes a file through an ffmpeg child process to s16le PCM,
// applies gain and encodes each 20ms frame to opus on demand.
type ffmpegSource struct {
	cmd     *exec.Cmd
	out     io.ReadCloser
	encoder *gopus.Encoder
	gain    float64
	pcmBuf  []byte
	intBuf  []int16
	done    bool
}

func newFFmpegSource(path string, gain float64) (*ffmpegSource, error) {
	cmd := exec.Command("ffmpeg",
		"-i", path,
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
		"-loglevel", "warning",
		"pipe:1",
	)

	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe error: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}

	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("encoder error: %w", err)
	}

	return &ffmpegSource{
		cmd:     cmd,
		out:     out,
		encoder: encoder,
		gain:    gain,
		pcmBuf:  make([]byte, frameSize*channels*2),
		intBuf:  make([]int16, frameSize*channels),
	}, nil
}

func (s *ffmpegSource) Next() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}

	_, err := io.ReadFull(s.out, s.pcmBuf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		s.done = true
		_ = s.cmd.Wait()
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("pcm read error: %w", err)
	}

	for i := range s.intBuf {
		s.intBuf[i] = int16(binary.LittleEndian.Uint16(s.pcmBuf[i*2 : i*2+2]))
	}
	applyGain(s.intBuf, s.gain)

	opus, err := s.encoder.Encode(s.intBuf, frameSize, len(s.pcmBuf))
	if err != nil {
		return nil, fmt.Errorf("encode error: %w", err)
	}
	return opus, nil
}

func (s *ffmpegSource) Close() error {
	s.out.Close()
	if !s.done {
		if err := s.cmd.Process.Kill(); err != nil {
			return err
		}
		_ = s.cmd.Wait()
		s.done = true
	}
	return nil
}
