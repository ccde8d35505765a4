package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// loadDCA reads a pre-encoded .dca file into opus frames. DCA is a sequence
// of little-endian int16 frame lengths each followed by that many bytes of
// opus data.
func loadDCA(path string) ([][]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening dca file: %w", err)
	}
	defer file.Close()

	var frames [][]byte
	for {
		var opuslen int16
		err = binary.Read(file, binary.LittleEndian, &opuslen)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return frames, nil
		}
		if err != nil {
			return nil, fmt.Errorf("error reading dca frame length: %w", err)
		}
		if opuslen < 0 {
			return nil, fmt.Errorf("corrupt dca file: negative frame length %d", opuslen)
		}

		frame := make([]byte, opuslen)
		if err := binary.Read(file, binary.LittleEndian, &frame); err != nil {
			return nil, fmt.Errorf("error reading dca frame: %w", err)
		}
		frames = append(frames, frame)
	}
}
