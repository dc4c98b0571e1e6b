package audio

import (
	"bytes"
	"fmt"
)

// ValidateAudioData checks that a downloaded payload looks like an audio
// file. Error pages served with a 200 status are rejected.
func ValidateAudioData(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("audio data is empty")
	}

	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if trimmed := bytes.TrimSpace(head); len(trimmed) > 0 && trimmed[0] == '<' {
		return fmt.Errorf("received markup instead of audio")
	}

	switch {
	case bytes.HasPrefix(data, []byte("ID3")):
		return nil
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0: // MPEG frame sync
		return nil
	case bytes.HasPrefix(data, []byte("RIFF")),
		bytes.HasPrefix(data, []byte("OggS")),
		bytes.HasPrefix(data, []byte("fLaC")):
		return nil
	case len(data) >= 8 && bytes.Equal(data[4:8], []byte("ftyp")): // MP4/M4A
		return nil
	}

	return fmt.Errorf("unrecognized audio format")
}
