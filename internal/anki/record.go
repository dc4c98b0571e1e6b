package anki

import (
	"fmt"
	"strings"

	"codeberg.org/snonux/danskrecall/internal/batch"
)

// EnrichedRecord is an input row together with its local audio file
type EnrichedRecord struct {
	batch.VocabRecord
	AudioFilename string // Empty when no audio could be obtained
}

// Enrich attaches audioFilename to record. An empty filename leaves the
// audio field blank.
func Enrich(record batch.VocabRecord, audioFilename string) EnrichedRecord {
	return EnrichedRecord{
		VocabRecord:   record,
		AudioFilename: audioFilename,
	}
}

// AudioField returns the Anki sound reference, e.g. [sound:hus.mp3]
func (r EnrichedRecord) AudioField() string {
	return formatAudioField(r.AudioFilename)
}

// Front renders the question side of the ready-to-import card
func (r EnrichedRecord) Front() string {
	parts := []string{"<b>" + r.Word + "</b>"}
	if audio := r.AudioField(); audio != "" {
		parts = append(parts, audio)
	}
	parts = append(parts, r.ExampleSentenceDanish)
	return strings.Join(parts, "<br>")
}

// Back renders the answer side of the ready-to-import card
func (r EnrichedRecord) Back() string {
	return fmt.Sprintf("%s<br><span style='color:gray;'>%s</span><br><i><b>Forms:</b> %s</i>",
		r.Meaning, r.ExampleTranslationEnglish, r.Forms)
}

// formatAudioField formats the audio file reference for Anki
func formatAudioField(audioFile string) string {
	if audioFile == "" {
		return ""
	}
	return fmt.Sprintf("[sound:%s]", audioFile)
}
