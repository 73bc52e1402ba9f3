package transcribe

import (
	"context"
	"fmt"

	"github.com/zzn199216/hum2song-webui/internal/logger"
	"github.com/zzn199216/hum2song-webui/internal/midifile"
	"github.com/zzn199216/hum2song-webui/internal/score"
)

// Stub writes a fixed four-note C-major arpeggio instead of running a
// model, keeping the pipeline runnable on machines without a transcriber.
type Stub struct {
	OutputDir string
}

// NewStub builds a stub transcriber targeting outputDir.
func NewStub(outputDir string) *Stub {
	return &Stub{OutputDir: outputDir}
}

// Transcribe writes the arpeggio MIDI for the given clean wav and returns
// its path. The wav itself is never read.
func (s *Stub) Transcribe(ctx context.Context, cleanWavPath string) (string, error) {
	midPath := midiTargetPath(s.OutputDir, cleanWavPath)

	logger.Log.Warn("Stub transcriber active, writing fixed arpeggio", logger.WithPath(midPath))
	if err := midifile.EncodeFile(arpeggioScore(), midPath); err != nil {
		return "", fmt.Errorf("write stub midi: %w", err)
	}
	return midPath, nil
}

// arpeggioScore is C4 E4 G4 C5, half a second each at 120 BPM, piano.
func arpeggioScore() *score.Score {
	program := 0
	pitches := []int{60, 64, 67, 72}

	track := score.Track{Program: &program, Notes: make([]score.NoteEvent, 0, len(pitches))}
	for i, pitch := range pitches {
		velocity := 80
		track.Notes = append(track.Notes, score.NoteEvent{
			Pitch:    pitch,
			Start:    float64(i) * 0.5,
			Duration: 0.5,
			Velocity: &velocity,
		})
	}

	return &score.Score{
		Version:       score.Version,
		TempoBPM:      score.DefaultTempoBPM,
		TimeSignature: score.DefaultTimeSignature,
		Tracks:        []score.Track{track},
	}
}
