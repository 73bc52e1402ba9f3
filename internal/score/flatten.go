package score

import (
	"fmt"
)

// Flattened is the simplified editor payload accepted by the MIDI
// export endpoint: one note list per track, camelCase timing fields.
type Flattened struct {
	BPM    float64          `json:"bpm"`
	Tracks []FlattenedTrack `json:"tracks"`
}

// FlattenedTrack carries an optional stable id and its notes.
type FlattenedTrack struct {
	TrackID string          `json:"trackId,omitempty"`
	Notes   []FlattenedNote `json:"notes"`
}

// FlattenedNote uses pointers so missing required fields are
// distinguishable from zero values.
type FlattenedNote struct {
	Pitch       *int     `json:"pitch"`
	StartSec    *float64 `json:"startSec"`
	DurationSec *float64 `json:"durationSec"`
	Velocity    *int     `json:"velocity,omitempty"`
}

// DecodeFlattened parses a flattened payload, rejecting unknown fields.
func DecodeFlattened(data []byte) (*Flattened, error) {
	var f Flattened
	if err := strictJSON.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode flattened score: %w", err)
	}
	return &f, nil
}

// FromFlattened converts a flattened payload into a Score. bpm must be
// positive and every note needs pitch, startSec and durationSec;
// velocity defaults to 64 and the time signature to 4/4.
func FromFlattened(f *Flattened) (*Score, error) {
	if f.BPM <= 0 {
		return nil, fmt.Errorf("bpm must be a positive number")
	}
	out := &Score{
		Version:       Version,
		TempoBPM:      f.BPM,
		TimeSignature: DefaultTimeSignature,
		Tracks:        make([]Track, 0, len(f.Tracks)),
	}
	for ti, ft := range f.Tracks {
		tr := Track{
			ID:    ft.TrackID,
			Name:  ft.TrackID,
			Notes: make([]NoteEvent, 0, len(ft.Notes)),
		}
		for ni, fn := range ft.Notes {
			if fn.Pitch == nil {
				return nil, fmt.Errorf("track %d note %d: pitch is required", ti, ni)
			}
			if fn.StartSec == nil {
				return nil, fmt.Errorf("track %d note %d: startSec is required", ti, ni)
			}
			if fn.DurationSec == nil {
				return nil, fmt.Errorf("track %d note %d: durationSec is required", ti, ni)
			}
			velocity := DefaultVelocity
			if fn.Velocity != nil {
				velocity = *fn.Velocity
			}
			tr.Notes = append(tr.Notes, NoteEvent{
				Pitch:    *fn.Pitch,
				Start:    *fn.StartSec,
				Duration: *fn.DurationSec,
				Velocity: &velocity,
			})
		}
		out.Tracks = append(out.Tracks, tr)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
