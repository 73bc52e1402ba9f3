package score

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Version is the canonical score document version.
const Version = 1

// Header defaults applied when a document omits fields.
const (
	DefaultTempoBPM      = 120.0
	DefaultTimeSignature = "4/4"
	DefaultVelocity      = 64
)

// Score is the canonical seconds-based melody document exchanged with
// the editor and cached next to task outputs. Timing lives in absolute
// seconds so the document survives tempo-map loss on MIDI import.
type Score struct {
	Version       int     `json:"version"`
	TempoBPM      float64 `json:"tempo_bpm"`
	TimeSignature string  `json:"time_signature"`
	Tracks        []Track `json:"tracks"`
}

// Track is one instrument line of a score.
type Track struct {
	ID      string      `json:"id,omitempty"`
	Name    string      `json:"name"`
	Program *int        `json:"program,omitempty"`
	Channel *int        `json:"channel,omitempty"`
	Notes   []NoteEvent `json:"notes"`
}

// NoteEvent is a single sounded note.
type NoteEvent struct {
	ID       string  `json:"id,omitempty"`
	Pitch    int     `json:"pitch"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Velocity *int    `json:"velocity,omitempty"`
}

// End returns the note's end time in seconds.
func (n *NoteEvent) End() float64 {
	return n.Start + n.Duration
}

// VelocityOrDefault resolves the effective velocity of a note.
func (n *NoteEvent) VelocityOrDefault() int {
	if n.Velocity == nil {
		return DefaultVelocity
	}
	return *n.Velocity
}

// UnmarshalJSON coerces non-string track names (editors have shipped
// numeric and null names) while still rejecting unknown fields.
func (t *Track) UnmarshalJSON(data []byte) error {
	type alias Track
	aux := struct {
		Name json.RawMessage `json:"name"`
		*alias
	}{alias: (*alias)(t)}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&aux); err != nil {
		return err
	}
	t.Name = coerceString(aux.Name)
	return nil
}

// UnmarshalJSON accepts fractional velocities and truncates them, the
// lenient reading normalization promises.
func (n *NoteEvent) UnmarshalJSON(data []byte) error {
	type alias NoteEvent
	aux := struct {
		Velocity json.RawMessage `json:"velocity"`
		*alias
	}{alias: (*alias)(n)}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&aux); err != nil {
		return err
	}
	if len(aux.Velocity) > 0 && string(aux.Velocity) != "null" {
		var f float64
		if err := json.Unmarshal(aux.Velocity, &f); err != nil {
			return fmt.Errorf("velocity must be numeric: %w", err)
		}
		v := int(f)
		n.Velocity = &v
	}
	return nil
}

// coerceString renders a scalar JSON value as a display string. Null and
// absent become empty.
func coerceString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" {
		return ""
	}
	return trimmed
}

// Clone returns a deep copy safe to mutate independently.
func (s *Score) Clone() *Score {
	out := &Score{
		Version:       s.Version,
		TempoBPM:      s.TempoBPM,
		TimeSignature: s.TimeSignature,
	}
	if s.Tracks != nil {
		out.Tracks = make([]Track, len(s.Tracks))
		for i := range s.Tracks {
			out.Tracks[i] = s.Tracks[i].clone()
		}
	}
	return out
}

func (t Track) clone() Track {
	out := t
	out.Program = cloneIntPtr(t.Program)
	out.Channel = cloneIntPtr(t.Channel)
	if t.Notes != nil {
		out.Notes = make([]NoteEvent, len(t.Notes))
		for i, n := range t.Notes {
			n.Velocity = cloneIntPtr(n.Velocity)
			out.Notes[i] = n
		}
	}
	return out
}

func cloneIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Score validation errors
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

const (
	ErrScoreTempoRange    ValidationError = "score: tempo_bpm must be greater than 0"
	ErrScoreTimeSignature ValidationError = "score: time_signature must look like N/D"
	ErrTrackProgramRange  ValidationError = "score: program must be between 0 and 127"
	ErrTrackChannelRange  ValidationError = "score: channel must be between 0 and 15"
	ErrNotePitchRange     ValidationError = "score: pitch must be between 0 and 127"
	ErrNoteStartNegative  ValidationError = "score: start must be non-negative"
	ErrNoteDurationRange  ValidationError = "score: duration must be greater than 0"
)

// Validate checks model-level ranges. Velocity is not checked here since
// normalization clamps it.
func (s *Score) Validate() error {
	if s.TempoBPM <= 0 {
		return ErrScoreTempoRange
	}
	if s.TimeSignature != "" {
		if _, _, err := ParseTimeSignature(s.TimeSignature); err != nil {
			return err
		}
	}
	for ti := range s.Tracks {
		tr := &s.Tracks[ti]
		if tr.Program != nil && (*tr.Program < 0 || *tr.Program > 127) {
			return fmt.Errorf("track %d: %w", ti, ErrTrackProgramRange)
		}
		if tr.Channel != nil && (*tr.Channel < 0 || *tr.Channel > 15) {
			return fmt.Errorf("track %d: %w", ti, ErrTrackChannelRange)
		}
		for ni := range tr.Notes {
			n := &tr.Notes[ni]
			if n.Pitch < 0 || n.Pitch > 127 {
				return fmt.Errorf("track %d note %d: %w", ti, ni, ErrNotePitchRange)
			}
			if n.Start < 0 {
				return fmt.Errorf("track %d note %d: %w", ti, ni, ErrNoteStartNegative)
			}
			if n.Duration <= 0 {
				return fmt.Errorf("track %d note %d: %w", ti, ni, ErrNoteDurationRange)
			}
		}
	}
	return nil
}

// ParseTimeSignature splits "N/D" into numerator and denominator.
func ParseTimeSignature(ts string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(ts), "/")
	if len(parts) != 2 {
		return 0, 0, ErrScoreTimeSignature
	}
	num, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || num <= 0 {
		return 0, 0, ErrScoreTimeSignature
	}
	den, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || den <= 0 {
		return 0, 0, ErrScoreTimeSignature
	}
	return num, den, nil
}

// NoteCount sums notes across all tracks.
func (s *Score) NoteCount() int {
	total := 0
	for i := range s.Tracks {
		total += len(s.Tracks[i].Notes)
	}
	return total
}
