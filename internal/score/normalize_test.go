package score

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestNormalizeCoercesTrackNames(t *testing.T) {
	raw := []byte(`{
		"tempo_bpm": 120,
		"tracks": [
			{"name": 12345, "notes": []},
			{"name": null, "notes": []}
		]
	}`)
	s, err := DecodeStrict(raw)
	require.NoError(t, err)

	out := Normalize(s)
	assert.Equal(t, "12345", out.Tracks[0].Name)
	assert.True(t, strings.HasPrefix(out.Tracks[1].Name, "Track"))
	assert.Equal(t, "Trackk1", out.Tracks[1].Name)
}

func TestNormalizeStableIDsAndSorting(t *testing.T) {
	s := &Score{
		TempoBPM: 120,
		Tracks: []Track{{
			Name: "Test",
			Notes: []NoteEvent{
				{Pitch: 60, Start: 1.000000009, Duration: 0.5},
				{Pitch: 58, Start: 0.5, Duration: 0.5},
				{Pitch: 60, Start: 1.0, Duration: 0.5},
			},
		}},
	}

	out := Normalize(s)
	track := out.Tracks[0]

	require.NotEmpty(t, track.ID)
	assert.True(t, strings.HasPrefix(track.ID, "t_"))
	for _, n := range track.Notes {
		assert.True(t, strings.HasPrefix(n.ID, "n_"))
	}

	// 1.000000009 rounds onto 1.0 at 6 decimals
	assert.Equal(t, 1.0, track.Notes[1].Start)
	assert.Equal(t, 1.0, track.Notes[2].Start)

	// sorted by (start, pitch, ...)
	assert.Equal(t, 58, track.Notes[0].Pitch)
	assert.Equal(t, 0.5, track.Notes[0].Start)
	assert.Equal(t, 1.0, track.Notes[1].Start)
	assert.Equal(t, 1.0, track.Notes[2].Start)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	s := &Score{
		Tracks: []Track{{
			Name: "Test",
			Notes: []NoteEvent{
				{Pitch: 60, Start: 0, Duration: 1},
				{Pitch: 60, Start: 0, Duration: 1},
				{Pitch: 64, Start: 0.333333333, Duration: 0.25, Velocity: intPtr(90)},
			},
		}},
	}

	once := Normalize(s)
	twice := Normalize(once)

	a, err := EncodeCanonical(once)
	require.NoError(t, err)
	b, err := EncodeCanonical(twice)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestNormalizeHeaderDefaults(t *testing.T) {
	out := Normalize(&Score{})
	assert.Equal(t, Version, out.Version)
	assert.Equal(t, DefaultTempoBPM, out.TempoBPM)
	assert.Equal(t, DefaultTimeSignature, out.TimeSignature)
}

func TestNormalizeVelocityCoercion(t *testing.T) {
	// absent velocity defaults to 64, out-of-range values clamp
	s := &Score{
		TempoBPM: 100,
		Tracks: []Track{{
			Name: "v",
			Notes: []NoteEvent{
				{Pitch: 60, Start: 0, Duration: 1},
				{Pitch: 61, Start: 1, Duration: 1, Velocity: intPtr(300)},
				{Pitch: 62, Start: 2, Duration: 1, Velocity: intPtr(0)},
			},
		}},
	}
	out := Normalize(s)
	notes := out.Tracks[0].Notes
	assert.Equal(t, 64, *notes[0].Velocity)
	assert.Equal(t, 127, *notes[1].Velocity)
	assert.Equal(t, 1, *notes[2].Velocity)
}

func TestNormalizeDuplicateNotesGetDistinctIDs(t *testing.T) {
	s := &Score{
		TempoBPM: 120,
		Tracks: []Track{{
			Name: "dup",
			Notes: []NoteEvent{
				{Pitch: 60, Start: 0, Duration: 1},
				{Pitch: 60, Start: 0, Duration: 1},
				{Pitch: 60, Start: 0, Duration: 1},
			},
		}},
	}
	out := Normalize(s)
	ids := map[string]bool{}
	for _, n := range out.Tracks[0].Notes {
		require.NotEmpty(t, n.ID)
		ids[n.ID] = true
	}
	assert.Len(t, ids, 3)
}

func TestNoteAndTrackIDsStableAcrossRename(t *testing.T) {
	build := func(name string) *Score {
		return &Score{
			TempoBPM: 120,
			Tracks: []Track{{
				Name: name,
				Notes: []NoteEvent{
					{Pitch: 60, Start: 0, Duration: 0.5},
					{Pitch: 64, Start: 0.5, Duration: 0.5},
				},
			}},
		}
	}

	a := Normalize(build("Lead"))
	b := Normalize(build("Renamed Lead"))

	assert.Equal(t, a.Tracks[0].ID, b.Tracks[0].ID)
	for i := range a.Tracks[0].Notes {
		assert.Equal(t, a.Tracks[0].Notes[i].ID, b.Tracks[0].Notes[i].ID)
	}

	// a pitch edit must change the note id
	c := build("Lead")
	c.Tracks[0].Notes[0].Pitch = 61
	cn := Normalize(c)
	assert.NotEqual(t, a.Tracks[0].Notes[0].ID, cn.Tracks[0].Notes[0].ID)
}

func TestNormalizeKeepsExistingIDs(t *testing.T) {
	s := &Score{
		TempoBPM: 120,
		Tracks: []Track{{
			ID:   "t_custom",
			Name: "keep",
			Notes: []NoteEvent{
				{ID: "n_custom", Pitch: 60, Start: 0, Duration: 1},
			},
		}},
	}
	out := Normalize(s)
	assert.Equal(t, "t_custom", out.Tracks[0].ID)
	assert.Equal(t, "n_custom", out.Tracks[0].Notes[0].ID)
}
