package score

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// idHashLen is the number of hex characters kept from the content hash.
const idHashLen = 10

// roundDigits is the timing precision normalization enforces.
const roundDigits = 1e6

// Normalize returns a canonical copy of s: header defaults filled, track
// names coerced to non-empty strings, timing rounded to 6 decimals,
// velocities resolved into [1,127], missing ids derived from content
// hashes, and notes sorted by (start, pitch, duration, velocity, id).
// Normalizing twice yields byte-identical canonical JSON.
func Normalize(s *Score) *Score {
	out := s.Clone()
	if out.Version == 0 {
		out.Version = Version
	}
	if out.TempoBPM <= 0 {
		out.TempoBPM = DefaultTempoBPM
	}
	if strings.TrimSpace(out.TimeSignature) == "" {
		out.TimeSignature = DefaultTimeSignature
	}

	for i := range out.Tracks {
		tr := &out.Tracks[i]
		if strings.TrimSpace(tr.Name) == "" {
			tr.Name = fmt.Sprintf("Trackk%d", i)
		}
		for j := range tr.Notes {
			n := &tr.Notes[j]
			n.Start = roundTime(n.Start)
			n.Duration = roundTime(n.Duration)
			v := clampInt(n.VelocityOrDefault(), 1, 127)
			n.Velocity = &v
		}
		fillNoteIDs(tr.Notes)
		sortNotes(tr.Notes)
	}
	fillTrackIDs(out.Tracks)
	return out
}

// fillNoteIDs assigns content-derived ids to notes that lack one. The id
// hashes the fields that define the note musically, so it survives track
// renames but changes when timing or pitch is edited. Identical notes
// within a track are disambiguated by an occurrence counter folded into
// the hash input.
func fillNoteIDs(notes []NoteEvent) {
	seen := make(map[string]int)
	for i := range notes {
		n := &notes[i]
		if n.ID != "" {
			continue
		}
		base := fmt.Sprintf("%d|%s|%s|%d",
			n.Pitch, formatTime(n.Start), formatTime(n.Duration), n.VelocityOrDefault())
		occ := seen[base]
		seen[base] = occ + 1
		n.ID = "n_" + contentHash(base, occ)
	}
}

// fillTrackIDs derives track ids from the ids of their (already sorted)
// notes. The track name deliberately stays out of the hash.
func fillTrackIDs(tracks []Track) {
	seen := make(map[string]int)
	for i := range tracks {
		tr := &tracks[i]
		if tr.ID != "" {
			continue
		}
		ids := make([]string, len(tr.Notes))
		for j := range tr.Notes {
			ids[j] = tr.Notes[j].ID
		}
		base := strings.Join(ids, ",")
		occ := seen[base]
		seen[base] = occ + 1
		tr.ID = "t_" + contentHash(base, occ)
	}
}

func contentHash(base string, occurrence int) string {
	if occurrence > 0 {
		base = fmt.Sprintf("%s|%d", base, occurrence)
	}
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])[:idHashLen]
}

func sortNotes(notes []NoteEvent) {
	sort.SliceStable(notes, func(a, b int) bool {
		na, nb := &notes[a], &notes[b]
		if na.Start != nb.Start {
			return na.Start < nb.Start
		}
		if na.Pitch != nb.Pitch {
			return na.Pitch < nb.Pitch
		}
		if na.Duration != nb.Duration {
			return na.Duration < nb.Duration
		}
		if na.VelocityOrDefault() != nb.VelocityOrDefault() {
			return na.VelocityOrDefault() < nb.VelocityOrDefault()
		}
		return na.ID < nb.ID
	})
}

func roundTime(v float64) float64 {
	return math.Round(v*roundDigits) / roundDigits
}

func formatTime(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
