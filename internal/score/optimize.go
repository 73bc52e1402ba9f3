package score

import (
	"math"
	"sort"
)

// QuantizeMode selects how grid quantization maps times onto the grid.
type QuantizeMode string

const (
	QuantizeNearest QuantizeMode = "nearest"
	QuantizeFloor   QuantizeMode = "floor"
	QuantizeCeil    QuantizeMode = "ceil"
)

// Options configures the optimizer passes. Zero values disable a pass,
// so the zero Options is the conservative cleanup that only removes
// structurally invalid notes.
type Options struct {
	// GridDiv is the number of grid subdivisions per beat; 0 disables
	// quantization.
	GridDiv      int
	QuantizeMode QuantizeMode

	// Pitch clamping is active when MaxPitch > 0.
	MinPitch int
	MaxPitch int

	// VelocityTarget forces a uniform velocity when > 0.
	VelocityTarget int

	// Noise thresholds drop notes strictly below them; 0 disables.
	NoiseMinDuration float64
	NoiseMinVelocity int

	MergeSamePitchOverlaps bool
	MergeGapTolerance      float64

	MakeMonophonic bool
}

// Preset names understood by the optimizer and the CLI.
const (
	PresetSafe   = "safe"
	PresetStrong = "strong"
)

// PresetOptions returns the options behind a named preset. Safe is the
// default: it never reorders, merges or retimes notes. Strong is the
// aggressive cleanup used on raw transcriptions.
func PresetOptions(name string) (Options, bool) {
	switch name {
	case PresetSafe, "":
		return Options{}, true
	case PresetStrong:
		return Options{
			GridDiv:                4,
			QuantizeMode:           QuantizeNearest,
			MinPitch:               48,
			MaxPitch:               84,
			NoiseMinDuration:       0.03,
			NoiseMinVelocity:       25,
			MergeSamePitchOverlaps: true,
			MakeMonophonic:         true,
		}, true
	}
	return Options{}, false
}

// Optimize applies the configured cleanup passes to a copy of s. Pass
// order: drop invalid, noise filter, quantize, pitch clamp, velocity
// coercion, same-pitch merge, monophonic reduction, stable (start,
// pitch) sort.
func Optimize(s *Score, opts Options) *Score {
	out := s.Clone()
	bpm := out.TempoBPM
	if bpm <= 0 {
		bpm = DefaultTempoBPM
	}
	for i := range out.Tracks {
		notes := out.Tracks[i].Notes
		notes = dropInvalid(notes)
		notes = noiseFilter(notes, opts)
		notes = quantize(notes, bpm, opts)
		clampPitches(notes, opts)
		coerceVelocities(notes, opts)
		if opts.MergeSamePitchOverlaps {
			notes = mergeSamePitch(notes, opts.MergeGapTolerance)
		}
		if opts.MakeMonophonic {
			notes = monophonic(notes)
		}
		sort.SliceStable(notes, func(a, b int) bool {
			if notes[a].Start != notes[b].Start {
				return notes[a].Start < notes[b].Start
			}
			return notes[a].Pitch < notes[b].Pitch
		})
		out.Tracks[i].Notes = notes
	}
	return out
}

func dropInvalid(notes []NoteEvent) []NoteEvent {
	kept := notes[:0]
	for _, n := range notes {
		if n.Duration <= 0 || n.Start < 0 {
			continue
		}
		kept = append(kept, n)
	}
	return kept
}

func noiseFilter(notes []NoteEvent, opts Options) []NoteEvent {
	if opts.NoiseMinDuration <= 0 && opts.NoiseMinVelocity <= 0 {
		return notes
	}
	kept := notes[:0]
	for _, n := range notes {
		if opts.NoiseMinDuration > 0 && n.Duration < opts.NoiseMinDuration {
			continue
		}
		if opts.NoiseMinVelocity > 0 && n.VelocityOrDefault() < opts.NoiseMinVelocity {
			continue
		}
		kept = append(kept, n)
	}
	return kept
}

func quantize(notes []NoteEvent, bpm float64, opts Options) []NoteEvent {
	if opts.GridDiv <= 0 {
		return notes
	}
	step := (60.0 / bpm) / float64(opts.GridDiv)
	for i := range notes {
		n := &notes[i]
		qStart := snap(n.Start, step, opts.QuantizeMode)
		qEnd := snap(n.End(), step, opts.QuantizeMode)
		if qEnd <= qStart {
			qEnd = qStart + step
		}
		n.Start = qStart
		n.Duration = qEnd - qStart
	}
	return notes
}

func snap(v, step float64, mode QuantizeMode) float64 {
	switch mode {
	case QuantizeFloor:
		return math.Floor(v/step) * step
	case QuantizeCeil:
		return math.Ceil(v/step) * step
	default:
		return math.Round(v/step) * step
	}
}

func clampPitches(notes []NoteEvent, opts Options) {
	if opts.MaxPitch <= 0 {
		return
	}
	for i := range notes {
		notes[i].Pitch = clampInt(notes[i].Pitch, opts.MinPitch, opts.MaxPitch)
	}
}

func coerceVelocities(notes []NoteEvent, opts Options) {
	if opts.VelocityTarget <= 0 {
		return
	}
	target := clampInt(opts.VelocityTarget, 1, 127)
	for i := range notes {
		v := target
		notes[i].Velocity = &v
	}
}

// mergeSamePitch combines same-pitch notes whose intervals overlap or
// sit within gapTol seconds: start=min, end=max, velocity=max. The
// earlier note's id survives.
func mergeSamePitch(notes []NoteEvent, gapTol float64) []NoteEvent {
	if len(notes) < 2 {
		return notes
	}
	sort.SliceStable(notes, func(a, b int) bool {
		if notes[a].Pitch != notes[b].Pitch {
			return notes[a].Pitch < notes[b].Pitch
		}
		return notes[a].Start < notes[b].Start
	})
	merged := notes[:0]
	cur := notes[0]
	for _, n := range notes[1:] {
		if n.Pitch == cur.Pitch && n.Start <= cur.End()+gapTol {
			end := math.Max(cur.End(), n.End())
			cur.Duration = end - cur.Start
			if n.VelocityOrDefault() > cur.VelocityOrDefault() {
				cur.Velocity = n.Velocity
			}
			continue
		}
		merged = append(merged, cur)
		cur = n
	}
	merged = append(merged, cur)
	return merged
}

// monophonic removes polyphony: by (start, -velocity) order, notes fully
// covered by the running lastEnd cursor are dropped, and overlapping
// notes have their start pulled forward to lastEnd.
func monophonic(notes []NoteEvent) []NoteEvent {
	if len(notes) < 2 {
		return notes
	}
	sort.SliceStable(notes, func(a, b int) bool {
		if notes[a].Start != notes[b].Start {
			return notes[a].Start < notes[b].Start
		}
		return notes[a].VelocityOrDefault() > notes[b].VelocityOrDefault()
	})
	kept := notes[:0]
	lastEnd := 0.0
	for _, n := range notes {
		end := n.End()
		if end <= lastEnd {
			continue
		}
		if n.Start < lastEnd {
			n.Start = lastEnd
			n.Duration = end - n.Start
		}
		kept = append(kept, n)
		lastEnd = end
	}
	return kept
}
