package midifile

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/zzn199216/hum2song-webui/internal/score"
)

// ticksPerQuarter is the resolution used for written files (standard
// sequencer resolution).
const ticksPerQuarter = 480

// tempoChange is one entry of a file's tempo map.
type tempoChange struct {
	tick uint32
	bpm  float64
}

// tempoMap converts absolute ticks to seconds by piecewise integration,
// so files with mid-stream tempo changes decode with correct timing.
type tempoMap struct {
	changes []tempoChange
	tpq     float64
}

func newTempoMap(changes []tempoChange, tpq uint32) *tempoMap {
	sorted := make([]tempoChange, len(changes))
	copy(sorted, changes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].tick < sorted[j].tick })
	if len(sorted) == 0 || sorted[0].tick > 0 {
		sorted = append([]tempoChange{{tick: 0, bpm: score.DefaultTempoBPM}}, sorted...)
	}
	return &tempoMap{changes: sorted, tpq: float64(tpq)}
}

func (m *tempoMap) seconds(tick uint32) float64 {
	var total float64
	for i := range m.changes {
		start := m.changes[i].tick
		if start >= tick {
			break
		}
		end := tick
		if i+1 < len(m.changes) && m.changes[i+1].tick < tick {
			end = m.changes[i+1].tick
		}
		total += float64(end-start) / m.tpq * 60.0 / m.changes[i].bpm
	}
	return total
}

// timedEvent is a note event lifted out of its track with an absolute
// tick, so pairing can run across tracks in global time order.
type timedEvent struct {
	tick     uint32
	channel  uint8
	pitch    uint8
	velocity uint8
	on       bool
}

// Decode parses Standard MIDI File bytes into a canonical score. Notes
// are paired per (channel, pitch) with note-on velocity 0 treated as
// note-off, zero-length notes dropped, unclosed notes closed at the
// final tick, and the earliest note shifted to start at zero. Each used
// channel becomes one track named ch{n} carrying the channel's last
// program change.
func Decode(data []byte) (*score.Score, error) {
	f, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse midi file: %w", err)
	}

	tpq := uint32(ticksPerQuarter)
	if mt, ok := f.TimeFormat.(smf.MetricTicks); ok {
		tpq = uint32(mt)
	}

	var (
		tempoChanges []tempoChange
		events       []timedEvent
		finalTick    uint32
		timeSig      string
		programs     = make(map[uint8]uint8)
		programTicks = make(map[uint8]uint32)
	)

	for _, track := range f.Tracks {
		var absTick uint32
		for _, ev := range track {
			absTick += ev.Delta
			if absTick > finalTick {
				finalTick = absTick
			}

			var bpm float64
			if ev.Message.GetMetaTempo(&bpm) && bpm > 0 {
				tempoChanges = append(tempoChanges, tempoChange{tick: absTick, bpm: bpm})
				continue
			}

			var num, denomPow, clocks, demi uint8
			if ev.Message.GetMetaTimeSig(&num, &denomPow, &clocks, &demi) {
				if timeSig == "" {
					timeSig = fmt.Sprintf("%d/%d", num, 1<<denomPow)
				}
				continue
			}

			var channel, pitch, velocity uint8
			if ev.Message.GetNoteOn(&channel, &pitch, &velocity) {
				events = append(events, timedEvent{
					tick: absTick, channel: channel, pitch: pitch,
					velocity: velocity, on: velocity > 0,
				})
				continue
			}
			if ev.Message.GetNoteOff(&channel, &pitch, &velocity) {
				events = append(events, timedEvent{
					tick: absTick, channel: channel, pitch: pitch,
				})
				continue
			}

			var program uint8
			if ev.Message.GetProgramChange(&channel, &program) {
				if prev, ok := programTicks[channel]; !ok || absTick >= prev {
					programs[channel] = program
					programTicks[channel] = absTick
				}
			}
		}
	}

	tm := newTempoMap(tempoChanges, tpq)
	notes := pairNotes(events, finalTick)

	out := &score.Score{
		Version:       score.Version,
		TempoBPM:      score.DefaultTempoBPM,
		TimeSignature: score.DefaultTimeSignature,
	}
	if len(tempoChanges) > 0 {
		first := tempoChanges[0]
		for _, tc := range tempoChanges[1:] {
			if tc.tick < first.tick {
				first = tc
			}
		}
		out.TempoBPM = first.bpm
	}
	if timeSig != "" {
		out.TimeSignature = timeSig
	}
	out.Tracks = buildTracks(notes, tm, programs)
	return out, nil
}

// pairedNote is a matched note-on/off in tick space.
type pairedNote struct {
	channel  uint8
	pitch    uint8
	velocity uint8
	onTick   uint32
	offTick  uint32
	seq      int
}

// pairNotes matches note-ons to their releases in global tick order.
// Overlapping same-pitch notes close oldest first.
func pairNotes(events []timedEvent, finalTick uint32) []pairedNote {
	sort.SliceStable(events, func(i, j int) bool { return events[i].tick < events[j].tick })

	type key struct {
		channel uint8
		pitch   uint8
	}
	open := make(map[key][]pairedNote)
	var done []pairedNote
	seq := 0

	for _, ev := range events {
		k := key{ev.channel, ev.pitch}
		if ev.on {
			open[k] = append(open[k], pairedNote{
				channel: ev.channel, pitch: ev.pitch,
				velocity: ev.velocity, onTick: ev.tick, seq: seq,
			})
			seq++
			continue
		}
		queue := open[k]
		if len(queue) == 0 {
			continue
		}
		note := queue[0]
		open[k] = queue[1:]
		note.offTick = ev.tick
		if note.offTick > note.onTick {
			done = append(done, note)
		}
	}

	// close anything still sounding at the end of the file
	for _, queue := range open {
		for _, note := range queue {
			note.offTick = finalTick
			if note.offTick > note.onTick {
				done = append(done, note)
			}
		}
	}

	sort.SliceStable(done, func(i, j int) bool {
		if done[i].onTick != done[j].onTick {
			return done[i].onTick < done[j].onTick
		}
		return done[i].seq < done[j].seq
	})
	return done
}

func buildTracks(notes []pairedNote, tm *tempoMap, programs map[uint8]uint8) []score.Track {
	if len(notes) == 0 {
		return nil
	}

	shift := math.Inf(1)
	starts := make([]float64, len(notes))
	ends := make([]float64, len(notes))
	for i, n := range notes {
		starts[i] = tm.seconds(n.onTick)
		ends[i] = tm.seconds(n.offTick)
		if starts[i] < shift {
			shift = starts[i]
		}
	}

	byChannel := make(map[uint8][]score.NoteEvent)
	for i, n := range notes {
		velocity := int(n.velocity)
		byChannel[n.channel] = append(byChannel[n.channel], score.NoteEvent{
			Pitch:    int(n.pitch),
			Start:    starts[i] - shift,
			Duration: ends[i] - starts[i],
			Velocity: &velocity,
		})
	}

	channels := make([]int, 0, len(byChannel))
	for ch := range byChannel {
		channels = append(channels, int(ch))
	}
	sort.Ints(channels)

	tracks := make([]score.Track, 0, len(channels))
	for _, ch := range channels {
		chVal := ch
		tr := score.Track{
			Name:    fmt.Sprintf("ch%d", ch),
			Channel: &chVal,
			Notes:   byChannel[uint8(ch)],
		}
		if program, ok := programs[uint8(ch)]; ok {
			p := int(program)
			tr.Program = &p
		}
		tracks = append(tracks, tr)
	}
	return tracks
}

// Encode writes a score as a format-1 SMF. Track 0 carries the tempo and
// time signature at tick 0; each score track becomes one SMF track with
// its sequence name, an optional program change, and note pairs in
// ascending start order. Timing maps through the score's single tempo at
// 480 ticks per quarter.
func Encode(sc *score.Score) ([]byte, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	bpm := sc.TempoBPM
	if bpm <= 0 {
		bpm = score.DefaultTempoBPM
	}
	num, den := 4, 4
	if sc.TimeSignature != "" {
		if n, d, err := score.ParseTimeSignature(sc.TimeSignature); err == nil {
			num, den = n, d
		}
	}
	denomPower := uint8(0)
	for d := den; d > 1; d /= 2 {
		denomPower++
	}

	f := smf.New()
	f.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	var meta smf.Track
	meta.Add(0, smf.MetaTempo(bpm))
	meta.Add(0, smf.MetaTimeSig(uint8(num), denomPower, 24, 8))
	meta.Close(0)
	f.Add(meta)

	for ti := range sc.Tracks {
		f.Add(encodeTrack(&sc.Tracks[ti], bpm))
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write midi file: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeTrack(tr *score.Track, bpm float64) smf.Track {
	var track smf.Track
	if tr.Name != "" {
		track.Add(0, smf.MetaTrackSequenceName(tr.Name))
	}

	channel := uint8(0)
	if tr.Channel != nil {
		channel = uint8(*tr.Channel)
	}
	if tr.Program != nil {
		track.Add(0, midi.ProgramChange(channel, uint8(*tr.Program)))
	}

	notes := make([]score.NoteEvent, len(tr.Notes))
	copy(notes, tr.Notes)
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].Start != notes[j].Start {
			return notes[i].Start < notes[j].Start
		}
		if notes[i].Pitch != notes[j].Pitch {
			return notes[i].Pitch < notes[j].Pitch
		}
		return notes[i].Duration < notes[j].Duration
	})

	type wireEvent struct {
		tick uint32
		on   bool
		msg  midi.Message
	}
	events := make([]wireEvent, 0, len(notes)*2)
	for i := range notes {
		n := &notes[i]
		onTick := secondsToTicks(n.Start, bpm)
		offTick := secondsToTicks(n.End(), bpm)
		events = append(events,
			wireEvent{tick: onTick, on: true, msg: midi.NoteOn(channel, uint8(n.Pitch), uint8(n.VelocityOrDefault()))},
			wireEvent{tick: offTick, msg: midi.NoteOff(channel, uint8(n.Pitch))},
		)
	}
	// releases before attacks on the same tick so back-to-back notes of
	// one pitch stay two notes
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return !events[i].on && events[j].on
	})

	var lastTick uint32
	for _, ev := range events {
		track.Add(ev.tick-lastTick, ev.msg)
		lastTick = ev.tick
	}
	track.Close(0)
	return track
}

// secondsToTicks converts seconds to absolute ticks at a fixed tempo.
func secondsToTicks(seconds, bpm float64) uint32 {
	return uint32(math.Round(seconds / (60.0 / bpm) * ticksPerQuarter))
}

// DecodeFile reads and decodes a .mid file from disk.
func DecodeFile(path string) (*score.Score, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read midi file: %w", err)
	}
	return Decode(data)
}

// EncodeFile encodes a score and writes it to path.
func EncodeFile(sc *score.Score, path string) error {
	data, err := Encode(sc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write midi file: %w", err)
	}
	return nil
}
