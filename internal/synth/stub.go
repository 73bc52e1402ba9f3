package synth

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/zzn199216/hum2song-webui/internal/logger"
	"github.com/zzn199216/hum2song-webui/internal/midifile"
	"github.com/zzn199216/hum2song-webui/internal/models"
	"github.com/zzn199216/hum2song-webui/internal/score"
)

// stubTailSeconds pads the render so the final note does not end on the
// very last sample.
const stubTailSeconds = 0.05

// Stub renders MIDI without fluidsynth: wav output is a sine mix of the
// file's notes, mp3 output is an ID3-tagged placeholder body.
type Stub struct {
	OutputDir string
}

// NewStub builds the binary-free synthesizer adapter.
func NewStub(outputDir string) *Stub {
	return &Stub{OutputDir: outputDir}
}

// Render decodes midiPath and writes `{OutputDir}/{id}.{format}`.
func (s *Stub) Render(ctx context.Context, midiPath string, format models.OutputFormat, gain float64) (string, error) {
	sc, err := midifile.DecodeFile(midiPath)
	if err != nil {
		return "", fmt.Errorf("decode %s for stub render: %w", filepath.Base(midiPath), err)
	}

	id := strings.TrimSuffix(filepath.Base(midiPath), filepath.Ext(midiPath))

	if format == models.FormatMP3 {
		mp3Path := filepath.Join(s.OutputDir, id+".mp3")
		logger.Log.Warn("Stub synthesizer active, writing placeholder mp3", logger.WithPath(mp3Path))

		body := append([]byte("ID3"), make([]byte, 1024)...)
		if err := os.WriteFile(mp3Path, body, 0o644); err != nil {
			return "", fmt.Errorf("write stub mp3: %w", err)
		}
		return mp3Path, nil
	}

	wavPath := filepath.Join(s.OutputDir, id+".wav")
	logger.Log.Warn("Stub synthesizer active, rendering sine mix", logger.WithPath(wavPath))

	if err := writeStubWav(wavPath, renderSines(sc, gain)); err != nil {
		return "", err
	}
	return wavPath, nil
}

// renderSines mixes every note of the score into a mono sample stream at
// renderSampleRate, scaled by gain and clamped to [-1, 1].
func renderSines(sc *score.Score, gain float64) []float64 {
	end := 0.0
	for ti := range sc.Tracks {
		for ni := range sc.Tracks[ti].Notes {
			if e := sc.Tracks[ti].Notes[ni].End(); e > end {
				end = e
			}
		}
	}

	total := int(math.Ceil((end + stubTailSeconds) * renderSampleRate))
	out := make([]float64, total)

	for ti := range sc.Tracks {
		tr := &sc.Tracks[ti]
		for ni := range tr.Notes {
			n := &tr.Notes[ni]

			freq := 440 * math.Pow(2, float64(n.Pitch-69)/12)
			amp := float64(n.VelocityOrDefault()) / 127 * 0.3

			start := int(n.Start * renderSampleRate)
			stop := int(n.End() * renderSampleRate)
			if stop > total {
				stop = total
			}
			for i := start; i < stop; i++ {
				t := float64(i-start) / renderSampleRate
				out[i] += amp * math.Sin(2*math.Pi*freq*t)
			}
		}
	}

	for i := range out {
		out[i] *= gain
		if out[i] > 1 {
			out[i] = 1
		} else if out[i] < -1 {
			out[i] = -1
		}
	}
	return out
}

func writeStubWav(path string, samples []float64) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create stub wav: %w", err)
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: renderSampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		v := int(math.Round(s * 32767))
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		buf.Data[i] = v
	}

	enc := wav.NewEncoder(out, renderSampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		enc.Close()
		out.Close()
		return fmt.Errorf("write stub wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return fmt.Errorf("finalize stub wav: %w", err)
	}
	return out.Close()
}
