package audio

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/zzn199216/hum2song-webui/internal/logger"
	"go.uber.org/zap"
)

// peakTarget is the post-normalization peak amplitude.
const peakTarget = 0.99

// Preprocessor turns an arbitrary uploaded recording into the mono 16-bit
// PCM wav the transcriber expects: decode, truncate, downmix, resample,
// peak-normalize.
type Preprocessor struct {
	MaxSeconds int
	SampleRate int
}

// NewPreprocessor builds a preprocessor for the configured duration cap
// and target sample rate.
func NewPreprocessor(maxSeconds, sampleRate int) *Preprocessor {
	return &Preprocessor{MaxSeconds: maxSeconds, SampleRate: sampleRate}
}

// Clean writes `{id}_clean.wav` next to the input and returns its path.
// Wav inputs are decoded natively; everything else goes through ffmpeg
// first.
func (p *Preprocessor) Clean(ctx context.Context, inputPath string) (string, error) {
	dir := filepath.Dir(inputPath)
	ext := strings.ToLower(filepath.Ext(inputPath))
	id := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	cleanPath := filepath.Join(dir, id+"_clean.wav")

	wavPath := inputPath
	if ext != ".wav" {
		converted := filepath.Join(dir, id+"_converted.wav")
		if err := p.convertToWav(ctx, inputPath, converted); err != nil {
			return "", err
		}
		defer os.Remove(converted)
		wavPath = converted
	}

	buf, bitDepth, err := decodeWav(wavPath)
	if err != nil {
		return "", err
	}

	srcRate := buf.Format.SampleRate
	if srcRate <= 0 {
		return "", fmt.Errorf("wav file %s has no sample rate", filepath.Base(wavPath))
	}

	mono := monoFloat(buf, bitDepth)
	if maxSamples := p.MaxSeconds * srcRate; len(mono) > maxSamples {
		logger.Log.Info("Truncating long input",
			logger.WithPath(inputPath),
			zap.Int("max_seconds", p.MaxSeconds),
		)
		mono = mono[:maxSamples]
	}

	mono = resampleLinear(mono, srcRate, p.SampleRate)
	normalizePeak(mono)

	if err := writeWav16(cleanPath, mono, p.SampleRate); err != nil {
		return "", err
	}
	return cleanPath, nil
}

// convertToWav shells out to ffmpeg for non-wav inputs, trimming and
// downmixing on the way.
func (p *Preprocessor) convertToWav(ctx context.Context, inputPath, outputPath string) error {
	args := []string{
		"-t", strconv.Itoa(p.MaxSeconds),
		"-i", inputPath,
		"-ac", "1",
		"-ar", strconv.Itoa(p.SampleRate),
		"-f", "wav",
		"-y",
		outputPath,
	}
	if err := runCmd(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("convert %s to wav: %w", filepath.Base(inputPath), err)
	}
	return nil
}

func decodeWav(path string) (*audio.IntBuffer, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("not a valid wav file: %s", filepath.Base(path))
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, 0, fmt.Errorf("wav file %s holds no samples", filepath.Base(path))
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	return buf, depth, nil
}

// monoFloat converts interleaved integer frames to a mono float stream
// in [-1, 1].
func monoFloat(buf *audio.IntBuffer, bitDepth int) []float64 {
	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	scale := float64(int(1) << (bitDepth - 1))

	frames := len(buf.Data) / channels
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}
		mono[i] = sum / float64(channels) / scale
	}
	return mono
}

func resampleLinear(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(dstRate) / float64(srcRate)
	outLen := int(float64(len(samples)) * ratio)
	if outLen == 0 {
		outLen = 1
	}

	out := make([]float64, outLen)
	for i := range out {
		pos := float64(i) / ratio
		i0 := int(pos)
		if i0 >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(i0)
		out[i] = samples[i0]*(1-frac) + samples[i0+1]*frac
	}
	return out
}

// normalizePeak scales in place so the loudest sample sits at peakTarget.
// Silent input is left alone.
func normalizePeak(samples []float64) {
	peak := 0.0
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		logger.Log.Warn("Input audio is silent, skipping normalization")
		return
	}

	scale := peakTarget / peak
	for i := range samples {
		samples[i] *= scale
	}
}

func writeWav16(path string, samples []float64, sampleRate int) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create clean wav: %w", err)
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
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

	enc := wav.NewEncoder(out, sampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		enc.Close()
		out.Close()
		return fmt.Errorf("write clean wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return fmt.Errorf("finalize clean wav: %w", err)
	}
	return out.Close()
}
