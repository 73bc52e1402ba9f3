// Package transcribe turns clean mono wav recordings into MIDI. Two
// adapters exist: a deterministic stub and a wrapper around an external
// transcriber binary.
package transcribe

import (
	"path/filepath"
	"strings"
)

// midiTargetPath maps {id}_clean.wav onto {outputDir}/{id}.mid.
func midiTargetPath(outputDir, wavPath string) string {
	base := strings.TrimSuffix(filepath.Base(wavPath), filepath.Ext(wavPath))
	base = strings.TrimSuffix(base, "_clean")
	return filepath.Join(outputDir, base+".mid")
}
