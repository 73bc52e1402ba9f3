package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zzn199216/hum2song-webui/internal/logger"
	"go.uber.org/zap"
)

// Layout owns every path the pipeline touches:
//
//	{upload_dir}/{id}{ext}           raw upload, deleted at pipeline end
//	{upload_dir}/{id}_clean.wav      intermediate clean audio
//	{output_dir}/{id}.mid            canonical MIDI
//	{output_dir}/{id}.{mp3|wav}      canonical audio
//	{output_dir}/{id}.score.json     cached normalized score
//	{artifacts_dir}/{id}.{ext}       final bound audio
type Layout struct {
	UploadDir    string
	OutputDir    string
	ArtifactsDir string
}

// NewLayout builds a layout over already-resolved absolute directories.
func NewLayout(uploadDir, outputDir, artifactsDir string) *Layout {
	return &Layout{
		UploadDir:    uploadDir,
		OutputDir:    outputDir,
		ArtifactsDir: artifactsDir,
	}
}

// EnsureDirs creates the managed directories if they do not exist.
func (l *Layout) EnsureDirs() error {
	for _, dir := range []string{l.UploadDir, l.OutputDir, l.ArtifactsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// UploadPath is where a raw upload lands, keeping the client extension.
func (l *Layout) UploadPath(id, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(l.UploadDir, id+ext)
}

// CleanWavPath is the preprocessed mono wav for a task.
func (l *Layout) CleanWavPath(id string) string {
	return filepath.Join(l.UploadDir, id+"_clean.wav")
}

// MIDIPath is the canonical MIDI output for a task.
func (l *Layout) MIDIPath(id string) string {
	return filepath.Join(l.OutputDir, id+".mid")
}

// AudioPath is the rendered audio in the output dir, format without dot.
func (l *Layout) AudioPath(id, format string) string {
	return filepath.Join(l.OutputDir, fmt.Sprintf("%s.%s", id, format))
}

// ScoreCachePath is the cached normalized score for a task.
func (l *Layout) ScoreCachePath(id string) string {
	return filepath.Join(l.OutputDir, id+".score.json")
}

// ArtifactPath is the final bound audio location, format without dot.
func (l *Layout) ArtifactPath(id, format string) string {
	return filepath.Join(l.ArtifactsDir, fmt.Sprintf("%s.%s", id, format))
}

// Move renames src to dst, falling back to copy+remove when rename fails
// (uploads and artifacts may sit on different filesystems).
func (l *Layout) Move(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// SafeRemove deletes a file and never fails; missing files are fine.
func (l *Layout) SafeRemove(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Log.Warn("Failed to remove file", logger.WithPath(path), zap.Error(err))
	}
}

// CleanupOld removes files in dir older than maxAge, skipping
// subdirectories and .gitkeep markers. Returns how many were removed.
func (l *Layout) CleanupOld(dir string, maxAge time.Duration) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Log.Warn("Cleanup scan failed", logger.WithPath(dir), zap.Error(err))
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == ".gitkeep" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy contents: %w", err)
	}
	return out.Close()
}
