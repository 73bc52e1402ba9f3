package handlers

import (
	"net/http"
	"os"
	"os/exec"

	"github.com/gin-gonic/gin"

	"github.com/zzn199216/hum2song-webui/internal/synth"
	"github.com/zzn199216/hum2song-webui/internal/version"
)

// Health reports configuration paths and whether the external tools the
// real pipeline needs are actually present. It always returns 200; the
// checks map is what operators alert on.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"env":     h.cfg.AppEnv,
		"version": version.Version,
		"paths": gin.H{
			"upload_dir": h.cfg.UploadDir,
			"output_dir": h.cfg.OutputDir,
			"soundfont":  h.cfg.SoundFontPath,
		},
		"checks": gin.H{
			"upload_dir_exists": dirExists(h.cfg.UploadDir),
			"output_dir_exists": dirExists(h.cfg.OutputDir),
			"soundfont_exists":  fileExists(h.cfg.SoundFontPath),
			"fluidsynth":        synth.CheckFluidsynthAvailable(h.cfg.FluidsynthPath) == nil,
			"ffmpeg":            commandAvailable("ffmpeg"),
		},
	})
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func commandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
