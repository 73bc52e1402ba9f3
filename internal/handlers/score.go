package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zzn199216/hum2song-webui/internal/errors"
	"github.com/zzn199216/hum2song-webui/internal/logger"
	"github.com/zzn199216/hum2song-webui/internal/midifile"
	"github.com/zzn199216/hum2song-webui/internal/models"
	"github.com/zzn199216/hum2song-webui/internal/score"
	"github.com/zzn199216/hum2song-webui/internal/util"
)

// GetScore returns the normalized score of a completed task. The cached
// score json is preferred; a missing or corrupt cache falls back to
// decoding the MIDI artifact and rebuilding the cache.
func (h *Handlers) GetScore(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.ensureCompleted(c, id); !ok {
		return
	}

	if data, err := os.ReadFile(h.layout.ScoreCachePath(id)); err == nil {
		if sc, derr := score.DecodeStrict(data); derr == nil {
			c.JSON(http.StatusOK, score.Normalize(sc))
			return
		} else {
			logger.Log.Warn("Corrupt score cache, re-deriving from MIDI",
				logger.WithTaskID(id), zap.Error(derr))
		}
	}

	sc, ok := h.scoreFromMIDI(c, id)
	if !ok {
		return
	}
	if err := h.writeScoreCache(id, sc); err != nil {
		logger.Log.Warn("Failed to cache score", logger.WithTaskID(id), zap.Error(err))
	}
	c.JSON(http.StatusOK, sc)
}

// PutScore replaces the task's score: the body is strictly decoded,
// normalized, cached, and re-encoded as the MIDI artifact. Note ids are
// reassigned by normalization, hence the reload hint.
func (h *Handlers) PutScore(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.ensureCompleted(c, id); !ok {
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		util.RespondError(c, errors.InvalidInput("failed to read request body"))
		return
	}

	sc, err := score.DecodeStrict(body)
	if err != nil {
		util.RespondError(c, errors.InvalidInput("invalid score payload").WithDetails(err.Error()))
		return
	}
	norm := score.Normalize(sc)

	if err := h.writeScoreCache(id, norm); err != nil {
		logger.Log.Warn("Failed to cache score", logger.WithTaskID(id), zap.Error(err))
	}

	midiPath := h.layout.MIDIPath(id)
	if err := midifile.EncodeFile(norm, midiPath); err != nil {
		logHandlerError("Failed to encode edited score as MIDI", id, err)
		util.RespondError(c, errors.Internal("failed to encode MIDI"))
		return
	}

	if err := h.store.AttachArtifact(id, midiPath, models.FileTypeMIDI); err != nil {
		util.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":                true,
		"task_id":           id,
		"midi_path":         midiPath,
		"midi_download_url": fmt.Sprintf("/tasks/%s/download?file_type=midi", id),
		"hint":              "Please reload score to sync IDs",
	})
}

// RenderTask re-synthesizes audio from the task's current MIDI artifact,
// picking up any score edits made since the original render.
func (h *Handlers) RenderTask(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.ensureCompleted(c, id); !ok {
		return
	}

	format, ok := models.ParseOutputFormat(c.DefaultQuery("output_format", string(models.FormatMP3)))
	if !ok {
		util.RespondError(c, errors.InvalidInput("output_format must be mp3 or wav"))
		return
	}

	midiPath, err := h.latestMIDIPath(id)
	if err != nil {
		util.RespondError(c, err)
		return
	}

	audioPath, err := h.synth.Render(c.Request.Context(), midiPath, format, defaultGain)
	if err != nil {
		logHandlerError("Re-render failed", id, err)
		util.RespondError(c, errors.StageFailed(string(models.StageSynthesizing), "failed to render audio"))
		return
	}

	if err := h.store.AttachArtifact(id, audioPath, models.FileTypeAudio); err != nil {
		util.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":                 true,
		"task_id":            id,
		"audio_path":         audioPath,
		"audio_download_url": fmt.Sprintf("/tasks/%s/download?file_type=audio", id),
	})
}

// DownloadScore serves the score as a json or midi file download.
func (h *Handlers) DownloadScore(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.ensureCompleted(c, id); !ok {
		return
	}

	switch strings.ToLower(strings.TrimSpace(c.DefaultQuery("file_type", "json"))) {
	case "json":
		path, ok := h.ensureScoreCache(c, id)
		if !ok {
			return
		}
		serveAttachment(c, path, filepath.Base(path))
	case "midi":
		midiPath, err := h.latestMIDIPath(id)
		if err != nil {
			util.RespondError(c, err)
			return
		}
		serveAttachment(c, midiPath, filepath.Base(midiPath))
	default:
		util.RespondError(c, errors.InvalidInput("file_type must be json or midi"))
	}
}

// scoreFromMIDI decodes and normalizes the task's MIDI artifact, writing
// the error response on failure.
func (h *Handlers) scoreFromMIDI(c *gin.Context, id string) (*score.Score, bool) {
	midiPath, err := h.latestMIDIPath(id)
	if err != nil {
		util.RespondError(c, err)
		return nil, false
	}

	sc, err := midifile.DecodeFile(midiPath)
	if err != nil {
		logHandlerError("MIDI artifact is not decodable", id, err)
		util.RespondError(c, errors.Internal("failed to parse MIDI into score"))
		return nil, false
	}
	return score.Normalize(sc), true
}

// ensureScoreCache returns the cached score path, deriving it from the
// MIDI artifact first when absent. Unlike GetScore the cache write must
// succeed here because the response streams the file itself.
func (h *Handlers) ensureScoreCache(c *gin.Context, id string) (string, bool) {
	cachePath := h.layout.ScoreCachePath(id)
	if _, err := os.Stat(cachePath); err == nil {
		return cachePath, true
	}

	sc, ok := h.scoreFromMIDI(c, id)
	if !ok {
		return "", false
	}
	if err := h.writeScoreCache(id, sc); err != nil {
		logHandlerError("Failed to write score cache", id, err)
		util.RespondError(c, errors.Internal("failed to write score cache"))
		return "", false
	}
	return cachePath, true
}
