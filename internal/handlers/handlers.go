// Package handlers wires the HTTP surface: upload/generate, task
// polling, artifact downloads, score editing and the health probe.
package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zzn199216/hum2song-webui/internal/config"
	"github.com/zzn199216/hum2song-webui/internal/errors"
	"github.com/zzn199216/hum2song-webui/internal/logger"
	"github.com/zzn199216/hum2song-webui/internal/middleware"
	"github.com/zzn199216/hum2song-webui/internal/models"
	"github.com/zzn199216/hum2song-webui/internal/pipeline"
	"github.com/zzn199216/hum2song-webui/internal/queue"
	"github.com/zzn199216/hum2song-webui/internal/score"
	"github.com/zzn199216/hum2song-webui/internal/storage"
	"github.com/zzn199216/hum2song-webui/internal/tasks"
	"github.com/zzn199216/hum2song-webui/internal/util"
)

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	cfg    *config.Settings
	store  *tasks.Manager
	layout *storage.Layout
	queue  *queue.Queue
	synth  pipeline.Synthesizer
}

// NewHandlers creates a new handlers instance. The synthesizer is the
// same one the pipeline uses, so re-renders match the original output.
func NewHandlers(cfg *config.Settings, store *tasks.Manager, layout *storage.Layout, q *queue.Queue, synth pipeline.Synthesizer) *Handlers {
	return &Handlers{
		cfg:    cfg,
		store:  store,
		layout: layout,
		queue:  q,
		synth:  synth,
	}
}

// Router builds the gin engine with middleware and every route mounted.
func (h *Handlers) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.GinLogger())
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(cors.New(h.corsConfig()))

	r.POST("/generate", h.Generate)
	r.GET("/tasks/:id", h.GetTask)
	r.GET("/tasks/:id/download", h.DownloadArtifact)
	r.GET("/tasks/:id/score", h.GetScore)
	r.PUT("/tasks/:id/score", h.PutScore)
	r.POST("/tasks/:id/render", h.RenderTask)
	r.GET("/tasks/:id/score/download", h.DownloadScore)
	r.POST("/export/midi", h.ExportMIDI)

	api := r.Group("/api/v1")
	api.GET("/health", h.Health)

	r.GET("/", h.Index)
	h.mountStatic(r)

	return r
}

// corsConfig mirrors the browser contract: localhost origins with
// credentials in dev, the configured origin list in production. With no
// configured origins we fall back to allowing everything, which the cors
// middleware only permits without credentials.
func (h *Handlers) corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "X-Request-ID")

	if h.cfg.IsDev() {
		cfg.AllowOriginFunc = func(origin string) bool {
			return strings.HasPrefix(origin, "http://localhost") ||
				strings.HasPrefix(origin, "http://127.0.0.1")
		}
		cfg.AllowCredentials = true
		return cfg
	}

	if len(h.cfg.CORSAllowOrigins) > 0 {
		cfg.AllowOrigins = h.cfg.CORSAllowOrigins
		cfg.AllowCredentials = true
		return cfg
	}

	cfg.AllowAllOrigins = true
	return cfg
}

// Index serves the bundled web UI when present, else a JSON pointer.
func (h *Handlers) Index(c *gin.Context) {
	indexPath := filepath.Join(h.staticDir(), "index.html")
	if _, err := os.Stat(indexPath); err == nil {
		c.File(indexPath)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"service":    "Hum2Song MVP",
		"health_url": "/api/v1/health",
		"note":       "static/index.html not found yet",
	})
}

func (h *Handlers) staticDir() string {
	return filepath.Join(h.cfg.BaseDir, "static")
}

func (h *Handlers) mountStatic(r *gin.Engine) {
	dir := h.staticDir()
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		r.Static("/static", dir)
	}
}

// ensureCompleted loads the task and rejects anything not yet completed.
// It writes the error response itself; callers bail out on ok == false.
func (h *Handlers) ensureCompleted(c *gin.Context, id string) (models.TaskInfo, bool) {
	info, err := h.store.GetInfo(id)
	if err != nil {
		util.RespondError(c, err)
		return models.TaskInfo{}, false
	}
	if info.Status != models.StatusCompleted {
		util.RespondError(c, errors.NotCompleted(id))
		return models.TaskInfo{}, false
	}
	return info, true
}

// latestMIDIPath resolves the MIDI for a completed task: the bound
// artifact wins, then the canonical output path if the file exists.
func (h *Handlers) latestMIDIPath(id string) (string, error) {
	if path, err := h.store.GetArtifactPath(id, models.FileTypeMIDI); err == nil {
		return path, nil
	}
	path := h.layout.MIDIPath(id)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	return "", errors.ArtifactUnavailable(string(models.FileTypeMIDI))
}

// writeScoreCache persists the normalized score next to the MIDI so
// later reads skip decoding. Callers decide whether failure is fatal.
func (h *Handlers) writeScoreCache(id string, sc *score.Score) error {
	data, err := score.EncodeCanonical(sc)
	if err != nil {
		return fmt.Errorf("encode score cache: %w", err)
	}
	if err := os.WriteFile(h.layout.ScoreCachePath(id), data, 0o644); err != nil {
		return fmt.Errorf("write score cache: %w", err)
	}
	return nil
}

// mediaTypeFor maps artifact extensions to explicit content types so
// downloads never depend on the OS mime tables.
func mediaTypeFor(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "mid", "midi":
		return "audio/midi"
	case "json":
		return "application/json"
	}
	return "application/octet-stream"
}

// serveAttachment streams a file with an explicit content type and an
// attachment disposition.
func serveAttachment(c *gin.Context, path, filename string) {
	c.Header("Content-Type", mediaTypeFor(filepath.Ext(path)))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.File(path)
}

// traceID threads the request id into task failure records so a failed
// poll response can be matched back to the HTTP logs.
func traceID(c *gin.Context) *string {
	if id := middleware.GetRequestID(c); id != "" {
		return &id
	}
	return nil
}

func logHandlerError(msg string, id string, err error) {
	logger.Log.Error(msg, logger.WithTaskID(id), zap.Error(err))
}
