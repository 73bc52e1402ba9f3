package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zzn199216/hum2song-webui/internal/errors"
	"github.com/zzn199216/hum2song-webui/internal/logger"
	"github.com/zzn199216/hum2song-webui/internal/models"
	"github.com/zzn199216/hum2song-webui/internal/pipeline"
	"github.com/zzn199216/hum2song-webui/internal/util"
)

const (
	defaultGain = 0.8
	minGain     = 0.0
	maxGain     = 5.0
)

// Generate accepts a humming upload and enqueues the conversion
// pipeline. The response is a 202 with the task id to poll.
//
// The multipart body is streamed straight to disk, so an oversized
// upload is cut off as soon as the running total crosses the limit
// instead of buffering the whole request first.
func (h *Handlers) Generate(c *gin.Context) {
	format, gain, ok := parseGenerateParams(c)
	if !ok {
		return
	}

	reader, err := c.Request.MultipartReader()
	if err != nil {
		util.RespondError(c, errors.InvalidInput("request body must be multipart/form-data"))
		return
	}

	part, err := nextFilePart(reader)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	defer part.Close()

	if part.FileName() == "" {
		util.RespondError(c, errors.InvalidInput("uploaded file has no filename"))
		return
	}

	info := h.store.Create(models.StagePreprocessing)
	uploadPath := h.layout.UploadPath(info.TaskID, filepath.Ext(part.FileName()))

	written, err := util.SaveUploadLimited(part, uploadPath, h.cfg.MaxUploadSizeMB)
	if err != nil {
		h.failBeforeQueue(c, info.TaskID, err)
		return
	}

	job := pipeline.Job{
		TaskID:       info.TaskID,
		InputPath:    uploadPath,
		OutputFormat: format,
		Gain:         gain,
	}
	if err := h.queue.Submit(job); err != nil {
		h.layout.SafeRemove(uploadPath)
		h.failBeforeQueue(c, info.TaskID, err)
		return
	}

	logger.Log.Info("Generation task queued",
		logger.WithTaskID(info.TaskID),
		zap.String("filename", part.FileName()),
		zap.Int64("bytes", written),
		zap.String("output_format", string(format)),
		zap.Float64("gain", gain))

	c.JSON(http.StatusAccepted, models.TaskCreateResponse{
		TaskID:    info.TaskID,
		Status:    info.Status,
		PollURL:   "/tasks/" + info.TaskID,
		CreatedAt: info.CreatedAt,
	})
}

// GetTask returns the current task snapshot for polling.
func (h *Handlers) GetTask(c *gin.Context) {
	info, err := h.store.GetInfo(c.Param("id"))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// DownloadArtifact streams a bound artifact of a completed task.
func (h *Handlers) DownloadArtifact(c *gin.Context) {
	id := c.Param("id")

	kind, ok := models.ParseFileType(c.DefaultQuery("file_type", string(models.FileTypeAudio)))
	if !ok {
		util.RespondError(c, errors.InvalidInput("file_type must be audio or midi"))
		return
	}

	path, err := h.store.GetArtifactPath(id, kind)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	serveAttachment(c, path, filepath.Base(path))
}

// parseGenerateParams validates output_format and gain before any disk
// or store work happens. It writes the error response on failure.
func parseGenerateParams(c *gin.Context) (models.OutputFormat, float64, bool) {
	format, ok := models.ParseOutputFormat(c.DefaultQuery("output_format", string(models.FormatMP3)))
	if !ok {
		util.RespondError(c, errors.InvalidInput("output_format must be mp3 or wav"))
		return "", 0, false
	}

	raw := c.DefaultQuery("gain", strconv.FormatFloat(defaultGain, 'f', -1, 64))
	gain, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		util.RespondError(c, errors.OutOfRange("gain", fmt.Sprintf("gain %q is not a number", raw)))
		return "", 0, false
	}
	if gain < minGain || gain > maxGain {
		util.RespondError(c, errors.OutOfRange("gain", fmt.Sprintf("gain %g is outside [%g, %g]", gain, minGain, maxGain)))
		return "", 0, false
	}

	return format, gain, true
}

// nextFilePart scans the multipart stream for the "file" part, draining
// anything the client sent before it.
func nextFilePart(reader *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil, errors.InvalidInput("multipart field 'file' is required")
		}
		if err != nil {
			return nil, errors.InvalidInput("malformed multipart body")
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

// failBeforeQueue finalizes a task that never reached the pipeline and
// sends the matching error response.
func (h *Handlers) failBeforeQueue(c *gin.Context, id string, cause error) {
	message := "failed to store upload"
	if apiErr, ok := errors.AsAPIError(cause); ok {
		message = apiErr.Message
	}
	if err := h.store.MarkFailed(id, message, traceID(c), models.StagePreprocessing); err != nil {
		logger.Log.Warn("Failed to mark task failed", logger.WithTaskID(id), zap.Error(err))
	}
	util.RespondError(c, cause)
}
