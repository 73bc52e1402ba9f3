package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zzn199216/hum2song-webui/internal/errors"
	"github.com/zzn199216/hum2song-webui/internal/midifile"
	"github.com/zzn199216/hum2song-webui/internal/score"
	"github.com/zzn199216/hum2song-webui/internal/util"
)

// ExportMIDI turns a flattened note list into a downloadable MIDI file
// without any task involved. The editor uses this for ad-hoc exports.
func (h *Handlers) ExportMIDI(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		util.RespondError(c, errors.InvalidInput("failed to read request body"))
		return
	}

	flat, err := score.DecodeFlattened(body)
	if err != nil {
		util.RespondError(c, errors.InvalidInput("invalid flattened score").WithDetails(err.Error()))
		return
	}

	sc, err := score.FromFlattened(flat)
	if err != nil {
		util.RespondError(c, errors.InvalidInput("invalid flattened score").WithDetails(err.Error()))
		return
	}

	data, err := midifile.Encode(score.Normalize(sc))
	if err != nil {
		logHandlerError("Failed to encode exported MIDI", "", err)
		util.RespondError(c, errors.Internal("failed to encode MIDI"))
		return
	}

	c.Header("Content-Disposition", `attachment; filename="hum2song.mid"`)
	c.Data(http.StatusOK, "audio/midi", data)
}
