package util

import (
	"io"
	"os"

	"github.com/zzn199216/hum2song-webui/internal/errors"
)

// uploadChunkSize is the copy buffer for streaming uploads to disk.
const uploadChunkSize = 1 << 20

// SaveUploadLimited streams src to dstPath in 1 MiB chunks while
// enforcing a cumulative size limit. Exactly limitMB megabytes is still
// accepted; the first byte beyond removes the partial file and returns
// UPLOAD_TOO_LARGE.
func SaveUploadLimited(src io.Reader, dstPath string, limitMB int) (int64, error) {
	maxBytes := int64(limitMB) * 1024 * 1024

	out, err := os.Create(dstPath)
	if err != nil {
		return 0, err
	}

	var written int64
	buf := make([]byte, uploadChunkSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > maxBytes {
				out.Close()
				os.Remove(dstPath)
				return 0, errors.UploadTooLarge(limitMB)
			}
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				out.Close()
				os.Remove(dstPath)
				return 0, writeErr
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			os.Remove(dstPath)
			return 0, readErr
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(dstPath)
		return 0, err
	}
	return written, nil
}
