// Package version exposes the build version shared by the server and
// the CLI.
package version

// Version is overridable at build time:
//
//	go build -ldflags "-X github.com/zzn199216/hum2song-webui/internal/version.Version=..."
var Version = "0.1.0"
