package main

import (
	"os"

	"github.com/zzn199216/hum2song-webui/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
