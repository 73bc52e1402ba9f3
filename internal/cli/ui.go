package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	infoColor    = color.New(color.FgCyan)
)

// setupColor disables colors when stdout is not a terminal or the user
// asked for plain output. The color package already honors NO_COLOR;
// the TTY check is ours.
func setupColor() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}
}

func printSuccess(format string, args ...interface{}) {
	successColor.Printf(format+"\n", args...)
}

func printError(format string, args ...interface{}) {
	errorColor.Fprintf(os.Stderr, format+"\n", args...)
}

func printInfo(format string, args ...interface{}) {
	infoColor.Printf(format+"\n", args...)
}

// statusPrinter prints poll snapshots, skipping lines identical to the
// previous one so slow tasks do not flood the terminal.
type statusPrinter struct {
	last string
}

func (p *statusPrinter) print(status, stage string, progress float64) {
	line := fmt.Sprintf("status=%s stage=%s progress=%.2f", status, stage, progress)
	if line == p.last {
		return
	}
	p.last = line
	fmt.Println(line)
}

// sanitizeFilename replaces characters that are unsafe in filenames on
// common filesystems.
func sanitizeFilename(name string) string {
	const unsafe = `<>:"/\|?*`
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(unsafe, r) {
			return '_'
		}
		return r
	}, name)
}
