package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

var bannerLines = []string{
	" _____           _ ____        _        ",
	"|_   _|__   ___ | | __ )  __ _| | _____ ",
	"  | |/ _ \\ / _ \\| |  _ \\ / _` | |/ / _ \\",
	"  | | (_) | (_) | | |_) | (_| |   <  __/",
	"  |_|\\___/ \\___/|_|____/ \\__,_|_|\\_\\___|",
}

var bannerColors = []string{"#f59e0b", "#f97316", "#ef4444", "#e11d48", "#db2777"}

// PrintBanner writes the ToolBake banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()

	fmt.Fprintln(w)
	for i, line := range bannerLines {
		fmt.Fprintln(w, out.String(line).Foreground(p.Color(bannerColors[i])))
	}
	if v := strings.TrimSpace(version); v != "" {
		fmt.Fprintln(w, out.String("  v"+v).Faint())
	}
	fmt.Fprintln(w)
}
