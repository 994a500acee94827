package main

import (
	"fmt"
	"os"
)

// Colored stderr helpers for interactive feedback. The daemon itself logs
// through slog; these only dress up CLI command output, and go quiet under
// --no-color or the NO_COLOR convention.

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return text
	}
	return color + text + colorReset
}

func printTagged(color, tag, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, tag+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) {
	printTagged(colorGreen, "✓", format, args...)
}

func printError(format string, args ...any) {
	printTagged(colorRed, "✗", format, args...)
}

func printWarning(format string, args ...any) {
	printTagged(colorYellow, "⚠", format, args...)
}

func printStep(format string, args ...any) {
	printTagged(colorCyan, "→", format, args...)
}

// printStatus renders one indented "Label: value" line of `assistant status`.
func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), val)
}
