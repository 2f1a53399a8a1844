// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides styled terminal output for the polyclaw CLI.
//
// Styling is automatically disabled when stdout is not a terminal or
// when POLYCLAW_NO_COLOR is set, so piped output stays machine-friendly.
package ux

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Polyclaw color palette - molten amber and forge copper
var (
	ColorAmberBright  = lipgloss.Color("#FFB454") // Bright amber - highlights
	ColorAmberPrimary = lipgloss.Color("#E8963A") // Primary amber - brand color
	ColorCopper       = lipgloss.Color("#C1682C") // Copper - accents, borders
	ColorEmber        = lipgloss.Color("#8C4A21") // Ember - subtle accents

	// Semantic colors
	ColorSuccess = lipgloss.Color("#7FD962") // Green for success
	ColorWarning = lipgloss.Color("#F4D03F") // Gold for warnings
	ColorError   = lipgloss.Color("#E74C3C") // Red for errors
	ColorMuted   = lipgloss.Color("#5C6773") // Slate for muted text
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorAmberBright),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorMuted),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorAmberBright).Bold(true),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconStep    Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling.
func (i Icon) Render() string {
	if plainMode() {
		return string(i)
	}
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconStep:
		return Styles.Highlight.Render(string(i))
	default:
		return string(i)
	}
}

var (
	mu     sync.Mutex
	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr

	plainOverride *bool
)

// SetOutput redirects helper output. Tests use buffers; a nil writer
// restores the default.
func SetOutput(stdout, stderr io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	out, errOut = stdout, stderr
}

// SetPlain forces styling on or off regardless of terminal detection.
func SetPlain(plain bool) {
	mu.Lock()
	defer mu.Unlock()
	plainOverride = &plain
}

func plainMode() bool {
	mu.Lock()
	defer mu.Unlock()
	if plainOverride != nil {
		return *plainOverride
	}
	if os.Getenv("POLYCLAW_NO_COLOR") != "" {
		return true
	}
	fd := os.Stdout.Fd()
	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

func writeLine(w io.Writer, line string) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintln(w, line)
}

// Title prints a styled title line.
func Title(text string) {
	if plainMode() {
		writeLine(out, text)
		return
	}
	writeLine(out, Styles.Title.Render(text))
}

// Step prints a pipeline progress line.
func Step(text string) {
	writeLine(out, IconStep.Render()+" "+text)
}

// Success prints a success message with a checkmark.
func Success(text string) {
	if plainMode() {
		writeLine(out, string(IconSuccess)+" "+text)
		return
	}
	writeLine(out, IconSuccess.Render()+" "+Styles.Success.Render(text))
}

// Warning prints a warning message.
func Warning(text string) {
	if plainMode() {
		writeLine(errOut, "WARN: "+text)
		return
	}
	writeLine(out, IconWarning.Render()+" "+Styles.Warning.Render(text))
}

// Error prints an error message.
func Error(text string) {
	if plainMode() {
		writeLine(errOut, "ERROR: "+text)
		return
	}
	writeLine(out, IconError.Render()+" "+Styles.Error.Render(text))
}

// Info prints an informational line.
func Info(text string) {
	if plainMode() {
		writeLine(out, text)
		return
	}
	writeLine(out, Styles.Muted.Render("│")+" "+text)
}

// Muted prints secondary text.
func Muted(text string) {
	if plainMode() {
		writeLine(out, text)
		return
	}
	writeLine(out, Styles.Muted.Render(text))
}

// KeyValue prints an aligned "key: value" detail line.
func KeyValue(key, value string) {
	if plainMode() {
		writeLine(out, key+": "+value)
		return
	}
	writeLine(out, Styles.Muted.Render(key+":")+" "+Styles.Bold.Render(value))
}
