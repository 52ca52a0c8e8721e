// Package rlog is the run-lifecycle logger: structured, timestamped
// console output that degrades from colored/width-aware rendering to
// plain text when stdout isn't a terminal, plus a thin file sink for
// mirroring the same lines into a run's artifact tree.
//
// Grounded on the teacher's internal/logger/console.go: fatih/color for
// level coloring, mattn/go-isatty to detect a real terminal,
// mattn/go-runewidth for aligned column widths, and golang.org/x/term to
// report the terminal width (TerminalWidth; logged lines are not wrapped) —
// tailored here to run-lifecycle events (task launched/finished via
// SchedulerLogger, plus the commands' own progress and outcome lines)
// instead of the teacher's wave/QC-specific hooks.
package rlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// Level is the severity of a logged line.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
	LevelSuccess
)

var levelLabel = map[Level]string{
	LevelInfo:    "info",
	LevelWarn:    "warn",
	LevelError:   "error",
	LevelSuccess: "ok",
}

var levelColor = map[Level]*color.Color{
	LevelInfo:    color.New(color.FgCyan),
	LevelWarn:    color.New(color.FgYellow),
	LevelError:   color.New(color.FgRed, color.Bold),
	LevelSuccess: color.New(color.FgGreen, color.Bold),
}

// Logger writes leveled, timestamped lines to a console stream and,
// optionally, mirrors the plain-text form to a file sink.
type Logger struct {
	out        io.Writer
	mirror     io.Writer
	color      bool
	labelWidth int
}

// New constructs a Logger writing to w, auto-detecting whether w is a
// terminal to decide whether to colorize.
func New(w io.Writer) *Logger {
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	width := 6
	for _, l := range levelLabel {
		if runewidth.StringWidth(l) > width {
			width = runewidth.StringWidth(l)
		}
	}
	return &Logger{out: w, color: useColor, labelWidth: width}
}

// WithMirror returns a copy of l that also writes every line, uncolored,
// to mirror (typically a run's plan.log or a task's log file).
func (l *Logger) WithMirror(mirror io.Writer) *Logger {
	clone := *l
	clone.mirror = mirror
	return &clone
}

// TerminalWidth returns the current terminal width of stdout, or a sane
// default when stdout isn't a terminal (e.g. piped into a file or CI).
func TerminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 100
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	ts := time.Now().Format("15:04:05")
	label := levelLabel[level]
	padded := label + strings.Repeat(" ", l.labelWidth-runewidth.StringWidth(label))

	plain := fmt.Sprintf("%s [%s] %s\n", ts, padded, msg)
	if l.mirror != nil {
		fmt.Fprint(l.mirror, plain)
	}

	if !l.color {
		fmt.Fprint(l.out, plain)
		return
	}
	c := levelColor[level]
	fmt.Fprintf(l.out, "%s [%s] %s\n", ts, c.Sprint(padded), msg)
}

func (l *Logger) Info(format string, args ...interface{})    { l.log(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})    { l.log(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...interface{})   { l.log(LevelError, format, args...) }
func (l *Logger) Success(format string, args ...interface{}) { l.log(LevelSuccess, format, args...) }
