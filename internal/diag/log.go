// Package diag provides leveled, colorized diagnostic logging for the
// VM driver and CLI, in the style of the geth-family "log" package:
// terminal-aware coloring, caller-frame capture on errors, safe
// concurrent use. None of it ever influences VM control flow -- it is
// purely observational.
package diag

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level is a logging severity, lowest-to-highest.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) tag() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "?"
	}
}

var levelColor = map[Level]*color.Color{
	LevelDebug: color.New(color.FgHiBlack),
	LevelInfo:  color.New(color.FgCyan),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed, color.Bold),
}

// Logger is a mutex-guarded, leveled writer. The zero value is not
// usable -- construct with New.
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	minLevel Level
	colorize bool
}

// New builds a Logger writing to w. If w is an *os.File it is wrapped
// with go-colorable so ANSI codes render correctly on Windows consoles
// too, and level tags are colorized only when that file is a terminal
// (per go-isatty); any other writer gets plain, uncolored tags.
func New(w io.Writer, minLevel Level) *Logger {
	out := w
	colorize := false
	if f, ok := w.(*os.File); ok {
		colorize = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		out = colorable.NewColorable(f)
	}
	return &Logger{out: out, minLevel: minLevel, colorize: colorize}
}

func (l *Logger) log(level Level, withCaller bool, format string, args ...interface{}) {
	if level < l.minLevel {
		return
	}
	msg := fmt.Sprintf(format, args...)
	tag := level.tag()
	if l.colorize {
		tag = levelColor[level].Sprint(tag)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if withCaller {
		// Skip this log() frame and Errorf's own frame to find where
		// Errorf was actually called from.
		c := stack.Caller(2)
		fmt.Fprintf(l.out, "%s[%s] %s\n", tag, c, msg)
		return
	}
	fmt.Fprintf(l.out, "%s %s\n", tag, msg)
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.log(LevelDebug, false, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.log(LevelInfo, false, format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.log(LevelWarn, false, format, args...) }

// Errorf additionally captures the caller's frame -- the one diagnostic
// level where "where did this come from" is worth the stack walk.
func (l *Logger) Errorf(format string, args ...interface{}) { l.log(LevelError, true, format, args...) }
