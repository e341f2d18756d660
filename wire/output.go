package wire

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

var (
	progressColor = color.New(color.FgBlue)
	failureColor  = color.New(color.FgMagenta)
	problemColor  = color.New(color.FgRed)
	addedColor    = color.New(color.FgGreen)
)

// printer serializes progress lines written by concurrent workers.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

// line writes one formatted line, colored when c is non-nil.
func (p *printer) line(c *color.Color, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if c != nil {
		msg = c.Sprint(msg)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.w, msg)
}

// labelSuffix renders " (label)" for entries that carry a name or description.
func labelSuffix(name, description string) string {
	switch {
	case name != "" && description != "":
		return " (" + name + ": " + description + ")"
	case name != "":
		return " (" + name + ")"
	case description != "":
		return " (" + description + ")"
	default:
		return ""
	}
}
