package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/gitwire"
)

// linePrompter asks for the required entry fields one line at a time. An empty
// URL or end of input declines.
type linePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newLinePrompter(in io.Reader, out io.Writer) *linePrompter {
	return &linePrompter{in: bufio.NewReader(in), out: out}
}

func (p *linePrompter) Prompt(ctx context.Context) (gitwire.Entry, bool, error) {
	fmt.Fprintln(p.out, "No .gitwire.toml found. Describe an entry to create one (empty URL to cancel).")

	var e gitwire.Entry
	fields := []struct {
		label    string
		required bool
		set      func(string) error
	}{
		{"Repository URL", true, func(s string) error { e.URL = s; return nil }},
		{"Revision", true, func(s string) error { e.Revision = s; return nil }},
		{"Sources (comma separated)", true, func(s string) error {
			e.Sources = splitList(s)
			return nil
		}},
		{"Destination", true, func(s string) error { e.Destination = s; return nil }},
		{"Name (optional)", false, func(s string) error { e.Name = s; return nil }},
		{"Method (optional)", false, func(s string) error {
			m, err := gitwire.ParseMethod(s)
			e.Method = m
			return err
		}},
	}

	for i, f := range fields {
		if err := ctx.Err(); err != nil {
			return gitwire.Entry{}, false, err
		}

		value, err := p.ask(f.label)
		if err != nil {
			return gitwire.Entry{}, false, err
		}
		if value == "" && f.required {
			if i == 0 {
				return gitwire.Entry{}, false, nil
			}
			return gitwire.Entry{}, false, errors.Newf(errors.CodeInvalidInput, "%s is required", strings.ToLower(f.label))
		}
		if err := f.set(value); err != nil {
			return gitwire.Entry{}, false, err
		}
	}

	return e, true, nil
}

func (p *linePrompter) ask(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", errors.Wrap(err, errors.CodeInvalidInput, "failed to read answer")
	}
	return strings.TrimSpace(line), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
