package cli

import (
	"encoding/json"
	"strings"

	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/gitwire"
	"github.com/spf13/cobra"
)

// entryFlags describe an entry given on the command line.
type entryFlags struct {
	name        string
	description string
	url         string
	rev         string
	commit      string
	src         []string
	dst         string
	method      string
	save        bool
	appendEntry bool
}

func (f *entryFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.url, "url", "", "Repository URL")
	flags.StringVar(&f.rev, "rev", "", "Branch, tag or commit to read from")
	flags.StringVar(&f.commit, "commit", "", "Pin the entry to an exact commit")
	flags.StringArrayVar(&f.src, "src", nil, `Source path or glob (repeatable, or a JSON array such as '["lib","tools"]')`)
	flags.StringVar(&f.dst, "dst", "", "Destination directory relative to the project root")
	flags.StringVar(&f.name, "entry-name", "", "Name of the entry")
	flags.StringVar(&f.description, "description", "", "Description of the entry")
	flags.StringVar(&f.method, "method", "", "Clone method: shallow, shallow_no_sparse or partial")
	flags.BoolVar(&f.save, "save", false, "Write the entry to .gitwire.toml")
	flags.BoolVar(&f.appendEntry, "append", false, "Append to .gitwire.toml instead of replacing it (requires --save)")
}

// entry returns the override described by the flags, or nil when none is set.
func (f *entryFlags) entry() (*gitwire.Entry, error) {
	sources, err := parseSources(f.src)
	if err != nil {
		return nil, err
	}

	var method gitwire.Method
	if f.method != "" {
		if method, err = gitwire.ParseMethod(f.method); err != nil {
			return nil, err
		}
	}

	e := gitwire.Entry{
		Name:        f.name,
		Description: f.description,
		URL:         f.url,
		Revision:    f.rev,
		Commit:      f.commit,
		Sources:     sources,
		Destination: f.dst,
		Method:      method,
	}
	if e.IsZero() {
		return nil, nil
	}
	return &e, nil
}

// parseSources accepts repeated values or a single JSON array of strings.
func parseSources(values []string) ([]string, error) {
	if len(values) == 1 && strings.HasPrefix(strings.TrimSpace(values[0]), "[") {
		var list []string
		if err := json.Unmarshal([]byte(values[0]), &list); err != nil {
			return nil, errors.WithContext(
				errors.Wrap(err, errors.CodeInvalidInput, "--src must be a path or a JSON array of strings"),
				"value", values[0])
		}
		return list, nil
	}
	return values, nil
}
