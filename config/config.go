package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/gitwire"
	"github.com/jmgilman/gitwire/internal/logging"
)

// FileName is the name of the configuration file at the project root.
const FileName = ".gitwire.toml"

type document struct {
	Wire wireTable `toml:"wire"`
}

type wireTable struct {
	Entries []entry `toml:"entries"`
}

// entry mirrors one element of wire.entries.
type entry struct {
	Name        string  `toml:"name,omitempty"`
	Description string  `toml:"description,omitempty"`
	URL         string  `toml:"url"`
	Rev         string  `toml:"rev"`
	Commit      string  `toml:"commit,omitempty"`
	Src         sources `toml:"src"`
	Dst         string  `toml:"dst"`
	Method      string  `toml:"method,omitempty"`
}

// sources decodes src from either a string or an array of strings. A missing
// key leaves it nil; an empty array leaves it empty but non-nil.
type sources []string

func (s *sources) UnmarshalTOML(v any) error {
	switch val := v.(type) {
	case string:
		*s = sources{val}
	case []any:
		out := make(sources, 0, len(val))
		for _, item := range val {
			str, ok := item.(string)
			if !ok {
				return errors.Newf(errors.CodeInvalidInput, "src items must be strings, got %T", item)
			}
			out = append(out, str)
		}
		*s = out
	default:
		return errors.Newf(errors.CodeInvalidInput, "src must be a string or an array of strings, got %T", v)
	}
	return nil
}

func (r entry) toEntry(index int) (gitwire.Entry, error) {
	switch {
	case strings.TrimSpace(r.URL) == "":
		return gitwire.Entry{}, shapeError(index, "'url' is required")
	case strings.TrimSpace(r.Rev) == "":
		return gitwire.Entry{}, shapeError(index, "'rev' is required")
	case r.Src == nil:
		return gitwire.Entry{}, shapeError(index, "'src' is required and must be a string or array of strings")
	case len(r.Src) == 0:
		return gitwire.Entry{}, shapeError(index, "'src' must have at least one path")
	case strings.TrimSpace(r.Dst) == "":
		return gitwire.Entry{}, shapeError(index, "'dst' is required")
	}

	method, err := gitwire.ParseMethod(r.Method)
	if err != nil {
		return gitwire.Entry{}, shapeError(index, "unknown method '"+r.Method+"'")
	}

	e := gitwire.Entry{
		Name:        r.Name,
		Description: r.Description,
		URL:         r.URL,
		Revision:    r.Rev,
		Commit:      r.Commit,
		Sources:     append([]string(nil), r.Src...),
		Destination: r.Dst,
		Method:      method,
	}

	if err := e.Validate(); err != nil {
		return gitwire.Entry{}, errors.WithContext(
			errors.Wrapf(err, errors.GetCode(err), "Entry %d: invalid entry", index), "index", index)
	}

	return e, nil
}

func fromEntry(e gitwire.Entry) entry {
	r := entry{
		Name:        e.Name,
		Description: e.Description,
		URL:         e.URL,
		Rev:         e.Revision,
		Commit:      e.Commit,
		Src:         append(sources(nil), e.Sources...),
		Dst:         e.Destination,
	}
	if e.Method != "" {
		r.Method = e.Method.String()
	}
	return r
}

func shapeError(index int, msg string) error {
	return errors.WithContext(
		errors.Newf(gitwire.CodeConfigShape, "Entry %d: %s", index, msg), "index", index)
}

// Parse decodes and validates the content of a configuration file.
func Parse(data []byte) ([]gitwire.Entry, error) {
	entries, _, err := parse(data)
	return entries, err
}

// parse also returns the keys present in data that no entry field consumed.
func parse(data []byte) ([]gitwire.Entry, []string, error) {
	var doc document
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, nil, errors.Wrap(err, gitwire.CodeConfigParse, "failed to parse "+FileName)
	}

	if !md.IsDefined("wire") {
		return nil, nil, errors.New(gitwire.CodeConfigShape, "Missing [wire] section")
	}
	if !md.IsDefined("wire", "entries") {
		return nil, nil, errors.New(gitwire.CodeConfigShape, "Missing entries array in [wire]")
	}

	entries := make([]gitwire.Entry, 0, len(doc.Wire.Entries))
	seen := map[string]bool{}
	for i, raw := range doc.Wire.Entries {
		e, err := raw.toEntry(i)
		if err != nil {
			return nil, nil, err
		}

		if e.Name != "" {
			if seen[e.Name] {
				return nil, nil, errors.WithContextMap(
					errors.Newf(gitwire.CodeConfigNameNotUnique, "Entry %d: name '%s' is not unique", i, e.Name),
					map[string]interface{}{"index": i, "name": e.Name})
			}
			seen[e.Name] = true
		}

		entries = append(entries, e)
	}

	var undecoded []string
	for _, key := range md.Undecoded() {
		undecoded = append(undecoded, key.String())
	}

	return entries, undecoded, nil
}

// Loader reads and writes configuration files through a filesystem.
type Loader struct {
	fs     billy.Filesystem
	logger *logging.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithFilesystem sets the filesystem. Defaults to the local disk.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(l *Loader) {
		l.fs = fs
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		fs:     osfs.New("/"),
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the configuration file path for a project root.
func (l *Loader) Path(root string) string {
	return filepath.Join(root, FileName)
}

// Exists reports whether root holds a configuration file.
func (l *Loader) Exists(root string) bool {
	info, err := l.fs.Stat(l.Path(root))
	return err == nil && info.Mode().IsRegular()
}

// Load reads the configuration file of root. A missing file yields no entries
// and no error.
func (l *Loader) Load(root string) ([]gitwire.Entry, error) {
	path := l.Path(root)

	data, err := util.ReadFile(l.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WithContext(
			errors.Wrap(err, gitwire.CodeConfigOpen, "failed to read "+FileName), "path", path)
	}

	entries, undecoded, err := parse(data)
	if err != nil {
		return nil, errors.WithContext(err, "path", path)
	}

	ctx := context.Background()
	for _, key := range undecoded {
		l.logger.Warn(ctx, "ignoring unknown configuration key", "key", key, "path", path)
	}
	l.logger.Debug(ctx, "configuration loaded", "path", path, "entries", len(entries))

	return entries, nil
}
