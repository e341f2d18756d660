package config

import (
	"bytes"
	"context"

	"github.com/BurntSushi/toml"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/gitwire"
)

// Save writes e to the configuration file of root. With appendEntry unset, or
// when no file exists yet, the file is replaced by a document holding only e.
// Otherwise e is appended to the existing wire.entries and every other key of
// the document is kept.
func (l *Loader) Save(root string, e gitwire.Entry, appendEntry bool) error {
	if err := e.Validate(); err != nil {
		return err
	}

	path := l.Path(root)

	var (
		data []byte
		err  error
	)
	if appendEntry && l.Exists(root) {
		data, err = l.appendDocument(path, e)
	} else {
		data, err = encode(document{Wire: wireTable{Entries: []entry{fromEntry(e)}}})
	}
	if err != nil {
		return err
	}

	if err := l.writeAtomic(path, data); err != nil {
		return err
	}

	l.logger.Info(context.Background(), "configuration saved", "path", path, "append", appendEntry)
	return nil
}

// appendDocument decodes the existing file generically so unrelated keys
// survive re-encoding.
func (l *Loader) appendDocument(path string, e gitwire.Entry) ([]byte, error) {
	existing, err := util.ReadFile(l.fs, path)
	if err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, gitwire.CodeConfigOpen, "failed to read "+FileName), "path", path)
	}

	var doc map[string]any
	if _, err := toml.Decode(string(existing), &doc); err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, gitwire.CodeConfigParse, "failed to parse "+FileName), "path", path)
	}

	wire, ok := doc["wire"].(map[string]any)
	if !ok {
		return nil, errors.WithContext(
			errors.New(gitwire.CodeConfigShape, "Missing [wire] section"), "path", path)
	}

	var entries []any
	switch list := wire["entries"].(type) {
	case []map[string]any:
		for _, item := range list {
			entries = append(entries, item)
		}
	case []any:
		entries = list
	default:
		return nil, errors.WithContext(
			errors.New(gitwire.CodeConfigShape, "Missing entries array in [wire]"), "path", path)
	}

	wire["entries"] = append(entries, entryTable(e))
	return encode(doc)
}

// entryTable renders e as a generic table, omitting empty optional keys.
func entryTable(e gitwire.Entry) map[string]any {
	table := map[string]any{
		"url": e.URL,
		"rev": e.Revision,
		"src": append([]string(nil), e.Sources...),
		"dst": e.Destination,
	}
	optional := map[string]string{
		"name":        e.Name,
		"description": e.Description,
		"commit":      e.Commit,
	}
	for key, value := range optional {
		if value != "" {
			table[key] = value
		}
	}
	if e.Method != "" {
		table["method"] = e.Method.String()
	}
	return table
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(v); err != nil {
		return nil, errors.Wrap(err, gitwire.CodeConfigWrite, "failed to encode "+FileName)
	}
	return buf.Bytes(), nil
}

// writeAtomic writes data next to path and renames it into place.
func (l *Loader) writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := util.WriteFile(l.fs, tmpPath, data, 0o644); err != nil {
		_ = l.fs.Remove(tmpPath)
		return errors.WithContext(
			errors.Wrap(err, gitwire.CodeConfigWrite, "failed to write temporary configuration file"), "path", tmpPath)
	}

	if err := l.fs.Rename(tmpPath, path); err != nil {
		_ = l.fs.Remove(tmpPath)
		return errors.WithContext(
			errors.Wrap(err, gitwire.CodeConfigWrite, "failed to replace configuration file"), "path", path)
	}

	return nil
}
