package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
)

// readObject loads a JSON object from path. A missing file or a document
// that is not an object yields an empty map.
func readObject(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return map[string]json.RawMessage{}, nil
	}
	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return m, nil
}

// mergeInto overlays the top-level keys of the object doc onto the existing
// object stored at path and returns the merged document. If doc is not an
// object it is returned unchanged.
func mergeInto(path string, doc []byte) ([]byte, error) {
	if !gjson.ParseBytes(doc).IsObject() {
		return doc, nil
	}
	existing, err := readObject(path)
	if err != nil {
		return nil, err
	}
	var incoming map[string]json.RawMessage
	if err := json.Unmarshal(doc, &incoming); err != nil {
		return nil, err
	}
	for k, v := range incoming {
		existing[k] = v
	}
	return json.Marshal(existing)
}

// writeJSON writes doc indented to path via a temp file and rename, so
// readers never observe a partial file. It returns the bytes written.
func writeJSON(path string, doc []byte) (int64, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, doc, "", "  "); err != nil {
		return 0, fmt.Errorf("indent %s: %w", path, err)
	}
	buf.WriteByte('\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, err
	}
	return int64(buf.Len()), nil
}
