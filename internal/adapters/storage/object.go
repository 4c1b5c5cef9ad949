package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// corpusExts are the object suffixes worth mirroring: compressed archives
// and single-file containers. Directory containers (.gdb) cannot exist as
// single objects in object storage; they always arrive inside an archive.
var corpusExts = []string{".gpkg", ".zip", ".7z", ".rar"}

// isCorpusObject reports whether a storage key names a mirrorable corpus
// object.
func isCorpusObject(key string) bool {
	lower := strings.ToLower(key)
	for _, ext := range corpusExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// writeObject streams an object body into dest, creating parent
// directories. A failed copy removes the partial file.
func writeObject(dest string, body io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return err
	}

	f, err := os.Create(dest) //#nosec G304 -- dest is a controlled local path
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return err
	}
	return f.Close()
}

// relativeKey strips the configured listing prefix from an object key.
func relativeKey(prefix, key string) string {
	key = strings.TrimPrefix(key, prefix)
	return strings.TrimPrefix(key, "/")
}

// prefixedKey joins the configured prefix back onto a relative key.
func prefixedKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
