// Package tarball packs rendered config files into a reproducible tar.gz.
package tarball

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

type File struct {
	Name string
	Data []byte
	Mode int64 // 0 — 0600
}

// Build собирает архив из files в каноническом порядке и возвращает его
// вместе с sha256 в hex. Одинаковый вход даёт побайтно одинаковый архив.
func Build(files []File) ([]byte, string, error) {
	sorted := make([]File, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.ModTime = time.Unix(0, 0)
	tw := tar.NewWriter(gz)

	seen := make(map[string]bool, len(sorted))
	for _, f := range sorted {
		name := clean(f.Name)
		if name == "" {
			return nil, "", fmt.Errorf("tarball: bad file name %q", f.Name)
		}
		if seen[name] {
			return nil, "", fmt.Errorf("tarball: duplicate file %q", name)
		}
		seen[name] = true

		mode := f.Mode
		if mode == 0 {
			mode = 0o600
		}
		hdr := &tar.Header{
			Name:    name,
			Mode:    mode,
			Size:    int64(len(f.Data)),
			ModTime: time.Unix(0, 0),
			Format:  tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, "", err
		}
		if _, err := tw.Write(f.Data); err != nil {
			return nil, "", err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, "", err
	}
	if err := gz.Close(); err != nil {
		return nil, "", err
	}

	sum := sha256.Sum256(buf.Bytes())
	return buf.Bytes(), hex.EncodeToString(sum[:]), nil
}

// clean keeps names relative and inside the archive root.
func clean(name string) string {
	name = path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimPrefix(name, "/")
	if name == "" || name == "." {
		return ""
	}
	return name
}
