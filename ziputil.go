package bk

import (
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
)

// defaultMaxEntrySize caps the decompressed size of a single archive entry.
const defaultMaxEntrySize int64 = 256 * 1024 * 1024

// archive indexes the entries of a zip reader for exact and
// case-insensitive lookups. The first entry wins on duplicate names.
type archive struct {
	zr    *zip.Reader
	exact map[string]*zip.File
	lower map[string]*zip.File
	limit int64
}

func newArchive(zr *zip.Reader, limit int64) *archive {
	a := &archive{
		zr:    zr,
		exact: make(map[string]*zip.File, len(zr.File)),
		lower: make(map[string]*zip.File, len(zr.File)),
		limit: limit,
	}
	for _, f := range zr.File {
		if _, ok := a.exact[f.Name]; !ok {
			a.exact[f.Name] = f
		}
		l := strings.ToLower(f.Name)
		if _, ok := a.lower[l]; !ok {
			a.lower[l] = f
		}
	}
	return a
}

// find looks up an entry by path, exact match first.
func (a *archive) find(name string) *zip.File {
	if f, ok := a.exact[name]; ok {
		return f
	}
	return a.lower[strings.ToLower(name)]
}

// read decompresses the named entry.
func (a *archive) read(name string) ([]byte, error) {
	f := a.find(name)
	if f == nil {
		return nil, fmt.Errorf("bk: %s: %w", name, ErrFileNotFound)
	}
	return readZipFile(f, a.limit)
}

// resolveRelativePath resolves href relative to the directory of basePath.
// Both are archive-internal, forward-slash paths. Hrefs that are absolute or
// escape the archive root resolve to "".
func resolveRelativePath(basePath, href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "/") {
		return ""
	}
	if decoded, err := url.PathUnescape(href); err == nil {
		href = decoded
	}
	cleaned := path.Clean(path.Join(path.Dir(basePath), href))
	if !isSafePath(cleaned) {
		return ""
	}
	return cleaned
}

// isSafePath rejects absolute paths and paths that climb out of the root.
func isSafePath(p string) bool {
	cleaned := path.Clean(p)
	if strings.HasPrefix(cleaned, "/") {
		return false
	}
	return cleaned != ".." && !strings.HasPrefix(cleaned, "../")
}

// splitFragment splits "file.xhtml#id" into its path and fragment parts.
func splitFragment(href string) (string, string) {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		return href[:i], href[i+1:]
	}
	return href, ""
}

func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// readZipFile reads a whole entry, refusing unsafe names and entries whose
// declared or actual decompressed size exceeds limit.
func readZipFile(f *zip.File, limit int64) ([]byte, error) {
	if !isSafePath(f.Name) {
		return nil, fmt.Errorf("bk: unsafe zip entry path: %s", f.Name)
	}
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("bk: zip entry %s too large: %d bytes (max %d)", f.Name, f.UncompressedSize64, limit)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("bk: open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	// The declared size may be forged; read one byte past the limit to tell.
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("bk: read zip entry %s: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("bk: zip entry %s decompressed size exceeds limit (%d bytes)", f.Name, limit)
	}
	return data, nil
}
