package bk

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

// validContainerXML is a well-formed META-INF/container.xml pointing to an OPF.
const validContainerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// buildTestEPubBytes writes files into an in-memory ZIP archive. The
// "mimetype" entry, when present, is written first and the rest follow in
// name order so archives are reproducible.
func buildTestEPubBytes(t testing.TB, files map[string]string) []byte {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		if name != "mimetype" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := files["mimetype"]; ok {
		names = append([]string{"mimetype"}, names...)
	}

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for _, name := range names {
		fw, err := zw.Create(name)
		if err != nil {
			t.Fatalf("buildTestEPubBytes: create %s: %v", name, err)
		}
		if _, err := io.WriteString(fw, files[name]); err != nil {
			t.Fatalf("buildTestEPubBytes: write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("buildTestEPubBytes: close writer: %v", err)
	}
	return buf.Bytes()
}

// buildTestZip returns a *zip.Reader over an in-memory archive of files.
func buildTestZip(t testing.TB, files map[string]string) *zip.Reader {
	t.Helper()
	data := buildTestEPubBytes(t, files)
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("buildTestZip: open reader: %v", err)
	}
	return r
}

// buildTestArchive wraps buildTestZip in the package's archive index.
func buildTestArchive(t testing.TB, files map[string]string) *archive {
	t.Helper()
	return newArchive(buildTestZip(t, files), defaultMaxEntrySize)
}

// buildTestEPubFile writes an ePub archive to a temporary file and returns
// its path, for tests of Open.
func buildTestEPubFile(t testing.TB, files map[string]string) string {
	t.Helper()
	fp := filepath.Join(t.TempDir(), "test.epub")
	if err := os.WriteFile(fp, buildTestEPubBytes(t, files), 0o644); err != nil {
		t.Fatalf("buildTestEPubFile: write file: %v", err)
	}
	return fp
}

// loadTestBook loads files as a book and fails the test on error.
func loadTestBook(t testing.TB, files map[string]string) *Book {
	t.Helper()
	b, err := Load(buildTestEPubBytes(t, files))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return b
}

// xhtml wraps body in a minimal XHTML document.
func xhtml(title, body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>` + title + `</title><style>p { margin: 0 }</style></head>
<body>` + body + `</body>
</html>`
}

// epub3Files returns an ePub 3 book with one chapter per body and a nav
// document listing every chapter as "Chapter N".
func epub3Files(bodies ...string) map[string]string {
	var manifest, spine, nav strings.Builder
	files := map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": validContainerXML,
	}
	for i, body := range bodies {
		name := fmt.Sprintf("ch%d.xhtml", i+1)
		id := fmt.Sprintf("ch%d", i+1)
		files["OEBPS/"+name] = xhtml(id, body)
		fmt.Fprintf(&manifest, `<item id="%s" href="%s" media-type="application/xhtml+xml"/>`+"\n", id, name)
		fmt.Fprintf(&spine, `<itemref idref="%s"/>`+"\n", id)
		fmt.Fprintf(&nav, `<li><a href="%s">Chapter %d</a></li>`+"\n", name, i+1)
	}
	files["OEBPS/content.opf"] = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="uid">urn:uuid:12345</dc:identifier>
    <dc:title>Test Book</dc:title>
    <dc:creator>Jane Doe</dc:creator>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
` + manifest.String() + `  </manifest>
  <spine>
` + spine.String() + `  </spine>
</package>`
	files["OEBPS/nav.xhtml"] = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>Contents</title></head>
<body>
<nav epub:type="toc"><ol>
` + nav.String() + `</ol></nav>
</body>
</html>`
	return files
}

// epub2Files returns an ePub 2 book with one chapter per body and an NCX
// listing every chapter as "Part N".
func epub2Files(bodies ...string) map[string]string {
	var manifest, spine, points strings.Builder
	files := map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": validContainerXML,
	}
	for i, body := range bodies {
		name := fmt.Sprintf("text/part%d.html", i+1)
		id := fmt.Sprintf("part%d", i+1)
		files["OEBPS/"+name] = xhtml(id, body)
		fmt.Fprintf(&manifest, `<item id="%s" href="%s" media-type="application/xhtml+xml"/>`+"\n", id, name)
		fmt.Fprintf(&spine, `<itemref idref="%s"/>`+"\n", id)
		fmt.Fprintf(&points, `<navPoint id="np%d" playOrder="%d"><navLabel><text>Part %d</text></navLabel><content src="%s"/></navPoint>`+"\n", i+1, i+1, i+1, name)
	}
	files["OEBPS/content.opf"] = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
    <dc:identifier id="uid" opf:scheme="ISBN">978-0-00-000000-0</dc:identifier>
    <dc:title>Old Book</dc:title>
    <dc:creator opf:role="aut" opf:file-as="Smith, John">John Smith</dc:creator>
  </metadata>
  <manifest>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
` + manifest.String() + `  </manifest>
  <spine toc="ncx">
` + spine.String() + `  </spine>
</package>`
	files["OEBPS/toc.ncx"] = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
` + points.String() + `  </navMap>
</ncx>`
	return files
}

// lineTexts returns the text of every line.
func lineTexts(lines []DisplayLine) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text()
	}
	return out
}
