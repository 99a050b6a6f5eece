package bk

import (
	"bytes"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Cover names the book's cover image inside the archive. The image itself
// is never decoded; a terminal reader only reports it.
type Cover struct {
	Path      string
	MediaType string
}

// Cover locates the cover image. Strategies are tried in priority order:
//  1. ePub 3 manifest item with properties="cover-image"
//  2. ePub 2 <meta name="cover" content="ID"/>, either an image or a cover page
//  3. an image manifest item whose ID or href contains "cover"
//  4. the first <img> of the first chapter
func (b *Book) Cover() (Cover, bool) {
	for _, find := range []func() *manifestItem{
		b.coverFromProperties,
		b.coverFromMeta,
		b.coverFromName,
		b.coverFromFirstChapter,
	} {
		if item := find(); item != nil {
			return Cover{Path: b.manifestPath(item.Href), MediaType: item.MediaType}, true
		}
	}
	return Cover{}, false
}

func (b *Book) coverFromProperties() *manifestItem {
	for i := range b.manifest {
		if slices.Contains(strings.Fields(b.manifest[i].Properties), "cover-image") {
			return &b.manifest[i]
		}
	}
	return nil
}

// coverFromMeta resolves <meta name="cover"> through the manifest. A
// non-image target is read as a cover page and its first image is used.
func (b *Book) coverFromMeta() *manifestItem {
	if b.opf == nil {
		return nil
	}
	for _, m := range b.opf.Metadata.Metas {
		if !strings.EqualFold(m.Name, "cover") || m.Content == "" {
			continue
		}
		item, ok := b.manifestItemByID(m.Content)
		if !ok {
			continue
		}
		if isImageMediaType(item.MediaType) {
			return item
		}
		page := b.manifestPath(item.Href)
		data, err := b.archive.read(page)
		if err != nil {
			continue
		}
		if img := b.imageItem(firstImage(data, page)); img != nil {
			return img
		}
	}
	return nil
}

func (b *Book) coverFromName() *manifestItem {
	for i := range b.manifest {
		item := &b.manifest[i]
		if !isImageMediaType(item.MediaType) {
			continue
		}
		if containsFold(item.ID, "cover") || containsFold(item.Href, "cover") {
			return item
		}
	}
	return nil
}

func (b *Book) coverFromFirstChapter() *manifestItem {
	if len(b.chapters) == 0 {
		return nil
	}
	ch := b.chapters[0]
	data, err := ch.RawContent()
	if err != nil {
		return nil
	}
	return b.imageItem(firstImage(data, ch.Href))
}

// imageItem returns the image manifest item stored at the archive path p.
func (b *Book) imageItem(p string) *manifestItem {
	if p == "" {
		return nil
	}
	for i := range b.manifest {
		item := &b.manifest[i]
		if isImageMediaType(item.MediaType) && strings.EqualFold(b.manifestPath(item.Href), p) {
			return item
		}
	}
	return nil
}

// firstImage returns the archive path of the first <img src> or SVG
// <image href> in data, resolved against basePath.
func firstImage(data []byte, basePath string) string {
	z := html.NewTokenizer(bytes.NewReader(data))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if !hasAttr {
				continue
			}
			a := atom.Lookup(name)
			if a != atom.Img && a != atom.Image {
				continue
			}
			for more := true; more; {
				var key, val []byte
				key, val, more = z.TagAttr()
				k := string(key)
				if len(val) == 0 {
					continue
				}
				if (a == atom.Img && k == "src") || (a == atom.Image && (k == "href" || k == "xlink:href")) {
					return resolveRelativePath(basePath, string(val))
				}
			}
		}
	}
}

func isImageMediaType(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "image/")
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
