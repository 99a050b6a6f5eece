package bk

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const ncxMediaType = "application/x-dtbncx+xml"

// tocEntry is a parsed TOC entry before its target is resolved to a chapter.
type tocEntry struct {
	label     string
	href      string // archive path, possibly with a #fragment
	playOrder int    // -1 when absent or invalid
	children  []tocEntry
}

// parseTOC reads the nav document and/or NCX and resolves the entries
// against the chapter list. ePub 3 books prefer the nav document; either
// version falls back to the other source. A book without any usable TOC
// gets an empty slice.
func (b *Book) parseTOC(chapterByPath map[string]int) {
	sources := []func() ([]tocEntry, bool){b.readNCX, b.readNav}
	if strings.HasPrefix(b.metadata.Version, "3") {
		sources[0], sources[1] = sources[1], sources[0]
	}

	var entries []tocEntry
	for _, read := range sources {
		if e, ok := read(); ok && len(e) > 0 {
			entries = e
			break
		}
	}

	next := 0
	b.toc = b.resolveTOC(entries, chapterByPath, 0, &next)
}

// resolveTOC converts entries into TocNodes. An entry whose href does not
// name a chapter is kept as a label-only node (Chapter == -1).
func (b *Book) resolveTOC(entries []tocEntry, chapterByPath map[string]int, depth int, next *int) []TocNode {
	nodes := make([]TocNode, 0, len(entries))
	for _, e := range entries {
		n := TocNode{Label: e.label, Chapter: -1, Depth: depth, ID: *next}
		*next++

		if e.href != "" {
			p, frag := splitFragment(e.href)
			if f := b.archive.find(p); f != nil {
				p = f.Name
			}
			if idx, ok := chapterByPath[p]; ok {
				n.Chapter = idx
				n.Fragment = frag
			} else {
				b.warn(fmt.Sprintf("malformed TOC entry %q: target %s is not a chapter", e.label, e.href))
			}
		}
		if n.Label == "" && n.Chapter >= 0 {
			n.Label = "Chapter " + strconv.Itoa(n.Chapter+1)
		}

		n.Children = b.resolveTOC(e.children, chapterByPath, depth+1, next)
		nodes = append(nodes, n)
	}
	return nodes
}

// readNCX locates the NCX through the spine toc attribute, or through the
// manifest media type, and parses it.
func (b *Book) readNCX() ([]tocEntry, bool) {
	item, ok := b.manifestItemByID(b.opf.Spine.Toc)
	if !ok {
		for i := range b.manifest {
			if b.manifest[i].MediaType == ncxMediaType {
				item, ok = &b.manifest[i], true
				break
			}
		}
	}
	if !ok {
		return nil, false
	}

	ncxPath := b.manifestPath(item.Href)
	data, err := b.archive.read(ncxPath)
	if err != nil {
		b.warn(fmt.Sprintf("failed to read NCX file: %v", err))
		return nil, false
	}
	entries, err := parseNCX(data, ncxPath)
	if err != nil {
		b.warn(fmt.Sprintf("failed to parse NCX file: %v", err))
		return nil, false
	}
	return entries, true
}

// readNav locates the manifest item with the "nav" property and parses it.
func (b *Book) readNav() ([]tocEntry, bool) {
	var item *manifestItem
	for i := range b.manifest {
		if hasToken(b.manifest[i].Properties, "nav") {
			item = &b.manifest[i]
			break
		}
	}
	if item == nil {
		return nil, false
	}

	navPath := b.manifestPath(item.Href)
	data, err := b.archive.read(navPath)
	if err != nil {
		b.warn(fmt.Sprintf("failed to read nav document: %v", err))
		return nil, false
	}
	entries, err := parseNavDocument(data, navPath)
	if err != nil {
		b.warn(fmt.Sprintf("failed to parse nav document: %v", err))
		return nil, false
	}
	return entries, true
}

// --- NCX (ePub 2) ---

type ncxDocument struct {
	XMLName xml.Name      `xml:"ncx"`
	Points  []ncxNavPoint `xml:"navMap>navPoint"`
}

type ncxNavPoint struct {
	PlayOrder string `xml:"playOrder,attr"`
	Label     string `xml:"navLabel>text"`
	Content   struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

// parseNCX parses the navMap of an NCX file. Hrefs are resolved relative to
// ncxPath.
func parseNCX(data []byte, ncxPath string) ([]tocEntry, error) {
	var doc ncxDocument
	if err := xml.Unmarshal(stripBOM(preprocessHTMLEntities(data)), &doc); err != nil {
		return nil, fmt.Errorf("bk: parse NCX: %w", err)
	}
	return convertNavPoints(doc.Points, ncxPath), nil
}

// convertNavPoints converts navPoints recursively. Siblings are ordered by
// playOrder when every one of them declares a valid value; otherwise
// document order is kept.
func convertNavPoints(points []ncxNavPoint, ncxPath string) []tocEntry {
	if len(points) == 0 {
		return nil
	}
	entries := make([]tocEntry, 0, len(points))
	ordered := true
	for _, np := range points {
		e := tocEntry{label: collapseSpace(np.Label), playOrder: -1}
		if n, err := strconv.Atoi(strings.TrimSpace(np.PlayOrder)); err == nil && n >= 0 {
			e.playOrder = n
		} else {
			ordered = false
		}
		if src := strings.TrimSpace(np.Content.Src); src != "" {
			e.href = resolveHref(ncxPath, src)
		}
		e.children = convertNavPoints(np.Children, ncxPath)
		entries = append(entries, e)
	}
	if ordered {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].playOrder < entries[j].playOrder
		})
	}
	return entries
}

// resolveHref resolves a TOC href, keeping its fragment. A bare fragment
// refers to the document containing it.
func resolveHref(basePath, href string) string {
	p, frag := splitFragment(href)
	var resolved string
	if p == "" {
		resolved = basePath
	} else if resolved = resolveRelativePath(basePath, p); resolved == "" {
		return ""
	}
	if frag != "" {
		return resolved + "#" + frag
	}
	return resolved
}

// --- Nav document (ePub 3) ---

// parseNavDocument parses the <nav epub:type="toc"> list of an ePub 3 nav
// document. When no nav is typed "toc", the first <nav> is used.
func parseNavDocument(data []byte, navPath string) ([]tocEntry, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("bk: parse nav document: %w", err)
	}

	var navs []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Nav {
			navs = append(navs, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var toc *html.Node
	for _, nav := range navs {
		if hasToken(getAttr(nav, "epub:type"), "toc") || hasToken(getAttr(nav, "role"), "doc-toc") {
			toc = nav
			break
		}
	}
	if toc == nil && len(navs) > 0 {
		toc = navs[0]
	}
	if toc == nil {
		return nil, nil
	}
	ol := findDescendant(toc, atom.Ol)
	if ol == nil {
		return nil, nil
	}
	return parseNavList(ol, navPath), nil
}

func parseNavList(ol *html.Node, navPath string) []tocEntry {
	var entries []tocEntry
	for c := ol.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Li {
			entries = append(entries, parseNavItem(c, navPath))
		}
	}
	return entries
}

// parseNavItem reads one <li>: the first <a> (or a <span> heading) gives the
// label and target, a nested <ol> gives the children.
func parseNavItem(li *html.Node, navPath string) tocEntry {
	e := tocEntry{playOrder: -1}
	for c := li.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.A:
			if e.href == "" {
				if href := strings.TrimSpace(getAttr(c, "href")); href != "" {
					e.href = resolveHref(navPath, href)
				}
				e.label = collapseSpace(textContent(c))
			}
		case atom.Span:
			if e.label == "" {
				e.label = collapseSpace(textContent(c))
			}
		case atom.Ol:
			e.children = parseNavList(c, navPath)
		}
	}
	return e
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key || (a.Namespace != "" && a.Namespace+":"+a.Key == key) {
			return a.Val
		}
	}
	return ""
}

func hasToken(list, token string) bool {
	for _, t := range strings.Fields(list) {
		if t == token {
			return true
		}
	}
	return false
}

func findDescendant(n *html.Node, a atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
		if found := findDescendant(c, a); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// walkTOC calls fn for every node in pre-order until fn returns false.
func walkTOC(nodes []TocNode, fn func(*TocNode) bool) bool {
	for i := range nodes {
		if !fn(&nodes[i]) || !walkTOC(nodes[i].Children, fn) {
			return false
		}
	}
	return true
}

func copyTOC(in []TocNode) []TocNode {
	if in == nil {
		return nil
	}
	out := make([]TocNode, len(in))
	for i := range in {
		out[i] = in[i]
		out[i].Children = copyTOC(in[i].Children)
	}
	return out
}
