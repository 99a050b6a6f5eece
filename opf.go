package bk

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// opfPackage is the root <package> element of the package document.
type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Version  string      `xml:"version,attr"`
	Metadata opfMetadata `xml:"metadata"`
	Manifest struct {
		Items []opfManifestItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Toc      string `xml:"toc,attr"`
		ItemRefs []struct {
			IDRef  string `xml:"idref,attr"`
			Linear string `xml:"linear,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type opfMetadata struct {
	Titles       []dcElement `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creators     []dcElement `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Languages    []dcElement `xml:"http://purl.org/dc/elements/1.1/ language"`
	Identifiers  []dcElement `xml:"http://purl.org/dc/elements/1.1/ identifier"`
	Publishers   []dcElement `xml:"http://purl.org/dc/elements/1.1/ publisher"`
	Dates        []dcElement `xml:"http://purl.org/dc/elements/1.1/ date"`
	Descriptions []dcElement `xml:"http://purl.org/dc/elements/1.1/ description"`
	Subjects     []dcElement `xml:"http://purl.org/dc/elements/1.1/ subject"`
	Rights       []dcElement `xml:"http://purl.org/dc/elements/1.1/ rights"`
	Sources      []dcElement `xml:"http://purl.org/dc/elements/1.1/ source"`
	Metas        []opfMeta   `xml:"meta"`
}

// dcElement is a Dublin Core element. ePub 2 carries file-as, role and
// scheme as opf: attributes; ePub 3 moves them to <meta refines="#id">.
type dcElement struct {
	Value  string `xml:",chardata"`
	ID     string `xml:"id,attr"`
	FileAs string `xml:"file-as,attr"`
	Role   string `xml:"role,attr"`
	Scheme string `xml:"scheme,attr"`
}

type opfMeta struct {
	Name     string `xml:"name,attr"`
	Content  string `xml:"content,attr"`
	Property string `xml:"property,attr"`
	Refines  string `xml:"refines,attr"`
	Value    string `xml:",chardata"`
}

type opfManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

// parseOPF decodes the package document. Any decoding failure, or a package
// without manifest items, wraps ErrMalformedManifest.
func parseOPF(data []byte) (*opfPackage, error) {
	data = stripBOM(preprocessHTMLEntities(data))

	var pkg opfPackage
	if err := xml.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("bk: parse package document: %v: %w", err, ErrMalformedManifest)
	}
	if len(pkg.Manifest.Items) == 0 {
		return nil, fmt.Errorf("bk: package document has no manifest items: %w", ErrMalformedManifest)
	}
	if pkg.Version == "" {
		pkg.Version = "2.0"
	}
	return &pkg, nil
}

// buildManifest converts the raw manifest into indexed items and an id lookup.
// Items without an id or href are dropped; the first item wins on duplicate ids.
func buildManifest(raw []opfManifestItem) ([]manifestItem, map[string]int) {
	items := make([]manifestItem, 0, len(raw))
	byID := make(map[string]int, len(raw))
	for _, r := range raw {
		id, href := strings.TrimSpace(r.ID), strings.TrimSpace(r.Href)
		if id == "" || href == "" {
			continue
		}
		if _, dup := byID[id]; dup {
			continue
		}
		byID[id] = len(items)
		items = append(items, manifestItem{
			Index:      len(items),
			ID:         id,
			Href:       href,
			MediaType:  strings.TrimSpace(r.MediaType),
			Properties: r.Properties,
		})
	}
	return items, byID
}

// buildSpine resolves spine itemrefs against the manifest.
func buildSpine(pkg *opfPackage, byID map[string]int) []spineItem {
	items := make([]spineItem, 0, len(pkg.Spine.ItemRefs))
	for _, ref := range pkg.Spine.ItemRefs {
		si := spineItem{
			IDRef:    strings.TrimSpace(ref.IDRef),
			Linear:   strings.TrimSpace(ref.Linear) != "no",
			Manifest: -1,
		}
		if idx, ok := byID[si.IDRef]; ok {
			si.Manifest = idx
		}
		items = append(items, si)
	}
	return items
}
