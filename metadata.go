package bk

import (
	"sort"
	"strconv"
	"strings"
)

// extractMetadata converts raw OPF metadata into Metadata. Empty values are
// dropped; single-valued fields keep the first non-empty value.
func extractMetadata(pkg *opfPackage) Metadata {
	om := &pkg.Metadata
	refines := buildRefinesMap(om.Metas)

	md := Metadata{
		Version:     pkg.Version,
		Titles:      extractTitles(om.Titles, refines),
		Authors:     extractAuthors(om.Creators, refines),
		Language:    nonEmptyValues(om.Languages),
		Publisher:   firstValue(om.Publishers),
		Date:        firstValue(om.Dates),
		Description: firstValue(om.Descriptions),
		Subjects:    nonEmptyValues(om.Subjects),
		Rights:      firstValue(om.Rights),
		Source:      firstValue(om.Sources),
	}

	for _, el := range om.Identifiers {
		v := strings.TrimSpace(el.Value)
		if v == "" {
			continue
		}
		id := Identifier{Value: v, Scheme: el.Scheme, ID: el.ID}
		if id.Scheme == "" {
			id.Scheme = refine(refines, el.ID, "identifier-type")
		}
		md.Identifiers = append(md.Identifiers, id)
	}
	return md
}

func firstValue(els []dcElement) string {
	for _, el := range els {
		if v := strings.TrimSpace(el.Value); v != "" {
			return v
		}
	}
	return ""
}

func nonEmptyValues(els []dcElement) []string {
	var out []string
	for _, el := range els {
		if v := strings.TrimSpace(el.Value); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// buildRefinesMap groups <meta refines="#id"> elements by the refined id.
func buildRefinesMap(metas []opfMeta) map[string][]opfMeta {
	m := make(map[string][]opfMeta)
	for _, meta := range metas {
		if id, ok := strings.CutPrefix(meta.Refines, "#"); ok && id != "" {
			m[id] = append(m[id], meta)
		}
	}
	return m
}

// refine returns the first non-empty value of property refining id.
func refine(refines map[string][]opfMeta, id, property string) string {
	if id == "" {
		return ""
	}
	for _, m := range refines[id] {
		if m.Property != property {
			continue
		}
		if v := strings.TrimSpace(m.Value); v != "" {
			return v
		}
	}
	return ""
}

// extractTitles returns non-empty titles. When any title carries an ePub 3
// display-seq, titles with a sequence come first in sequence order.
func extractTitles(titles []dcElement, refines map[string][]opfMeta) []string {
	type entry struct {
		value string
		seq   int
	}
	var entries []entry
	hasSeq := false
	for _, t := range titles {
		v := strings.TrimSpace(t.Value)
		if v == "" {
			continue
		}
		e := entry{value: v}
		if n, err := strconv.Atoi(refine(refines, t.ID, "display-seq")); err == nil && n > 0 {
			e.seq = n
			hasSeq = true
		}
		entries = append(entries, e)
	}
	if hasSeq {
		sort.SliceStable(entries, func(i, j int) bool {
			si, sj := entries[i].seq, entries[j].seq
			if si == 0 || sj == 0 {
				return sj == 0 && si != 0
			}
			return si < sj
		})
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// extractAuthors reads dc:creator entries, falling back to refines for
// file-as and role when the ePub 2 attributes are absent.
func extractAuthors(creators []dcElement, refines map[string][]opfMeta) []Author {
	var authors []Author
	for _, c := range creators {
		name := strings.TrimSpace(c.Value)
		if name == "" {
			continue
		}
		a := Author{Name: name, FileAs: c.FileAs, Role: c.Role}
		if a.FileAs == "" {
			a.FileAs = refine(refines, c.ID, "file-as")
		}
		if a.Role == "" {
			a.Role = refine(refines, c.ID, "role")
		}
		authors = append(authors, a)
	}
	return authors
}

func copyMetadata(in Metadata) Metadata {
	out := in
	out.Titles = append([]string(nil), in.Titles...)
	out.Authors = append([]Author(nil), in.Authors...)
	out.Language = append([]string(nil), in.Language...)
	out.Identifiers = append([]Identifier(nil), in.Identifiers...)
	out.Subjects = append([]string(nil), in.Subjects...)
	return out
}
