package bk

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zip"
)

// containerPath is the fixed location of the container descriptor.
const containerPath = "META-INF/container.xml"

const packageMediaType = "application/oebps-package+xml"

type containerXML struct {
	XMLName   xml.Name   `xml:"container"`
	RootFiles []rootFile `xml:"rootfiles>rootfile"`
}

type rootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

// locatePackage returns the archive path of the OPF package document.
//
// container.xml is preferred; when it is missing, unreadable or names no
// usable rootfile, the archive is scanned for the first ".opf" entry.
// It returns "" when neither succeeds, plus any warnings collected on the way.
func locatePackage(a *archive) (string, []string) {
	var warnings []string
	if f := a.find(containerPath); f != nil {
		p, err := parseContainerXML(f, a.limit)
		if err == nil {
			return p, nil
		}
		warnings = append(warnings, err.Error())
	} else {
		warnings = append(warnings, "META-INF/container.xml missing; scanning for package document")
	}
	return scanForOPF(a.zr), warnings
}

// parseContainerXML returns the full-path of the first rootfile with the
// package media type, or of the first non-empty rootfile.
func parseContainerXML(f *zip.File, limit int64) (string, error) {
	data, err := readZipFile(f, limit)
	if err != nil {
		return "", fmt.Errorf("bk: read container.xml: %w", err)
	}

	var c containerXML
	if err := xml.Unmarshal(stripBOM(data), &c); err != nil {
		return "", fmt.Errorf("bk: parse container.xml: %w", err)
	}

	var fallback string
	for _, rf := range c.RootFiles {
		p := strings.TrimSpace(rf.FullPath)
		if p == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.MediaType), packageMediaType) {
			return p, nil
		}
		if fallback == "" {
			fallback = p
		}
	}
	if fallback == "" {
		return "", fmt.Errorf("bk: container.xml has no usable rootfile: %w", ErrMissingPackageDocument)
	}
	return fallback, nil
}

// scanForOPF returns the first entry ending in ".opf", or "".
func scanForOPF(zr *zip.Reader) string {
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".opf") {
			return f.Name
		}
	}
	return ""
}
