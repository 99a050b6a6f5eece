package bk

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// xmlSafeEntities maps HTML named entities that commonly leak into OPF and
// NCX files to their code points. encoding/xml only knows the five XML ones.
var xmlSafeEntities = map[string]rune{
	"nbsp": 160, "mdash": 8212, "ndash": 8211, "hellip": 8230,
	"lsquo": 8216, "rsquo": 8217, "ldquo": 8220, "rdquo": 8221,
	"copy": 169, "reg": 174, "trade": 8482, "bull": 8226, "middot": 183,
	"eacute": 233, "egrave": 232, "ecirc": 234, "euml": 235,
	"aacute": 225, "agrave": 224, "acirc": 226, "auml": 228,
	"iacute": 237, "igrave": 236, "icirc": 238, "iuml": 239,
	"oacute": 243, "ograve": 242, "ocirc": 244, "ouml": 246,
	"uacute": 250, "ugrave": 249, "ucirc": 251, "uuml": 252,
	"ntilde": 241, "ccedil": 231, "times": 215, "divide": 247,
	"deg": 176, "para": 182, "sect": 167, "laquo": 171, "raquo": 187,
	"iexcl": 161, "iquest": 191,
}

var htmlEntityPattern = func() *regexp.Regexp {
	names := make([]string, 0, len(xmlSafeEntities))
	for name := range xmlSafeEntities {
		names = append(names, name)
	}
	sort.Strings(names)
	return regexp.MustCompile(`(?i)&(` + strings.Join(names, "|") + `);`)
}()

// preprocessHTMLEntities rewrites known HTML named entities, matched
// case-insensitively, into numeric character references.
func preprocessHTMLEntities(data []byte) []byte {
	return htmlEntityPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		r, ok := xmlSafeEntities[strings.ToLower(string(m[1:len(m)-1]))]
		if !ok {
			return m
		}
		return []byte("&#" + strconv.Itoa(int(r)) + ";")
	})
}
