package bk

import (
	"encoding/xml"
	"strings"
)

const (
	encryptionPath = "META-INF/encryption.xml"
	// sinf.xml only ships with Apple FairPlay protected books.
	sinfPath = "META-INF/sinf.xml"
)

// Font obfuscation is not DRM; the text stays readable.
var fontObfuscationAlgorithms = map[string]bool{
	"http://www.idpf.org/2008/embedding": true,
	"http://ns.adobe.com/pdf/enc#RC":     true,
}

type encryptionXML struct {
	XMLName       xml.Name        `xml:"encryption"`
	EncryptedData []encryptedData `xml:"EncryptedData"`
}

type encryptedData struct {
	Method struct {
		Algorithm string `xml:"Algorithm,attr"`
	} `xml:"EncryptionMethod"`
}

// checkDRM inspects the archive for DRM markers. It returns ErrDRMProtected
// for FairPlay, for an encryption.xml that cannot be decoded, and for any
// encrypted resource that is not an obfuscated font. fontObfuscation reports
// whether obfuscated fonts were seen.
func checkDRM(a *archive) (fontObfuscation bool, err error) {
	if a.find(sinfPath) != nil {
		return false, ErrDRMProtected
	}

	f := a.find(encryptionPath)
	if f == nil {
		return false, nil
	}
	data, err := readZipFile(f, a.limit)
	if err != nil {
		return false, err
	}

	var enc encryptionXML
	if err := xml.Unmarshal(stripBOM(data), &enc); err != nil {
		return false, ErrDRMProtected
	}

	for _, ed := range enc.EncryptedData {
		if !fontObfuscationAlgorithms[strings.TrimSpace(ed.Method.Algorithm)] {
			return false, ErrDRMProtected
		}
		fontObfuscation = true
	}
	return fontObfuscation, nil
}
