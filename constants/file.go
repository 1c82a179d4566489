package constants

import (
	"sort"
	"strings"
)

// MaxUploadSize is the default cap for tenancy agreement uploads (10MB).
const MaxUploadSize int64 = 10 << 20

// UploadExtensions holds the extensions accepted at the upload boundary.
var UploadExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"xlsx": {},
	"xls":  {},
	"docx": {},
	"doc":  {},
}

// ExtractionMimeTypes is the whitelist the extraction client accepts, keyed by extension.
var ExtractionMimeTypes = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"xls":  "application/vnd.ms-excel",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"doc":  "application/msword",
}

// ConversionKind says how the normalizer turns an extension into PDF.
type ConversionKind int

const (
	ConvertNone    ConversionKind = iota // unknown: passed through as-is
	ConvertPassive                       // already PDF
	ConvertOffice                        // headless office suite
	ConvertImage                         // in-process rasterizer
)

var conversionKinds = map[string]ConversionKind{
	"pdf":  ConvertPassive,
	"doc":  ConvertOffice,
	"docx": ConvertOffice,
	"odt":  ConvertOffice,
	"rtf":  ConvertOffice,
	"xls":  ConvertOffice,
	"xlsx": ConvertOffice,
	"jpg":  ConvertImage,
	"jpeg": ConvertImage,
	"png":  ConvertImage,
	"webp": ConvertImage,
	"gif":  ConvertImage,
}

// ConversionFor returns the conversion strategy for an extension (with or without the dot).
func ConversionFor(ext string) ConversionKind {
	return conversionKinds[NormalizeExt(ext)]
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// AllowedUpload reports whether ext is accepted at the upload boundary.
func AllowedUpload(ext string) bool {
	_, ok := UploadExtensions[NormalizeExt(ext)]
	return ok
}

// UploadExtensionList returns the accepted extensions as ".ext" values, sorted.
func UploadExtensionList() []string {
	out := make([]string, 0, len(UploadExtensions))
	for ext := range UploadExtensions {
		out = append(out, "."+ext)
	}
	sort.Strings(out)
	return out
}

// MimeTypeFor returns the whitelisted content type for ext, or "".
func MimeTypeFor(ext string) string {
	return ExtractionMimeTypes[NormalizeExt(ext)]
}
