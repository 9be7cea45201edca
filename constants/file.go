package constants

import "strings"

// Format is the detected document format stored on a RawDocument.
type Format string

const (
	PDF   Format = "pdf"
	STEP  Format = "step"
	IMAGE Format = "image"
)

// FileTypes holds the allowed values for a document's format.
var FileTypes = []Format{PDF, STEP, IMAGE}

// AllowedExtensions maps accepted upload extensions to their format.
var AllowedExtensions = map[string]Format{
	"pdf":  PDF,
	"step": STEP,
	"stp":  STEP,
	"png":  IMAGE,
	"jpg":  IMAGE,
	"jpeg": IMAGE,
	"tif":  IMAGE,
	"tiff": IMAGE,
	"bmp":  IMAGE,
}

// ReferenceExtensions are the file types accepted into the knowledge corpus.
var ReferenceExtensions = map[string]struct{}{
	"pdf": {},
	"md":  {},
	"txt": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns the format for a normalized extension, or "" when unknown.
func MapExtToFormat(ext string) Format {
	return AllowedExtensions[NormalizeExt(ext)]
}
