package constants

import "strings"

// AllowedImageExtensions holds the image formats accepted for upload and
// batch enumeration.
var AllowedImageExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"webp": {},
	"bmp":  {},
	"tiff": {},
	"tif":  {},
	"jfif": {},
	"heic": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedImage reports whether the filename has a supported image extension.
func IsAllowedImage(filename string) bool {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return false
	}
	_, ok := AllowedImageExtensions[NormalizeExt(filename[i:])]
	return ok
}

// ImageMIMEType maps an image extension to its MIME type, defaulting to JPEG
// the way the vision providers expect.
func ImageMIMEType(filename string) string {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return "image/jpeg"
	}
	switch NormalizeExt(filename[i:]) {
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "bmp":
		return "image/bmp"
	default:
		return "image/jpeg"
	}
}
