package assets

import "strings"

var iconsByMime = map[string]string{
	"application/pdf":              "icons/pdf.svg",
	"application/zip":              "icons/archive.svg",
	"application/x-tar":            "icons/archive.svg",
	"application/gzip":             "icons/archive.svg",
	"application/x-7z-compressed":  "icons/archive.svg",
	"application/x-rar-compressed": "icons/archive.svg",
	"application/json":             "icons/text.svg",
	"application/xml":              "icons/text.svg",
}

// IconForMime maps a mime type to the embedded icon that represents
// it, falling back to a generic file icon.
func IconForMime(mimeType string) string {
	if icon, ok := iconsByMime[mimeType]; ok {
		return icon
	}
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "icons/image.svg"
	case strings.HasPrefix(mimeType, "video/"):
		return "icons/video.svg"
	case strings.HasPrefix(mimeType, "audio/"):
		return "icons/audio.svg"
	case strings.HasPrefix(mimeType, "text/"):
		return "icons/text.svg"
	}
	return "icons/file.svg"
}
