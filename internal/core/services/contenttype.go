package services

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// extensionTypes covers extensions whose system MIME mapping is missing or
// inconsistent across platforms.
var extensionTypes = map[string]string{
	".txt":      "text/plain",
	".text":     "text/plain",
	".log":      "text/plain",
	".csv":      "text/csv",
	".json":     "application/json",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".html":     "text/html",
	".htm":      "text/html",
	".pdf":      "application/pdf",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".eml":      "message/rfc822",
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".tif":      "image/tiff",
	".tiff":     "image/tiff",
}

// NormaliseContentType lower-cases a media type and strips its parameters.
// An empty or generic type is resolved from the filename extension, then by
// sniffing the content.
func NormaliseContentType(contentType, filename string, content []byte) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mediaType
	} else if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}

	if ct != "" && ct != "application/octet-stream" {
		return ct
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if mediaType, _, err := mime.ParseMediaType(t); err == nil {
			return mediaType
		}
	}

	if len(content) > 0 {
		sniffed := http.DetectContentType(content)
		if mediaType, _, err := mime.ParseMediaType(sniffed); err == nil {
			return mediaType
		}
	}
	return "application/octet-stream"
}
