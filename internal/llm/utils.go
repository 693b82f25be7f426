package llm

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// DataURL encodes an image as a data: URL for providers that take inline images.
func DataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = DetectMIME(data)
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DetectMIME sniffs the image type, defaulting to JPEG.
func DetectMIME(data []byte) string {
	mt := http.DetectContentType(data)
	if strings.HasPrefix(mt, "image/") {
		return mt
	}
	return "image/jpeg"
}

// FileName picks an upload name matching the MIME type.
func FileName(window, mimeType string) string {
	if window == "" {
		window = "window"
	}
	switch mimeType {
	case "image/png":
		return window + ".png"
	default:
		return window + ".jpg"
	}
}
