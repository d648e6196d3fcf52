package artifact

import (
	"mime"
	"net/http"
	"path"
	"strings"
)

// DeliveryContentType is the content type every stored video is normalized to.
const DeliveryContentType = "video/mp4"

var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var videoTypes = map[string]string{
	"video/mp4":        ".mp4",
	"video/quicktime":  ".mov",
	"video/webm":       ".webm",
	"video/x-msvideo":  ".avi",
	"video/x-matroska": ".mkv",
	"video/mpeg":       ".mpeg",
	"video/ogg":        ".ogv",
	"video/3gpp":       ".3gp",
	"video/x-flv":      ".flv",
}

// NormalizeContentType lowercases the media type and strips parameters.
// Aliases such as image/jpg are folded into their canonical form.
func NormalizeContentType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	switch mediaType {
	case "image/jpg", "image/pjpeg":
		return "image/jpeg"
	case "video/mov":
		return "video/quicktime"
	case "video/avi", "video/msvideo":
		return "video/x-msvideo"
	}
	return mediaType
}

// Classify maps a content type to its kind. Generic or missing types are
// sniffed from head, the first bytes of the payload.
func Classify(contentType string, head []byte) (Kind, string, error) {
	ct := NormalizeContentType(contentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = NormalizeContentType(http.DetectContentType(head))
	}
	if _, ok := imageTypes[ct]; ok {
		return KindImage, ct, nil
	}
	if _, ok := videoTypes[ct]; ok {
		return KindVideo, ct, nil
	}
	return "", ct, ErrUnsupportedMediaType
}

// ExtensionFor returns the file extension a content type is stored with.
func ExtensionFor(contentType string) string {
	ct := NormalizeContentType(contentType)
	if ext, ok := imageTypes[ct]; ok {
		return ext
	}
	if ext, ok := videoTypes[ct]; ok {
		return ext
	}
	return ".bin"
}

// ContentTypeFor derives a content type from a stored file name.
func ContentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

// Listable reports whether a stored file name belongs to kind's listing.
// Only delivery formats are listed: stored videos are always mp4.
func Listable(kind Kind, name string) bool {
	ext := strings.ToLower(path.Ext(name))
	switch kind {
	case KindImage:
		return ext == ".jpg" || ext == ".jpeg" || ext == ".png" || ext == ".gif" || ext == ".webp"
	case KindVideo:
		return ext == ".mp4"
	default:
		return false
	}
}
