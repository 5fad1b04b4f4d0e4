package dispatch

import (
	"encoding/base64"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/PabloGalante/chicha/internal/domain"
)

const (
	MaxAttachments     = 5
	MaxAttachmentBytes = 5 * 1024 * 1024
)

// Attachment is an image queued for the next send.
type Attachment struct {
	ID          string
	Name        string
	ContentType string
	Data        []byte

	// Preview is a data URI filled in asynchronously. An attachment without
	// one can still be sent.
	Preview string
}

func (a Attachment) Size() int { return len(a.Data) }

// extension picks the file extension used in the storage path.
func (a Attachment) extension() string {
	if ext := filepath.Ext(a.Name); ext != "" {
		return strings.ToLower(ext)
	}
	switch mediaType(a.ContentType) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	if exts, _ := mime.ExtensionsByType(a.ContentType); len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// validateAttachment checks one file against the queue it would join.
// The returned title/description pair is the user-facing notification.
func validateAttachment(name, contentType string, size, queued int) (title, desc string, err error) {
	switch {
	case queued >= MaxAttachments:
		return "Too Many Images",
			fmt.Sprintf("You can only upload up to %d images at once. Please remove some images.", MaxAttachments),
			fmt.Errorf("%w: at most %d attachments", domain.ErrValidation, MaxAttachments)
	case !strings.HasPrefix(mediaType(contentType), "image/"):
		return "Invalid File",
			fmt.Sprintf("%s is not an image file.", name),
			fmt.Errorf("%w: %s has media type %q", domain.ErrValidation, name, contentType)
	case size > MaxAttachmentBytes:
		return "File Too Large",
			fmt.Sprintf("%s is larger than 5MB.", name),
			fmt.Errorf("%w: %s is %d bytes", domain.ErrValidation, name, size)
	}
	return "", "", nil
}

func dataURI(contentType string, data []byte) string {
	return "data:" + mediaType(contentType) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// imageMarkdown embeds uploaded images in a message body.
func imageMarkdown(text string, urls []string) string {
	if len(urls) == 0 {
		return text
	}
	refs := make([]string, 0, len(urls))
	for _, u := range urls {
		refs = append(refs, fmt.Sprintf("![Image](%s)", u))
	}
	body := strings.Join(refs, "\n")
	if text == "" {
		return body
	}
	return text + "\n\n" + body
}
