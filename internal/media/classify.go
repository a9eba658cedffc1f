// Package media classifies, transcribes, and normalizes message attachments.
package media

import (
	"net/url"
	"path"
	"strings"
)

// Kind is the broad category of a message attachment.
type Kind int

const (
	None Kind = iota
	Audio
	Image
	Other
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Audio:
		return "audio"
	case Image:
		return "image"
	default:
		return "other"
	}
}

var audioExtensions = map[string]bool{
	".ogg":  true,
	".opus": true,
	".mp3":  true,
	".m4a":  true,
	".wav":  true,
	".aac":  true,
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Classify guesses the attachment kind from its URL. The URL often carries a
// mime-type hint ("audio/ogg", "image/jpeg") or a push-to-talk marker rather
// than a clean file extension, so substring checks back up the extension map.
func Classify(mediaURL string) Kind {
	if mediaURL == "" {
		return None
	}

	lower := strings.ToLower(mediaURL)
	ext := strings.ToLower(path.Ext(urlPath(mediaURL)))

	switch {
	case audioExtensions[ext],
		strings.Contains(lower, "audio/"),
		strings.Contains(lower, "/ptt"):
		return Audio
	case imageExtensions[ext],
		strings.Contains(lower, "image/"):
		return Image
	default:
		return Other
	}
}

// urlPath strips query and fragment so extension detection doesn't trip on
// signed-URL parameters.
func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Path != "" {
		return u.Path
	}
	return raw
}
