package platform

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// ValidateAgainst checks p, already resolved for the platform, against
// limits. Errors are reported in a stable order: text, hashtags, media
// counts, then each attachment.
func ValidateAgainst(id ID, limits Limits, p Payload) Validation {
	var errors []string
	add := func(format string, args ...any) {
		errors = append(errors, fmt.Sprintf(format, args...))
	}

	caption := p.Caption()
	if caption == "" && len(p.Media) == 0 {
		add("post has no text or media")
	}
	if n := utf8.RuneCountInString(caption); limits.MaxTextLength > 0 && n > limits.MaxTextLength {
		add("text is %d characters, %s allows at most %d", n, id, limits.MaxTextLength)
	}
	if n := len(p.Tags()); limits.MaxHashtags > 0 && n > limits.MaxHashtags {
		add("%d hashtags, %s allows at most %d", n, id, limits.MaxHashtags)
	}

	images, videos := p.Images(), p.Videos()
	if limits.RequiresMedia && len(p.Media) == 0 {
		add("%s requires at least one image or video", id)
	}
	if len(images) > limits.MaxImages {
		if limits.MaxImages == 0 {
			add("%s does not accept images", id)
		} else {
			add("%d images, %s allows at most %d", len(images), id, limits.MaxImages)
		}
	}
	if len(videos) > limits.MaxVideos {
		if limits.MaxVideos == 0 {
			add("%s does not accept videos", id)
		} else {
			add("%d videos, %s allows at most %d", len(videos), id, limits.MaxVideos)
		}
	}
	if !limits.AllowMixedMedia && len(images) > 0 && len(videos) > 0 {
		add("%s does not accept images and videos in the same post", id)
	}

	for i, m := range p.Media {
		if m.URL == "" {
			add("media[%d]: url is required", i)
		}
		switch m.Type {
		case MediaImage:
			if limits.MaxImageSizeBytes > 0 && m.SizeBytes > limits.MaxImageSizeBytes {
				add("media[%d]: image is %d bytes, %s allows at most %d", i, m.SizeBytes, id, limits.MaxImageSizeBytes)
			}
		case MediaVideo:
			if limits.MaxVideoSizeBytes > 0 && m.SizeBytes > limits.MaxVideoSizeBytes {
				add("media[%d]: video is %d bytes, %s allows at most %d", i, m.SizeBytes, id, limits.MaxVideoSizeBytes)
			}
			if d := time.Duration(m.Duration * float64(time.Second)); limits.MaxVideoDuration > 0 && d > limits.MaxVideoDuration {
				add("media[%d]: video is %s long, %s allows at most %s", i, d, id, limits.MaxVideoDuration)
			}
		default:
			add("media[%d]: unknown media type %q", i, m.Type)
			continue
		}
		if !limits.Supports(m.MIMEType) {
			add("media[%d]: %s does not accept %q", i, id, m.MIMEType)
		}
	}

	return Validation{Valid: len(errors) == 0, Errors: nonNil(errors)}
}

// Merge appends extra errors to v.
func (v Validation) Merge(extra ...string) Validation {
	if len(extra) == 0 {
		return v
	}
	v.Errors = append(v.Errors, extra...)
	v.Valid = false
	return v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
