package main

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/switchboardhq/switchboard/internal/platform"
)

type payloadFlags struct {
	file     string
	text     string
	hashtags []string
	images   []string
	videos   []string
	options  map[string]string
}

func addPayloadFlags(cmd *cobra.Command, p *payloadFlags) {
	cmd.Flags().StringVar(&p.file, "file", "", "read the payload as JSON from this file ('-' for stdin)")
	cmd.Flags().StringVar(&p.text, "text", "", "post text")
	cmd.Flags().StringSliceVar(&p.hashtags, "hashtag", nil, "hashtag, repeatable")
	cmd.Flags().StringSliceVar(&p.images, "image", nil, "image URL, repeatable")
	cmd.Flags().StringSliceVar(&p.videos, "video", nil, "video URL, repeatable")
	cmd.Flags().StringToStringVar(&p.options, "option", nil, "platform option key=value (e.g. to=+15551234567, privacy_level=PUBLIC_TO_EVERYONE)")
}

// build returns the payload from --file, or from the individual flags.
func (p *payloadFlags) build() (platform.Payload, error) {
	var out platform.Payload
	if p.file != "" {
		f := os.Stdin
		if p.file != "-" {
			var err error
			if f, err = os.Open(p.file); err != nil {
				return out, err
			}
			defer f.Close()
		}
		if err := json.NewDecoder(f).Decode(&out); err != nil {
			return out, fmt.Errorf("parse payload: %w", err)
		}
		return out, nil
	}

	out.Text = p.text
	out.Hashtags = p.hashtags
	for _, u := range p.images {
		out.Media = append(out.Media, mediaFromURL(u, platform.MediaImage))
	}
	for _, u := range p.videos {
		out.Media = append(out.Media, mediaFromURL(u, platform.MediaVideo))
	}
	if len(p.options) > 0 {
		out.Overrides = make(map[platform.ID]platform.Override, len(platform.All))
		for _, id := range platform.All {
			out.Overrides[id] = platform.Override{Options: p.options}
		}
	}
	return out, nil
}

// mediaFromURL guesses the MIME type from the URL's file extension.
func mediaFromURL(raw string, t platform.MediaType) platform.Media {
	m := platform.Media{URL: raw, Type: t}
	if u, err := url.Parse(raw); err == nil {
		m.MIMEType, _, _ = mime.ParseMediaType(mime.TypeByExtension(path.Ext(u.Path)))
	}
	return m
}
