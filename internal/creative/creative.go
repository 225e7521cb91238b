// Package creative resolves the platform's variable-shape creative payload
// into a single models.Creative.
package creative

import (
	"github.com/patrickwarner/adsync/internal/graph"
	"github.com/patrickwarner/adsync/internal/models"
)

// Extract resolves c by trying each known shape in order: fields set on the
// creative itself, the story spec link data, the story spec video data, and
// finally the asset feed. The first shape carrying text decides the Kind.
// When none does, the Kind is unknown and the raw payload is kept.
func Extract(c *graph.AdCreative) models.Creative {
	if c == nil {
		return models.Creative{Kind: models.CreativeUnknown}
	}

	out := models.Creative{ID: c.ID, Type: c.ObjectType}

	var link *graph.LinkData
	var video *graph.VideoData
	if spec := c.ObjectStorySpec; spec != nil {
		link, video = spec.LinkData, spec.VideoData
	}
	feed := c.AssetFeedSpec

	switch {
	case c.Body != "" || c.Title != "":
		out.Kind = models.CreativePlain
		out.Body, out.Title = c.Body, c.Title
	case link != nil && (link.Message != "" || link.Name != "" || link.Description != ""):
		out.Kind = models.CreativeLinkData
		out.Body = link.Message
		out.Title = first(link.Name, link.Description)
	case video != nil && (video.Message != "" || video.Title != ""):
		out.Kind = models.CreativeVideoData
		out.Body, out.Title = video.Message, video.Title
	case feed != nil && (len(feed.Titles) > 0 || len(feed.Bodies) > 0):
		out.Kind = models.CreativeAssetFeed
		out.Variants = variants(feed)
		out.Title = firstOf(out.Variants.Titles)
		out.Body = firstOf(out.Variants.Bodies)
	default:
		out.Kind = models.CreativeUnknown
		out.Raw = c.Raw
	}

	// Media falls back across shapes in the same order as text.
	out.ImageURL = c.ImageURL
	out.ThumbnailURL = c.ThumbnailURL
	out.VideoID = c.VideoID
	if link != nil {
		out.ImageURL = first(out.ImageURL, link.Picture)
	}
	if video != nil {
		out.ImageURL = first(out.ImageURL, video.ImageURL)
		out.ThumbnailURL = first(out.ThumbnailURL, video.ImageURL)
		out.VideoID = first(out.VideoID, video.VideoID)
	}
	if feed != nil {
		if len(feed.Images) > 0 {
			out.ImageURL = first(out.ImageURL, feed.Images[0].URL)
		}
		if len(feed.Videos) > 0 {
			out.ThumbnailURL = first(out.ThumbnailURL, feed.Videos[0].ThumbnailURL)
			out.VideoID = first(out.VideoID, feed.Videos[0].VideoID)
		}
	}
	return out
}

func variants(feed *graph.AssetFeedSpec) *models.CreativeVariants {
	v := &models.CreativeVariants{}
	for _, t := range feed.Titles {
		if t.Text != "" {
			v.Titles = append(v.Titles, t.Text)
		}
	}
	for _, b := range feed.Bodies {
		if b.Text != "" {
			v.Bodies = append(v.Bodies, b.Text)
		}
	}
	for _, img := range feed.Images {
		if img.URL != "" {
			v.Images = append(v.Images, img.URL)
		}
	}
	for _, vid := range feed.Videos {
		if vid.VideoID != "" {
			v.Videos = append(v.Videos, vid.VideoID)
		}
	}
	return v
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstOf(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
