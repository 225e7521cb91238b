package models

import "encoding/json"

// CreativeKind tags which payload shape a creative was resolved from.
type CreativeKind string

const (
	CreativePlain     CreativeKind = "plain"      // body/title set directly on the creative
	CreativeLinkData  CreativeKind = "link_data"  // object_story_spec.link_data
	CreativeVideoData CreativeKind = "video_data" // object_story_spec.video_data
	CreativeAssetFeed CreativeKind = "asset_feed" // dynamic creative with several variants
	CreativeUnknown   CreativeKind = "unknown"    // nothing recognisable; Raw holds the payload
)

// Creative is the resolved creative of an Ad. Kind says which shape the text
// came from. Variants is only set for asset feed creatives and Raw is only
// kept for unknown ones.
type Creative struct {
	Kind         CreativeKind      `json:"kind"`
	ID           string            `json:"id,omitempty"`
	Type         string            `json:"type,omitempty"` // platform object_type, e.g. VIDEO, SHARE
	Body         string            `json:"body,omitempty"`
	Title        string            `json:"title,omitempty"`
	ImageURL     string            `json:"image_url,omitempty"`
	ThumbnailURL string            `json:"thumbnail_url,omitempty"`
	VideoID      string            `json:"video_id,omitempty"`
	Variants     *CreativeVariants `json:"variants,omitempty"`
	Raw          json.RawMessage   `json:"raw,omitempty"`
}

// CreativeVariants holds the alternatives of a dynamic creative.
type CreativeVariants struct {
	Titles []string `json:"titles,omitempty"`
	Bodies []string `json:"bodies,omitempty"`
	Images []string `json:"images,omitempty"`
	Videos []string `json:"videos,omitempty"`
}
