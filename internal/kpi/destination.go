package kpi

import (
	"strings"

	"github.com/patrickwarner/adsync/internal/graph"
	"github.com/patrickwarner/adsync/internal/models"
)

// Channel is the messaging destination a lead was attributed to.
type Channel int

const (
	ChannelNone Channel = iota
	ChannelWhatsApp
	ChannelInstagram
	ChannelMessenger
)

func (c Channel) String() string {
	switch c {
	case ChannelWhatsApp:
		return "whatsapp"
	case ChannelInstagram:
		return "instagram"
	case ChannelMessenger:
		return "messenger"
	default:
		return "none"
	}
}

// ClassifyDestination buckets an action_destination value. The platform
// reports Messenger destinations as page ids or m.me links with no stable
// marker, so any non-trivial value that is not "other" counts as Messenger.
func ClassifyDestination(dest string) Channel {
	d := strings.ToLower(dest)
	switch {
	case strings.Contains(d, "whatsapp"):
		return ChannelWhatsApp
	case strings.Contains(d, "instagram"):
		return ChannelInstagram
	case strings.Contains(d, "messenger"), len(d) > 5 && !strings.Contains(d, "other"):
		return ChannelMessenger
	default:
		return ChannelNone
	}
}

// BucketLeads sums lead actions by destination channel. actions must come
// from a query with action_breakdowns=action_destination.
func BucketLeads(actions []graph.Action) models.LeadChannels {
	var out models.LeadChannels
	for _, a := range actions {
		if !leadActions[a.ActionType] {
			continue
		}
		n := int64(a.Value.Float())
		switch ClassifyDestination(a.Destination) {
		case ChannelWhatsApp:
			out.WhatsApp += n
		case ChannelInstagram:
			out.Instagram += n
		case ChannelMessenger:
			out.Messenger += n
		}
	}
	return out
}
