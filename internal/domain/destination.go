package domain

import "strings"

// Destination is a logical chat delivery target.
type Destination string

const (
	DestinationOfficialInfo Destination = "official_info"
	DestinationEnvironment  Destination = "environment"
	DestinationNewCard      Destination = "new_card"
)

// FeedKind identifies which account a timeline belongs to.
type FeedKind string

const (
	FeedOfficial    FeedKind = "official"
	FeedEnvironment FeedKind = "environment"
)

// newCardKeywords mark official posts that reveal card designs.
var newCardKeywords = []string{
	"カードデザイン公開",
	"全カードリスト公開",
	"パラレルカード公開",
	"PRカード",
}

// RoutePost picks the destination for a post coming from the given feed.
func RoutePost(feed FeedKind, text string) Destination {
	if feed == FeedEnvironment {
		return DestinationEnvironment
	}
	for _, kw := range newCardKeywords {
		if strings.Contains(text, kw) {
			return DestinationNewCard
		}
	}
	return DestinationOfficialInfo
}
