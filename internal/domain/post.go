package domain

import (
	"fmt"
	"strings"
	"time"
)

const resharePrefix = "RT @"

// Post is a single timeline entry as returned by the social API.
type Post struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// EmittedPost is the persisted record of a relayed post.
type EmittedPost struct {
	PostID    string
	Text      string
	URL       string
	IsReshare bool
	CreatedAt time.Time
}

// IsReshare reports whether the post text denotes a reshare.
func IsReshare(text string) bool {
	return strings.HasPrefix(text, resharePrefix)
}

// Permalink builds the canonical status URL for a post of the given account.
func Permalink(accountID, postID string) string {
	return fmt.Sprintf("https://x.com/%s/status/%s", accountID, postID)
}

// NewEmittedPost derives the persisted shape from a fetched post.
func NewEmittedPost(accountID string, post Post) EmittedPost {
	return EmittedPost{
		PostID:    post.ID,
		Text:      post.Text,
		URL:       Permalink(accountID, post.ID),
		IsReshare: IsReshare(post.Text),
	}
}
