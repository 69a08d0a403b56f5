package models

import "time"

// Source kinds of a collected tweet.
const (
	SourceHandle   = "handle"
	SourceKeyword  = "keyword"
	SourceCombined = "combined"
)

// Tweet is one search hit as returned by the search service.
type Tweet struct {
	ID        string `json:"id_str"`
	Text      string `json:"full_text"`
	CreatedAt string `json:"tweet_created_at"`
}

// CollectedTweet is a staged tweet waiting for publication.
type CollectedTweet struct {
	ID              int        `json:"id"`
	UserID          int        `json:"user_id"`
	SourceType      string     `json:"source_type"`
	SourceValue     string     `json:"source_value"`
	TweetID         string     `json:"tweet_id"`
	TweetText       string     `json:"tweet_text"`
	CreatedAt       *time.Time `json:"created_at"`
	StagedAt        time.Time  `json:"staged_at"`
	PublishAttempts int        `json:"publish_attempts"`
	LastError       string     `json:"last_error,omitempty"`
}
