package models

import "time"

// Account is a publishing account authorized through the OAuth login.
// Credentials never leave the service in API responses.
type Account struct {
	ID                int       `json:"id"`
	TwitterID         string    `json:"twitter_id"`
	Username          string    `json:"username"`
	AccessToken       string    `json:"-"`
	AccessTokenSecret string    `json:"-"`
	Language          string    `json:"language"`
	CustomStyle       string    `json:"custom_style"`
	CreatedAt         time.Time `json:"created_at"`
}

// AccountDetails bundles an account with what it monitors.
type AccountDetails struct {
	User           Account  `json:"user"`
	MonitoredUsers []string `json:"monitored_users"`
	Keywords       []string `json:"keywords"`
}

// AccountUpdate carries the mutable part of an account.
// Nil slices leave the monitored lists untouched.
type AccountUpdate struct {
	Language       *string  `json:"language"`
	CustomStyle    *string  `json:"custom_style"`
	MonitoredUsers []string `json:"monitored_users"`
	Keywords       []string `json:"keywords"`
}
