package entity

import "time"

// RawAuthor is the author of a raw mention as returned by the platform
type RawAuthor struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}

// RawMention is one item from the mention listing endpoint
type RawMention struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	AuthorID  string     `json:"author_id"`
	CreatedAt time.Time  `json:"created_at"`
	Author    *RawAuthor `json:"author,omitempty"`
}
