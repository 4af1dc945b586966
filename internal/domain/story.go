package domain

import "time"

// Story is a public story pushed on the live feed
type Story struct {
	ID        ID         `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	StoryType string     `json:"story_type,omitempty"`
	Author    string     `json:"author,omitempty"`
	MediaURL  string     `json:"media_url,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// FeedMessage is a frame from the stories channel. The server sends either
// {"story": {...}} or the story object itself.
type FeedMessage struct {
	Type    string `json:"type,omitempty"`
	Wrapped *Story `json:"story,omitempty"`
	Story
}

// ExtractStory returns the story carried by the message, if it has an id and a title
func (m *FeedMessage) ExtractStory() (*Story, bool) {
	if m.Wrapped != nil {
		if m.Wrapped.ID == "" || m.Wrapped.Title == "" {
			return nil, false
		}
		return m.Wrapped, true
	}
	if m.ID == "" || m.Title == "" {
		return nil, false
	}
	s := m.Story
	return &s, true
}
