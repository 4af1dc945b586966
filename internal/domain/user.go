package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// User represents the authenticated profile returned by the users/me endpoint
type User struct {
	ID            ID     `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Avatar        string `json:"avatar,omitempty"`
	IsCoordinator bool   `json:"is_coordinator,omitempty"`
	IsVolunteer   bool   `json:"is_volunteer,omitempty"`
}

// DisplayName returns the full name when known, falling back to the username
func (u *User) DisplayName() string {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full != "" {
		return full
	}
	return u.Username
}

// ID accepts both numeric and string identifiers from the backend
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}
