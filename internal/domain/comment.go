package domain

import "time"

// Comment is a free-text note on a request. Internal comments are visible
// to CAB members only.
type Comment struct {
	ID              string
	ChangeRequestID string
	AuthorID        string
	Text            string
	IsInternal      bool
	CreatedAt       time.Time
}

// VisibleTo reports whether viewer may read c.
func (c *Comment) VisibleTo(viewer *User) bool {
	if !c.IsInternal {
		return true
	}
	return viewer != nil && viewer.IsCABMember
}
