package models

import "time"

// Collection names in the document store.
const (
	ClubsCollection       = "clubs"
	MembershipsCollection = "clubMembers"
)

// UserSummary is a denormalized snapshot of a user's public profile, embedded
// in clubs and memberships at write time. It is not kept in sync with later
// profile edits.
type UserSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Handle   string `json:"handle,omitempty"`
	Tier     string `json:"tier,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Club is a creator-owned community. Each creator owns at most one club,
// enforced by lookup-before-create rather than a storage constraint.
//
// MemberCount caches the number of active memberships and is maintained by
// paired writes, so it can drift from the true count under the documented
// races; treat it as a display value.
type Club struct {
	ID             string      `json:"id"`
	CreatorID      string      `json:"creatorId"`
	Creator        UserSummary `json:"creator"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	CoverImageURL  string      `json:"coverImageUrl,omitempty"`
	MemberCount    int         `json:"memberCount"`
	LinkedRoundIDs []string    `json:"linkedRoundIds"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}
