package models

import "time"

// Provenance values for ClubMembership.JoinedVia. Anything else is treated as
// the id of the round the member converged from.
const (
	JoinedViaManual   = "manual"
	JoinedViaBackfill = "backfill"
)

// ClubMembership records one user's relationship to one club. The document id
// is a deterministic function of (clubId, userId), so re-joins resolve to the
// same record. Records are never deleted: leaving flips IsActive to false and
// the record stays for history and idempotent re-join.
type ClubMembership struct {
	ID        string      `json:"id"`
	ClubID    string      `json:"clubId"`
	UserID    string      `json:"userId"`
	User      UserSummary `json:"user"`
	JoinedVia string      `json:"joinedVia"`
	JoinedAt  time.Time   `json:"joinedAt"`
	IsActive  bool        `json:"isActive"`
}
