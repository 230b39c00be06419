package members

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stridelab/clubhouse/pkg/clubhouse/cache"
	"github.com/stridelab/clubhouse/pkg/clubhouse/docstore"
	"github.com/stridelab/clubhouse/pkg/clubhouse/events"
	"github.com/stridelab/clubhouse/pkg/clubhouse/models"
)

// ErrNoMembership is returned by Leave when the user has no membership record
// at all. Leaving a club you never joined is a caller error, not a no-op.
var ErrNoMembership = errors.New("members: no membership record")

// MembershipID returns the deterministic document id for a (club, user)
// pair. It is pure: the same pair always maps to the same id, which is what
// makes joins idempotent at the identity level.
func MembershipID(clubID, userID string) string {
	return clubID + "_" + userID
}

// Service is the membership ledger. It records join/leave/reactivate
// transitions and keeps the club's denormalized member counter in step via
// paired writes.
//
// The read-check-then-write sequence in Join is not atomic end to end: two
// concurrent first-time joins for the same user can both increment the
// counter. The deterministic id keeps the records themselves converged.
type Service struct {
	store  docstore.Client
	clock  func() time.Time
	events events.Publisher
	counts *cache.MemberCounts
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithEvents sets the membership event publisher.
func WithEvents(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithCountCache sets the member-count display cache.
func WithCountCache(c *cache.MemberCounts) Option {
	return func(s *Service) { s.counts = c }
}

func NewService(store docstore.Client, opts ...Option) *Service {
	s := &Service{
		store:  store,
		clock:  time.Now,
		events: events.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Join records user as an active member of the club. Three cases:
//
//   - no record: create it and increment the club's member counter
//   - inactive record: reactivate it, refresh the profile snapshot and
//     provenance, leave JoinedAt and the counter untouched
//   - active record: no-op, return the record unchanged
//
// The reactivation branch not incrementing the counter means a
// join/leave/join cycle leaves the counter one below the active-member count.
// That is the inherited contract; see the ledger tests.
func (s *Service) Join(ctx context.Context, clubID string, user models.UserSummary, joinedVia string) (*models.ClubMembership, error) {
	if clubID == "" || user.ID == "" {
		return nil, errors.New("members: club id and user id are required")
	}

	id := MembershipID(clubID, user.ID)
	doc, err := s.store.Get(ctx, models.MembershipsCollection, id)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return s.createMembership(ctx, clubID, user, joinedVia)
	case err != nil:
		return nil, fmt.Errorf("check membership %s: %w", id, err)
	}

	var membership models.ClubMembership
	if err := models.FromDocument(doc, &membership); err != nil {
		return nil, err
	}
	if membership.IsActive {
		return &membership, nil
	}
	return s.reactivateMembership(ctx, &membership, user, joinedVia)
}

func (s *Service) createMembership(ctx context.Context, clubID string, user models.UserSummary, joinedVia string) (*models.ClubMembership, error) {
	membership := models.ClubMembership{
		ID:        MembershipID(clubID, user.ID),
		ClubID:    clubID,
		UserID:    user.ID,
		User:      user,
		JoinedVia: joinedVia,
		JoinedAt:  s.clock().UTC(),
		IsActive:  true,
	}
	doc, err := models.ToDocument(membership)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, models.MembershipsCollection, membership.ID, doc, false); err != nil {
		return nil, fmt.Errorf("create membership %s: %w", membership.ID, err)
	}

	err = s.store.Update(ctx, models.ClubsCollection, clubID, docstore.Document{
		"memberCount": docstore.Increment(1),
		"updatedAt":   s.clock().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("increment member count for club %s: %w", clubID, err)
	}

	s.afterTransition(ctx, clubID, user.ID, joinedVia, events.TypeMemberJoined, 1)
	return &membership, nil
}

func (s *Service) reactivateMembership(ctx context.Context, membership *models.ClubMembership, user models.UserSummary, joinedVia string) (*models.ClubMembership, error) {
	membership.IsActive = true
	membership.JoinedVia = joinedVia
	membership.User = user

	doc, err := models.ToDocument(membership)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, models.MembershipsCollection, membership.ID, doc, false); err != nil {
		return nil, fmt.Errorf("reactivate membership %s: %w", membership.ID, err)
	}

	// No counter delta on reactivation.
	s.afterTransition(ctx, membership.ClubID, user.ID, joinedVia, events.TypeMemberJoined, 0)
	return membership, nil
}

// Leave marks the user's membership inactive and decrements the club's member
// counter. The record must exist. The decrement is unconditional: leaving an
// already-inactive membership decrements again.
func (s *Service) Leave(ctx context.Context, clubID, userID string) error {
	id := MembershipID(clubID, userID)
	_, err := s.store.Get(ctx, models.MembershipsCollection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("leave club %s as %s: %w", clubID, userID, ErrNoMembership)
	}
	if err != nil {
		return fmt.Errorf("check membership %s: %w", id, err)
	}

	if err := s.store.Update(ctx, models.MembershipsCollection, id, docstore.Document{"isActive": false}); err != nil {
		return fmt.Errorf("deactivate membership %s: %w", id, err)
	}
	err = s.store.Update(ctx, models.ClubsCollection, clubID, docstore.Document{
		"memberCount": docstore.Increment(-1),
		"updatedAt":   s.clock().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("decrement member count for club %s: %w", clubID, err)
	}

	s.afterTransition(ctx, clubID, userID, "", events.TypeMemberLeft, -1)
	return nil
}

// IsMember reports whether the user has an active membership in the club.
func (s *Service) IsMember(ctx context.Context, clubID, userID string) (bool, error) {
	doc, err := s.store.Get(ctx, models.MembershipsCollection, MembershipID(clubID, userID))
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var membership models.ClubMembership
	if err := models.FromDocument(doc, &membership); err != nil {
		return false, err
	}
	return membership.IsActive, nil
}

// ListActiveMembers returns a page of the club's active memberships ordered
// by membership id. cursor is the last id of the previous page ("" for the
// first page); the returned cursor is "" when there are no further pages.
func (s *Service) ListActiveMembers(ctx context.Context, clubID, cursor string, limit int) ([]models.ClubMembership, string, error) {
	docs, err := s.store.RunQuery(ctx, models.MembershipsCollection, docstore.Query{
		Filters: []docstore.Filter{
			{Field: "clubId", Value: clubID},
			{Field: "isActive", Value: true},
		},
		OrderBy:    "id",
		StartAfter: cursor,
		Limit:      limit,
	})
	if err != nil {
		return nil, "", fmt.Errorf("list members of club %s: %w", clubID, err)
	}

	memberships := make([]models.ClubMembership, 0, len(docs))
	for _, doc := range docs {
		var m models.ClubMembership
		if err := models.FromDocument(doc, &m); err != nil {
			return nil, "", err
		}
		memberships = append(memberships, m)
	}

	next := ""
	if limit > 0 && len(memberships) == limit {
		next = memberships[len(memberships)-1].ID
	}
	return memberships, next, nil
}

// ListClubsForUser resolves every club the user is an active member of. Clubs
// that no longer exist are skipped rather than failing the whole listing.
func (s *Service) ListClubsForUser(ctx context.Context, userID string) ([]models.Club, error) {
	docs, err := s.store.RunQuery(ctx, models.MembershipsCollection, docstore.Query{
		Filters: []docstore.Filter{
			{Field: "userId", Value: userID},
			{Field: "isActive", Value: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list memberships for user %s: %w", userID, err)
	}

	clubs := make([]models.Club, 0, len(docs))
	for _, doc := range docs {
		var m models.ClubMembership
		if err := models.FromDocument(doc, &m); err != nil {
			return nil, err
		}
		clubDoc, err := s.store.Get(ctx, models.ClubsCollection, m.ClubID)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve club %s: %w", m.ClubID, err)
		}
		var club models.Club
		if err := models.FromDocument(clubDoc, &club); err != nil {
			return nil, err
		}
		clubs = append(clubs, club)
	}
	return clubs, nil
}

// AddFounder writes the creator's membership record without touching the
// club's member counter: a freshly created club already counts its creator.
// The merge write makes it safe to call again for the same creator.
func (s *Service) AddFounder(ctx context.Context, clubID string, creator models.UserSummary, joinedVia string) (*models.ClubMembership, error) {
	if joinedVia == "" {
		joinedVia = models.JoinedViaManual
	}
	membership := models.ClubMembership{
		ID:        MembershipID(clubID, creator.ID),
		ClubID:    clubID,
		UserID:    creator.ID,
		User:      creator,
		JoinedVia: joinedVia,
		JoinedAt:  s.clock().UTC(),
		IsActive:  true,
	}
	doc, err := models.ToDocument(membership)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, models.MembershipsCollection, membership.ID, doc, true); err != nil {
		return nil, fmt.Errorf("record founder membership %s: %w", membership.ID, err)
	}
	return &membership, nil
}

// afterTransition publishes the membership event and nudges the count cache.
// Both are best-effort: failures are logged, never surfaced.
func (s *Service) afterTransition(ctx context.Context, clubID, userID, joinedVia, eventType string, countDelta int64) {
	ev := events.Event{
		Type:       eventType,
		ClubID:     clubID,
		UserID:     userID,
		JoinedVia:  joinedVia,
		OccurredAt: s.clock().UTC(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		log.Printf("publish %s event for club %s: %v", eventType, clubID, err)
	}
	if countDelta != 0 {
		if err := s.counts.Incr(ctx, clubID, countDelta); err != nil {
			log.Printf("update member count cache for club %s: %v", clubID, err)
		}
	}
}
