package members

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stridelab/clubhouse/pkg/clubhouse/docstore"
	"github.com/stridelab/clubhouse/pkg/clubhouse/events"
	"github.com/stridelab/clubhouse/pkg/clubhouse/models"
)

var testTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *docstore.MemoryStore) {
	t.Helper()
	store := docstore.NewMemoryStore()
	svc := NewService(store, WithClock(func() time.Time { return testTime }))
	return svc, store
}

func seedClub(t *testing.T, store *docstore.MemoryStore, clubID, creatorID string, memberCount int) {
	t.Helper()
	club := models.Club{
		ID:             clubID,
		CreatorID:      creatorID,
		Creator:        models.UserSummary{ID: creatorID, Name: "Creator"},
		Name:           "Test Club",
		MemberCount:    memberCount,
		LinkedRoundIDs: []string{},
		CreatedAt:      testTime,
		UpdatedAt:      testTime,
	}
	doc, err := models.ToDocument(club)
	if err != nil {
		t.Fatalf("club to document: %v", err)
	}
	if err := store.Set(context.Background(), models.ClubsCollection, clubID, doc, false); err != nil {
		t.Fatalf("seed club: %v", err)
	}
}

func clubMemberCount(t *testing.T, store *docstore.MemoryStore, clubID string) int {
	t.Helper()
	doc, err := store.Get(context.Background(), models.ClubsCollection, clubID)
	if err != nil {
		t.Fatalf("get club: %v", err)
	}
	var club models.Club
	if err := models.FromDocument(doc, &club); err != nil {
		t.Fatalf("decode club: %v", err)
	}
	return club.MemberCount
}

func TestMembershipIDDeterministic(t *testing.T) {
	first := MembershipID("club-1", "user-1")
	second := MembershipID("club-1", "user-1")
	if first != second {
		t.Errorf("expected stable id, got %q then %q", first, second)
	}
	if MembershipID("club-1", "user-2") == first {
		t.Error("expected distinct ids for distinct users")
	}
	if MembershipID("club-2", "user-1") == first {
		t.Error("expected distinct ids for distinct clubs")
	}
}

func TestJoinCreatesMembership(t *testing.T) {
	svc, store := newTestService(t)
	seedClub(t, store, "c1", "creator", 1)
	ctx := context.Background()

	m, err := svc.Join(ctx, "c1", models.UserSummary{ID: "u1", Name: "Uma"}, models.JoinedViaManual)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if m.ID != MembershipID("c1", "u1") {
		t.Errorf("expected deterministic id, got %q", m.ID)
	}
	if !m.IsActive {
		t.Error("expected active membership")
	}
	if !m.JoinedAt.Equal(testTime) {
		t.Errorf("expected joinedAt %v, got %v", testTime, m.JoinedAt)
	}
	if got := clubMemberCount(t, store, "c1"); got != 2 {
		t.Errorf("expected memberCount 2, got %d", got)
	}
}

// Covers the inherited counter asymmetry end to end: join increments, leave
// decrements, but rejoining after a leave reactivates without incrementing,
// leaving the counter one short of the active-member count.
func TestJoinLeaveRejoinCounterAsymmetry(t *testing.T) {
	svc, store := newTestService(t)
	seedClub(t, store, "c1", "creator", 1)
	ctx := context.Background()
	user := models.UserSummary{ID: "u1", Name: "Uma"}

	if _, err := svc.Join(ctx, "c1", user, models.JoinedViaManual); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if got := clubMemberCount(t, store, "c1"); got != 2 {
		t.Fatalf("after join: expected memberCount 2, got %d", got)
	}

	if err := svc.Leave(ctx, "c1", "u1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if got := clubMemberCount(t, store, "c1"); got != 1 {
		t.Fatalf("after leave: expected memberCount 1, got %d", got)
	}
	if isMember, _ := svc.IsMember(ctx, "c1", "u1"); isMember {
		t.Fatal("expected isMember false after leave")
	}

	if _, err := svc.Join(ctx, "c1", user, models.JoinedViaManual); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if isMember, _ := svc.IsMember(ctx, "c1", "u1"); !isMember {
		t.Fatal("expected isMember true after rejoin")
	}
	// Reactivation does not increment: the counter stays at 1.
	if got := clubMemberCount(t, store, "c1"); got != 1 {
		t.Errorf("after rejoin: expected memberCount to stay 1, got %d", got)
	}
}

func TestJoinActiveMemberIsNoOp(t *testing.T) {
	svc, store := newTestService(t)
	seedClub(t, store, "c1", "creator", 1)
	ctx := context.Background()
	user := models.UserSummary{ID: "u1", Name: "Uma"}

	first, err := svc.Join(ctx, "c1", user, models.JoinedViaManual)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	second, err := svc.Join(ctx, "c1", user, "round-99")
	if err != nil {
		t.Fatalf("second join: %v", err)
	}

	if second.JoinedVia != first.JoinedVia {
		t.Errorf("expected joinedVia unchanged on active re-join, got %q", second.JoinedVia)
	}
	if got := clubMemberCount(t, store, "c1"); got != 2 {
		t.Errorf("expected memberCount unchanged at 2, got %d", got)
	}
}

func TestReactivationUpdatesProvenanceNotJoinedAt(t *testing.T) {
	store := docstore.NewMemoryStore()
	now := testTime
	svc := NewService(store, WithClock(func() time.Time { return now }))
	seedClub(t, store, "c1", "creator", 1)
	ctx := context.Background()
	user := models.UserSummary{ID: "u1", Name: "Uma"}

	first, err := svc.Join(ctx, "c1", user, models.JoinedViaManual)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := svc.Leave(ctx, "c1", "u1"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	now = now.Add(48 * time.Hour)
	rejoined, err := svc.Join(ctx, "c1", user, "round-42")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if rejoined.JoinedVia != "round-42" {
		t.Errorf("expected joinedVia updated on reactivation, got %q", rejoined.JoinedVia)
	}
	if !rejoined.JoinedAt.Equal(first.JoinedAt) {
		t.Errorf("expected joinedAt untouched, got %v", rejoined.JoinedAt)
	}
}

func TestLeaveWithoutRecord(t *testing.T) {
	svc, store := newTestService(t)
	seedClub(t, store, "c1", "creator", 1)

	err := svc.Leave(context.Background(), "c1", "stranger")
	if !errors.Is(err, ErrNoMembership) {
		t.Errorf("expected ErrNoMembership, got %v", err)
	}
	if got := clubMemberCount(t, store, "c1"); got != 1 {
		t.Errorf("expected memberCount untouched, got %d", got)
	}
}

// Leave decrements unconditionally, so a double leave double-decrements. This
// pins the inherited behavior rather than a desirable one.
func TestDoubleLeaveDoubleDecrements(t *testing.T) {
	svc, store := newTestService(t)
	seedClub(t, store, "c1", "creator", 1)
	ctx := context.Background()

	if _, err := svc.Join(ctx, "c1", models.UserSummary{ID: "u1"}, models.JoinedViaManual); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := svc.Leave(ctx, "c1", "u1"); err != nil {
		t.Fatalf("first leave: %v", err)
	}
	if err := svc.Leave(ctx, "c1", "u1"); err != nil {
		t.Fatalf("second leave: %v", err)
	}
	if got := clubMemberCount(t, store, "c1"); got != 0 {
		t.Errorf("expected memberCount 0 after double leave, got %d", got)
	}
}

func TestIsMemberRequiresActiveRecord(t *testing.T) {
	svc, store := newTestService(t)
	seedClub(t, store, "c1", "creator", 1)
	ctx := context.Background()

	if isMember, err := svc.IsMember(ctx, "c1", "u1"); err != nil || isMember {
		t.Errorf("expected no membership, got %v / %v", isMember, err)
	}

	if _, err := svc.Join(ctx, "c1", models.UserSummary{ID: "u1"}, models.JoinedViaManual); err != nil {
		t.Fatalf("join: %v", err)
	}
	if isMember, _ := svc.IsMember(ctx, "c1", "u1"); !isMember {
		t.Error("expected isMember true after join")
	}

	if err := svc.Leave(ctx, "c1", "u1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if isMember, _ := svc.IsMember(ctx, "c1", "u1"); isMember {
		t.Error("expected isMember false for inactive record")
	}
}

func TestListActiveMembersPagination(t *testing.T) {
	svc, store := newTestService(t)
	seedClub(t, store, "c1", "creator", 1)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		user := models.UserSummary{ID: fmt.Sprintf("u%d", i)}
		if _, err := svc.Join(ctx, "c1", user, models.JoinedViaManual); err != nil {
			t.Fatalf("join u%d: %v", i, err)
		}
	}
	if err := svc.Leave(ctx, "c1", "u2"); err != nil {
		t.Fatalf("leave u2: %v", err)
	}

	var collected []string
	cursor := ""
	for {
		page, next, err := svc.ListActiveMembers(ctx, "c1", cursor, 2)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, m := range page {
			collected = append(collected, m.UserID)
		}
		if next == "" {
			break
		}
		cursor = next
	}

	want := []string{"u0", "u1", "u3", "u4"}
	if len(collected) != len(want) {
		t.Fatalf("expected %d active members, got %v", len(want), collected)
	}
	for i, id := range want {
		if collected[i] != id {
			t.Errorf("position %d: expected %s, got %s", i, id, collected[i])
		}
	}
}

func TestListClubsForUserSkipsMissingClubs(t *testing.T) {
	svc, store := newTestService(t)
	seedClub(t, store, "c1", "creator1", 1)
	ctx := context.Background()
	user := models.UserSummary{ID: "u1"}

	if _, err := svc.Join(ctx, "c1", user, models.JoinedViaManual); err != nil {
		t.Fatalf("join c1: %v", err)
	}
	// A membership pointing at a club that no longer exists is skipped.
	orphan := models.ClubMembership{
		ID:       MembershipID("ghost", "u1"),
		ClubID:   "ghost",
		UserID:   "u1",
		IsActive: true,
	}
	doc, _ := models.ToDocument(orphan)
	if err := store.Set(ctx, models.MembershipsCollection, orphan.ID, doc, false); err != nil {
		t.Fatalf("seed orphan membership: %v", err)
	}

	clubs, err := svc.ListClubsForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list clubs: %v", err)
	}
	if len(clubs) != 1 || clubs[0].ID != "c1" {
		t.Errorf("expected only c1, got %v", clubs)
	}
}

func TestAddFounderDoesNotTouchCounter(t *testing.T) {
	svc, store := newTestService(t)
	seedClub(t, store, "c1", "creator", 1)
	ctx := context.Background()
	creator := models.UserSummary{ID: "creator", Name: "Creator"}

	m, err := svc.AddFounder(ctx, "c1", creator, "")
	if err != nil {
		t.Fatalf("add founder: %v", err)
	}
	if m.JoinedVia != models.JoinedViaManual {
		t.Errorf("expected default provenance, got %q", m.JoinedVia)
	}
	if got := clubMemberCount(t, store, "c1"); got != 1 {
		t.Errorf("expected memberCount to stay 1, got %d", got)
	}

	// Safe to repeat.
	if _, err := svc.AddFounder(ctx, "c1", creator, ""); err != nil {
		t.Fatalf("repeat add founder: %v", err)
	}
	if got := clubMemberCount(t, store, "c1"); got != 1 {
		t.Errorf("expected memberCount still 1, got %d", got)
	}
}

type capturingPublisher struct {
	published []events.Event
}

func (p *capturingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.published = append(p.published, ev)
	return nil
}

func TestJoinAndLeavePublishEvents(t *testing.T) {
	store := docstore.NewMemoryStore()
	pub := &capturingPublisher{}
	svc := NewService(store,
		WithClock(func() time.Time { return testTime }),
		WithEvents(pub),
	)
	seedClub(t, store, "c1", "creator", 1)
	ctx := context.Background()

	if _, err := svc.Join(ctx, "c1", models.UserSummary{ID: "u1"}, models.JoinedViaManual); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := svc.Leave(ctx, "c1", "u1"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	if len(pub.published) != 2 {
		t.Fatalf("expected 2 events, got %d", len(pub.published))
	}
	if pub.published[0].Type != events.TypeMemberJoined || pub.published[1].Type != events.TypeMemberLeft {
		t.Errorf("unexpected event types: %v, %v", pub.published[0].Type, pub.published[1].Type)
	}
	if pub.published[0].ClubID != "c1" || pub.published[0].UserID != "u1" {
		t.Errorf("unexpected event payload: %+v", pub.published[0])
	}
}
