package clubs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stridelab/clubhouse/pkg/clubhouse/docstore"
	"github.com/stridelab/clubhouse/pkg/clubhouse/models"
)

// Service is the club registry: it creates and retrieves Club records. One
// club per creator, enforced by looking up by creator before creating — the
// store has no unique constraint, so concurrent creation by the same creator
// can still race (accepted; see GetOrCreate).
type Service struct {
	store docstore.Client
	clock func() time.Time
	newID func() string
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithIDGenerator overrides club id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(store docstore.Client, opts ...Option) *Service {
	s := &Service{
		store: store,
		clock: time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateClubInput carries everything needed to create a club. Creator is the
// profile snapshot denormalized onto the club at creation time.
type CreateClubInput struct {
	Creator        models.UserSummary
	Name           string
	Description    string
	CoverImageURL  string
	LinkedRoundIDs []string
}

// Create allocates a new club with MemberCount 1: the creator is implicitly a
// member. Writing the creator's membership record is the caller's job (see
// members.AddFounder); the two writes are not transactional.
func (s *Service) Create(ctx context.Context, in CreateClubInput) (*models.Club, error) {
	if in.Creator.ID == "" {
		return nil, errors.New("clubs: creator id required")
	}
	if in.Name == "" {
		return nil, errors.New("clubs: club name required")
	}

	now := s.clock().UTC()
	club := models.Club{
		ID:             s.newID(),
		CreatorID:      in.Creator.ID,
		Creator:        in.Creator,
		Name:           in.Name,
		Description:    in.Description,
		CoverImageURL:  in.CoverImageURL,
		MemberCount:    1,
		LinkedRoundIDs: in.LinkedRoundIDs,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if club.LinkedRoundIDs == nil {
		club.LinkedRoundIDs = []string{}
	}

	doc, err := models.ToDocument(club)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, models.ClubsCollection, club.ID, doc, false); err != nil {
		return nil, fmt.Errorf("create club for creator %s: %w", in.Creator.ID, err)
	}
	return &club, nil
}

// Get returns the club with the given id, or docstore.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*models.Club, error) {
	doc, err := s.store.Get(ctx, models.ClubsCollection, id)
	if err != nil {
		return nil, err
	}
	var club models.Club
	if err := models.FromDocument(doc, &club); err != nil {
		return nil, err
	}
	return &club, nil
}

// GetByCreator returns the creator's club, or docstore.ErrNotFound. This is
// the canonical "does this creator already have a club" check.
func (s *Service) GetByCreator(ctx context.Context, creatorID string) (*models.Club, error) {
	docs, err := s.store.RunQuery(ctx, models.ClubsCollection, docstore.Query{
		Filters: []docstore.Filter{{Field: "creatorId", Value: creatorID}},
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("find club for creator %s: %w", creatorID, err)
	}
	if len(docs) == 0 {
		return nil, docstore.ErrNotFound
	}
	var club models.Club
	if err := models.FromDocument(docs[0], &club); err != nil {
		return nil, err
	}
	return &club, nil
}

// Update replaces the club's mutable fields (name, description, cover image)
// and bumps UpdatedAt.
func (s *Service) Update(ctx context.Context, club *models.Club) error {
	club.UpdatedAt = s.clock().UTC()
	err := s.store.Set(ctx, models.ClubsCollection, club.ID, docstore.Document{
		"name":          club.Name,
		"description":   club.Description,
		"coverImageUrl": club.CoverImageURL,
		"updatedAt":     club.UpdatedAt.Format(time.RFC3339Nano),
	}, true)
	if err != nil {
		return fmt.Errorf("update club %s: %w", club.ID, err)
	}
	return nil
}

// LinkRound adds a round id to the club's linked set. The set only grows;
// linking an already-linked round is a no-op.
func (s *Service) LinkRound(ctx context.Context, clubID, roundID string) error {
	err := s.store.Update(ctx, models.ClubsCollection, clubID, docstore.Document{
		"linkedRoundIds": docstore.ArrayUnion(roundID),
		"updatedAt":      s.clock().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("link round %s to club %s: %w", roundID, clubID, err)
	}
	return nil
}

// GetOrCreate returns the creator's existing club, linking roundID if given,
// or creates a club with a defaulted name and description. The second return
// reports whether a club was created.
func (s *Service) GetOrCreate(ctx context.Context, creator models.UserSummary, roundID string) (*models.Club, bool, error) {
	club, err := s.GetByCreator(ctx, creator.ID)
	if err == nil {
		if roundID != "" {
			if err := s.LinkRound(ctx, club.ID, roundID); err != nil {
				return nil, false, err
			}
			club.LinkedRoundIDs = appendRound(club.LinkedRoundIDs, roundID)
		}
		return club, false, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return nil, false, err
	}

	in := CreateClubInput{
		Creator:     creator,
		Name:        defaultClubName(creator),
		Description: fmt.Sprintf("The home club for everyone training with %s.", creator.Name),
	}
	if roundID != "" {
		in.LinkedRoundIDs = []string{roundID}
	}
	created, err := s.Create(ctx, in)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func defaultClubName(creator models.UserSummary) string {
	name := creator.Name
	if name == "" {
		name = creator.Handle
	}
	return fmt.Sprintf("%s's Club", name)
}

func appendRound(rounds []string, roundID string) []string {
	for _, r := range rounds {
		if r == roundID {
			return rounds
		}
	}
	return append(rounds, roundID)
}
