package backfill

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stridelab/clubhouse/pkg/clubhouse/cache"
	"github.com/stridelab/clubhouse/pkg/clubhouse/docstore"
	"github.com/stridelab/clubhouse/pkg/clubhouse/members"
	"github.com/stridelab/clubhouse/pkg/clubhouse/models"
)

// DefaultChunkSize keeps batches comfortably under the store's hard 500-write
// ceiling.
const DefaultChunkSize = 450

// PartialError reports a backfill that failed partway through its chunked
// writes. Chunks 1..CommittedChunks are durably committed; a caller can
// resume from chunk FailedChunk with the same participant list because chunk
// writes are merge upserts on deterministic ids.
type PartialError struct {
	FailedChunk     int // 1-based
	TotalChunks     int
	CommittedChunks int
	RecordsWritten  int
	Err             error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("backfill failed at chunk %d of %d (%d records committed in %d chunks): %v",
		e.FailedChunk, e.TotalChunks, e.RecordsWritten, e.CommittedChunks, e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}

// Engine retroactively populates a club's membership from historical round
// participants. Writes go straight through the batch primitive rather than
// the ledger's Join, trading the per-member counter bookkeeping for
// throughput; the counter is reconciled once at the end.
type Engine struct {
	store     docstore.Client
	chunkSize int
	clock     func() time.Time
	counts    *cache.MemberCounts
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithChunkSize overrides the per-batch participant count. Values above the
// store's ceiling are rejected by NewEngine.
func WithChunkSize(n int) Option {
	return func(e *Engine) { e.chunkSize = n }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithCountCache sets the member-count display cache, invalidated after a
// successful reconciliation.
func WithCountCache(c *cache.MemberCounts) Option {
	return func(e *Engine) { e.counts = c }
}

func NewEngine(store docstore.Client, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:     store,
		chunkSize: DefaultChunkSize,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.chunkSize <= 0 || e.chunkSize > store.MaxBatchSize() {
		return nil, fmt.Errorf("backfill: chunk size %d must be in 1..%d", e.chunkSize, store.MaxBatchSize())
	}
	return e, nil
}

// Backfill upserts one membership record per distinct participant (the
// creator excluded), in chunks committed sequentially and independently, then
// reconciles the club's member counter and linked-round set in one update.
// It returns the number of membership records written.
//
// Each chunk is a merge upsert on deterministic ids, so re-running the same
// input is safe for the records themselves. The final reconciliation is not:
// it always adds the full run's count, so a re-run inflates the counter.
func (e *Engine) Backfill(ctx context.Context, clubID, creatorID string, roundIDs []string, participants []models.UserSummary) (int, error) {
	if clubID == "" {
		return 0, errors.New("backfill: club id required")
	}

	deduped := dedupeParticipants(participants, creatorID)
	if len(deduped) == 0 {
		return 0, nil
	}

	chunks := chunkParticipants(deduped, e.chunkSize)
	joinedAt := e.clock().UTC()

	written := 0
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return written, &PartialError{
				FailedChunk:     i + 1,
				TotalChunks:     len(chunks),
				CommittedChunks: i,
				RecordsWritten:  written,
				Err:             err,
			}
		}

		writes := make([]docstore.Write, 0, len(chunk))
		for _, p := range chunk {
			membership := models.ClubMembership{
				ID:        members.MembershipID(clubID, p.ID),
				ClubID:    clubID,
				UserID:    p.ID,
				User:      p,
				JoinedVia: models.JoinedViaBackfill,
				JoinedAt:  joinedAt,
				IsActive:  true,
			}
			doc, err := models.ToDocument(membership)
			if err != nil {
				return written, err
			}
			writes = append(writes, docstore.Write{
				Collection: models.MembershipsCollection,
				ID:         membership.ID,
				Data:       doc,
				Merge:      true,
			})
		}

		if err := e.store.BatchWrite(ctx, writes); err != nil {
			return written, &PartialError{
				FailedChunk:     i + 1,
				TotalChunks:     len(chunks),
				CommittedChunks: i,
				RecordsWritten:  written,
				Err:             err,
			}
		}
		written += len(chunk)
	}

	if err := e.reconcile(ctx, clubID, roundIDs, written); err != nil {
		// Membership records stay committed; only the aggregates are stale.
		return written, err
	}

	if err := e.counts.Invalidate(ctx, clubID); err != nil {
		log.Printf("invalidate member count cache for club %s: %v", clubID, err)
	}
	return written, nil
}

// reconcile applies the aggregate effects of a completed run: one atomic
// counter increment and one set-union of the source rounds.
func (e *Engine) reconcile(ctx context.Context, clubID string, roundIDs []string, written int) error {
	fields := docstore.Document{
		"memberCount": docstore.Increment(int64(written)),
		"updatedAt":   e.clock().UTC().Format(time.RFC3339Nano),
	}
	if len(roundIDs) > 0 {
		values := make([]any, len(roundIDs))
		for i, id := range roundIDs {
			values[i] = id
		}
		fields["linkedRoundIds"] = docstore.ArrayUnion(values...)
	}
	if err := e.store.Update(ctx, models.ClubsCollection, clubID, fields); err != nil {
		return fmt.Errorf("reconcile club %s after backfill of %d members: %w", clubID, written, err)
	}
	return nil
}

// dedupeParticipants keeps the first occurrence of each user id, preserving
// input order, and drops the creator and entries with no id.
func dedupeParticipants(participants []models.UserSummary, creatorID string) []models.UserSummary {
	seen := make(map[string]struct{}, len(participants))
	deduped := make([]models.UserSummary, 0, len(participants))
	for _, p := range participants {
		if p.ID == "" || p.ID == creatorID {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		deduped = append(deduped, p)
	}
	return deduped
}

func chunkParticipants(participants []models.UserSummary, size int) [][]models.UserSummary {
	var chunks [][]models.UserSummary
	for start := 0; start < len(participants); start += size {
		end := start + size
		if end > len(participants) {
			end = len(participants)
		}
		chunks = append(chunks, participants[start:end])
	}
	return chunks
}
