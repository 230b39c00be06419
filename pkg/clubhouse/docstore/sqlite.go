package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// documentRow is the single backing table: one row per document, body stored
// as JSON so sqlite's json_extract can serve equality queries.
type documentRow struct {
	Collection string `gorm:"primaryKey;size:64"`
	DocID      string `gorm:"primaryKey;size:191;column:doc_id"`
	Body       []byte `gorm:"not null"`
	UpdatedAt  time.Time
}

func (documentRow) TableName() string {
	return "documents"
}

// SQLiteStore implements Client on a sqlite database via GORM. Update and
// BatchWrite each run inside one transaction, which is what makes the field
// operators and batches atomic.
type SQLiteStore struct {
	db       *gorm.DB
	maxBatch int
}

var _ Client = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at path and migrates the
// documents table. Use ":memory:" for an ephemeral store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, fmt.Errorf("migrate documents table: %w", err)
	}
	return &SQLiteStore{db: db, maxBatch: DefaultMaxBatchSize}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var row documentRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeBody(row.Body)
}

func (s *SQLiteStore) RunQuery(ctx context.Context, collection string, q Query) ([]Document, error) {
	tx := s.db.WithContext(ctx).Model(&documentRow{}).Where("collection = ?", collection)
	for _, f := range q.Filters {
		tx = tx.Where(fmt.Sprintf("json_extract(body, '$.%s') = ?", f.Field), filterValue(f.Value))
	}
	if q.OrderBy != "" {
		expr := fmt.Sprintf("json_extract(body, '$.%s')", q.OrderBy)
		if q.StartAfter != "" {
			tx = tx.Where(expr+" > ?", q.StartAfter)
		}
		tx = tx.Order(expr)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []documentRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc, err := decodeBody(row.Body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *SQLiteStore) Set(ctx context.Context, collection, id string, data Document, merge bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return setInTx(tx, collection, id, data, merge)
	})
}

func (s *SQLiteStore) Update(ctx context.Context, collection, id string, fields Document) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row documentRow
		err := tx.Where("collection = ? AND doc_id = ?", collection, id).First(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		doc, err := decodeBody(row.Body)
		if err != nil {
			return err
		}
		if err := applyFields(doc, fields); err != nil {
			return err
		}
		return writeRow(tx, collection, id, doc)
	})
}

func (s *SQLiteStore) BatchWrite(ctx context.Context, writes []Write) error {
	if len(writes) > s.maxBatch {
		return fmt.Errorf("%w: %d writes, limit %d", ErrBatchTooLarge, len(writes), s.maxBatch)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, w := range writes {
			if err := setInTx(tx, w.Collection, w.ID, w.Data, w.Merge); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) MaxBatchSize() int {
	return s.maxBatch
}

func setInTx(tx *gorm.DB, collection, id string, data Document, merge bool) error {
	doc := data
	if merge {
		var row documentRow
		err := tx.Where("collection = ? AND doc_id = ?", collection, id).First(&row).Error
		switch {
		case err == nil:
			existing, decodeErr := decodeBody(row.Body)
			if decodeErr != nil {
				return decodeErr
			}
			doc = mergeDocument(existing, data)
		case errors.Is(err, gorm.ErrRecordNotFound):
			// fresh document, nothing to merge
		default:
			return err
		}
	}
	return writeRow(tx, collection, id, doc)
}

func writeRow(tx *gorm.DB, collection, id string, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s/%s: %w", collection, id, err)
	}
	row := documentRow{
		Collection: collection,
		DocID:      id,
		Body:       body,
		UpdatedAt:  time.Now(),
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
	}).Create(&row).Error
}

func decodeBody(body []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode document body: %w", err)
	}
	return doc, nil
}

// filterValue maps Go values to what json_extract yields: sqlite stores JSON
// booleans as 0/1.
func filterValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}
