package sqlstore

import (
	"context"

	"github.com/cyp0633/libtasking/server/storage"
	"gorm.io/gorm"
)

// occurrenceScope applies filter as WHERE clauses.
func occurrenceScope(filter storage.OccurrenceFilter) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if filter.TaskID != "" {
			tx = tx.Where("task_id = ?", filter.TaskID)
		}
		if filter.LocationID != nil {
			tx = tx.Where("location_id = ?", *filter.LocationID)
		}
		if filter.DateFrom != nil {
			tx = tx.Where("date >= ?", storage.DateOf(*filter.DateFrom))
		}
		if filter.DateTo != nil {
			tx = tx.Where("date <= ?", storage.DateOf(*filter.DateTo))
		}
		return tx
	}
}

func (s *Store) ListOccurrences(ctx context.Context, filter storage.OccurrenceFilter) ([]*storage.Occurrence, error) {
	var occurrences []*storage.Occurrence
	err := s.db.WithContext(ctx).
		Scopes(occurrenceScope(filter)).
		Order("task_id").Order("location_id").Order("date").Order("start_time").Order("id").
		Find(&occurrences).Error
	if err != nil {
		return nil, wrap(err, "list", "occurrences")
	}
	for _, occ := range occurrences {
		occ.Date = occ.Date.UTC()
	}
	return occurrences, nil
}

func (s *Store) CreateOccurrences(ctx context.Context, occurrences []*storage.Occurrence) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return insertOccurrences(tx, occurrences)
	})
}

func insertOccurrences(tx *gorm.DB, occurrences []*storage.Occurrence) error {
	if len(occurrences) == 0 {
		return nil
	}
	for _, occ := range occurrences {
		if !occ.EndTime.After(occ.StartTime) {
			return &storage.Error{
				Type:    storage.ErrInvalidInput,
				Message: "occurrence end time must be after start time",
			}
		}
		ensureID(&occ.ID)
	}
	if err := tx.CreateInBatches(occurrences, insertBatchSize).Error; err != nil {
		return wrap(err, "create", "occurrences")
	}
	return nil
}

func (s *Store) DeleteOccurrences(ctx context.Context, filter storage.OccurrenceFilter) (int, error) {
	n, err := deleteOccurrences(s.db.WithContext(ctx), filter)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func deleteOccurrences(tx *gorm.DB, filter storage.OccurrenceFilter) (int, error) {
	// An empty filter matches every row, which gorm refuses without this.
	result := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
		Scopes(occurrenceScope(filter)).
		Delete(&storage.Occurrence{})
	if err := result.Error; err != nil {
		return 0, wrap(err, "delete", "occurrences")
	}
	return int(result.RowsAffected), nil
}

func (s *Store) ReplaceOccurrences(ctx context.Context, filter storage.OccurrenceFilter, occurrences []*storage.Occurrence) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := deleteOccurrences(tx, filter)
		if err != nil {
			return err
		}
		if err := insertOccurrences(tx, occurrences); err != nil {
			return err
		}

		s.logger.Debug("replaced occurrences",
			"task_id", filter.TaskID,
			"deleted", deleted,
			"created", len(occurrences))
		return nil
	})
}
