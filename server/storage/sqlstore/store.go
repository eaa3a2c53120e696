// Package sqlstore implements storage.Storage on top of gorm.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cyp0633/libtasking/server/storage"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// insertBatchSize keeps bulk inserts under SQLite's bound-parameter limit.
const insertBatchSize = 100

// Store implements storage.Storage with a relational database
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for the store
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Models lists every table the store manages, in migration order.
func Models() []any {
	return []any{
		&storage.LocationType{},
		&storage.Location{},
		&storage.Task{},
		&storage.TaskLocation{},
		&storage.Occurrence{},
		&storage.Project{},
		&storage.SegmentRule{},
		&storage.Submission{},
	}
}

// New wraps db and migrates the schema.
func New(db *gorm.DB, opts ...Option) (*Store, error) {
	s := &Store{
		db:     db,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return s, nil
}

// Open connects to the SQLite database at dsn (":memory:" for a throwaway one).
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if strings.Contains(dsn, ":memory:") {
		// Each connection to :memory: is a separate database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return New(db, opts...)
}

// DB exposes the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(what string) error {
	return &storage.Error{Type: storage.ErrNotFound, Message: what + " not found"}
}

// wrap converts gorm errors into storage errors.
func wrap(err error, action, what string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound(what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &storage.Error{Type: storage.ErrAlreadyExists, Message: what + " already exists", Err: err}
	default:
		return fmt.Errorf("failed to %s %s: %w", action, what, err)
	}
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

// exists reports whether a row of model with the given id exists.
func exists(tx *gorm.DB, model any, id string) (bool, error) {
	var n int64
	if err := tx.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// Task operations

func (s *Store) GetTask(ctx context.Context, taskID string) (*storage.Task, error) {
	var task storage.Task
	if err := s.db.WithContext(ctx).First(&task, "id = ?", taskID).Error; err != nil {
		return nil, wrap(err, "find", "task")
	}
	return &task, nil
}

func (s *Store) ListTasks(ctx context.Context, opts *storage.TaskListOptions) ([]*storage.Task, error) {
	tx := s.db.WithContext(ctx)
	if opts != nil {
		if opts.ParentID != nil {
			tx = tx.Where("parent_id = ?", *opts.ParentID)
		} else if opts.RootsOnly {
			tx = tx.Where("parent_id IS NULL")
		}
		if opts.Status != "" {
			tx = tx.Where("status = ?", opts.Status)
		}
	}

	var tasks []*storage.Task
	if err := tx.Order("start").Order("name").Order("id").Find(&tasks).Error; err != nil {
		return nil, wrap(err, "list", "tasks")
	}
	return tasks, nil
}

func (s *Store) CreateTask(ctx context.Context, task *storage.Task) error {
	ensureID(&task.ID)
	if task.Status == "" {
		task.Status = storage.StatusDraft
	}
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return wrap(err, "create", "task")
	}
	return nil
}

func (s *Store) UpdateTask(ctx context.Context, task *storage.Task) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing storage.Task
		if err := tx.Select("id", "created").First(&existing, "id = ?", task.ID).Error; err != nil {
			return wrap(err, "find", "task")
		}

		task.Created = existing.Created
		// Select("*") writes zero values too, so fields can be cleared.
		if err := tx.Model(task).Select("*").Omit("id", "created").Updates(task).Error; err != nil {
			return wrap(err, "update", "task")
		}
		return nil
	})
}

func (s *Store) DeleteTask(ctx context.Context, taskID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&storage.Task{}, "id = ?", taskID)
		if err := result.Error; err != nil {
			return wrap(err, "delete", "task")
		}
		if result.RowsAffected == 0 {
			return notFound("task")
		}

		if err := tx.Where("task_id = ?", taskID).Delete(&storage.TaskLocation{}).Error; err != nil {
			return wrap(err, "delete", "task locations")
		}
		if err := tx.Where("task_id = ?", taskID).Delete(&storage.Occurrence{}).Error; err != nil {
			return wrap(err, "delete", "occurrences")
		}
		// Orphan children rather than deleting them
		if err := tx.Model(&storage.Task{}).Where("parent_id = ?", taskID).Update("parent_id", nil).Error; err != nil {
			return wrap(err, "detach", "child tasks")
		}
		return nil
	})
}

// Task location operations

func (s *Store) ListTaskLocations(ctx context.Context, taskID string) ([]*storage.TaskLocation, error) {
	var locations []*storage.TaskLocation
	err := s.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("location_id").Order("start").
		Find(&locations).Error
	if err != nil {
		return nil, wrap(err, "list", "task locations")
	}
	return locations, nil
}

func (s *Store) ReplaceTaskLocations(ctx context.Context, taskID string, locations []*storage.TaskLocation) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := exists(tx, &storage.Task{}, taskID)
		if err != nil {
			return wrap(err, "find", "task")
		}
		if !ok {
			return notFound("task")
		}
		for _, tl := range locations {
			ok, err := exists(tx, &storage.Location{}, tl.LocationID)
			if err != nil {
				return wrap(err, "find", "location")
			}
			if !ok {
				return notFound("location")
			}
		}

		if err := tx.Where("task_id = ?", taskID).Delete(&storage.TaskLocation{}).Error; err != nil {
			return wrap(err, "delete", "task locations")
		}
		if len(locations) == 0 {
			return nil
		}

		for _, tl := range locations {
			ensureID(&tl.ID)
			tl.TaskID = taskID
		}
		if err := tx.Create(&locations).Error; err != nil {
			return wrap(err, "create", "task locations")
		}
		return nil
	})
}

// Location operations

func (s *Store) GetLocation(ctx context.Context, locationID string) (*storage.Location, error) {
	var location storage.Location
	if err := s.db.WithContext(ctx).First(&location, "id = ?", locationID).Error; err != nil {
		return nil, wrap(err, "find", "location")
	}
	return &location, nil
}

func (s *Store) ListLocations(ctx context.Context) ([]*storage.Location, error) {
	var locations []*storage.Location
	if err := s.db.WithContext(ctx).Order("country").Order("name").Order("id").Find(&locations).Error; err != nil {
		return nil, wrap(err, "list", "locations")
	}
	return locations, nil
}

func (s *Store) CreateLocation(ctx context.Context, location *storage.Location) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if location.ParentID != nil {
			ok, err := exists(tx, &storage.Location{}, *location.ParentID)
			if err != nil {
				return wrap(err, "find", "parent location")
			}
			if !ok {
				return notFound("parent location")
			}
		}

		ensureID(&location.ID)
		if err := tx.Create(location).Error; err != nil {
			return wrap(err, "create", "location")
		}
		return nil
	})
}

func (s *Store) CreateLocationType(ctx context.Context, locationType *storage.LocationType) error {
	ensureID(&locationType.ID)
	if err := s.db.WithContext(ctx).Create(locationType).Error; err != nil {
		return wrap(err, "create", "location type")
	}
	return nil
}

func (s *Store) GetLocationType(ctx context.Context, locationTypeID string) (*storage.LocationType, error) {
	var locationType storage.LocationType
	if err := s.db.WithContext(ctx).First(&locationType, "id = ?", locationTypeID).Error; err != nil {
		return nil, wrap(err, "find", "location type")
	}
	return &locationType, nil
}

// Project operations

func (s *Store) GetProject(ctx context.Context, projectID string) (*storage.Project, error) {
	var project storage.Project
	if err := s.db.WithContext(ctx).First(&project, "id = ?", projectID).Error; err != nil {
		return nil, wrap(err, "find", "project")
	}
	return &project, nil
}

func (s *Store) ListProjects(ctx context.Context) ([]*storage.Project, error) {
	var projects []*storage.Project
	if err := s.db.WithContext(ctx).Order("name").Order("id").Find(&projects).Error; err != nil {
		return nil, wrap(err, "list", "projects")
	}
	return projects, nil
}

func (s *Store) CreateProject(ctx context.Context, project *storage.Project) error {
	ensureID(&project.ID)
	if err := s.db.WithContext(ctx).Create(project).Error; err != nil {
		return wrap(err, "create", "project")
	}
	return nil
}

// Segment rule operations

func (s *Store) GetSegmentRule(ctx context.Context, ruleID string) (*storage.SegmentRule, error) {
	var rule storage.SegmentRule
	if err := s.db.WithContext(ctx).First(&rule, "id = ?", ruleID).Error; err != nil {
		return nil, wrap(err, "find", "segment rule")
	}
	return &rule, nil
}

func (s *Store) ListSegmentRules(ctx context.Context) ([]*storage.SegmentRule, error) {
	var rules []*storage.SegmentRule
	if err := s.db.WithContext(ctx).Order("name").Order("id").Find(&rules).Error; err != nil {
		return nil, wrap(err, "list", "segment rules")
	}
	return rules, nil
}

func (s *Store) CreateSegmentRule(ctx context.Context, rule *storage.SegmentRule) error {
	ensureID(&rule.ID)
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return wrap(err, "create", "segment rule")
	}
	return nil
}

// Submission operations

func (s *Store) CreateSubmission(ctx context.Context, submission *storage.Submission) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := exists(tx, &storage.Task{}, submission.TaskID)
		if err != nil {
			return wrap(err, "find", "task")
		}
		if !ok {
			return notFound("task")
		}

		ensureID(&submission.ID)
		if err := tx.Create(submission).Error; err != nil {
			return wrap(err, "create", "submission")
		}
		return nil
	})
}

func (s *Store) ListSubmissions(ctx context.Context, taskID string) ([]*storage.Submission, error) {
	tx := s.db.WithContext(ctx)
	if taskID != "" {
		tx = tx.Where("task_id = ?", taskID)
	}

	var submissions []*storage.Submission
	if err := tx.Order("submission_time").Order("id").Find(&submissions).Error; err != nil {
		return nil, wrap(err, "list", "submissions")
	}
	return submissions, nil
}

var _ storage.Storage = (*Store)(nil)
