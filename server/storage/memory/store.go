// memory based implementation for testing purposes
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cyp0633/libtasking/server/storage"
	"github.com/google/uuid"
)

// Store implements storage.Storage interface using in-memory maps
type Store struct {
	mu            sync.RWMutex
	tasks         map[string]*storage.Task
	taskLocations map[string][]*storage.TaskLocation // key: taskID
	occurrences   map[string]*storage.Occurrence
	locations     map[string]*storage.Location
	locationTypes map[string]*storage.LocationType
	projects      map[string]*storage.Project
	segmentRules  map[string]*storage.SegmentRule
	submissions   map[string]*storage.Submission
}

// New creates a new in-memory storage
func New() *Store {
	return &Store{
		tasks:         make(map[string]*storage.Task),
		taskLocations: make(map[string][]*storage.TaskLocation),
		occurrences:   make(map[string]*storage.Occurrence),
		locations:     make(map[string]*storage.Location),
		locationTypes: make(map[string]*storage.LocationType),
		projects:      make(map[string]*storage.Project),
		segmentRules:  make(map[string]*storage.SegmentRule),
		submissions:   make(map[string]*storage.Submission),
	}
}

func notFound(what string) error {
	return &storage.Error{Type: storage.ErrNotFound, Message: what + " not found"}
}

func alreadyExists(what string) error {
	return &storage.Error{Type: storage.ErrAlreadyExists, Message: what + " already exists"}
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

// clone copies a record so callers never share the store's copy.
func clone[T any](v *T) *T {
	c := *v
	return &c
}

func cloneTask(task *storage.Task) *storage.Task {
	c := clone(task)
	c.SegmentRuleIDs = slices.Clone(task.SegmentRuleIDs)
	return c
}

func cloneProject(project *storage.Project) *storage.Project {
	c := clone(project)
	c.TaskIDs = slices.Clone(project.TaskIDs)
	return c
}

// Task operations

func (s *Store) GetTask(_ context.Context, taskID string) (*storage.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, notFound("task")
	}
	return cloneTask(task), nil
}

func (s *Store) ListTasks(_ context.Context, opts *storage.TaskListOptions) ([]*storage.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []*storage.Task
	for _, task := range s.tasks {
		if opts != nil {
			if opts.ParentID != nil {
				if task.ParentID == nil || *task.ParentID != *opts.ParentID {
					continue
				}
			} else if opts.RootsOnly && task.ParentID != nil {
				continue
			}
			if opts.Status != "" && task.Status != opts.Status {
				continue
			}
		}
		tasks = append(tasks, cloneTask(task))
	}

	sort.Slice(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return tasks, nil
}

func (s *Store) CreateTask(_ context.Context, task *storage.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ensureID(&task.ID)
	if _, exists := s.tasks[task.ID]; exists {
		return alreadyExists("task")
	}
	if task.Status == "" {
		task.Status = storage.StatusDraft
	}

	now := time.Now()
	task.Created = now
	task.Modified = now
	s.tasks[task.ID] = cloneTask(task)

	return nil
}

func (s *Store) UpdateTask(_ context.Context, task *storage.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.tasks[task.ID]
	if !exists {
		return notFound("task")
	}

	task.Created = existing.Created
	task.Modified = time.Now()
	s.tasks[task.ID] = cloneTask(task)

	return nil
}

func (s *Store) DeleteTask(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[taskID]; !exists {
		return notFound("task")
	}

	delete(s.tasks, taskID)
	delete(s.taskLocations, taskID)

	for id, occ := range s.occurrences {
		if occ.TaskID == taskID {
			delete(s.occurrences, id)
		}
	}

	// Orphan children rather than deleting them
	for id, task := range s.tasks {
		if task.ParentID != nil && *task.ParentID == taskID {
			orphan := cloneTask(task)
			orphan.ParentID = nil
			s.tasks[id] = orphan
		}
	}

	return nil
}

// Task location operations

func (s *Store) ListTaskLocations(_ context.Context, taskID string) ([]*storage.TaskLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	locations := make([]*storage.TaskLocation, 0, len(s.taskLocations[taskID]))
	for _, tl := range s.taskLocations[taskID] {
		locations = append(locations, clone(tl))
	}
	sort.SliceStable(locations, func(i, j int) bool {
		if locations[i].LocationID != locations[j].LocationID {
			return locations[i].LocationID < locations[j].LocationID
		}
		return locations[i].Start < locations[j].Start
	})
	return locations, nil
}

func (s *Store) ReplaceTaskLocations(_ context.Context, taskID string, locations []*storage.TaskLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[taskID]; !exists {
		return notFound("task")
	}
	for _, tl := range locations {
		if _, ok := s.locations[tl.LocationID]; !ok {
			return notFound("location")
		}
	}

	now := time.Now()
	replaced := make([]*storage.TaskLocation, 0, len(locations))
	for _, tl := range locations {
		ensureID(&tl.ID)
		tl.TaskID = taskID
		tl.Created = now
		tl.Modified = now
		replaced = append(replaced, clone(tl))
	}
	if len(replaced) == 0 {
		delete(s.taskLocations, taskID)
	} else {
		s.taskLocations[taskID] = replaced
	}

	return nil
}

// Occurrence operations

func (s *Store) ListOccurrences(_ context.Context, filter storage.OccurrenceFilter) ([]*storage.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var occurrences []*storage.Occurrence
	for _, occ := range s.occurrences {
		if filter.Matches(occ) {
			occurrences = append(occurrences, clone(occ))
		}
	}
	sortOccurrences(occurrences)
	return occurrences, nil
}

func sortOccurrences(occurrences []*storage.Occurrence) {
	locationKey := func(o *storage.Occurrence) string {
		if o.LocationID == nil {
			return ""
		}
		return *o.LocationID
	}
	sort.Slice(occurrences, func(i, j int) bool {
		a, b := occurrences[i], occurrences[j]
		if a.TaskID != b.TaskID {
			return a.TaskID < b.TaskID
		}
		if la, lb := locationKey(a), locationKey(b); la != lb {
			return la < lb
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return strings.Compare(a.ID, b.ID) < 0
	})
}

func (s *Store) CreateOccurrences(_ context.Context, occurrences []*storage.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertOccurrences(occurrences)
}

// insertOccurrences validates the whole batch before writing any of it.
func (s *Store) insertOccurrences(occurrences []*storage.Occurrence) error {
	seen := make(map[string]struct{}, len(occurrences))
	for _, occ := range occurrences {
		ensureID(&occ.ID)
		if _, exists := s.occurrences[occ.ID]; exists {
			return alreadyExists("occurrence")
		}
		if _, dup := seen[occ.ID]; dup {
			return alreadyExists("occurrence")
		}
		seen[occ.ID] = struct{}{}
		if !occ.EndTime.After(occ.StartTime) {
			return &storage.Error{
				Type:    storage.ErrInvalidInput,
				Message: "occurrence end time must be after start time",
			}
		}
	}

	now := time.Now()
	for _, occ := range occurrences {
		occ.Created = now
		occ.Modified = now
		s.occurrences[occ.ID] = clone(occ)
	}
	return nil
}

func (s *Store) DeleteOccurrences(_ context.Context, filter storage.OccurrenceFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteOccurrences(filter), nil
}

func (s *Store) deleteOccurrences(filter storage.OccurrenceFilter) int {
	deleted := 0
	for id, occ := range s.occurrences {
		if filter.Matches(occ) {
			delete(s.occurrences, id)
			deleted++
		}
	}
	return deleted
}

func (s *Store) ReplaceOccurrences(_ context.Context, filter storage.OccurrenceFilter, occurrences []*storage.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Keep the old map so a rejected batch leaves the old rows in place
	backup := make(map[string]*storage.Occurrence, len(s.occurrences))
	for id, occ := range s.occurrences {
		backup[id] = occ
	}

	s.deleteOccurrences(filter)
	if err := s.insertOccurrences(occurrences); err != nil {
		s.occurrences = backup
		return err
	}
	return nil
}

// Location operations

func (s *Store) GetLocation(_ context.Context, locationID string) (*storage.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.locations[locationID]
	if !ok {
		return nil, notFound("location")
	}
	return clone(loc), nil
}

func (s *Store) ListLocations(_ context.Context) ([]*storage.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var locations []*storage.Location
	for _, loc := range s.locations {
		locations = append(locations, clone(loc))
	}
	sort.Slice(locations, func(i, j int) bool {
		a, b := locations[i], locations[j]
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return locations, nil
}

func (s *Store) CreateLocation(_ context.Context, location *storage.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ensureID(&location.ID)
	if _, exists := s.locations[location.ID]; exists {
		return alreadyExists("location")
	}
	if location.ParentID != nil {
		if _, ok := s.locations[*location.ParentID]; !ok {
			return notFound("parent location")
		}
	}

	now := time.Now()
	location.Created = now
	location.Modified = now
	s.locations[location.ID] = clone(location)

	return nil
}

func (s *Store) CreateLocationType(_ context.Context, locationType *storage.LocationType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ensureID(&locationType.ID)
	if _, exists := s.locationTypes[locationType.ID]; exists {
		return alreadyExists("location type")
	}

	now := time.Now()
	locationType.Created = now
	locationType.Modified = now
	s.locationTypes[locationType.ID] = clone(locationType)

	return nil
}

func (s *Store) GetLocationType(_ context.Context, locationTypeID string) (*storage.LocationType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lt, ok := s.locationTypes[locationTypeID]
	if !ok {
		return nil, notFound("location type")
	}
	return clone(lt), nil
}

// Project operations

func (s *Store) GetProject(_ context.Context, projectID string) (*storage.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project, ok := s.projects[projectID]
	if !ok {
		return nil, notFound("project")
	}
	return cloneProject(project), nil
}

func (s *Store) ListProjects(_ context.Context) ([]*storage.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var projects []*storage.Project
	for _, project := range s.projects {
		projects = append(projects, cloneProject(project))
	}
	sort.Slice(projects, func(i, j int) bool {
		if projects[i].Name != projects[j].Name {
			return projects[i].Name < projects[j].Name
		}
		return projects[i].ID < projects[j].ID
	})
	return projects, nil
}

func (s *Store) CreateProject(_ context.Context, project *storage.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ensureID(&project.ID)
	if _, exists := s.projects[project.ID]; exists {
		return alreadyExists("project")
	}

	now := time.Now()
	project.Created = now
	project.Modified = now
	s.projects[project.ID] = cloneProject(project)

	return nil
}

// Segment rule operations

func (s *Store) GetSegmentRule(_ context.Context, ruleID string) (*storage.SegmentRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.segmentRules[ruleID]
	if !ok {
		return nil, notFound("segment rule")
	}
	return clone(rule), nil
}

func (s *Store) ListSegmentRules(_ context.Context) ([]*storage.SegmentRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rules []*storage.SegmentRule
	for _, rule := range s.segmentRules {
		rules = append(rules, clone(rule))
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Name != rules[j].Name {
			return rules[i].Name < rules[j].Name
		}
		return rules[i].ID < rules[j].ID
	})
	return rules, nil
}

func (s *Store) CreateSegmentRule(_ context.Context, rule *storage.SegmentRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ensureID(&rule.ID)
	if _, exists := s.segmentRules[rule.ID]; exists {
		return alreadyExists("segment rule")
	}

	now := time.Now()
	rule.Created = now
	rule.Modified = now
	s.segmentRules[rule.ID] = clone(rule)

	return nil
}

// Submission operations

func (s *Store) CreateSubmission(_ context.Context, submission *storage.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ensureID(&submission.ID)
	if _, exists := s.submissions[submission.ID]; exists {
		return alreadyExists("submission")
	}
	if _, ok := s.tasks[submission.TaskID]; !ok {
		return notFound("task")
	}

	now := time.Now()
	submission.Created = now
	submission.Modified = now
	s.submissions[submission.ID] = clone(submission)

	return nil
}

func (s *Store) ListSubmissions(_ context.Context, taskID string) ([]*storage.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var submissions []*storage.Submission
	for _, sub := range s.submissions {
		if taskID == "" || sub.TaskID == taskID {
			submissions = append(submissions, clone(sub))
		}
	}
	sort.Slice(submissions, func(i, j int) bool {
		a, b := submissions[i], submissions[j]
		if !a.SubmissionTime.Equal(b.SubmissionTime) {
			return a.SubmissionTime.Before(b.SubmissionTime)
		}
		return a.ID < b.ID
	})
	return submissions, nil
}

var _ storage.Storage = (*Store)(nil)
