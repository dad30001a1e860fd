package coursedesc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"youredu/api/internal/store"
	"youredu/api/internal/util"
)

// Store is the persistence the synchronizer needs.
type Store interface {
	GetStudent(ctx context.Context, userID, studentID string) (store.Student, error)
	ListStudentCourses(ctx context.Context, userID, studentID string) ([]store.Course, error)
	GetCourseDescriptions(ctx context.Context, studentID string) (store.CourseDescriptions, error)
	UpsertCourseDescriptions(ctx context.Context, row store.CourseDescriptions) error
}

type Syncer struct {
	store Store
}

func NewSyncer(s Store) *Syncer {
	return &Syncer{store: s}
}

// Load returns the stored aggregate for a student, or an empty one with a
// fresh id when none exists yet.
func (s *Syncer) Load(ctx context.Context, studentID string) (string, Aggregate, error) {
	row, err := s.store.GetCourseDescriptions(ctx, studentID)
	if errors.Is(err, sql.ErrNoRows) {
		agg, _ := FromRow(store.CourseDescriptions{})
		return util.NewID(), agg, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("load course descriptions: %w", err)
	}
	agg, err := FromRow(row)
	if err != nil {
		return "", nil, err
	}
	return row.ID, agg, nil
}

// Save upserts the whole aggregate on student_id.
func (s *Syncer) Save(ctx context.Context, id, studentID, userID string, agg Aggregate) error {
	row, err := agg.Row(id, studentID, userID)
	if err != nil {
		return err
	}
	return s.store.UpsertCourseDescriptions(ctx, row)
}

// Sync recomputes the pulled-in entries of the student's current grade
// bucket from their course records. Manual entries and every other bucket
// are left as they were.
func (s *Syncer) Sync(ctx context.Context, userID, studentID string) (Aggregate, error) {
	student, err := s.store.GetStudent(ctx, userID, studentID)
	if err != nil {
		return nil, err
	}
	bucket, err := BucketForGrade(student.GradeLevel)
	if err != nil {
		return nil, err
	}

	courses, err := s.store.ListStudentCourses(ctx, userID, studentID)
	if err != nil {
		return nil, err
	}
	pulled := make([]Entry, 0, len(courses))
	for _, course := range courses {
		pulled = append(pulled, FromCourse(course))
	}

	id, existing, err := s.Load(ctx, studentID)
	if err != nil {
		return nil, err
	}
	merged := Merge(existing, bucket, pulled)
	if err := s.Save(ctx, id, studentID, userID, merged); err != nil {
		return nil, err
	}
	return merged, nil
}
