package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"youredu/api/internal/catalog"
	"youredu/api/internal/coursedesc"
	"youredu/api/internal/export"
	"youredu/api/internal/store"
	"youredu/api/internal/util"
)

type StudentInput struct {
	FirstName  string `json:"firstName" validate:"required,notblank,max=100"`
	LastName   string `json:"lastName" validate:"max=100"`
	GradeLevel string `json:"gradeLevel" validate:"max=40"`
	SchoolYear string `json:"schoolYear" validate:"max=20"`
}

type GradeInput struct {
	GradeLevel string `json:"gradeLevel" validate:"required,notblank,max=40"`
}

type DescriptionEntryInput struct {
	CourseTitle      string  `json:"courseTitle" validate:"required,notblank,max=200"`
	Description      string  `json:"description" validate:"max=20000"`
	Subject          string  `json:"subject"`
	Term             string  `json:"term"`
	Year             string  `json:"year"`
	Credits          float64 `json:"credits" validate:"gte=0,lte=20"`
	FinalGrade       string  `json:"finalGrade"`
	Textbooks        string  `json:"textbooks"`
	Materials        string  `json:"materials"`
	EvaluationMethod string  `json:"evaluationMethod"`
}

func (in DescriptionEntryInput) entry() coursedesc.Entry {
	return coursedesc.Entry{
		CourseTitle:      strings.TrimSpace(in.CourseTitle),
		Description:      in.Description,
		Subject:          in.Subject,
		Term:             in.Term,
		Year:             in.Year,
		Credits:          in.Credits,
		FinalGrade:       in.FinalGrade,
		Textbooks:        in.Textbooks,
		Materials:        in.Materials,
		EvaluationMethod: in.EvaluationMethod,
	}
}

type Transcript struct {
	StudentID string    `json:"studentId"`
	Path      string    `json:"path"`
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Service) ListStudents(ctx context.Context, userID string) ([]store.Student, error) {
	return s.store.ListStudents(ctx, userID)
}

func (s *Service) CreateStudent(ctx context.Context, userID string, input StudentInput) (store.Student, error) {
	if err := validateInput(input); err != nil {
		return store.Student{}, err
	}
	student := store.Student{
		ID:         util.NewID(),
		UserID:     userID,
		FirstName:  strings.TrimSpace(input.FirstName),
		LastName:   strings.TrimSpace(input.LastName),
		GradeLevel: strings.TrimSpace(input.GradeLevel),
		SchoolYear: strings.TrimSpace(input.SchoolYear),
	}
	if err := s.store.InsertStudent(ctx, student); err != nil {
		return store.Student{}, err
	}
	return s.store.GetStudent(ctx, userID, student.ID)
}

func (s *Service) UpdateStudentGrade(ctx context.Context, userID, studentID string, input GradeInput) (store.Student, error) {
	if err := validateInput(input); err != nil {
		return store.Student{}, err
	}
	if err := s.store.UpdateStudentGrade(ctx, userID, studentID, strings.TrimSpace(input.GradeLevel)); err != nil {
		return store.Student{}, err
	}
	return s.store.GetStudent(ctx, userID, studentID)
}

func descriptionError(err error) error {
	switch {
	case errors.Is(err, coursedesc.ErrUnknownGradeLevel):
		return domainError(http.StatusUnprocessableEntity, "UNKNOWN_GRADE_LEVEL", err.Error(), nil)
	case errors.Is(err, coursedesc.ErrUnknownBucket):
		return domainError(http.StatusUnprocessableEntity, "UNKNOWN_BUCKET", err.Error(), map[string]any{"buckets": coursedesc.Buckets})
	case errors.Is(err, coursedesc.ErrEntryNotFound):
		return notFound("Course description entry")
	case errors.Is(err, coursedesc.ErrPulledIn):
		return domainError(http.StatusConflict, "PULLED_IN_ENTRY", err.Error(), nil)
	default:
		return err
	}
}

func (s *Service) CourseDescriptions(ctx context.Context, userID, studentID string) (coursedesc.Aggregate, error) {
	if _, err := s.store.GetStudent(ctx, userID, studentID); err != nil {
		return nil, err
	}
	_, agg, err := s.descriptions.Load(ctx, studentID)
	return agg, err
}

// SyncCourseDescriptions rebuilds the pulled-in entries of the student's
// current grade bucket.
func (s *Service) SyncCourseDescriptions(ctx context.Context, userID, studentID string) (coursedesc.Aggregate, error) {
	agg, err := s.descriptions.Sync(ctx, userID, studentID)
	if err != nil {
		return nil, descriptionError(err)
	}
	return agg, nil
}

// editDescriptions loads a student's aggregate, applies fn and saves it.
func (s *Service) editDescriptions(ctx context.Context, userID, studentID string, fn func(coursedesc.Aggregate) error) (coursedesc.Aggregate, error) {
	if _, err := s.store.GetStudent(ctx, userID, studentID); err != nil {
		return nil, err
	}
	id, agg, err := s.descriptions.Load(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if err := fn(agg); err != nil {
		return nil, descriptionError(err)
	}
	if err := s.descriptions.Save(ctx, id, studentID, userID, agg); err != nil {
		return nil, err
	}
	return agg, nil
}

func (s *Service) AddDescriptionEntry(ctx context.Context, userID, studentID, bucket string, input DescriptionEntryInput) (string, coursedesc.Aggregate, error) {
	if err := validateInput(input); err != nil {
		return "", nil, err
	}
	entryID := util.NewID()
	agg, err := s.editDescriptions(ctx, userID, studentID, func(agg coursedesc.Aggregate) error {
		_, err := agg.AddManual(bucket, input.entry(), entryID)
		return err
	})
	if err != nil {
		return "", nil, err
	}
	return entryID, agg, nil
}

func (s *Service) UpdateDescriptionEntry(ctx context.Context, userID, studentID, bucket, entryID string, input DescriptionEntryInput) (coursedesc.Aggregate, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	return s.editDescriptions(ctx, userID, studentID, func(agg coursedesc.Aggregate) error {
		return agg.UpdateManual(bucket, entryID, input.entry())
	})
}

func (s *Service) RemoveDescriptionEntry(ctx context.Context, userID, studentID, bucket, entryID string) (coursedesc.Aggregate, error) {
	return s.editDescriptions(ctx, userID, studentID, func(agg coursedesc.Aggregate) error {
		return agg.RemoveManual(bucket, entryID)
	})
}

// GenerateTranscript renders the student's description aggregate to PDF,
// stores it in the transcripts bucket and returns a short-lived link.
func (s *Service) GenerateTranscript(ctx context.Context, userID, studentID string) (Transcript, error) {
	student, err := s.store.GetStudent(ctx, userID, studentID)
	if err != nil {
		return Transcript{}, err
	}
	_, agg, err := s.descriptions.Load(ctx, studentID)
	if err != nil {
		return Transcript{}, err
	}

	schoolName := ""
	if form, _, err := s.loadPSAForm(ctx, userID); err == nil {
		schoolName = form.String("school_name")
	}
	result, err := s.exporter.TranscriptPDF(ctx, s.exporter.BuildTranscript(schoolName, student, agg))
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			return Transcript{}, domainError(http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF generation is not available", nil)
		}
		return Transcript{}, fmt.Errorf("generate transcript: %w", err)
	}

	key := catalog.TranscriptPath(userID, studentID, s.now())
	bucket := s.cfg.Buckets.Transcripts
	if _, err := s.blobs.Put(ctx, bucket, key, bytes.NewReader(result.Data), int64(len(result.Data)), blobPDF()); err != nil {
		return Transcript{}, fmt.Errorf("store transcript: %w", err)
	}
	link, err := s.signedURL(ctx, bucket, key)
	if err != nil {
		return Transcript{}, err
	}
	return Transcript{
		StudentID: studentID,
		Path:      key,
		Filename:  result.Filename,
		URL:       link.URL,
		ExpiresAt: link.ExpiresAt,
	}, nil
}

// CalendarEvents lists events between from and to. Zero bounds default to
// the current month.
func (s *Service) CalendarEvents(ctx context.Context, userID string, from, to time.Time) ([]store.CalendarEvent, error) {
	if from.IsZero() {
		now := s.now().In(s.location)
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.location)
	}
	if to.IsZero() {
		to = from.AddDate(0, 1, 0)
	}
	if !to.After(from) {
		return nil, validationError("to must be after from", nil)
	}
	return s.store.ListCalendarEvents(ctx, userID, from, to)
}
