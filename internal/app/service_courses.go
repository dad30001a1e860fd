package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"youredu/api/internal/calendar"
	"youredu/api/internal/catalog"
	"youredu/api/internal/coursedesc"
	"youredu/api/internal/search"
	"youredu/api/internal/store"
	"youredu/api/internal/util"
	"youredu/api/internal/workflow"
)

const dateLayout = "2006-01-02"

type CourseInput struct {
	Title            string   `json:"title" validate:"required,notblank,max=200"`
	StudentID        *string  `json:"studentId"`
	Source           string   `json:"source" validate:"omitempty,oneof=youredu_course user_course"`
	Description      string   `json:"description" validate:"max=20000"`
	Subject          string   `json:"subject" validate:"max=120"`
	GradeLevel       string   `json:"gradeLevel" validate:"max=40"`
	Term             string   `json:"term" validate:"max=40"`
	Year             string   `json:"year" validate:"max=20"`
	Credits          float64  `json:"credits" validate:"gte=0,lte=20"`
	DaysOfWeek       []string `json:"daysOfWeek"`
	StartTime        string   `json:"startTime"`
	EndTime          string   `json:"endTime"`
	StartDate        string   `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate          string   `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	Textbooks        string   `json:"textbooks"`
	Materials        string   `json:"materials"`
	EvaluationMethod string   `json:"evaluationMethod"`
}

type CourseLinkInput struct {
	Title string `json:"title" validate:"required,notblank,max=200"`
	URL   string `json:"url" validate:"required,url"`
}

type CourseTodoInput struct {
	Title   string `json:"title" validate:"required,notblank,max=200"`
	DueDate string `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`
}

// SaveReport describes the last save workflow run for a course.
type SaveReport struct {
	CourseID   string    `json:"courseId"`
	Fields     []string  `json:"fields"`
	Completed  []string  `json:"completed"`
	FailedStep string    `json:"failedStep,omitempty"`
	Error      string    `json:"error,omitempty"`
	SavedAt    time.Time `json:"savedAt"`
}

// courseEdit is one debounced field change. Each (course, field) pair has
// its own timer.
type courseEdit struct {
	UserID   string
	CourseID string
	Field    string
	Patch    store.CoursePatch
}

type coursePatchField func(raw json.RawMessage, patch *store.CoursePatch) error

func textField(set func(*store.CoursePatch, *string)) coursePatchField {
	return func(raw json.RawMessage, patch *store.CoursePatch) error {
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return errors.New("must be a string")
		}
		set(patch, &value)
		return nil
	}
}

func dateField(set func(*store.CoursePatch, *time.Time)) coursePatchField {
	return func(raw json.RawMessage, patch *store.CoursePatch) error {
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return errors.New("must be a YYYY-MM-DD string")
		}
		parsed, err := time.Parse(dateLayout, strings.TrimSpace(value))
		if err != nil {
			return errors.New("must be a YYYY-MM-DD string")
		}
		set(patch, &parsed)
		return nil
	}
}

var coursePatchFields = map[string]coursePatchField{
	"title": func(raw json.RawMessage, patch *store.CoursePatch) error {
		var value string
		if err := json.Unmarshal(raw, &value); err != nil || strings.TrimSpace(value) == "" {
			return errors.New("must be a non-empty string")
		}
		patch.Title = &value
		return nil
	},
	"description":      textField(func(p *store.CoursePatch, v *string) { p.Description = v }),
	"subject":          textField(func(p *store.CoursePatch, v *string) { p.Subject = v }),
	"gradeLevel":       textField(func(p *store.CoursePatch, v *string) { p.GradeLevel = v }),
	"term":             textField(func(p *store.CoursePatch, v *string) { p.Term = v }),
	"year":             textField(func(p *store.CoursePatch, v *string) { p.Year = v }),
	"finalGrade":       textField(func(p *store.CoursePatch, v *string) { p.FinalGrade = v }),
	"textbooks":        textField(func(p *store.CoursePatch, v *string) { p.Textbooks = v }),
	"materials":        textField(func(p *store.CoursePatch, v *string) { p.Materials = v }),
	"evaluationMethod": textField(func(p *store.CoursePatch, v *string) { p.EvaluationMethod = v }),
	"startTime":        textField(func(p *store.CoursePatch, v *string) { p.StartTime = v }),
	"endTime":          textField(func(p *store.CoursePatch, v *string) { p.EndTime = v }),
	"startDate":        dateField(func(p *store.CoursePatch, v *time.Time) { p.StartDate = v }),
	"endDate":          dateField(func(p *store.CoursePatch, v *time.Time) { p.EndDate = v }),
	"credits": func(raw json.RawMessage, patch *store.CoursePatch) error {
		var value float64
		if err := json.Unmarshal(raw, &value); err != nil || value < 0 || value > 20 {
			return errors.New("must be a number between 0 and 20")
		}
		patch.Credits = &value
		return nil
	},
	"isPublished": func(raw json.RawMessage, patch *store.CoursePatch) error {
		var value bool
		if err := json.Unmarshal(raw, &value); err != nil {
			return errors.New("must be a boolean")
		}
		patch.IsPublished = &value
		return nil
	},
	"daysOfWeek": func(raw json.RawMessage, patch *store.CoursePatch) error {
		var days []string
		if err := json.Unmarshal(raw, &days); err != nil {
			return errors.New("must be a list of weekdays")
		}
		for _, day := range days {
			if _, err := calendar.ParseWeekday(day); err != nil {
				return err
			}
		}
		if days == nil {
			days = []string{}
		}
		patch.DaysOfWeek = days
		return nil
	},
}

// CourseFieldNames lists the editable course fields in a stable order.
func CourseFieldNames() []string {
	names := make([]string, 0, len(coursePatchFields))
	for name := range coursePatchFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// parseCoursePatch splits a JSON object of field edits into one patch per field.
func parseCoursePatch(body map[string]json.RawMessage) (map[string]store.CoursePatch, error) {
	if len(body) == 0 {
		return nil, validationError("No fields to update", nil)
	}
	patches := make(map[string]store.CoursePatch, len(body))
	invalid := map[string]string{}
	for field, raw := range body {
		parse, ok := coursePatchFields[field]
		if !ok {
			invalid[field] = "is not an editable field"
			continue
		}
		var patch store.CoursePatch
		if err := parse(raw, &patch); err != nil {
			invalid[field] = err.Error()
			continue
		}
		patches[field] = patch
	}
	if len(invalid) > 0 {
		return nil, validationError("Invalid course fields", invalid)
	}
	return patches, nil
}

// applyCoursePatch returns course with the non-nil fields of patch applied.
func applyCoursePatch(course store.Course, patch store.CoursePatch) store.Course {
	if patch.Title != nil {
		course.Title = *patch.Title
	}
	if patch.Description != nil {
		course.Description = *patch.Description
	}
	if patch.Subject != nil {
		course.Subject = *patch.Subject
	}
	if patch.GradeLevel != nil {
		course.GradeLevel = *patch.GradeLevel
	}
	if patch.Term != nil {
		course.Term = *patch.Term
	}
	if patch.Year != nil {
		course.Year = *patch.Year
	}
	if patch.Credits != nil {
		course.Credits = *patch.Credits
	}
	if patch.FinalGrade != nil {
		course.FinalGrade = *patch.FinalGrade
	}
	if patch.Textbooks != nil {
		course.Textbooks = *patch.Textbooks
	}
	if patch.Materials != nil {
		course.Materials = *patch.Materials
	}
	if patch.EvaluationMethod != nil {
		course.EvaluationMethod = *patch.EvaluationMethod
	}
	if patch.DaysOfWeek != nil {
		course.DaysOfWeek = patch.DaysOfWeek
	}
	if patch.StartTime != nil {
		course.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		course.EndTime = *patch.EndTime
	}
	if patch.StartDate != nil {
		course.StartDate = patch.StartDate
	}
	if patch.EndDate != nil {
		course.EndDate = patch.EndDate
	}
	if patch.IsPublished != nil {
		course.IsPublished = *patch.IsPublished
	}
	return course
}

func courseEditKey(courseID, field string) string {
	return courseID + "/" + field
}

// CourseType reports which source table a course belongs to.
func (s *Service) CourseType(ctx context.Context, userID, courseID string) (string, error) {
	return s.store.CourseSource(ctx, userID, courseID)
}

func (s *Service) ListCourses(ctx context.Context, userID, studentID string) ([]store.Course, error) {
	if studentID != "" {
		if _, err := s.store.GetStudent(ctx, userID, studentID); err != nil {
			return nil, err
		}
		return s.store.ListStudentCourses(ctx, userID, studentID)
	}
	return s.store.ListCourses(ctx, userID)
}

// GetCourse returns the course with edits that are still waiting to be
// saved applied, plus the names of those fields.
func (s *Service) GetCourse(ctx context.Context, userID, courseID string) (store.Course, []string, error) {
	course, err := s.store.GetCourse(ctx, userID, courseID)
	if err != nil {
		return store.Course{}, nil, err
	}
	pending := make([]string, 0)
	for _, field := range CourseFieldNames() {
		if edit, ok := s.courseEdits.Pending(courseEditKey(courseID, field)); ok && edit.UserID == userID {
			course = applyCoursePatch(course, edit.Patch)
			pending = append(pending, field)
		}
	}
	return course, pending, nil
}

func (s *Service) CreateCourse(ctx context.Context, userID string, input CourseInput) (store.Course, SaveReport, error) {
	if err := validateInput(input); err != nil {
		return store.Course{}, SaveReport{}, err
	}
	for _, day := range input.DaysOfWeek {
		if _, err := calendar.ParseWeekday(day); err != nil {
			return store.Course{}, SaveReport{}, validationError("Invalid daysOfWeek", map[string]string{"daysOfWeek": err.Error()})
		}
	}
	if input.StudentID != nil && *input.StudentID != "" {
		if _, err := s.store.GetStudent(ctx, userID, *input.StudentID); err != nil {
			return store.Course{}, SaveReport{}, err
		}
	} else {
		input.StudentID = nil
	}

	source := input.Source
	if source == "" {
		source = store.SourceUser
	}
	course := store.Course{
		ID:               util.NewID(),
		UserID:           userID,
		StudentID:        input.StudentID,
		Source:           source,
		Title:            strings.TrimSpace(input.Title),
		Description:      input.Description,
		Subject:          input.Subject,
		GradeLevel:       input.GradeLevel,
		Term:             input.Term,
		Year:             input.Year,
		Credits:          input.Credits,
		Textbooks:        input.Textbooks,
		Materials:        input.Materials,
		EvaluationMethod: input.EvaluationMethod,
		DaysOfWeek:       input.DaysOfWeek,
		StartTime:        input.StartTime,
		EndTime:          input.EndTime,
	}
	if input.StartDate != "" {
		parsed, _ := time.Parse(dateLayout, input.StartDate)
		course.StartDate = &parsed
	}
	if input.EndDate != "" {
		parsed, _ := time.Parse(dateLayout, input.EndDate)
		course.EndDate = &parsed
	}
	if err := s.store.InsertCourse(ctx, course); err != nil {
		return store.Course{}, SaveReport{}, err
	}

	// An empty patch runs only the calendar and description steps.
	report := s.saveCourse(ctx, userID, course.ID, nil, store.CoursePatch{})
	created, err := s.store.GetCourse(ctx, userID, course.ID)
	if err != nil {
		return store.Course{}, report, err
	}
	return created, report, nil
}

// ScheduleCourseEdits queues field edits for a course. Each field is saved
// once its own edits have been quiet for the debounce delay.
func (s *Service) ScheduleCourseEdits(ctx context.Context, userID, courseID string, body map[string]json.RawMessage) ([]string, error) {
	patches, err := parseCoursePatch(body)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetCourse(ctx, userID, courseID); err != nil {
		return nil, err
	}
	fields := make([]string, 0, len(patches))
	for field, patch := range patches {
		s.courseEdits.Schedule(courseEditKey(courseID, field), courseEdit{
			UserID:   userID,
			CourseID: courseID,
			Field:    field,
			Patch:    patch,
		})
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields, nil
}

// FlushCourse saves every pending edit of a course now and returns the
// report of the last save that ran.
func (s *Service) FlushCourse(ctx context.Context, userID, courseID string) (SaveReport, bool, error) {
	if _, err := s.store.GetCourse(ctx, userID, courseID); err != nil {
		return SaveReport{}, false, err
	}
	flushed := false
	for _, field := range CourseFieldNames() {
		if s.courseEdits.Flush(courseEditKey(courseID, field)) {
			flushed = true
		}
	}
	report, ok := s.LastSave(courseID)
	return report, flushed || ok, nil
}

func (s *Service) LastSave(courseID string) (SaveReport, bool) {
	s.savesMu.Lock()
	defer s.savesMu.Unlock()
	report, ok := s.saves[courseID]
	return report, ok
}

func (s *Service) flushCourseEdit(_ string, edit courseEdit) {
	ctx, cancel := background()
	defer cancel()
	s.saveCourse(ctx, edit.UserID, edit.CourseID, []string{edit.Field}, edit.Patch)
}

func (s *Service) courseLock(courseID string) *sync.Mutex {
	s.courseLockMu.Lock()
	defer s.courseLockMu.Unlock()
	lock, ok := s.courseLocks[courseID]
	if !ok {
		lock = &sync.Mutex{}
		s.courseLocks[courseID] = lock
	}
	return lock
}

// saveCourse runs the course save workflow: the student's calendar, the
// course row, the student's description aggregate and the all-students
// calendar, in that order. Every step is idempotent and retried; a step that
// keeps failing stops the ones after it. Saves of one course run one at a
// time, so each starts from the row the previous one committed.
func (s *Service) saveCourse(ctx context.Context, userID, courseID string, fields []string, patch store.CoursePatch) SaveReport {
	lock := s.courseLock(courseID)
	lock.Lock()
	defer lock.Unlock()

	report := SaveReport{CourseID: courseID, Fields: fields, Completed: []string{}, SavedAt: s.now()}
	if report.Fields == nil {
		report.Fields = []string{}
	}

	course, err := s.store.GetCourse(ctx, userID, courseID)
	if err != nil {
		report.FailedStep = "load"
		report.Error = err.Error()
		s.finishSave(report, err)
		return report
	}
	next := applyCoursePatch(course, patch)

	steps := make([]workflow.Step, 0, 4)
	if next.StudentID != nil {
		studentID := *next.StudentID
		steps = append(steps, workflow.Step{Name: "calendar", Run: func(ctx context.Context) error {
			return s.syncCourseCalendar(ctx, next, &studentID)
		}})
	}
	steps = append(steps, workflow.Step{Name: "update", Run: func(ctx context.Context) error {
		err := s.store.UpdateCourse(ctx, userID, courseID, patch)
		if errors.Is(err, sql.ErrNoRows) {
			return workflow.Permanent(err)
		}
		return err
	}})
	if next.StudentID != nil {
		studentID := *next.StudentID
		steps = append(steps, workflow.Step{Name: "descriptions", Run: func(ctx context.Context) error {
			return s.syncDescriptionsStep(ctx, userID, studentID)
		}})
	}
	steps = append(steps, workflow.Step{Name: "calendar_all", Run: func(ctx context.Context) error {
		return s.syncCourseCalendar(ctx, next, nil)
	}})

	completed, err := s.runner.Run(ctx, "course-save "+courseID, steps)
	report.Completed = completed
	var stepErr *workflow.StepError
	if errors.As(err, &stepErr) {
		report.FailedStep = stepErr.Step
		report.Error = stepErr.Err.Error()
	} else if err != nil {
		report.Error = err.Error()
	}
	if err == nil || slices.Contains(completed, "update") {
		s.search.IndexCourse(search.CourseRecord{
			ID:          next.ID,
			UserID:      next.UserID,
			Title:       next.Title,
			Subject:     next.Subject,
			Description: next.Description,
		})
	}
	s.finishSave(report, err)
	return report
}

func (s *Service) finishSave(report SaveReport, err error) {
	s.observeFlush("course", err)
	if err != nil {
		log.Printf("courses: save %s %v: %v", report.CourseID, report.Fields, err)
	}
	s.savesMu.Lock()
	s.saves[report.CourseID] = report
	s.savesMu.Unlock()
}

// syncCourseCalendar replaces the scheduled events of a course for one
// student, or for the all-students view when studentID is nil. A schedule
// that cannot be expanded clears the course's events.
func (s *Service) syncCourseCalendar(ctx context.Context, course store.Course, studentID *string) error {
	events, err := calendar.Expand(course, s.location)
	if err != nil {
		if !errors.Is(err, calendar.ErrInvalidSchedule) {
			return err
		}
		log.Printf("calendar: course %s: %v", course.ID, err)
		events = nil
	}
	for i := range events {
		events[i].StudentID = studentID
	}
	return s.store.ReplaceCourseEvents(ctx, course.UserID, course.ID, studentID, events)
}

func (s *Service) syncDescriptionsStep(ctx context.Context, userID, studentID string) error {
	_, err := s.descriptions.Sync(ctx, userID, studentID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, coursedesc.ErrUnknownGradeLevel):
		log.Printf("coursedesc: student %s: %v; skipping description sync", studentID, err)
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return workflow.Permanent(err)
	default:
		return err
	}
}

// Course files

func (s *Service) ListCourseFiles(ctx context.Context, userID, courseID, uiCategory string) ([]store.CourseFile, error) {
	if _, err := s.CourseType(ctx, userID, courseID); err != nil {
		return nil, err
	}
	category := ""
	if strings.TrimSpace(uiCategory) != "" {
		category = catalog.NormalizeUICategory(uiCategory)
	}
	return s.store.ListCourseFiles(ctx, userID, courseID, category)
}

func (s *Service) UploadCourseFile(ctx context.Context, userID, courseID, uiCategory string, upload Upload) (store.CourseFile, error) {
	courseType, err := s.CourseType(ctx, userID, courseID)
	if err != nil {
		return store.CourseFile{}, err
	}
	if strings.TrimSpace(upload.Name) == "" {
		return store.CourseFile{}, validationError("A file is required", nil)
	}
	category := catalog.NormalizeUICategory(uiCategory)

	key := catalog.CourseFilePath(userID, courseID, category, upload.Name, s.now())
	info, err := s.blobs.Put(ctx, s.cfg.Buckets.CourseFiles, key, upload.Body, upload.Size, uploadOptions(upload, map[string]string{"course-id": courseID}))
	if err != nil {
		return store.CourseFile{}, fmt.Errorf("upload course file: %w", err)
	}

	file := store.CourseFile{
		ID:          util.NewID(),
		CourseID:    courseID,
		CourseType:  courseType,
		UserID:      userID,
		Name:        upload.Name,
		UICategory:  category,
		Category:    catalog.MapCategoryToDBCategory(category),
		StoragePath: key,
		SizeBytes:   info.Size,
		MimeType:    info.ContentType,
		CreatedAt:   s.now(),
	}
	if err := s.store.InsertCourseFile(ctx, file); err != nil {
		if cleanupErr := s.removeBlob(ctx, s.cfg.Buckets.CourseFiles, key); cleanupErr != nil {
			log.Printf("courses: remove orphaned upload %s: %v", key, cleanupErr)
		}
		return store.CourseFile{}, err
	}
	s.search.IndexCourseFile(search.CourseFileRecord{ID: file.ID, UserID: userID, CourseID: courseID, Name: file.Name, UICategory: category})
	return file, nil
}

func (s *Service) CourseFileURL(ctx context.Context, userID, fileID string) (SignedURL, error) {
	file, err := s.store.GetCourseFile(ctx, userID, fileID)
	if err != nil {
		return SignedURL{}, err
	}
	return s.signedURL(ctx, s.cfg.Buckets.CourseFiles, file.StoragePath)
}

// DeleteCourseFile removes the stored object first, then the row.
func (s *Service) DeleteCourseFile(ctx context.Context, userID, fileID string) error {
	file, err := s.store.GetCourseFile(ctx, userID, fileID)
	if err != nil {
		return err
	}
	if err := s.removeBlob(ctx, s.cfg.Buckets.CourseFiles, file.StoragePath); err != nil {
		return err
	}
	if err := s.store.DeleteCourseFile(ctx, userID, fileID); err != nil {
		return err
	}
	s.search.Delete(search.ResultCourseFile, fileID)
	return nil
}

// Links

func (s *Service) ListCourseLinks(ctx context.Context, userID, courseID string) ([]store.CourseLink, error) {
	if _, err := s.CourseType(ctx, userID, courseID); err != nil {
		return nil, err
	}
	return s.store.ListCourseLinks(ctx, userID, courseID)
}

func (s *Service) AddCourseLink(ctx context.Context, userID, courseID string, input CourseLinkInput) (store.CourseLink, error) {
	if err := validateInput(input); err != nil {
		return store.CourseLink{}, err
	}
	courseType, err := s.CourseType(ctx, userID, courseID)
	if err != nil {
		return store.CourseLink{}, err
	}
	link := store.CourseLink{
		ID:         util.NewID(),
		CourseID:   courseID,
		CourseType: courseType,
		UserID:     userID,
		Title:      strings.TrimSpace(input.Title),
		URL:        strings.TrimSpace(input.URL),
		CreatedAt:  s.now(),
	}
	if err := s.store.InsertCourseLink(ctx, link); err != nil {
		return store.CourseLink{}, err
	}
	return link, nil
}

func (s *Service) DeleteCourseLink(ctx context.Context, userID, linkID string) error {
	return s.store.DeleteCourseLink(ctx, userID, linkID)
}

// Todos

func (s *Service) ListCourseTodos(ctx context.Context, userID, courseID string) ([]store.CourseTodo, error) {
	if _, err := s.CourseType(ctx, userID, courseID); err != nil {
		return nil, err
	}
	return s.store.ListCourseTodos(ctx, userID, courseID)
}

func (s *Service) AddCourseTodo(ctx context.Context, userID, courseID string, input CourseTodoInput) (store.CourseTodo, error) {
	if err := validateInput(input); err != nil {
		return store.CourseTodo{}, err
	}
	if _, err := s.CourseType(ctx, userID, courseID); err != nil {
		return store.CourseTodo{}, err
	}
	todo := store.CourseTodo{
		ID:        util.NewID(),
		CourseID:  courseID,
		UserID:    userID,
		Title:     strings.TrimSpace(input.Title),
		CreatedAt: s.now(),
	}
	if input.DueDate != "" {
		due, _ := time.Parse(dateLayout, input.DueDate)
		todo.DueDate = &due
	}
	if err := s.store.InsertCourseTodo(ctx, todo); err != nil {
		return store.CourseTodo{}, err
	}
	return todo, nil
}

func (s *Service) SetCourseTodoCompleted(ctx context.Context, userID, todoID string, completed bool) error {
	return s.store.SetCourseTodoCompleted(ctx, userID, todoID, completed)
}

func (s *Service) DeleteCourseTodo(ctx context.Context, userID, todoID string) error {
	return s.store.DeleteCourseTodo(ctx, userID, todoID)
}
