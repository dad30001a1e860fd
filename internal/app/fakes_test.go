package app

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"youredu/api/internal/auth"
	"youredu/api/internal/blob"
	"youredu/api/internal/config"
	"youredu/api/internal/email"
	"youredu/api/internal/export"
	"youredu/api/internal/store"
	"youredu/api/internal/workflow"
)

// fakeStore keeps rows in memory. The function fields override single
// methods for failure injection.
type fakeStore struct {
	mu sync.Mutex

	users       map[string]store.User
	students    map[string]store.Student
	drafts      map[string]store.PSADraft
	submissions []store.PSASubmission
	folders     map[string]store.Folder
	documents   map[string]store.Document
	courses     map[string]store.Course
	files       map[string]store.CourseFile
	links       map[string]store.CourseLink
	todos       map[string]store.CourseTodo
	descs       map[string]store.CourseDescriptions
	events      map[string][]store.CalendarEvent
	refresh     map[string]string
	revoked     map[string]bool
	calls       []string

	pingFn                func(context.Context) error
	updateCourseFn        func(context.Context, string, string, store.CoursePatch) error
	replaceCourseEventsFn func(context.Context, string, string, *string, []store.CalendarEvent) error
	insertSubmissionFn    func(context.Context, store.PSASubmission) error
	upsertPSAFn           func(context.Context, store.PSADraft) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     map[string]store.User{},
		students:  map[string]store.Student{},
		drafts:    map[string]store.PSADraft{},
		folders:   map[string]store.Folder{},
		documents: map[string]store.Document{},
		courses:   map[string]store.Course{},
		files:     map[string]store.CourseFile{},
		links:     map[string]store.CourseLink{},
		todos:     map[string]store.CourseTodo{},
		descs:     map[string]store.CourseDescriptions{},
		events:    map[string][]store.CalendarEvent{},
		refresh:   map[string]string{},
		revoked:   map[string]bool{},
	}
}

func (f *fakeStore) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeStore) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == user.Email {
			return store.ErrEmailTaken
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) UpdateUserVerificationToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[userID]
	user.VerificationToken = token
	user.VerificationExpiresAt = &expiresAt
	f.users[userID] = user
	return nil
}

func (f *fakeStore) VerifyUserEmail(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, user := range f.users {
		if token != "" && user.VerificationToken == token {
			user.IsEmailVerified = true
			user.VerificationToken = ""
			f.users[id] = user
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) UpdateUserPassword(context.Context, string, string) error      { return nil }
func (f *fakeStore) CreatePasswordReset(context.Context, string, string, time.Time) error { return nil }
func (f *fakeStore) GetPasswordReset(context.Context, string) (string, error) {
	return "", sql.ErrNoRows
}
func (f *fakeStore) MarkPasswordResetUsed(context.Context, string) error { return nil }

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = userID
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.refresh[tokenHash]
	if !ok {
		return store.User{}, auth.ErrInvalidToken
	}
	return f.users[userID], nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

func (f *fakeStore) ListStudents(_ context.Context, userID string) ([]store.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Student, 0)
	for _, student := range f.students {
		if student.UserID == userID {
			out = append(out, student)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListAllStudents(context.Context) ([]store.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Student, 0, len(f.students))
	for _, student := range f.students {
		out = append(out, student)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) GetStudent(_ context.Context, userID, studentID string) (store.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	student, ok := f.students[studentID]
	if !ok || student.UserID != userID {
		return store.Student{}, sql.ErrNoRows
	}
	return student, nil
}

func (f *fakeStore) InsertStudent(_ context.Context, student store.Student) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.students[student.ID] = student
	return nil
}

func (f *fakeStore) UpdateStudentGrade(_ context.Context, userID, studentID, gradeLevel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	student, ok := f.students[studentID]
	if !ok || student.UserID != userID {
		return sql.ErrNoRows
	}
	student.GradeLevel = gradeLevel
	f.students[studentID] = student
	return nil
}

func (f *fakeStore) GetPSADraft(_ context.Context, userID string) (store.PSADraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	draft, ok := f.drafts[userID]
	if !ok {
		return store.PSADraft{}, sql.ErrNoRows
	}
	return draft, nil
}

func (f *fakeStore) UpsertPSADraft(ctx context.Context, draft store.PSADraft) error {
	if f.upsertPSAFn != nil {
		if err := f.upsertPSAFn(ctx, draft); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("upsert_psa")
	draft.UpdatedAt = time.Now()
	f.drafts[draft.UserID] = draft
	return nil
}

func (f *fakeStore) InsertPSASubmission(ctx context.Context, submission store.PSASubmission) error {
	if f.insertSubmissionFn != nil {
		return f.insertSubmissionFn(ctx, submission)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("insert_submission")
	f.submissions = append(f.submissions, submission)
	return nil
}

func (f *fakeStore) ListPSASubmissions(_ context.Context, userID string) ([]store.PSASubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.PSASubmission, 0)
	for _, submission := range f.submissions {
		if submission.UserID == userID {
			out = append(out, submission)
		}
	}
	return out, nil
}

func (f *fakeStore) ListFolders(_ context.Context, userID string) ([]store.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Folder, 0)
	for _, folder := range f.folders {
		if folder.UserID == userID {
			out = append(out, folder)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) GetFolder(_ context.Context, userID, folderID string) (store.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	folder, ok := f.folders[folderID]
	if !ok || folder.UserID != userID {
		return store.Folder{}, sql.ErrNoRows
	}
	return folder, nil
}

func (f *fakeStore) InsertFolder(_ context.Context, folder store.Folder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folders[folder.ID] = folder
	return nil
}

func (f *fakeStore) RenameFolder(_ context.Context, userID, folderID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	folder, ok := f.folders[folderID]
	if !ok || folder.UserID != userID || folder.IsDefault {
		return sql.ErrNoRows
	}
	folder.Name = name
	f.folders[folderID] = folder
	return nil
}

func (f *fakeStore) DeleteFolder(_ context.Context, userID, folderID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete_folder")
	folder, ok := f.folders[folderID]
	if !ok || folder.UserID != userID || folder.IsDefault {
		return 0, nil
	}
	delete(f.folders, folderID)
	return 1, nil
}

func (f *fakeStore) ListDocuments(_ context.Context, userID, folderID string) ([]store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Document, 0)
	for _, doc := range f.documents {
		if doc.UserID == userID && doc.FolderID == folderID {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) GetDocument(_ context.Context, userID, documentID string) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[documentID]
	if !ok || doc.UserID != userID {
		return store.Document{}, sql.ErrNoRows
	}
	return doc, nil
}

func (f *fakeStore) InsertDocument(_ context.Context, doc store.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents[doc.ID] = doc
	return nil
}

func (f *fakeStore) DeleteDocument(_ context.Context, userID, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[documentID]
	if !ok || doc.UserID != userID {
		return sql.ErrNoRows
	}
	delete(f.documents, documentID)
	return nil
}

func (f *fakeStore) DeleteFolderDocuments(_ context.Context, userID, folderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete_folder_documents")
	for id, doc := range f.documents {
		if doc.UserID == userID && doc.FolderID == folderID {
			delete(f.documents, id)
		}
	}
	return nil
}

func (f *fakeStore) GetCourse(_ context.Context, userID, courseID string) (store.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	course, ok := f.courses[courseID]
	if !ok || course.UserID != userID {
		return store.Course{}, sql.ErrNoRows
	}
	return course, nil
}

func (f *fakeStore) CourseSource(ctx context.Context, userID, courseID string) (string, error) {
	course, err := f.GetCourse(ctx, userID, courseID)
	if err != nil {
		return "", err
	}
	return course.Source, nil
}

func (f *fakeStore) ListCourses(_ context.Context, userID string) ([]store.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Course, 0)
	for _, course := range f.courses {
		if course.UserID == userID {
			out = append(out, course)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListStudentCourses(_ context.Context, userID, studentID string) ([]store.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Course, 0)
	for _, course := range f.courses {
		if course.UserID == userID && course.StudentID != nil && *course.StudentID == studentID {
			out = append(out, course)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) InsertCourse(_ context.Context, course store.Course) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.courses[course.ID] = course
	return nil
}

func (f *fakeStore) UpdateCourse(ctx context.Context, userID, courseID string, patch store.CoursePatch) error {
	f.mu.Lock()
	f.record("update_course")
	f.mu.Unlock()
	if f.updateCourseFn != nil {
		if err := f.updateCourseFn(ctx, userID, courseID, patch); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	course, ok := f.courses[courseID]
	if !ok || course.UserID != userID {
		return sql.ErrNoRows
	}
	f.courses[courseID] = applyCoursePatch(course, patch)
	return nil
}

func (f *fakeStore) ListCourseFiles(_ context.Context, userID, courseID, uiCategory string) ([]store.CourseFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.CourseFile, 0)
	for _, file := range f.files {
		if file.UserID == userID && file.CourseID == courseID && (uiCategory == "" || file.UICategory == uiCategory) {
			out = append(out, file)
		}
	}
	return out, nil
}

func (f *fakeStore) GetCourseFile(_ context.Context, userID, fileID string) (store.CourseFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[fileID]
	if !ok || file.UserID != userID {
		return store.CourseFile{}, sql.ErrNoRows
	}
	return file, nil
}

func (f *fakeStore) InsertCourseFile(_ context.Context, file store.CourseFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[file.ID] = file
	return nil
}

func (f *fakeStore) DeleteCourseFile(_ context.Context, userID, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[fileID]
	if !ok || file.UserID != userID {
		return sql.ErrNoRows
	}
	delete(f.files, fileID)
	return nil
}

func (f *fakeStore) ListCourseLinks(_ context.Context, userID, courseID string) ([]store.CourseLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.CourseLink, 0)
	for _, link := range f.links {
		if link.UserID == userID && link.CourseID == courseID {
			out = append(out, link)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertCourseLink(_ context.Context, link store.CourseLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[link.ID] = link
	return nil
}

func (f *fakeStore) DeleteCourseLink(_ context.Context, userID, linkID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	link, ok := f.links[linkID]
	if !ok || link.UserID != userID {
		return sql.ErrNoRows
	}
	delete(f.links, linkID)
	return nil
}

func (f *fakeStore) ListCourseTodos(_ context.Context, userID, courseID string) ([]store.CourseTodo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.CourseTodo, 0)
	for _, todo := range f.todos {
		if todo.UserID == userID && todo.CourseID == courseID {
			out = append(out, todo)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertCourseTodo(_ context.Context, todo store.CourseTodo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.todos[todo.ID] = todo
	return nil
}

func (f *fakeStore) SetCourseTodoCompleted(_ context.Context, userID, todoID string, completed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	todo, ok := f.todos[todoID]
	if !ok || todo.UserID != userID {
		return sql.ErrNoRows
	}
	todo.Completed = completed
	f.todos[todoID] = todo
	return nil
}

func (f *fakeStore) DeleteCourseTodo(_ context.Context, userID, todoID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	todo, ok := f.todos[todoID]
	if !ok || todo.UserID != userID {
		return sql.ErrNoRows
	}
	delete(f.todos, todoID)
	return nil
}

func (f *fakeStore) GetCourseDescriptions(_ context.Context, studentID string) (store.CourseDescriptions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.descs[studentID]
	if !ok {
		return store.CourseDescriptions{}, sql.ErrNoRows
	}
	return row, nil
}

func (f *fakeStore) UpsertCourseDescriptions(_ context.Context, row store.CourseDescriptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("upsert_descriptions")
	f.descs[row.StudentID] = row
	return nil
}

func eventsKey(courseID string, studentID *string) string {
	if studentID == nil {
		return courseID + "/all"
	}
	return courseID + "/" + *studentID
}

func (f *fakeStore) ReplaceCourseEvents(ctx context.Context, userID, courseID string, studentID *string, events []store.CalendarEvent) error {
	f.mu.Lock()
	if studentID == nil {
		f.record("calendar_all")
	} else {
		f.record("calendar")
	}
	f.mu.Unlock()
	if f.replaceCourseEventsFn != nil {
		if err := f.replaceCourseEventsFn(ctx, userID, courseID, studentID, events); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[eventsKey(courseID, studentID)] = events
	return nil
}

func (f *fakeStore) ListCalendarEvents(_ context.Context, userID string, from, to time.Time) ([]store.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.CalendarEvent, 0)
	for _, events := range f.events {
		for _, event := range events {
			if event.UserID == userID && !event.StartsAt.Before(from) && event.StartsAt.Before(to) {
				out = append(out, event)
			}
		}
	}
	return out, nil
}

// recordingSender captures outbound mail.
type recordingSender struct {
	mu       sync.Mutex
	messages []email.Message
	err      error
}

func (r *recordingSender) Send(_ context.Context, msg email.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, msg)
	return nil
}

func (r *recordingSender) Configured() bool { return true }

func (r *recordingSender) sent() []email.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]email.Message(nil), r.messages...)
}

func fakePDF(_ context.Context, html string) ([]byte, error) {
	return []byte("%PDF-1.4 " + html[:min(len(html), 32)]), nil
}

type testEnv struct {
	svc    *Service
	store  *fakeStore
	blobs  *blob.MemoryStore
	sender *recordingSender
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:      "test-secret",
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     time.Hour,
		AppURL:         "http://app.test",
		SupportEmail:   "support@youredu.test",
		BlobPublicURL:  "http://blobs.test",
		PSADebounce:    time.Hour,
		CourseDebounce: time.Hour,
		PilotCodeHash:  "abc123",
		Buckets: config.Buckets{
			CourseFiles:    "course-files",
			Records:        "record-keeping-documents",
			Compliance:     "compliance_documents",
			Transcripts:    "transcripts",
			AdminMaterials: "admin-materials",
		},
	}
}

// newTestEnv builds a Service over in-memory collaborators. Debounce delays
// are long so tests flush explicitly.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fs := newFakeStore()
	blobs := blob.NewMemory("http://blobs.test")
	sender := &recordingSender{}
	cfg := testConfig()
	svc := newService(cfg, fs, Options{
		Blob:     blobs,
		Notifier: email.NewNotifier(sender, cfg.AppURL, cfg.SupportEmail),
		Export:   export.NewService(fakePDF),
	})
	svc.runner = &workflow.Runner{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	t.Cleanup(svc.Shutdown)
	return &testEnv{svc: svc, store: fs, blobs: blobs, sender: sender}
}

func (e *testEnv) addUser(id, role string) store.User {
	user := store.User{
		ID:              id,
		DisplayName:     "Parent " + id,
		Email:           id + "@example.com",
		Role:            role,
		IsEmailVerified: true,
	}
	e.store.mu.Lock()
	e.store.users[id] = user
	e.store.mu.Unlock()
	return user
}

func (e *testEnv) session(t *testing.T, userID string) Session {
	t.Helper()
	sess, err := e.svc.CreateSession(context.Background(), userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess
}
