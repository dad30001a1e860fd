package app

import (
	"context"
	"log"
	"sync"
	"time"

	"youredu/api/internal/auth"
	"youredu/api/internal/authpw"
	"youredu/api/internal/blob"
	"youredu/api/internal/config"
	"youredu/api/internal/coursedesc"
	"youredu/api/internal/debounce"
	"youredu/api/internal/email"
	"youredu/api/internal/export"
	"youredu/api/internal/gitrepo"
	"youredu/api/internal/metrics"
	"youredu/api/internal/psa"
	"youredu/api/internal/rbac"
	"youredu/api/internal/search"
	"youredu/api/internal/session"
	"youredu/api/internal/store"
	"youredu/api/internal/util"
	"youredu/api/internal/workflow"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	Ping(ctx context.Context) error

	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	CreateUser(context.Context, store.User) error
	UpdateUserVerificationToken(context.Context, string, string, time.Time) error
	VerifyUserEmail(context.Context, string) error
	UpdateUserPassword(context.Context, string, string) error
	CreatePasswordReset(context.Context, string, string, time.Time) error
	GetPasswordReset(context.Context, string) (string, error)
	MarkPasswordResetUsed(context.Context, string) error
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	ListStudents(context.Context, string) ([]store.Student, error)
	ListAllStudents(context.Context) ([]store.Student, error)
	GetStudent(context.Context, string, string) (store.Student, error)
	InsertStudent(context.Context, store.Student) error
	UpdateStudentGrade(context.Context, string, string, string) error

	GetPSADraft(context.Context, string) (store.PSADraft, error)
	UpsertPSADraft(context.Context, store.PSADraft) error
	InsertPSASubmission(context.Context, store.PSASubmission) error
	ListPSASubmissions(context.Context, string) ([]store.PSASubmission, error)

	ListFolders(context.Context, string) ([]store.Folder, error)
	GetFolder(context.Context, string, string) (store.Folder, error)
	InsertFolder(context.Context, store.Folder) error
	RenameFolder(context.Context, string, string, string) error
	DeleteFolder(context.Context, string, string) (int64, error)
	ListDocuments(context.Context, string, string) ([]store.Document, error)
	GetDocument(context.Context, string, string) (store.Document, error)
	InsertDocument(context.Context, store.Document) error
	DeleteDocument(context.Context, string, string) error
	DeleteFolderDocuments(context.Context, string, string) error

	GetCourse(context.Context, string, string) (store.Course, error)
	CourseSource(context.Context, string, string) (string, error)
	ListCourses(context.Context, string) ([]store.Course, error)
	ListStudentCourses(context.Context, string, string) ([]store.Course, error)
	InsertCourse(context.Context, store.Course) error
	UpdateCourse(context.Context, string, string, store.CoursePatch) error
	ListCourseFiles(context.Context, string, string, string) ([]store.CourseFile, error)
	GetCourseFile(context.Context, string, string) (store.CourseFile, error)
	InsertCourseFile(context.Context, store.CourseFile) error
	DeleteCourseFile(context.Context, string, string) error
	ListCourseLinks(context.Context, string, string) ([]store.CourseLink, error)
	InsertCourseLink(context.Context, store.CourseLink) error
	DeleteCourseLink(context.Context, string, string) error
	ListCourseTodos(context.Context, string, string) ([]store.CourseTodo, error)
	InsertCourseTodo(context.Context, store.CourseTodo) error
	SetCourseTodoCompleted(context.Context, string, string, bool) error
	DeleteCourseTodo(context.Context, string, string) error

	GetCourseDescriptions(context.Context, string) (store.CourseDescriptions, error)
	UpsertCourseDescriptions(context.Context, store.CourseDescriptions) error
	ReplaceCourseEvents(context.Context, string, string, *string, []store.CalendarEvent) error
	ListCalendarEvents(context.Context, string, time.Time, time.Time) ([]store.CalendarEvent, error)
}

// RefreshStore keeps hashed refresh tokens. Redis in production, the
// Postgres table otherwise.
type RefreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// VerificationStaging holds PSA verifications between preview and confirm.
type VerificationStaging interface {
	StageVerification(ctx context.Context, v session.Verification, ttl time.Duration) error
	LoadVerification(ctx context.Context, id string) (session.Verification, error)
	DeleteVerification(ctx context.Context, id string) error
}

type draftHistory interface {
	Record(userID string, form psa.Form, author, message string) (gitrepo.Revision, bool, error)
	History(userID string, limit int) ([]gitrepo.Revision, error)
	Tag(userID, name string) error
}

// Options carries the optional collaborators of a Service. Zero fields fall
// back to in-process implementations.
type Options struct {
	Sessions RefreshStore
	Staging  VerificationStaging
	Blob     blob.Store
	Notifier *email.Notifier
	Export   *export.Service
	Search   *search.Service
	History  *gitrepo.Service
	Metrics  *metrics.Metrics
	Location *time.Location
}

type Service struct {
	cfg          config.Config
	store        dataStore
	sessions     RefreshStore
	staging      VerificationStaging
	blobs        blob.Store
	notifier     *email.Notifier
	exporter     *export.Service
	search       *search.Service
	history      draftHistory
	metrics      *metrics.Metrics
	authpw       *authpw.Service
	descriptions *coursedesc.Syncer
	runner       *workflow.Runner
	location     *time.Location
	now          func() time.Time

	psaDrafts   *debounce.Debouncer[psa.Form]
	courseEdits *debounce.Debouncer[courseEdit]

	savesMu sync.Mutex
	saves   map[string]SaveReport

	courseLockMu sync.Mutex
	courseLocks  map[string]*sync.Mutex
}

func New(cfg config.Config, dataStore *store.PostgresStore, opts Options) *Service {
	return newService(cfg, dataStore, opts)
}

func newService(cfg config.Config, data dataStore, opts Options) *Service {
	s := &Service{
		cfg:          cfg,
		store:        data,
		sessions:     opts.Sessions,
		staging:      opts.Staging,
		blobs:        opts.Blob,
		notifier:     opts.Notifier,
		exporter:     opts.Export,
		search:       opts.Search,
		metrics:      opts.Metrics,
		authpw:       authpw.NewService(data),
		descriptions: coursedesc.NewSyncer(data),
		runner:       workflow.NewRunner(),
		location:     opts.Location,
		now:          time.Now,
		saves:        map[string]SaveReport{},
		courseLocks:  map[string]*sync.Mutex{},
	}
	if opts.History != nil {
		s.history = opts.History
	}
	if s.sessions == nil {
		s.sessions = data
	}
	if s.staging == nil {
		s.staging = session.NewMemoryStaging()
	}
	if s.blobs == nil {
		s.blobs = blob.NewMemory(cfg.BlobPublicURL)
	}
	if s.notifier == nil {
		s.notifier = email.NewNotifier(email.Disabled{}, cfg.AppURL, cfg.SupportEmail)
	}
	if s.exporter == nil {
		s.exporter = export.NewService(nil)
	}
	if s.search == nil {
		s.search = search.NewService(nil, nil)
	}
	if s.location == nil {
		s.location = time.UTC
	}

	psaDelay := cfg.PSADebounce
	if psaDelay <= 0 {
		psaDelay = time.Second
	}
	courseDelay := cfg.CourseDebounce
	if courseDelay <= 0 {
		courseDelay = time.Second
	}
	s.psaDrafts = debounce.New(psaDelay, s.flushPSADraft)
	s.courseEdits = debounce.New(courseDelay, s.flushCourseEdit)
	return s
}

// Shutdown flushes every pending debounced write. Writes scheduled after
// this point run synchronously.
func (s *Service) Shutdown() {
	s.psaDrafts.FlushAll()
	s.courseEdits.FlushAll()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

// EmailConfigured reports whether outbound mail can be delivered. When it
// cannot, auth flows hand tokens back in the response instead.
func (s *Service) EmailConfigured() bool {
	return s.notifier.Configured()
}

func (s *Service) Notifier() *email.Notifier {
	return s.notifier
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	owner, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, owner.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewToken("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Email: user.Email,
		Role:  user.Role,
		JTI:   jti,
		Iat:   now.Unix(),
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewToken("rft")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseTokenAt([]byte(s.cfg.JWTSecret), token, s.now())
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt(),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// SendVerification mails a verification link. Delivery failures are logged;
// the account itself is already created.
func (s *Service) SendVerification(ctx context.Context, user store.User, token string) {
	if !s.notifier.Configured() || token == "" {
		return
	}
	if err := s.notifier.SendVerificationEmail(ctx, user.Email, user.DisplayName, token); err != nil {
		log.Printf("auth: send verification email to %s: %v", user.ID, err)
	}
}

func (s *Service) SendPasswordReset(ctx context.Context, user store.User, token string) {
	if !s.notifier.Configured() || token == "" {
		return
	}
	if err := s.notifier.SendPasswordResetEmail(ctx, user.Email, user.DisplayName, token); err != nil {
		log.Printf("auth: send password reset email to %s: %v", user.ID, err)
	}
}

func (s *Service) observeFlush(kind string, err error) {
	if s.metrics != nil {
		s.metrics.ObserveFlush(kind, err)
	}
}

// background returns the context used by debounced writes, which outlive
// the request that scheduled them.
func background() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
