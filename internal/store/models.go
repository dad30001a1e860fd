package store

import (
	"encoding/json"
	"time"
)

const (
	RoleParent = "parent"
	RoleAdmin  = "admin"
)

// Course sources. A course id belongs to exactly one source.
const (
	SourceYourEDU = "youredu_course"
	SourceUser    = "user_course"
)

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Student struct {
	ID         string
	UserID     string
	FirstName  string
	LastName   string
	GradeLevel string
	SchoolYear string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (s Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// PSADraft is the single in-progress affidavit for a user.
type PSADraft struct {
	ID              string
	UserID          string
	SchoolName      string
	County          string
	District        string
	NameChanged     *bool
	DistrictChanged *bool
	FormData        json.RawMessage
	UpdatedAt       time.Time
}

type PSASubmission struct {
	ID            string
	UserID        string
	SchoolYear    string
	FormData      json.RawMessage
	SignatureName string
	SignatureDate time.Time
	PDFPath       string
	SubmittedAt   time.Time
}

type Folder struct {
	ID        string
	UserID    string
	Name      string
	Category  string
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Document struct {
	ID          string
	FolderID    string
	UserID      string
	Name        string
	SizeBytes   int64
	MimeType    string
	StoragePath string
	CreatedAt   time.Time
}

type Course struct {
	ID               string
	UserID           string
	StudentID        *string
	Source           string
	Title            string
	Description      string
	Subject          string
	GradeLevel       string
	Term             string
	Year             string
	Credits          float64
	FinalGrade       string
	Textbooks        string
	Materials        string
	EvaluationMethod string
	DaysOfWeek       []string
	StartTime        string
	EndTime          string
	StartDate        *time.Time
	EndDate          *time.Time
	IsPublished      bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type CourseFile struct {
	ID          string
	CourseID    string
	CourseType  string
	UserID      string
	Name        string
	UICategory  string
	Category    string
	StoragePath string
	SizeBytes   int64
	MimeType    string
	CreatedAt   time.Time
}

type CourseLink struct {
	ID         string
	CourseID   string
	CourseType string
	UserID     string
	Title      string
	URL        string
	CreatedAt  time.Time
}

type CourseTodo struct {
	ID        string
	CourseID  string
	UserID    string
	Title     string
	DueDate   *time.Time
	Completed bool
	CreatedAt time.Time
}

// CourseDescriptions holds the raw grade-band arrays of a student's
// description aggregate, one JSON array per column.
type CourseDescriptions struct {
	ID            string
	StudentID     string
	UserID        string
	PreHighSchool json.RawMessage
	Freshman      json.RawMessage
	Sophomore     json.RawMessage
	Junior        json.RawMessage
	Senior        json.RawMessage
	UpdatedAt     time.Time
}

type CalendarEvent struct {
	ID        string
	UserID    string
	StudentID *string
	CourseID  string
	Title     string
	StartsAt  time.Time
	EndsAt    time.Time
	Source    string
}

// CoursePatch carries the editable course fields. Nil fields are left as-is.
type CoursePatch struct {
	Title            *string
	Description      *string
	Subject          *string
	GradeLevel       *string
	Term             *string
	Year             *string
	Credits          *float64
	FinalGrade       *string
	Textbooks        *string
	Materials        *string
	EvaluationMethod *string
	DaysOfWeek       []string
	StartTime        *string
	EndTime          *string
	StartDate        *time.Time
	EndDate          *time.Time
	IsPublished      *bool
}

// Empty reports whether the patch changes nothing.
func (p CoursePatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Subject == nil && p.GradeLevel == nil &&
		p.Term == nil && p.Year == nil && p.Credits == nil && p.FinalGrade == nil &&
		p.Textbooks == nil && p.Materials == nil && p.EvaluationMethod == nil &&
		p.DaysOfWeek == nil && p.StartTime == nil && p.EndTime == nil &&
		p.StartDate == nil && p.EndDate == nil && p.IsPublished == nil
}
