package search

import "errors"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultRecord     ResultType = "record"
	ResultCourseFile ResultType = "course_file"
	ResultCourse     ResultType = "course"
)

// ErrMissingUser is returned for queries that are not scoped to an account.
var ErrMissingUser = errors.New("search query requires a user")

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	CourseID string     `json:"courseId,omitempty"`
	FolderID string     `json:"folderId,omitempty"`
}

// Query describes a search request. Every query is scoped to one user.
type Query struct {
	Text       string
	UserID     string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

func (q Query) limit() int {
	if q.Limit <= 0 || q.Limit > 100 {
		return 20
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexRecord(r DocumentRecord) error
	IndexCourseFile(f CourseFileRecord) error
	IndexCourse(c CourseRecord) error
	Delete(kind ResultType, id string) error
}

// DocumentRecord is the data we index for a record-keeping document.
type DocumentRecord struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	FolderID string `json:"folderId"`
	Name     string `json:"name"`
}

// CourseFileRecord is the data we index for an uploaded course file.
type CourseFileRecord struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	CourseID   string `json:"courseId"`
	Name       string `json:"name"`
	UICategory string `json:"uiCategory"`
}

// CourseRecord is the data we index for a course.
type CourseRecord struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	Title       string `json:"title"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
}
