// Package coursedesc keeps the per-student "course descriptions by grade"
// aggregate in step with the live course records.
package coursedesc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"youredu/api/internal/store"
)

var ErrUnknownGradeLevel = errors.New("unknown grade level")

const (
	BucketPreHighSchool = "preHighSchool"
	Bucket9th           = "9thCourses"
	Bucket10th          = "10thCourses"
	Bucket11th          = "11thCourses"
	Bucket12th          = "12thCourses"
)

// Buckets lists every bucket key in transcript order.
var Buckets = []string{BucketPreHighSchool, Bucket9th, Bucket10th, Bucket11th, Bucket12th}

var gradeBuckets = map[string]string{
	"9th grade":  Bucket9th,
	"9th":        Bucket9th,
	"9":          Bucket9th,
	"grade 9":    Bucket9th,
	"freshman":   Bucket9th,
	"10th grade": Bucket10th,
	"10th":       Bucket10th,
	"10":         Bucket10th,
	"grade 10":   Bucket10th,
	"sophomore":  Bucket10th,
	"11th grade": Bucket11th,
	"11th":       Bucket11th,
	"11":         Bucket11th,
	"grade 11":   Bucket11th,
	"junior":     Bucket11th,
	"12th grade": Bucket12th,
	"12th":       Bucket12th,
	"12":         Bucket12th,
	"grade 12":   Bucket12th,
	"senior":     Bucket12th,
}

// BucketForGrade maps a free-text grade level to its bucket key.
func BucketForGrade(gradeLevel string) (string, error) {
	key := strings.ToLower(strings.Join(strings.Fields(gradeLevel), " "))
	if bucket, ok := gradeBuckets[key]; ok {
		return bucket, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGradeLevel, gradeLevel)
}

// ValidBucket reports whether key names one of the five buckets.
func ValidBucket(key string) bool {
	for _, bucket := range Buckets {
		if bucket == key {
			return true
		}
	}
	return false
}

// Entry is one course summary inside a bucket. Entries read from storage
// keep their original JSON so fields this package does not know survive a
// rewrite untouched.
type Entry struct {
	ID               string  `json:"id,omitempty"`
	CourseTitle      string  `json:"courseTitle"`
	Description      string  `json:"description,omitempty"`
	Subject          string  `json:"subject,omitempty"`
	Term             string  `json:"term,omitempty"`
	Year             string  `json:"year,omitempty"`
	Credits          float64 `json:"credits,omitempty"`
	FinalGrade       string  `json:"finalGrade,omitempty"`
	Textbooks        string  `json:"textbooks,omitempty"`
	Materials        string  `json:"materials,omitempty"`
	EvaluationMethod string  `json:"evaluationMethod,omitempty"`
	SourceType       string  `json:"source_type,omitempty"`
	SourceID         string  `json:"source_id,omitempty"`
	IsPulledIn       bool    `json:"is_pulled_in"`

	raw json.RawMessage
}

type plainEntry Entry

// storedEntry reads is_pulled_in loosely. Older rows hold strings or nulls
// there; only true (or "true") marks a pulled-in entry.
type storedEntry struct {
	plainEntry
	IsPulledIn json.RawMessage `json:"is_pulled_in"`
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var decoded storedEntry
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*e = Entry(decoded.plainEntry)
	switch strings.TrimSpace(string(decoded.IsPulledIn)) {
	case "true", `"true"`:
		e.IsPulledIn = true
	default:
		e.IsPulledIn = false
	}
	e.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (e Entry) MarshalJSON() ([]byte, error) {
	if len(e.raw) > 0 {
		return e.raw, nil
	}
	return json.Marshal(plainEntry(e))
}

// FromCourse builds the pulled-in summary of a course record.
func FromCourse(course store.Course) Entry {
	return Entry{
		ID:               course.Source + ":" + course.ID,
		CourseTitle:      course.Title,
		Description:      course.Description,
		Subject:          course.Subject,
		Term:             course.Term,
		Year:             course.Year,
		Credits:          course.Credits,
		FinalGrade:       course.FinalGrade,
		Textbooks:        course.Textbooks,
		Materials:        course.Materials,
		EvaluationMethod: course.EvaluationMethod,
		SourceType:       course.Source,
		SourceID:         course.ID,
		IsPulledIn:       true,
	}
}

// Aggregate maps bucket keys to their entries.
type Aggregate map[string][]Entry

// FromRow decodes the stored JSON columns. Missing columns become empty buckets.
func FromRow(row store.CourseDescriptions) (Aggregate, error) {
	columns := map[string]json.RawMessage{
		BucketPreHighSchool: row.PreHighSchool,
		Bucket9th:           row.Freshman,
		Bucket10th:          row.Sophomore,
		Bucket11th:          row.Junior,
		Bucket12th:          row.Senior,
	}
	agg := make(Aggregate, len(Buckets))
	for _, bucket := range Buckets {
		entries := make([]Entry, 0)
		if raw := columns[bucket]; len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &entries); err != nil {
				return nil, fmt.Errorf("decode %s: %w", bucket, err)
			}
		}
		agg[bucket] = entries
	}
	return agg, nil
}

// Row encodes the aggregate back into its storage columns.
func (a Aggregate) Row(id, studentID, userID string) (store.CourseDescriptions, error) {
	encoded := make(map[string]json.RawMessage, len(Buckets))
	for _, bucket := range Buckets {
		entries := a[bucket]
		if entries == nil {
			entries = []Entry{}
		}
		raw, err := json.Marshal(entries)
		if err != nil {
			return store.CourseDescriptions{}, fmt.Errorf("encode %s: %w", bucket, err)
		}
		encoded[bucket] = raw
	}
	return store.CourseDescriptions{
		ID:            id,
		StudentID:     studentID,
		UserID:        userID,
		PreHighSchool: encoded[BucketPreHighSchool],
		Freshman:      encoded[Bucket9th],
		Sophomore:     encoded[Bucket10th],
		Junior:        encoded[Bucket11th],
		Senior:        encoded[Bucket12th],
	}, nil
}

// Titles returns the course titles of one bucket, in order.
func (a Aggregate) Titles(bucket string) []string {
	titles := make([]string, 0, len(a[bucket]))
	for _, entry := range a[bucket] {
		titles = append(titles, entry.CourseTitle)
	}
	return titles
}

// Merge returns a copy of existing where the current bucket keeps its manual
// entries followed by pulled. Every other bucket is copied unchanged.
func Merge(existing Aggregate, current string, pulled []Entry) Aggregate {
	out := make(Aggregate, len(Buckets))
	for _, bucket := range Buckets {
		entries := existing[bucket]
		if bucket != current {
			out[bucket] = append([]Entry{}, entries...)
			continue
		}
		kept := make([]Entry, 0, len(entries)+len(pulled))
		for _, entry := range entries {
			if !entry.IsPulledIn {
				kept = append(kept, entry)
			}
		}
		out[bucket] = append(kept, pulled...)
	}
	return out
}

// AddManual appends a manual entry to a bucket and returns its id.
func (a Aggregate) AddManual(bucket string, entry Entry, id string) (string, error) {
	if !ValidBucket(bucket) {
		return "", fmt.Errorf("%w: %q", ErrUnknownBucket, bucket)
	}
	entry.ID = id
	entry.IsPulledIn = false
	entry.SourceType = ""
	entry.SourceID = ""
	entry.raw = nil
	a[bucket] = append(a[bucket], entry)
	return id, nil
}

// UpdateManual replaces a manual entry. Pulled-in entries are read-only.
func (a Aggregate) UpdateManual(bucket, id string, entry Entry) error {
	index, err := a.manualIndex(bucket, id)
	if err != nil {
		return err
	}
	entry.ID = id
	entry.IsPulledIn = false
	entry.SourceType = ""
	entry.SourceID = ""
	entry.raw = nil
	a[bucket][index] = entry
	return nil
}

// RemoveManual deletes a manual entry.
func (a Aggregate) RemoveManual(bucket, id string) error {
	index, err := a.manualIndex(bucket, id)
	if err != nil {
		return err
	}
	entries := a[bucket]
	a[bucket] = append(entries[:index:index], entries[index+1:]...)
	return nil
}

var (
	ErrUnknownBucket = errors.New("unknown course description bucket")
	ErrEntryNotFound = errors.New("course description entry not found")
	ErrPulledIn      = errors.New("pulled-in entries are managed by sync")
)

func (a Aggregate) manualIndex(bucket, id string) (int, error) {
	if !ValidBucket(bucket) {
		return -1, fmt.Errorf("%w: %q", ErrUnknownBucket, bucket)
	}
	for i, entry := range a[bucket] {
		if entry.ID != id {
			continue
		}
		if entry.IsPulledIn {
			return -1, ErrPulledIn
		}
		return i, nil
	}
	return -1, ErrEntryNotFound
}

// GradeLabel is the transcript heading of a bucket.
func GradeLabel(bucket string) string {
	switch bucket {
	case BucketPreHighSchool:
		return "Pre-High School"
	case Bucket9th, Bucket10th, Bucket11th, Bucket12th:
		n, _ := strconv.Atoi(strings.TrimSuffix(bucket, "thCourses"))
		return fmt.Sprintf("Grade %d", n)
	default:
		return bucket
	}
}
