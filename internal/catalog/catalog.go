// Package catalog holds the naming rules shared by course files and
// record-keeping documents: category mapping, filename sanitizing and
// storage object paths.
package catalog

import (
	"fmt"
	"strings"
	"time"
)

// DB categories stored in course_files.category.
const (
	CategoryMaterials   = "materials"
	CategoryAssignments = "assignments"
	CategoryAssessments = "assessments"
	CategoryOther       = "other"
)

// UICategories are the folder names the course page shows, in display order.
var UICategories = []string{"materials", "syllabus", "assignments", "projects", "exams", "grades"}

var dbCategories = map[string]string{
	"materials":   CategoryMaterials,
	"syllabus":    CategoryMaterials,
	"assignments": CategoryAssignments,
	"projects":    CategoryAssignments,
	"exams":       CategoryAssessments,
	"grades":      CategoryAssessments,
}

// MapCategoryToDBCategory maps a UI category to its coarser DB category.
// Matching ignores case and surrounding space; anything unknown is "other".
func MapCategoryToDBCategory(uiCategory string) string {
	if category, ok := dbCategories[strings.ToLower(strings.TrimSpace(uiCategory))]; ok {
		return category
	}
	return CategoryOther
}

// NormalizeUICategory lowercases a UI category for use as a path segment.
// Empty input becomes "other".
func NormalizeUICategory(uiCategory string) string {
	value := strings.ToLower(strings.TrimSpace(uiCategory))
	if value == "" {
		return CategoryOther
	}
	return SanitizeFilename(value)
}

// SanitizeFilename replaces spaces with underscores and drops every other
// character outside [A-Za-z0-9._-].
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == ' ':
			b.WriteByte('_')
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" {
		return "file"
	}
	return out
}

// CourseFilePath is the object key of an uploaded course file.
func CourseFilePath(userID, courseID, uiCategory, name string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%s/%d_%s", userID, courseID, NormalizeUICategory(uiCategory), at.UnixMilli(), SanitizeFilename(name))
}

// DocumentPath is the object key of a record-keeping document.
func DocumentPath(userID, folderID, name string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%d_%s", userID, folderID, at.UnixMilli(), SanitizeFilename(name))
}

// PSAPath is the object key of a submitted affidavit PDF.
func PSAPath(userID, name string, at time.Time) string {
	name = SanitizeFilename(strings.TrimSuffix(name, ".pdf"))
	return fmt.Sprintf("%s/psa/%d_%s.pdf", userID, at.UnixMilli(), name)
}

// TranscriptPath is the object key of a generated transcript PDF.
func TranscriptPath(userID, studentID string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%d_transcript.pdf", userID, studentID, at.UnixMilli())
}
