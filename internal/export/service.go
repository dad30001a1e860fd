package export

import (
	"context"
	"fmt"
	"time"

	"youredu/api/internal/coursedesc"
	"youredu/api/internal/psa"
	"youredu/api/internal/store"
)

// Service renders documents and converts them to PDF.
type Service struct {
	pdf PDFFunc
	now func() time.Time
}

// NewService uses pdf for conversion; nil selects headless Chrome.
func NewService(pdf PDFFunc) *Service {
	if pdf == nil {
		pdf = ChromePDF
	}
	return &Service{pdf: pdf, now: time.Now}
}

// PSAPreviewHTML renders the read-only preview of an affidavit form.
func (s *Service) PSAPreviewHTML(form psa.Form) (string, error) {
	html, err := RenderPSAPreview(PSAPreviewData{
		SchoolName:  form.String("school_name"),
		SchoolYear:  form.String("school_year"),
		GeneratedAt: s.now(),
		Sections:    psa.Sections(form),
	})
	if err != nil {
		return "", fmt.Errorf("render psa preview: %w", err)
	}
	return html, nil
}

// PSAPDF renders the preview into a single PDF.
func (s *Service) PSAPDF(ctx context.Context, form psa.Form) (*Result, error) {
	html, err := s.PSAPreviewHTML(form)
	if err != nil {
		return nil, err
	}
	data, err := s.pdf(ctx, html)
	if err != nil {
		return nil, err
	}
	return &Result{Data: data, Filename: psa.AttachmentName(form), MimeType: "application/pdf"}, nil
}

// BuildTranscript lays out a student's description aggregate for printing.
// Empty grade bands are skipped.
func (s *Service) BuildTranscript(schoolName string, student store.Student, agg coursedesc.Aggregate) TranscriptData {
	data := TranscriptData{
		SchoolName:  schoolName,
		StudentName: student.FullName(),
		GradeLevel:  student.GradeLevel,
		GeneratedAt: s.now(),
	}
	if data.SchoolName == "" {
		data.SchoolName = "Homeschool Transcript"
	}
	for _, bucket := range coursedesc.Buckets {
		entries := agg[bucket]
		if len(entries) == 0 {
			continue
		}
		section := TranscriptSection{Label: coursedesc.GradeLabel(bucket)}
		for _, entry := range entries {
			section.Courses = append(section.Courses, TranscriptCourse{
				Title:           entry.CourseTitle,
				Term:            entry.Term,
				Year:            entry.Year,
				Credits:         entry.Credits,
				FinalGrade:      entry.FinalGrade,
				DescriptionHTML: MarkdownToHTML(entry.Description),
			})
			data.TotalCredits += entry.Credits
		}
		data.Sections = append(data.Sections, section)
	}
	return data
}

// TranscriptPDF renders a transcript and converts it to PDF.
func (s *Service) TranscriptPDF(ctx context.Context, data TranscriptData) (*Result, error) {
	html, err := RenderTranscript(data)
	if err != nil {
		return nil, fmt.Errorf("render transcript: %w", err)
	}
	pdf, err := s.pdf(ctx, html)
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:     pdf,
		Filename: sanitizeFilename(data.StudentName) + "-transcript.pdf",
		MimeType: "application/pdf",
	}, nil
}

// sanitizeFilename creates a safe filename from a title
func sanitizeFilename(title string) string {
	result := ""
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result += string(r)
		case r == ' ':
			result += "-"
		case r == '-', r == '_':
			result += string(r)
		}
	}
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "document"
	}
	return result
}
