package export

import (
	"bytes"
	"embed"
	"html/template"
	"strconv"
	"time"

	"youredu/api/internal/psa"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("export").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
	"credits": func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	},
}).ParseFS(templateFS, "templates/*.html"))

// PSAPreviewData feeds the read-only affidavit preview.
type PSAPreviewData struct {
	SchoolName    string
	SchoolYear    string
	GeneratedAt   time.Time
	Sections      []psa.Section
	SignatureName string
	SignatureDate string
}

// TranscriptCourse is one row of a transcript.
type TranscriptCourse struct {
	Title           string
	Term            string
	Year            string
	Credits         float64
	FinalGrade      string
	DescriptionHTML template.HTML
}

// TranscriptSection groups the courses of one grade band.
type TranscriptSection struct {
	Label   string
	Courses []TranscriptCourse
}

type TranscriptData struct {
	SchoolName   string
	StudentName  string
	GradeLevel   string
	GeneratedAt  time.Time
	Sections     []TranscriptSection
	TotalCredits float64
}

// RenderPSAPreview renders the affidavit preview page.
func RenderPSAPreview(data PSAPreviewData) (string, error) {
	return render("psa_preview.html", data)
}

// RenderTranscript renders the transcript page.
func RenderTranscript(data TranscriptData) (string, error) {
	return render("transcript.html", data)
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
