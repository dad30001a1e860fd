package export

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"youredu/api/internal/coursedesc"
	"youredu/api/internal/psa"
	"youredu/api/internal/store"
)

func fixedService(pdf PDFFunc) *Service {
	s := NewService(pdf)
	s.now = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }
	return s
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"Ada Lovelace", "Ada-Lovelace"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "document"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := sanitizeFilename(tt.input); result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"é", "%C3%A9"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := percentEncodeForDataURL(tt.input); result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestMarkdownToHTML(t *testing.T) {
	html := string(MarkdownToHTML("Covers **linear equations** and <script>alert(1)</script> graphs"))
	if !strings.Contains(html, "<strong>linear equations</strong>") {
		t.Fatalf("expected bold markup, got %s", html)
	}
	if strings.Contains(html, "<script>") {
		t.Fatal("raw html must not pass through")
	}
	if MarkdownToHTML("") != "" {
		t.Fatal("empty description should render nothing")
	}
}

func TestPSAPreviewHTMLShowsSections(t *testing.T) {
	form := psa.Form{
		"school_name":           "Oak Tree <Academy>",
		"site_admin_first_name": "Pat",
		"site_admin_last_name":  "Parent",
		"name_changed":          false,
		"enrollment_3":          float64(2),
	}
	html, err := fixedService(nil).PSAPreviewHTML(form)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"California Private School Affidavit", "Oak Tree &lt;Academy&gt;", "Records Contact", "Pat Parent", "October 15, 2026", "Grade 3"} {
		if !strings.Contains(html, want) {
			t.Fatalf("preview missing %q", want)
		}
	}
}

func TestPSAPDFUsesConverter(t *testing.T) {
	var gotHTML string
	svc := fixedService(func(_ context.Context, html string) ([]byte, error) {
		gotHTML = html
		return []byte("%PDF"), nil
	})
	result, err := svc.PSAPDF(context.Background(), psa.Form{"school_name": "Oak", "school_year": "2026-2027"})
	if err != nil {
		t.Fatalf("pdf: %v", err)
	}
	if string(result.Data) != "%PDF" || result.Filename != "PSA_Oak_2026-2027.pdf" || result.MimeType != "application/pdf" {
		t.Fatalf("unexpected result %+v", result)
	}
	if !strings.Contains(gotHTML, "Oak") {
		t.Fatal("converter should receive the preview html")
	}

	failing := fixedService(func(context.Context, string) ([]byte, error) { return nil, ErrPDFDependencyMissing })
	if _, err := failing.PSAPDF(context.Background(), psa.Form{}); !errors.Is(err, ErrPDFDependencyMissing) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestBuildTranscriptAndRender(t *testing.T) {
	agg, err := coursedesc.FromRow(store.CourseDescriptions{
		Freshman:  json.RawMessage(`[{"courseTitle":"Algebra I","credits":1,"finalGrade":"A","description":"Solving *equations*"}]`),
		Sophomore: json.RawMessage(`[{"courseTitle":"Biology","credits":1.5,"finalGrade":"B+"}]`),
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	svc := fixedService(func(_ context.Context, html string) ([]byte, error) { return []byte(html), nil })
	data := svc.BuildTranscript("Oak Tree Academy", store.Student{FirstName: "Ada", LastName: "Lovelace", GradeLevel: "10th Grade"}, agg)

	if len(data.Sections) != 2 || data.Sections[0].Label != "Grade 9" || data.TotalCredits != 2.5 {
		t.Fatalf("unexpected transcript data %+v", data)
	}

	result, err := svc.TranscriptPDF(context.Background(), data)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	html := string(result.Data)
	for _, want := range []string{"Ada Lovelace", "Algebra I", "<em>equations</em>", "Total credits: 2.5", "B&#43;"} {
		if !strings.Contains(html, want) {
			t.Fatalf("transcript missing %q", want)
		}
	}
	if result.Filename != "Ada-Lovelace-transcript.pdf" {
		t.Fatalf("unexpected filename %q", result.Filename)
	}
}
