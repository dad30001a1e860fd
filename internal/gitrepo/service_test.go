package gitrepo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"youredu/api/internal/psa"
)

func TestDraftHistoryLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	history, err := svc.History("user-1", 10)
	if err != nil || len(history) != 0 {
		t.Fatalf("expected empty history before first save, got %v, %v", history, err)
	}

	first := psa.Form{"school_name": "Oak Tree Academy", "enrollment_3": 1}
	rev, changed, err := svc.Record("user-1", first, "Pat Parent", "Save draft")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !changed || rev.Hash == "" {
		t.Fatalf("expected a new revision, got %+v (changed=%v)", rev, changed)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "user-1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	again, changed, err := svc.Record("user-1", psa.Form{"school_name": "Oak Tree Academy", "enrollment_3": float64(1)}, "Pat Parent", "Save draft")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if changed || again.Hash != rev.Hash {
		t.Fatalf("unchanged form should not commit, got %+v", again)
	}

	second := first.Merge(psa.Form{"county": "Alameda"})
	next, changed, err := svc.Record("user-1", second, "Pat Parent", "Save draft")
	if err != nil || !changed {
		t.Fatalf("expected second revision, err=%v changed=%v", err, changed)
	}

	history, err = svc.History("user-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].Hash != next.Hash || history[0].Author != "Pat Parent" {
		t.Fatalf("unexpected history %+v", history)
	}

	old, err := svc.FormAt("user-1", rev.Hash)
	if err != nil {
		t.Fatalf("FormAt() error = %v", err)
	}
	if old.String("school_name") != "Oak Tree Academy" || old.String("county") != "" {
		t.Fatalf("unexpected old form %+v", old)
	}

	limited, err := svc.History("user-1", 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d (%v)", len(limited), err)
	}
}

func TestFormAtWithoutHistory(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.FormAt("nobody", "abc1234"); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory, got %v", err)
	}
}

func TestTagMarksSubmission(t *testing.T) {
	svc := New(t.TempDir())
	if _, _, err := svc.Record("user-1", psa.Form{"school_name": "Oak"}, "Pat", "Save draft"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := svc.Tag("user-1", "submitted-2026-10-15"); err != nil {
		t.Fatalf("Tag() error = %v", err)
	}
	if err := svc.Tag("user-1", "submitted-2026-10-15"); err != nil {
		t.Fatalf("repeated Tag() should be a no-op, got %v", err)
	}
	tags, err := svc.Tags("user-1")
	if err != nil {
		t.Fatalf("Tags() error = %v", err)
	}
	if strings.Join(tags, ",") != "submitted-2026-10-15" {
		t.Fatalf("unexpected tags %v", tags)
	}
}

func TestDiffFields(t *testing.T) {
	from := psa.Form{"school_name": "Oak", "county": "Alameda", "name_changed": false}
	to := psa.Form{"school_name": "Oak", "county": "Marin", "phone_number": "555"}
	diff := DiffFields(from, to)
	var fields []string
	for _, change := range diff {
		fields = append(fields, change.Field)
	}
	if strings.Join(fields, ",") != "county,name_changed,phone_number" {
		t.Fatalf("unexpected diff %+v", diff)
	}
	if diff[0].Before != "Alameda" || diff[0].After != "Marin" {
		t.Fatalf("unexpected county change %+v", diff[0])
	}
	if HasChanges(psa.Form{"n": 2}, psa.Form{"n": float64(2)}) {
		t.Fatal("numerically equal values should not count as a change")
	}
}

func TestConcurrentRecordsSameUser(t *testing.T) {
	svc := New(t.TempDir())

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			form := psa.Form{"school_name": fmt.Sprintf("school-%02d", idx)}
			if _, _, err := svc.Record("user-1", form, "Pat", fmt.Sprintf("Save %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("Record() concurrent error = %v", err)
		}
	}

	history, err := svc.History("user-1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers {
		t.Fatalf("expected %d commits, got %d", writers, len(history))
	}
}

func TestSanitizeEmail(t *testing.T) {
	if got := sanitizeEmail("Pat O'Parent"); got != "Pat.OParent" {
		t.Fatalf("unexpected %q", got)
	}
	if got := sanitizeEmail("!!!"); got != "user" {
		t.Fatalf("unexpected %q", got)
	}
}
