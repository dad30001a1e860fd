package search

import (
	"errors"
	"strings"
	"testing"
)

type fakeEngine struct {
	healthy bool
	results []Result
	err     error
	indexed []string
	deleted []string
	queries []Query
}

func (f *fakeEngine) Search(q Query) ([]Result, int, error) {
	f.queries = append(f.queries, q)
	return f.results, len(f.results), f.err
}
func (f *fakeEngine) Healthy() bool { return f.healthy }
func (f *fakeEngine) IndexRecord(r DocumentRecord) error {
	f.indexed = append(f.indexed, "record:"+r.ID)
	return nil
}
func (f *fakeEngine) IndexCourseFile(c CourseFileRecord) error {
	f.indexed = append(f.indexed, "course_file:"+c.ID)
	return nil
}
func (f *fakeEngine) IndexCourse(c CourseRecord) error {
	f.indexed = append(f.indexed, "course:"+c.ID)
	return nil
}
func (f *fakeEngine) Delete(kind ResultType, id string) error {
	f.deleted = append(f.deleted, string(kind)+":"+id)
	return nil
}

func inline(fn func()) { fn() }

func TestSearchRequiresUser(t *testing.T) {
	svc := &Service{async: inline}
	if _, err := svc.Search(Query{Text: "algebra"}); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("expected ErrMissingUser, got %v", err)
	}
}

func TestSearchPrefersHealthyMeili(t *testing.T) {
	primary := &fakeEngine{healthy: true, results: []Result{{Type: ResultCourse, ID: "c1", Title: "Algebra"}}}
	fallback := &fakeEngine{healthy: true, results: []Result{{Type: ResultRecord, ID: "d1"}}}
	svc := &Service{meili: primary, pgfts: fallback, async: inline}

	resp, err := svc.Search(Query{Text: "algebra", UserID: "u1"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "c1" || resp.Query != "algebra" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(fallback.queries) != 0 {
		t.Fatal("fallback should not run when meilisearch answers")
	}
	if primary.queries[0].UserID != "u1" {
		t.Fatal("query should carry the user scope")
	}
}

func TestSearchFallsBackOnMeiliError(t *testing.T) {
	primary := &fakeEngine{healthy: true, err: errors.New("timeout")}
	fallback := &fakeEngine{healthy: true, results: []Result{{Type: ResultRecord, ID: "d1"}}}
	svc := &Service{meili: primary, pgfts: fallback, async: inline}

	resp, err := svc.Search(Query{Text: "immunization", UserID: "u1"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "d1" {
		t.Fatalf("expected fallback results, got %+v", resp)
	}
}

func TestSearchFallbackErrorYieldsEmptyResults(t *testing.T) {
	svc := &Service{pgfts: &fakeEngine{err: errors.New("db down")}, async: inline}
	resp, err := svc.Search(Query{Text: "x", UserID: "u1"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Fatalf("expected empty non-nil results, got %#v", resp.Results)
	}
}

func TestIndexWritesSkipUnhealthyEngine(t *testing.T) {
	engine := &fakeEngine{healthy: false}
	svc := &Service{meili: engine, async: inline}
	svc.IndexCourse(CourseRecord{ID: "c1"})
	if len(engine.indexed) != 0 {
		t.Fatal("unhealthy engine should not receive writes")
	}

	engine.healthy = true
	svc.IndexRecord(DocumentRecord{ID: "d1"})
	svc.IndexCourseFile(CourseFileRecord{ID: "f1"})
	svc.IndexCourse(CourseRecord{ID: "c1"})
	svc.Delete(ResultCourseFile, "f1")
	if strings.Join(engine.indexed, ",") != "record:d1,course_file:f1,course:c1" {
		t.Fatalf("unexpected index writes %v", engine.indexed)
	}
	if len(engine.deleted) != 1 || engine.deleted[0] != "course_file:f1" {
		t.Fatalf("unexpected deletes %v", engine.deleted)
	}
}

func TestReindexAllCountsWrites(t *testing.T) {
	engine := &fakeEngine{healthy: true}
	svc := &Service{meili: engine, async: inline}
	n := svc.ReindexAll(Records{
		Documents:   []DocumentRecord{{ID: "d1"}},
		CourseFiles: []CourseFileRecord{{ID: "f1"}, {ID: "f2"}},
		Courses:     []CourseRecord{{ID: "c1"}},
	})
	if n != 4 {
		t.Fatalf("expected 4 indexed, got %d", n)
	}
}

func TestBuildQueryScopesEveryTableToUser(t *testing.T) {
	countSQL, dataSQL, args := buildQuery(Query{Text: "biology", UserID: "u1", Limit: 500, Offset: -3})
	if len(args) != 2 || args[0] != "biology" || args[1] != "u1" {
		t.Fatalf("unexpected args %v", args)
	}
	if got := strings.Count(dataSQL, "user_id = $2"); got != 3 {
		t.Fatalf("expected three user filters, got %d", got)
	}
	if !strings.Contains(countSQL, "UNION ALL") {
		t.Fatal("count query should span all tables")
	}
	if !strings.Contains(dataSQL, "LIMIT 20 OFFSET 0") {
		t.Fatalf("limit and offset should be clamped: %s", dataSQL)
	}

	_, onlyFiles, _ := buildQuery(Query{Text: "lab", UserID: "u1", FilterType: ResultCourseFile})
	if strings.Contains(onlyFiles, "FROM courses") || !strings.Contains(onlyFiles, "FROM course_files") {
		t.Fatalf("type filter not applied: %s", onlyFiles)
	}
}

func TestIndexForType(t *testing.T) {
	if uid, err := indexForType(ResultCourse); err != nil || uid != idxCourses {
		t.Fatalf("course index = %q, %v", uid, err)
	}
	if _, err := indexForType("thread"); err == nil {
		t.Fatal("unknown types should fail")
	}
	if indexToResultType(idxRecords) != ResultRecord {
		t.Fatal("records index should map back to record results")
	}
	if userFilter("u1") != `userId = "u1"` {
		t.Fatalf("unexpected filter %s", userFilter("u1"))
	}
}
