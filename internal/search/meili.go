package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxRecords     = "youredu_records"
	idxCourseFiles = "youredu_course_files"
	idxCourses     = "youredu_courses"
)

type indexSpec struct {
	uid        string
	rtyp       ResultType
	filterable []string
	searchable []string
}

var indexSpecs = []indexSpec{
	{uid: idxRecords, rtyp: ResultRecord, filterable: []string{"userId", "folderId"}, searchable: []string{"name"}},
	{uid: idxCourseFiles, rtyp: ResultCourseFile, filterable: []string{"userId", "courseId", "uiCategory"}, searchable: []string{"name"}},
	{uid: idxCourses, rtyp: ResultCourse, filterable: []string{"userId"}, searchable: []string{"title", "subject", "description"}},
}

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes.
// An unreachable server leaves the client unhealthy; the health loop
// picks it up once it comes back.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	for _, idx := range indexSpecs {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: "id",
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}

		index := m.client.Index(idx.uid)
		filterable := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterable[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
		}
		searchable := idx.searchable
		if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// userFilter restricts hits to one account.
func userFilter(userID string) string {
	return fmt.Sprintf("userId = %q", userID)
}

// Search queries the indexes selected by q and merges the hits.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	if q.UserID == "" {
		return nil, 0, ErrMissingUser
	}

	var queries []*meili.SearchRequest
	for _, idx := range indexSpecs {
		if q.FilterType != "" && q.FilterType != idx.rtyp {
			continue
		}
		queries = append(queries, &meili.SearchRequest{
			IndexUID:              idx.uid,
			Query:                 q.Text,
			Limit:                 int64(q.limit()),
			Offset:                int64(q.offset()),
			Filter:                userFilter(q.UserID),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		})
	}
	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: queries,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}
	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	for _, idx := range indexSpecs {
		if idx.uid == uid {
			return idx.rtyp
		}
	}
	return ""
}

func indexForType(kind ResultType) (string, error) {
	for _, idx := range indexSpecs {
		if idx.rtyp == kind {
			return idx.uid, nil
		}
	}
	return "", fmt.Errorf("unknown search type %q", kind)
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{
		Type:     rtyp,
		ID:       decodeString(hit, "id"),
		CourseID: decodeString(hit, "courseId"),
		FolderID: decodeString(hit, "folderId"),
	}
	switch rtyp {
	case ResultRecord, ResultCourseFile:
		r.Title = firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name"))
		r.Snippet = decodeString(hit, "uiCategory")
	case ResultCourse:
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "subject"))
		r.CourseID = r.ID
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	s, _ := formatted[key].(string)
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexRecord adds or updates a record document in the search index.
func (m *Meili) IndexRecord(r DocumentRecord) error {
	_, err := m.client.Index(idxRecords).AddDocuments([]DocumentRecord{r}, nil)
	return err
}

// IndexCourseFile adds or updates a course file in the search index.
func (m *Meili) IndexCourseFile(f CourseFileRecord) error {
	_, err := m.client.Index(idxCourseFiles).AddDocuments([]CourseFileRecord{f}, nil)
	return err
}

// IndexCourse adds or updates a course in the search index.
func (m *Meili) IndexCourse(c CourseRecord) error {
	_, err := m.client.Index(idxCourses).AddDocuments([]CourseRecord{c}, nil)
	return err
}

// Delete removes one entity from its index.
func (m *Meili) Delete(kind ResultType, id string) error {
	uid, err := indexForType(kind)
	if err != nil {
		return err
	}
	_, err = m.client.Index(uid).DeleteDocument(id, nil)
	return err
}
