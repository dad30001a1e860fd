package search

import (
	"context"
	"log"
)

type engine interface {
	Searcher
	Indexer
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili engine
	pgfts Searcher
	// loader feeds ReindexAllFromPG.
	loader *PgFTS
	// async runs index writes; tests replace it to run inline.
	async func(func())
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	s := &Service{loader: pgfts, async: func(fn func()) { go fn() }}
	if meili != nil {
		s.meili = meili
	}
	if pgfts != nil {
		s.pgfts = pgfts
	}
	return s
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) (Response, error) {
	if q.UserID == "" {
		return Response{}, ErrMissingUser
	}
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}, nil
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}
	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text}, nil
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}, nil
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}, nil
}

func (s *Service) index(what, id string, fn func(engine) error) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	m := s.meili
	s.async(func() {
		if err := fn(m); err != nil {
			log.Printf("search: %s %s: %v", what, id, err)
		}
	})
}

// IndexRecord indexes a record-keeping document (fire-and-forget to Meilisearch).
func (s *Service) IndexRecord(r DocumentRecord) {
	s.index("index record", r.ID, func(m engine) error { return m.IndexRecord(r) })
}

// IndexCourseFile indexes an uploaded course file.
func (s *Service) IndexCourseFile(f CourseFileRecord) {
	s.index("index course file", f.ID, func(m engine) error { return m.IndexCourseFile(f) })
}

// IndexCourse indexes a course.
func (s *Service) IndexCourse(c CourseRecord) {
	s.index("index course", c.ID, func(m engine) error { return m.IndexCourse(c) })
}

// Delete removes an entity from the search index (fire-and-forget).
func (s *Service) Delete(kind ResultType, id string) {
	s.index("delete "+string(kind), id, func(m engine) error { return m.Delete(kind, id) })
}

// Records groups everything pushed by a full reindex.
type Records struct {
	Documents   []DocumentRecord
	CourseFiles []CourseFileRecord
	Courses     []CourseRecord
}

// ReindexAll pushes every record to Meilisearch synchronously.
func (s *Service) ReindexAll(records Records) int {
	if s.meili == nil || !s.meili.Healthy() {
		return 0
	}
	indexed := 0
	for _, r := range records.Documents {
		if err := s.meili.IndexRecord(r); err != nil {
			log.Printf("search: reindex record %s: %v", r.ID, err)
			continue
		}
		indexed++
	}
	for _, f := range records.CourseFiles {
		if err := s.meili.IndexCourseFile(f); err != nil {
			log.Printf("search: reindex course file %s: %v", f.ID, err)
			continue
		}
		indexed++
	}
	for _, c := range records.Courses {
		if err := s.meili.IndexCourse(c); err != nil {
			log.Printf("search: reindex course %s: %v", c.ID, err)
			continue
		}
		indexed++
	}
	return indexed
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) (int, error) {
	if s.meili == nil || !s.meili.Healthy() || s.loader == nil {
		return 0, nil
	}
	records, err := s.loader.LoadAllRecords(ctx)
	if err != nil {
		return 0, err
	}
	return s.ReindexAll(records), nil
}

// Healthy reports whether the primary engine is reachable.
func (s *Service) Healthy() bool {
	return s.meili != nil && s.meili.Healthy()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
