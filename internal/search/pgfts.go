package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const tsQuery = "plainto_tsquery('english', $1)"

// buildQuery assembles the UNION ALL over the searchable tables. $1 is the
// query text and $2 the owning user.
func buildQuery(q Query) (countSQL, dataSQL string, args []any) {
	args = []any{q.Text, q.UserID}

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultRecord {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'record'::text AS type, d.id::text, d.name AS title,
				''::text AS snippet, ''::text AS course_id, d.folder_id::text AS folder_id,
				ts_rank(d.search_vector, %s) AS rank
			FROM documents d
			WHERE d.search_vector @@ %s AND d.user_id = $2`, tsQuery, tsQuery))
	}
	if q.FilterType == "" || q.FilterType == ResultCourseFile {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'course_file'::text AS type, f.id::text, f.name AS title,
				f.ui_category AS snippet, f.course_id::text AS course_id, ''::text AS folder_id,
				ts_rank(f.search_vector, %s) AS rank
			FROM course_files f
			WHERE f.search_vector @@ %s AND f.user_id = $2`, tsQuery, tsQuery))
	}
	if q.FilterType == "" || q.FilterType == ResultCourse {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'course'::text AS type, c.id::text, c.title,
				ts_headline('english', coalesce(c.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				c.id::text AS course_id, ''::text AS folder_id,
				ts_rank(c.search_vector, %s) AS rank
			FROM courses c
			WHERE c.search_vector @@ %s AND c.user_id = $2`, tsQuery, tsQuery, tsQuery))
	}
	if len(subQueries) == 0 {
		return "", "", nil
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL = fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL = fmt.Sprintf(`SELECT type, id, title, snippet, course_id, folder_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, union, q.limit(), q.offset())
	return countSQL, dataSQL, args
}

// Search executes the UNION ALL query using plainto_tsquery and ts_rank,
// with ts_headline for course snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	if q.UserID == "" {
		return nil, 0, ErrMissingUser
	}
	countSQL, dataSQL, args := buildQuery(q)
	if countSQL == "" {
		return nil, 0, nil
	}

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.CourseID, &r.FolderID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) (Records, error) {
	var records Records

	docRows, err := p.db.QueryContext(ctx, `SELECT id::text, user_id::text, folder_id::text, name FROM documents`)
	if err != nil {
		return records, fmt.Errorf("load documents: %w", err)
	}
	defer docRows.Close()
	for docRows.Next() {
		var d DocumentRecord
		if err := docRows.Scan(&d.ID, &d.UserID, &d.FolderID, &d.Name); err != nil {
			return records, fmt.Errorf("scan document: %w", err)
		}
		records.Documents = append(records.Documents, d)
	}
	if err := docRows.Err(); err != nil {
		return records, fmt.Errorf("iterate documents: %w", err)
	}

	fileRows, err := p.db.QueryContext(ctx, `SELECT id::text, user_id::text, course_id::text, name, ui_category FROM course_files`)
	if err != nil {
		return records, fmt.Errorf("load course files: %w", err)
	}
	defer fileRows.Close()
	for fileRows.Next() {
		var f CourseFileRecord
		if err := fileRows.Scan(&f.ID, &f.UserID, &f.CourseID, &f.Name, &f.UICategory); err != nil {
			return records, fmt.Errorf("scan course file: %w", err)
		}
		records.CourseFiles = append(records.CourseFiles, f)
	}
	if err := fileRows.Err(); err != nil {
		return records, fmt.Errorf("iterate course files: %w", err)
	}

	courseRows, err := p.db.QueryContext(ctx, `SELECT id::text, user_id::text, title, subject, description FROM courses`)
	if err != nil {
		return records, fmt.Errorf("load courses: %w", err)
	}
	defer courseRows.Close()
	for courseRows.Next() {
		var c CourseRecord
		if err := courseRows.Scan(&c.ID, &c.UserID, &c.Title, &c.Subject, &c.Description); err != nil {
			return records, fmt.Errorf("scan course: %w", err)
		}
		records.Courses = append(records.Courses, c)
	}
	if err := courseRows.Err(); err != nil {
		return records, fmt.Errorf("iterate courses: %w", err)
	}
	return records, nil
}
