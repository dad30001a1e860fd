package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const courseColumns = `id, user_id, student_id, source, title, description, subject, grade_level, term, year,
	credits::float8, final_grade, textbooks, materials, evaluation_method,
	array_to_string(days_of_week, ','), start_time, end_time, start_date, end_date, is_published, created_at, updated_at`

func scanCourse(row interface{ Scan(...any) error }) (Course, error) {
	var course Course
	var studentID sql.NullString
	var days string
	var startDate, endDate sql.NullTime
	err := row.Scan(
		&course.ID,
		&course.UserID,
		&studentID,
		&course.Source,
		&course.Title,
		&course.Description,
		&course.Subject,
		&course.GradeLevel,
		&course.Term,
		&course.Year,
		&course.Credits,
		&course.FinalGrade,
		&course.Textbooks,
		&course.Materials,
		&course.EvaluationMethod,
		&days,
		&course.StartTime,
		&course.EndTime,
		&startDate,
		&endDate,
		&course.IsPublished,
		&course.CreatedAt,
		&course.UpdatedAt,
	)
	if err != nil {
		return Course{}, err
	}
	if studentID.Valid {
		id := studentID.String
		course.StudentID = &id
	}
	course.DaysOfWeek = splitDays(days)
	course.StartDate = nullTimePtr(startDate)
	course.EndDate = nullTimePtr(endDate)
	return course, nil
}

func (s *PostgresStore) GetCourse(ctx context.Context, userID, courseID string) (Course, error) {
	return scanCourse(s.db.QueryRowContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE id=$1 AND user_id=$2`, courseID, userID))
}

// CourseSource returns the source tag stored alongside the course id.
func (s *PostgresStore) CourseSource(ctx context.Context, userID, courseID string) (string, error) {
	var source string
	err := s.db.QueryRowContext(ctx, `SELECT source FROM courses WHERE id=$1 AND user_id=$2`, courseID, userID).Scan(&source)
	if err != nil {
		return "", err
	}
	return source, nil
}

func (s *PostgresStore) ListCourses(ctx context.Context, userID string) ([]Course, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE user_id=$1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	defer rows.Close()
	return scanCourses(rows)
}

// ListStudentCourses returns every course of a student, across both sources.
func (s *PostgresStore) ListStudentCourses(ctx context.Context, userID, studentID string) ([]Course, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+courseColumns+`
		FROM courses
		WHERE user_id=$1 AND student_id=$2
		ORDER BY CASE source WHEN 'youredu_course' THEN 0 ELSE 1 END, created_at ASC, id ASC
	`, userID, studentID)
	if err != nil {
		return nil, fmt.Errorf("list student courses: %w", err)
	}
	defer rows.Close()
	return scanCourses(rows)
}

func (s *PostgresStore) ListAllCourses(ctx context.Context) ([]Course, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+courseColumns+` FROM courses`)
	if err != nil {
		return nil, fmt.Errorf("list all courses: %w", err)
	}
	defer rows.Close()
	return scanCourses(rows)
}

func scanCourses(rows *sql.Rows) ([]Course, error) {
	courses := make([]Course, 0)
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		courses = append(courses, course)
	}
	return courses, rows.Err()
}

func (s *PostgresStore) InsertCourse(ctx context.Context, course Course) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO courses (
			id, user_id, student_id, source, title, description, subject, grade_level, term, year, credits,
			final_grade, textbooks, materials, evaluation_method, days_of_week, start_time, end_time,
			start_date, end_date, is_published
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			string_to_array(NULLIF($16, ''), ','), $17, $18, $19, $20, $21)
	`,
		course.ID,
		course.UserID,
		stringPtrArg(course.StudentID),
		course.Source,
		course.Title,
		course.Description,
		course.Subject,
		course.GradeLevel,
		course.Term,
		course.Year,
		course.Credits,
		course.FinalGrade,
		course.Textbooks,
		course.Materials,
		course.EvaluationMethod,
		strings.Join(course.DaysOfWeek, ","),
		course.StartTime,
		course.EndTime,
		timePtrArg(course.StartDate),
		timePtrArg(course.EndDate),
		course.IsPublished,
	)
	if err != nil {
		return fmt.Errorf("insert course: %w", err)
	}
	return nil
}

// UpdateCourse applies the non-nil fields of patch. Writes are unconditional:
// the last update to land wins.
func (s *PostgresStore) UpdateCourse(ctx context.Context, userID, courseID string, patch CoursePatch) error {
	sets := make([]string, 0, 8)
	args := []any{courseID, userID}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Subject != nil {
		add("subject", *patch.Subject)
	}
	if patch.GradeLevel != nil {
		add("grade_level", *patch.GradeLevel)
	}
	if patch.Term != nil {
		add("term", *patch.Term)
	}
	if patch.Year != nil {
		add("year", *patch.Year)
	}
	if patch.Credits != nil {
		add("credits", *patch.Credits)
	}
	if patch.FinalGrade != nil {
		add("final_grade", *patch.FinalGrade)
	}
	if patch.Textbooks != nil {
		add("textbooks", *patch.Textbooks)
	}
	if patch.Materials != nil {
		add("materials", *patch.Materials)
	}
	if patch.EvaluationMethod != nil {
		add("evaluation_method", *patch.EvaluationMethod)
	}
	if patch.DaysOfWeek != nil {
		args = append(args, strings.Join(patch.DaysOfWeek, ","))
		sets = append(sets, fmt.Sprintf("days_of_week=COALESCE(string_to_array(NULLIF($%d, ''), ','), '{}')", len(args)))
	}
	if patch.StartTime != nil {
		add("start_time", *patch.StartTime)
	}
	if patch.EndTime != nil {
		add("end_time", *patch.EndTime)
	}
	if patch.StartDate != nil {
		add("start_date", *patch.StartDate)
	}
	if patch.EndDate != nil {
		add("end_date", *patch.EndDate)
	}
	if patch.IsPublished != nil {
		add("is_published", *patch.IsPublished)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at=NOW()")

	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE courses SET %s WHERE id=$1 AND user_id=$2`, strings.Join(sets, ", ")),
		args...,
	)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListCourseFiles(ctx context.Context, userID, courseID, uiCategory string) ([]CourseFile, error) {
	query := `
		SELECT id, course_id, course_type, user_id, name, ui_category, category, storage_path, size_bytes, mime_type, created_at
		FROM course_files
		WHERE user_id=$1 AND course_id=$2`
	args := []any{userID, courseID}
	if uiCategory != "" {
		query += ` AND ui_category=$3`
		args = append(args, uiCategory)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list course files: %w", err)
	}
	defer rows.Close()
	return scanCourseFiles(rows)
}

func (s *PostgresStore) ListAllCourseFiles(ctx context.Context) ([]CourseFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_id, course_type, user_id, name, ui_category, category, storage_path, size_bytes, mime_type, created_at
		FROM course_files
	`)
	if err != nil {
		return nil, fmt.Errorf("list all course files: %w", err)
	}
	defer rows.Close()
	return scanCourseFiles(rows)
}

func scanCourseFiles(rows *sql.Rows) ([]CourseFile, error) {
	files := make([]CourseFile, 0)
	for rows.Next() {
		var file CourseFile
		if err := rows.Scan(&file.ID, &file.CourseID, &file.CourseType, &file.UserID, &file.Name, &file.UICategory, &file.Category, &file.StoragePath, &file.SizeBytes, &file.MimeType, &file.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan course file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *PostgresStore) GetCourseFile(ctx context.Context, userID, fileID string) (CourseFile, error) {
	var file CourseFile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, course_id, course_type, user_id, name, ui_category, category, storage_path, size_bytes, mime_type, created_at
		FROM course_files
		WHERE id=$1 AND user_id=$2
	`, fileID, userID).Scan(&file.ID, &file.CourseID, &file.CourseType, &file.UserID, &file.Name, &file.UICategory, &file.Category, &file.StoragePath, &file.SizeBytes, &file.MimeType, &file.CreatedAt)
	if err != nil {
		return CourseFile{}, err
	}
	return file, nil
}

func (s *PostgresStore) InsertCourseFile(ctx context.Context, file CourseFile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO course_files (id, course_id, course_type, user_id, name, ui_category, category, storage_path, size_bytes, mime_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, file.ID, file.CourseID, file.CourseType, file.UserID, file.Name, file.UICategory, file.Category, file.StoragePath, file.SizeBytes, file.MimeType)
	if err != nil {
		return fmt.Errorf("insert course file: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteCourseFile(ctx context.Context, userID, fileID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM course_files WHERE id=$1 AND user_id=$2`, fileID, userID)
	if err != nil {
		return fmt.Errorf("delete course file: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListCourseLinks(ctx context.Context, userID, courseID string) ([]CourseLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_id, course_type, user_id, title, url, created_at
		FROM course_links
		WHERE user_id=$1 AND course_id=$2
		ORDER BY created_at ASC
	`, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("list course links: %w", err)
	}
	defer rows.Close()

	links := make([]CourseLink, 0)
	for rows.Next() {
		var link CourseLink
		if err := rows.Scan(&link.ID, &link.CourseID, &link.CourseType, &link.UserID, &link.Title, &link.URL, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan course link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func (s *PostgresStore) InsertCourseLink(ctx context.Context, link CourseLink) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO course_links (id, course_id, course_type, user_id, title, url)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, link.ID, link.CourseID, link.CourseType, link.UserID, link.Title, link.URL)
	if err != nil {
		return fmt.Errorf("insert course link: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteCourseLink(ctx context.Context, userID, linkID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM course_links WHERE id=$1 AND user_id=$2`, linkID, userID)
	if err != nil {
		return fmt.Errorf("delete course link: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListCourseTodos(ctx context.Context, userID, courseID string) ([]CourseTodo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_id, user_id, title, due_date, completed, created_at
		FROM course_todos
		WHERE user_id=$1 AND course_id=$2
		ORDER BY completed ASC, due_date ASC NULLS LAST, created_at ASC
	`, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("list course todos: %w", err)
	}
	defer rows.Close()

	todos := make([]CourseTodo, 0)
	for rows.Next() {
		var todo CourseTodo
		var due sql.NullTime
		if err := rows.Scan(&todo.ID, &todo.CourseID, &todo.UserID, &todo.Title, &due, &todo.Completed, &todo.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan course todo: %w", err)
		}
		todo.DueDate = nullTimePtr(due)
		todos = append(todos, todo)
	}
	return todos, rows.Err()
}

func (s *PostgresStore) InsertCourseTodo(ctx context.Context, todo CourseTodo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO course_todos (id, course_id, user_id, title, due_date, completed)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, todo.ID, todo.CourseID, todo.UserID, todo.Title, timePtrArg(todo.DueDate), todo.Completed)
	if err != nil {
		return fmt.Errorf("insert course todo: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetCourseTodoCompleted(ctx context.Context, userID, todoID string, completed bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE course_todos SET completed=$3 WHERE id=$1 AND user_id=$2`, todoID, userID, completed)
	if err != nil {
		return fmt.Errorf("update course todo: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteCourseTodo(ctx context.Context, userID, todoID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM course_todos WHERE id=$1 AND user_id=$2`, todoID, userID)
	if err != nil {
		return fmt.Errorf("delete course todo: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func splitDays(value string) []string {
	if strings.TrimSpace(value) == "" {
		return []string{}
	}
	return strings.Split(value, ",")
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func timePtrArg(value *time.Time) any {
	if value == nil {
		return nil
	}
	return *value
}

func stringPtrArg(value *string) any {
	if value == nil || *value == "" {
		return nil
	}
	return *value
}
