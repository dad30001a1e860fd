package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

func (s *PostgresStore) GetCourseDescriptions(ctx context.Context, studentID string) (CourseDescriptions, error) {
	var row CourseDescriptions
	var pre, freshman, sophomore, junior, senior []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, student_id, user_id, pre_high_school, freshman, sophomore, junior, senior, updated_at
		FROM course_descriptions
		WHERE student_id=$1
	`, studentID).Scan(&row.ID, &row.StudentID, &row.UserID, &pre, &freshman, &sophomore, &junior, &senior, &row.UpdatedAt)
	if err != nil {
		return CourseDescriptions{}, err
	}
	row.PreHighSchool = json.RawMessage(pre)
	row.Freshman = json.RawMessage(freshman)
	row.Sophomore = json.RawMessage(sophomore)
	row.Junior = json.RawMessage(junior)
	row.Senior = json.RawMessage(senior)
	return row, nil
}

// UpsertCourseDescriptions persists the whole aggregate keyed on student_id.
func (s *PostgresStore) UpsertCourseDescriptions(ctx context.Context, row CourseDescriptions) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO course_descriptions (id, student_id, user_id, pre_high_school, freshman, sophomore, junior, senior, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (student_id) DO UPDATE SET
			pre_high_school=EXCLUDED.pre_high_school,
			freshman=EXCLUDED.freshman,
			sophomore=EXCLUDED.sophomore,
			junior=EXCLUDED.junior,
			senior=EXCLUDED.senior,
			updated_at=NOW()
	`,
		row.ID,
		row.StudentID,
		row.UserID,
		[]byte(jsonArray(row.PreHighSchool)),
		[]byte(jsonArray(row.Freshman)),
		[]byte(jsonArray(row.Sophomore)),
		[]byte(jsonArray(row.Junior)),
		[]byte(jsonArray(row.Senior)),
	)
	if err != nil {
		return fmt.Errorf("upsert course descriptions: %w", err)
	}
	return nil
}

func jsonArray(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(`[]`)
	}
	return raw
}

// ReplaceCourseEvents swaps the scheduled events of one course for one
// student (or for no student when studentID is nil). Replaying the same
// events leaves the table unchanged.
func (s *PostgresStore) ReplaceCourseEvents(ctx context.Context, userID, courseID string, studentID *string, events []CalendarEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace events: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM calendar_events
		WHERE user_id=$1 AND course_id=$2 AND student_id IS NOT DISTINCT FROM $3
	`, userID, courseID, stringPtrArg(studentID)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear course events: %w", err)
	}

	for _, event := range events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO calendar_events (id, user_id, student_id, course_id, title, starts_at, ends_at, source)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT DO NOTHING
		`, event.ID, userID, stringPtrArg(studentID), courseID, event.Title, event.StartsAt, event.EndsAt, event.Source); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert course event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace events: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCalendarEvents(ctx context.Context, userID string, from, to time.Time) ([]CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, student_id, course_id, title, starts_at, ends_at, source
		FROM calendar_events
		WHERE user_id=$1 AND starts_at >= $2 AND starts_at < $3
		ORDER BY starts_at ASC
	`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	defer rows.Close()

	events := make([]CalendarEvent, 0)
	for rows.Next() {
		var event CalendarEvent
		var studentID *string
		if err := rows.Scan(&event.ID, &event.UserID, &studentID, &event.CourseID, &event.Title, &event.StartsAt, &event.EndsAt, &event.Source); err != nil {
			return nil, fmt.Errorf("scan calendar event: %w", err)
		}
		event.StudentID = studentID
		events = append(events, event)
	}
	return events, rows.Err()
}
