package app

import (
	"net/http"
	"time"
)

func (s *HTTPServer) routeStudents(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	ctx := r.Context()
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		students, err := s.service.ListStudents(ctx, session.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"students": studentsPayload(students)})

	case len(parts) == 0 && r.Method == http.MethodPost:
		var body StudentInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		student, err := s.service.CreateStudent(ctx, session.UserID, body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, studentPayload(student))

	case len(parts) == 2 && parts[1] == "grade" && (r.Method == http.MethodPatch || r.Method == http.MethodPut):
		var body GradeInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		student, err := s.service.UpdateStudentGrade(ctx, session.UserID, parts[0], body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, studentPayload(student))

	case len(parts) == 2 && parts[1] == "courses" && r.Method == http.MethodGet:
		courses, err := s.service.ListCourses(ctx, session.UserID, parts[0])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"courses": coursesPayload(courses)})

	case len(parts) == 2 && parts[1] == "transcript" && r.Method == http.MethodPost:
		transcript, err := s.service.GenerateTranscript(ctx, session.UserID, parts[0])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, transcript)

	case len(parts) >= 2 && parts[1] == "descriptions":
		s.routeDescriptions(w, r, session, parts[0], parts[2:])

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) routeDescriptions(w http.ResponseWriter, r *http.Request, session Session, studentID string, parts []string) {
	ctx := r.Context()
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		agg, err := s.service.CourseDescriptions(ctx, session.UserID, studentID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"studentId": studentID, "descriptions": agg})

	case len(parts) == 1 && parts[0] == "sync" && r.Method == http.MethodPost:
		agg, err := s.service.SyncCourseDescriptions(ctx, session.UserID, studentID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"studentId": studentID, "descriptions": agg})

	case len(parts) == 1 && r.Method == http.MethodPost:
		var body DescriptionEntryInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		entryID, agg, err := s.service.AddDescriptionEntry(ctx, session.UserID, studentID, parts[0], body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"entryId": entryID, "descriptions": agg})

	case len(parts) == 2 && r.Method == http.MethodPut:
		var body DescriptionEntryInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		agg, err := s.service.UpdateDescriptionEntry(ctx, session.UserID, studentID, parts[0], parts[1], body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"descriptions": agg})

	case len(parts) == 2 && r.Method == http.MethodDelete:
		agg, err := s.service.RemoveDescriptionEntry(ctx, session.UserID, studentID, parts[0], parts[1])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"descriptions": agg})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) != 0 || r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	from, err := parseTimeParam(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "from must be RFC 3339 or YYYY-MM-DD", nil)
		return
	}
	to, err := parseTimeParam(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "to must be RFC 3339 or YYYY-MM-DD", nil)
		return
	}
	events, err := s.service.CalendarEvents(r.Context(), session.UserID, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": calendarEventsPayload(events)})
}

func parseTimeParam(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	return time.Parse(dateLayout, value)
}
