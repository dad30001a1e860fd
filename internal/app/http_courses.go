package app

import (
	"encoding/json"
	"net/http"
)

func (s *HTTPServer) routeCourses(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	ctx := r.Context()
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		courses, err := s.service.ListCourses(ctx, session.UserID, r.URL.Query().Get("studentId"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"courses": coursesPayload(courses)})

	case len(parts) == 0 && r.Method == http.MethodPost:
		var body CourseInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		course, report, err := s.service.CreateCourse(ctx, session.UserID, body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"course": coursePayload(course), "save": report})

	case len(parts) == 1 && r.Method == http.MethodGet:
		course, pending, err := s.service.GetCourse(ctx, session.UserID, parts[0])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response := map[string]any{"course": coursePayload(course), "pendingFields": pending}
		if report, ok := s.service.LastSave(course.ID); ok {
			response["lastSave"] = report
		}
		writeJSON(w, http.StatusOK, response)

	case len(parts) == 1 && r.Method == http.MethodPatch:
		body := map[string]json.RawMessage{}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		fields, err := s.service.ScheduleCourseEdits(ctx, session.UserID, parts[0], body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"courseId": parts[0], "scheduled": fields})

	case len(parts) == 2 && parts[1] == "flush" && r.Method == http.MethodPost:
		report, saved, err := s.service.FlushCourse(ctx, session.UserID, parts[0])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response := map[string]any{"flushed": saved}
		if saved {
			response["save"] = report
		}
		writeJSON(w, http.StatusOK, response)

	case len(parts) == 2 && parts[1] == "save-status" && r.Method == http.MethodGet:
		if _, err := s.service.CourseType(ctx, session.UserID, parts[0]); err != nil {
			writeServiceError(w, err)
			return
		}
		report, ok := s.service.LastSave(parts[0])
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"save": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"save": report})

	case len(parts) == 2 && parts[1] == "type" && r.Method == http.MethodGet:
		courseType, err := s.service.CourseType(ctx, session.UserID, parts[0])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"courseId": parts[0], "courseType": courseType})

	case len(parts) == 2 && parts[1] == "files":
		s.handleCourseFiles(w, r, session, parts[0])

	case len(parts) == 2 && parts[1] == "links":
		s.handleCourseLinks(w, r, session, parts[0])

	case len(parts) == 2 && parts[1] == "todos":
		s.handleCourseTodos(w, r, session, parts[0])

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleCourseFiles(w http.ResponseWriter, r *http.Request, session Session, courseID string) {
	switch r.Method {
	case http.MethodGet:
		files, err := s.service.ListCourseFiles(r.Context(), session.UserID, courseID, r.URL.Query().Get("category"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"files": courseFilesPayload(files)})
	case http.MethodPost:
		upload, cleanup, err := readUpload(w, r)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		defer cleanup()
		file, err := s.service.UploadCourseFile(r.Context(), session.UserID, courseID, r.FormValue("category"), upload)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, courseFilePayload(file))
	default:
		methodNotAllowed(w)
	}
}

func (s *HTTPServer) handleCourseLinks(w http.ResponseWriter, r *http.Request, session Session, courseID string) {
	switch r.Method {
	case http.MethodGet:
		links, err := s.service.ListCourseLinks(r.Context(), session.UserID, courseID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"links": courseLinksPayload(links)})
	case http.MethodPost:
		var body CourseLinkInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		link, err := s.service.AddCourseLink(r.Context(), session.UserID, courseID, body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, courseLinkPayload(link))
	default:
		methodNotAllowed(w)
	}
}

func (s *HTTPServer) handleCourseTodos(w http.ResponseWriter, r *http.Request, session Session, courseID string) {
	switch r.Method {
	case http.MethodGet:
		todos, err := s.service.ListCourseTodos(r.Context(), session.UserID, courseID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"todos": courseTodosPayload(todos)})
	case http.MethodPost:
		var body CourseTodoInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		todo, err := s.service.AddCourseTodo(r.Context(), session.UserID, courseID, body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, courseTodoPayload(todo))
	default:
		methodNotAllowed(w)
	}
}

func (s *HTTPServer) routeCourseFiles(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case len(parts) == 2 && parts[1] == "url" && r.Method == http.MethodGet:
		link, err := s.service.CourseFileURL(r.Context(), session.UserID, parts[0])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, link)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteCourseFile(r.Context(), session.UserID, parts[0]); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) routeCourseLinks(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) != 1 || r.Method != http.MethodDelete {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if err := s.service.DeleteCourseLink(r.Context(), session.UserID, parts[0]); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) routeCourseTodos(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	switch r.Method {
	case http.MethodPatch:
		var body struct {
			Completed *bool `json:"completed"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.Completed == nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "completed is required", nil)
			return
		}
		if err := s.service.SetCourseTodoCompleted(r.Context(), session.UserID, parts[0], *body.Completed); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": parts[0], "completed": *body.Completed})
	case http.MethodDelete:
		if err := s.service.DeleteCourseTodo(r.Context(), session.UserID, parts[0]); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		methodNotAllowed(w)
	}
}
