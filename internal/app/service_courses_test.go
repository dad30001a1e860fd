package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"youredu/api/internal/store"
)

func (e *testEnv) addStudent(id, userID, grade string) store.Student {
	student := store.Student{ID: id, UserID: userID, FirstName: "Sam", LastName: "Lee", GradeLevel: grade}
	e.store.mu.Lock()
	e.store.students[id] = student
	e.store.mu.Unlock()
	return student
}

// saveSteps keeps only the store calls made by the course save workflow.
func saveSteps(calls []string) []string {
	steps := make([]string, 0, len(calls))
	for _, call := range calls {
		switch call {
		case "calendar", "update_course", "upsert_descriptions", "calendar_all":
			steps = append(steps, call)
		}
	}
	return steps
}

func scheduledCourse(studentID string) CourseInput {
	return CourseInput{
		Title:      "Biology",
		StudentID:  &studentID,
		Subject:    "Science",
		Credits:    1,
		DaysOfWeek: []string{"Mon", "Wed"},
		StartTime:  "09:00",
		EndTime:    "10:00",
		StartDate:  "2026-09-07",
		EndDate:    "2026-09-18",
	}
}

func TestCreateCourseRunsSaveStepsInOrder(t *testing.T) {
	env := newTestEnv(t)
	env.addStudent("s1", "u1", "10th Grade")

	course, report, err := env.svc.CreateCourse(context.Background(), "u1", scheduledCourse("s1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := []string{"calendar", "update", "descriptions", "calendar_all"}
	if !reflect.DeepEqual(report.Completed, want) {
		t.Fatalf("expected steps %v, got %v", want, report.Completed)
	}
	if report.FailedStep != "" {
		t.Errorf("unexpected failure: %+v", report)
	}
	if got := saveSteps(env.store.callLog()); !reflect.DeepEqual(got, []string{"calendar", "update_course", "upsert_descriptions", "calendar_all"}) {
		t.Errorf("unexpected store call order %v", got)
	}

	studentEvents := env.store.events[course.ID+"/s1"]
	if len(studentEvents) != 4 {
		t.Errorf("expected 4 meetings for the student, got %d", len(studentEvents))
	}
	if len(env.store.events[course.ID+"/all"]) != 4 {
		t.Errorf("expected 4 meetings in the all-students view, got %d", len(env.store.events[course.ID+"/all"]))
	}

	descs, err := env.svc.CourseDescriptions(context.Background(), "u1", "s1")
	if err != nil {
		t.Fatalf("descriptions: %v", err)
	}
	if titles := descs.Titles("10thCourses"); !slices.Equal(titles, []string{"Biology"}) {
		t.Errorf("expected Biology pulled into 10th grade, got %v", titles)
	}
}

func TestCourseWithoutStudentSkipsStudentSteps(t *testing.T) {
	env := newTestEnv(t)

	_, report, err := env.svc.CreateCourse(context.Background(), "u1", CourseInput{Title: "Open Lab"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !reflect.DeepEqual(report.Completed, []string{"update", "calendar_all"}) {
		t.Errorf("unexpected steps %v", report.Completed)
	}
}

func TestCourseSaveRetriesTransientFailure(t *testing.T) {
	env := newTestEnv(t)
	env.addStudent("s1", "u1", "10th Grade")
	var failures atomic.Int32
	env.store.replaceCourseEventsFn = func(_ context.Context, _, _ string, studentID *string, _ []store.CalendarEvent) error {
		if studentID != nil && failures.Add(1) == 1 {
			return errors.New("deadlock detected")
		}
		return nil
	}

	_, report, err := env.svc.CreateCourse(context.Background(), "u1", scheduledCourse("s1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if report.FailedStep != "" || len(report.Completed) != 4 {
		t.Fatalf("expected the retry to recover, got %+v", report)
	}
	if n := countCalls(env.store.callLog(), "calendar"); n != 2 {
		t.Errorf("expected the calendar step to run twice, got %d", n)
	}
}

func TestCourseSaveStopsAtFailingStep(t *testing.T) {
	env := newTestEnv(t)
	env.addStudent("s1", "u1", "10th Grade")
	course, _, err := env.svc.CreateCourse(context.Background(), "u1", scheduledCourse("s1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	before := len(env.store.callLog())
	env.store.updateCourseFn = func(context.Context, string, string, store.CoursePatch) error {
		return errors.New("connection reset")
	}

	if _, err := env.svc.ScheduleCourseEdits(context.Background(), "u1", course.ID, map[string]json.RawMessage{
		"title": json.RawMessage(`"Marine Biology"`),
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	report, flushed, err := env.svc.FlushCourse(context.Background(), "u1", course.ID)
	if err != nil || !flushed {
		t.Fatalf("flush: %v (flushed=%v)", err, flushed)
	}
	if report.FailedStep != "update" || !reflect.DeepEqual(report.Completed, []string{"calendar"}) {
		t.Fatalf("unexpected report %+v", report)
	}
	after := saveSteps(env.store.callLog()[before:])
	want := []string{"calendar", "update_course", "update_course", "update_course"}
	if !reflect.DeepEqual(after, want) {
		t.Errorf("expected %v, got %v", want, after)
	}
	if last, ok := env.svc.LastSave(course.ID); !ok || last.FailedStep != "update" {
		t.Errorf("expected failed save to be reported, got %+v", last)
	}
}

func TestScheduleCourseEditsDebouncesPerField(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	course, _, err := env.svc.CreateCourse(ctx, "u1", CourseInput{Title: "Algebra"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	before := countCalls(env.store.callLog(), "update_course")

	for _, body := range []string{`{"title":"Algebra I"}`, `{"title":"Algebra II","credits":1.5}`} {
		var fields map[string]json.RawMessage
		_ = json.Unmarshal([]byte(body), &fields)
		if _, err := env.svc.ScheduleCourseEdits(ctx, "u1", course.ID, fields); err != nil {
			t.Fatalf("schedule: %v", err)
		}
	}
	if n := countCalls(env.store.callLog(), "update_course"); n != before {
		t.Fatalf("expected no writes before the delay, got %d", n-before)
	}

	pendingCourse, pending, err := env.svc.GetCourse(ctx, "u1", course.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(pending, []string{"credits", "title"}) || pendingCourse.Title != "Algebra II" {
		t.Fatalf("unexpected pending view %v %q", pending, pendingCourse.Title)
	}

	if _, _, err := env.svc.FlushCourse(ctx, "u1", course.ID); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if n := countCalls(env.store.callLog(), "update_course") - before; n != 2 {
		t.Errorf("expected one write per field, got %d", n)
	}
	saved, _ := env.store.GetCourse(ctx, "u1", course.ID)
	if saved.Title != "Algebra II" || saved.Credits != 1.5 {
		t.Errorf("unexpected saved course %+v", saved)
	}
}

func TestConcurrentScheduleEditsLeaveCalendarMatchingCourse(t *testing.T) {
	env := newTestEnv(t)
	env.addStudent("s1", "u1", "10th Grade")
	ctx := context.Background()
	course, _, err := env.svc.CreateCourse(ctx, "u1", scheduledCourse("s1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	env.store.updateCourseFn = func(context.Context, string, string, store.CoursePatch) error {
		time.Sleep(30 * time.Millisecond)
		return nil
	}

	_, err = env.svc.ScheduleCourseEdits(ctx, "u1", course.ID, map[string]json.RawMessage{
		"startTime": json.RawMessage(`"13:00"`),
		"endTime":   json.RawMessage(`"14:00"`),
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	var wg sync.WaitGroup
	for _, field := range []string{"startTime", "endTime"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.svc.courseEdits.Flush(courseEditKey(course.ID, field))
		}()
	}
	wg.Wait()

	saved, _ := env.store.GetCourse(ctx, "u1", course.ID)
	if saved.StartTime != "13:00" || saved.EndTime != "14:00" {
		t.Fatalf("unexpected course row %s-%s", saved.StartTime, saved.EndTime)
	}
	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	for _, key := range []string{course.ID + "/s1", course.ID + "/all"} {
		events := env.store.events[key]
		if len(events) != 4 {
			t.Fatalf("%s: expected 4 events, got %d", key, len(events))
		}
		for _, event := range events {
			if event.StartsAt.Hour() != 13 || event.EndsAt.Hour() != 14 {
				t.Fatalf("%s: event %s-%s does not match the course schedule", key,
					event.StartsAt.Format("15:04"), event.EndsAt.Format("15:04"))
			}
		}
	}
}

func TestScheduleCourseEditsValidatesFields(t *testing.T) {
	env := newTestEnv(t)
	course, _, _ := env.svc.CreateCourse(context.Background(), "u1", CourseInput{Title: "Algebra"})

	_, err := env.svc.ScheduleCourseEdits(context.Background(), "u1", course.ID, map[string]json.RawMessage{
		"credits":   json.RawMessage(`50`),
		"owner":     json.RawMessage(`"someone"`),
		"startDate": json.RawMessage(`"next week"`),
	})
	domainErr := requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	invalid, _ := domainErr.Details.(map[string]string)
	for _, field := range []string{"credits", "owner", "startDate"} {
		if _, ok := invalid[field]; !ok {
			t.Errorf("expected %s to be reported, got %v", field, invalid)
		}
	}
}

func TestInvalidScheduleClearsEvents(t *testing.T) {
	env := newTestEnv(t)
	env.addStudent("s1", "u1", "10th Grade")
	input := scheduledCourse("s1")
	input.StartTime = "11:00"
	input.EndTime = "10:00"

	course, report, err := env.svc.CreateCourse(context.Background(), "u1", input)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if report.FailedStep != "" {
		t.Fatalf("an invalid schedule should not fail the save: %+v", report)
	}
	if events := env.store.events[course.ID+"/s1"]; len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestCourseTodosOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.addUser("u1", store.RoleParent)
	sess := env.session(t, "u1")
	course, _, _ := env.svc.CreateCourse(context.Background(), "u1", CourseInput{Title: "Algebra"})

	rr := serve(t, env, jsonRequest(http.MethodPost, "/api/courses/"+course.ID+"/todos", `{"title":"Chapter 3 quiz","dueDate":"2026-10-20"}`, sess.Token))
	if rr.Code != http.StatusCreated {
		t.Fatalf("add todo: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	todoID, _ := decodeResponse(t, rr)["id"].(string)

	rr = serve(t, env, jsonRequest(http.MethodPatch, "/api/course-todos/"+todoID, `{}`, sess.Token))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing completed: expected 422, got %d", rr.Code)
	}
	rr = serve(t, env, jsonRequest(http.MethodPatch, "/api/course-todos/"+todoID, `{"completed":true}`, sess.Token))
	if rr.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	todos, _ := env.svc.ListCourseTodos(context.Background(), "u1", course.ID)
	if len(todos) != 1 || !todos[0].Completed {
		t.Errorf("expected completed todo, got %+v", todos)
	}
}

func TestCoursePatchOverHTTPIsAccepted(t *testing.T) {
	env := newTestEnv(t)
	env.addUser("u1", store.RoleParent)
	sess := env.session(t, "u1")
	course, _, _ := env.svc.CreateCourse(context.Background(), "u1", CourseInput{Title: "Algebra"})

	rr := serve(t, env, jsonRequest(http.MethodPatch, "/api/courses/"+course.ID, `{"finalGrade":"A"}`, sess.Token))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = serve(t, env, jsonRequest(http.MethodPost, "/api/courses/"+course.ID+"/flush", "", sess.Token))
	if rr.Code != http.StatusOK || decodeResponse(t, rr)["flushed"] != true {
		t.Fatalf("flush: unexpected %d %s", rr.Code, rr.Body.String())
	}
	saved, _ := env.store.GetCourse(context.Background(), "u1", course.ID)
	if saved.FinalGrade != "A" {
		t.Errorf("expected final grade saved, got %q", saved.FinalGrade)
	}
}
