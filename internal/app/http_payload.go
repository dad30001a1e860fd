package app

import (
	"time"

	"youredu/api/internal/store"
)

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func studentPayload(student store.Student) map[string]any {
	return map[string]any{
		"id":         student.ID,
		"firstName":  student.FirstName,
		"lastName":   student.LastName,
		"fullName":   student.FullName(),
		"gradeLevel": student.GradeLevel,
		"schoolYear": student.SchoolYear,
		"createdAt":  student.CreatedAt,
		"updatedAt":  student.UpdatedAt,
	}
}

func studentsPayload(students []store.Student) []map[string]any {
	items := make([]map[string]any, 0, len(students))
	for _, student := range students {
		items = append(items, studentPayload(student))
	}
	return items
}

func coursePayload(course store.Course) map[string]any {
	days := course.DaysOfWeek
	if days == nil {
		days = []string{}
	}
	return map[string]any{
		"id":               course.ID,
		"studentId":        course.StudentID,
		"source":           course.Source,
		"title":            course.Title,
		"description":      course.Description,
		"subject":          course.Subject,
		"gradeLevel":       course.GradeLevel,
		"term":             course.Term,
		"year":             course.Year,
		"credits":          course.Credits,
		"finalGrade":       course.FinalGrade,
		"textbooks":        course.Textbooks,
		"materials":        course.Materials,
		"evaluationMethod": course.EvaluationMethod,
		"daysOfWeek":       days,
		"startTime":        course.StartTime,
		"endTime":          course.EndTime,
		"startDate":        formatDate(course.StartDate),
		"endDate":          formatDate(course.EndDate),
		"isPublished":      course.IsPublished,
		"createdAt":        course.CreatedAt,
		"updatedAt":        course.UpdatedAt,
	}
}

func coursesPayload(courses []store.Course) []map[string]any {
	items := make([]map[string]any, 0, len(courses))
	for _, course := range courses {
		items = append(items, coursePayload(course))
	}
	return items
}

func courseFilePayload(file store.CourseFile) map[string]any {
	return map[string]any{
		"id":         file.ID,
		"courseId":   file.CourseID,
		"courseType": file.CourseType,
		"name":       file.Name,
		"uiCategory": file.UICategory,
		"category":   file.Category,
		"sizeBytes":  file.SizeBytes,
		"mimeType":   file.MimeType,
		"createdAt":  file.CreatedAt,
	}
}

func courseFilesPayload(files []store.CourseFile) []map[string]any {
	items := make([]map[string]any, 0, len(files))
	for _, file := range files {
		items = append(items, courseFilePayload(file))
	}
	return items
}

func courseLinkPayload(link store.CourseLink) map[string]any {
	return map[string]any{
		"id":         link.ID,
		"courseId":   link.CourseID,
		"courseType": link.CourseType,
		"title":      link.Title,
		"url":        link.URL,
		"createdAt":  link.CreatedAt,
	}
}

func courseLinksPayload(links []store.CourseLink) []map[string]any {
	items := make([]map[string]any, 0, len(links))
	for _, link := range links {
		items = append(items, courseLinkPayload(link))
	}
	return items
}

func courseTodoPayload(todo store.CourseTodo) map[string]any {
	return map[string]any{
		"id":        todo.ID,
		"courseId":  todo.CourseID,
		"title":     todo.Title,
		"dueDate":   formatDate(todo.DueDate),
		"completed": todo.Completed,
		"createdAt": todo.CreatedAt,
	}
}

func courseTodosPayload(todos []store.CourseTodo) []map[string]any {
	items := make([]map[string]any, 0, len(todos))
	for _, todo := range todos {
		items = append(items, courseTodoPayload(todo))
	}
	return items
}

func folderPayload(folder store.Folder) map[string]any {
	return map[string]any{
		"id":        folder.ID,
		"name":      folder.Name,
		"category":  folder.Category,
		"isDefault": folder.IsDefault,
		"createdAt": folder.CreatedAt,
		"updatedAt": folder.UpdatedAt,
	}
}

func foldersPayload(folders []store.Folder) []map[string]any {
	items := make([]map[string]any, 0, len(folders))
	for _, folder := range folders {
		items = append(items, folderPayload(folder))
	}
	return items
}

func documentPayload(doc store.Document) map[string]any {
	return map[string]any{
		"id":        doc.ID,
		"folderId":  doc.FolderID,
		"name":      doc.Name,
		"sizeBytes": doc.SizeBytes,
		"mimeType":  doc.MimeType,
		"createdAt": doc.CreatedAt,
	}
}

func documentsPayload(docs []store.Document) []map[string]any {
	items := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		items = append(items, documentPayload(doc))
	}
	return items
}

func calendarEventsPayload(events []store.CalendarEvent) []map[string]any {
	items := make([]map[string]any, 0, len(events))
	for _, event := range events {
		items = append(items, map[string]any{
			"id":        event.ID,
			"studentId": event.StudentID,
			"courseId":  event.CourseID,
			"title":     event.Title,
			"startsAt":  event.StartsAt,
			"endsAt":    event.EndsAt,
			"source":    event.Source,
		})
	}
	return items
}
