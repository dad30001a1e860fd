// Package calendar turns a course schedule into dated calendar events.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"youredu/api/internal/store"
	"youredu/api/internal/util"
)

// SourceCourseSchedule tags events generated from a course schedule.
const SourceCourseSchedule = "course_schedule"

// MaxEvents bounds the expansion of a single course.
const MaxEvents = 1000

var ErrInvalidSchedule = errors.New("invalid course schedule")

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday, "su": time.Sunday,
	"monday": time.Monday, "mon": time.Monday, "mo": time.Monday, "m": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday, "tu": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday, "we": time.Wednesday, "w": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "th": time.Thursday,
	"friday": time.Friday, "fri": time.Friday, "fr": time.Friday, "f": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday, "sa": time.Saturday,
}

// ParseWeekday accepts full names and the usual abbreviations.
func ParseWeekday(value string) (time.Weekday, error) {
	day, ok := weekdays[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown day %q", ErrInvalidSchedule, value)
	}
	return day, nil
}

func parseClock(value string) (time.Duration, error) {
	for _, layout := range []string{"15:04", "15:04:05", "3:04 PM", "3:04PM"} {
		if t, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("%w: bad time %q", ErrInvalidSchedule, value)
}

// Scheduled reports whether a course carries enough schedule data to expand.
func Scheduled(course store.Course) bool {
	return len(course.DaysOfWeek) > 0 && course.StartDate != nil && course.EndDate != nil &&
		course.StartTime != "" && course.EndTime != ""
}

// Expand returns one event per scheduled meeting between the course's start
// and end dates, inclusive, in loc. Unscheduled courses yield no events.
func Expand(course store.Course, loc *time.Location) ([]store.CalendarEvent, error) {
	if !Scheduled(course) {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}

	days := make(map[time.Weekday]bool, len(course.DaysOfWeek))
	for _, value := range course.DaysOfWeek {
		day, err := ParseWeekday(value)
		if err != nil {
			return nil, err
		}
		days[day] = true
	}
	start, err := parseClock(course.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := parseClock(course.EndTime)
	if err != nil {
		return nil, err
	}
	if end <= start {
		return nil, fmt.Errorf("%w: end time must be after start time", ErrInvalidSchedule)
	}

	first := dateIn(*course.StartDate, loc)
	last := dateIn(*course.EndDate, loc)
	if last.Before(first) {
		return nil, fmt.Errorf("%w: end date before start date", ErrInvalidSchedule)
	}

	events := make([]store.CalendarEvent, 0)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if !days[day.Weekday()] {
			continue
		}
		if len(events) == MaxEvents {
			return nil, fmt.Errorf("%w: more than %d meetings", ErrInvalidSchedule, MaxEvents)
		}
		events = append(events, store.CalendarEvent{
			ID:        util.NewID(),
			UserID:    course.UserID,
			StudentID: course.StudentID,
			CourseID:  course.ID,
			Title:     course.Title,
			StartsAt:  day.Add(start).UTC(),
			EndsAt:    day.Add(end).UTC(),
			Source:    SourceCourseSchedule,
		})
	}
	return events, nil
}

func dateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
