package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kdl/schedule-engine/scheduling"
)

// =============================================================================
// SCHEDULES
// =============================================================================

const scheduleColumns = `id, session_id, student_id, teacher_id, course_id, room, date,
	start_time, end_time, class_number, attendance, feedback, feedback_date,
	warning, nickname, remark, created_at, updated_at`

// ListActiveSchedules uses idx_schedules_date for the date restriction.
func (c *conn) ListActiveSchedules(ctx context.Context, f scheduling.ScheduleFilter) ([]scheduling.Schedule, error) {
	var (
		where = []string{"attendance <> 'cancelled'"}
		args  []any
	)
	if len(f.Dates) > 0 {
		where = append(where, "date IN ("+inList(len(f.Dates))+")")
		for _, d := range f.Dates {
			args = append(args, d.String())
		}
	}

	var resources []string
	if len(f.TeacherIDs) > 0 {
		resources = append(resources, "teacher_id IN ("+inList(len(f.TeacherIDs))+")")
		for _, t := range f.TeacherIDs {
			args = append(args, string(t))
		}
	}
	if len(f.Rooms) > 0 {
		resources = append(resources, "room IN ("+inList(len(f.Rooms))+")")
		for _, r := range f.Rooms {
			args = append(args, string(r))
		}
	}
	if len(f.StudentIDs) > 0 {
		resources = append(resources, "student_id IN ("+inList(len(f.StudentIDs))+")")
		for _, s := range f.StudentIDs {
			args = append(args, string(s))
		}
	}
	if len(resources) > 0 {
		where = append(where, "("+strings.Join(resources, " OR ")+")")
	}

	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY date, start_time, id`
	return c.querySchedules(ctx, query, args...)
}

func (c *conn) GetSchedule(ctx context.Context, id scheduling.ScheduleID) (*scheduling.Schedule, error) {
	rows, err := c.querySchedules(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, scheduling.ErrScheduleNotFound
	}
	return &rows[0], nil
}

func (c *conn) ListSessionSchedules(ctx context.Context, id scheduling.SessionID) ([]scheduling.Schedule, error) {
	return c.querySchedules(ctx, `SELECT `+scheduleColumns+`
		FROM schedules WHERE session_id = ? ORDER BY date, start_time, id`, string(id))
}

// InsertSchedules writes every row with the current querier. Outside a
// transaction Store wraps this in WithTx.
func (c *conn) InsertSchedules(ctx context.Context, rows []scheduling.Schedule) error {
	for _, s := range rows {
		_, err := c.exec(ctx, `
			INSERT INTO schedules (`+scheduleColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(s.ID), string(s.SessionID), string(s.StudentID), string(s.TeacherID),
			string(s.CourseID), string(s.Room), s.Date.String(),
			int(s.StartTime), int(s.EndTime), s.ClassNumber, string(s.Attendance),
			s.Feedback, nullDate(s.FeedbackDate), s.Warning, s.Nickname, s.Remark,
			formatTime(s.CreatedAt), formatTime(s.UpdatedAt),
		)
		if err != nil {
			return c.d.translate(fmt.Errorf("failed to insert schedule %s: %w", s.ID, err), s.ID)
		}
	}
	return nil
}

func (c *conn) UpdateSchedule(ctx context.Context, s scheduling.Schedule) error {
	res, err := c.exec(ctx, `
		UPDATE schedules SET
			teacher_id = ?, room = ?, date = ?, start_time = ?, end_time = ?,
			attendance = ?, feedback = ?, feedback_date = ?, warning = ?,
			nickname = ?, remark = ?, updated_at = ?
		WHERE id = ?`,
		string(s.TeacherID), string(s.Room), s.Date.String(), int(s.StartTime), int(s.EndTime),
		string(s.Attendance), s.Feedback, nullDate(s.FeedbackDate), s.Warning,
		s.Nickname, s.Remark, formatTime(s.UpdatedAt),
		string(s.ID),
	)
	if err != nil {
		return c.d.translate(fmt.Errorf("failed to update schedule %s: %w", s.ID, err), s.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return scheduling.ErrScheduleNotFound
	}
	return nil
}

func (c *conn) querySchedules(ctx context.Context, query string, args ...any) ([]scheduling.Schedule, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var out []scheduling.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSchedule(rows *sql.Rows) (scheduling.Schedule, error) {
	var (
		s                    scheduling.Schedule
		id, session, student string
		teacher, course      string
		room, date           string
		start, end           int
		attendance           string
		feedbackDate         sql.NullString
		createdAt, updatedAt string
	)
	err := rows.Scan(&id, &session, &student, &teacher, &course, &room, &date,
		&start, &end, &s.ClassNumber, &attendance, &s.Feedback, &feedbackDate,
		&s.Warning, &s.Nickname, &s.Remark, &createdAt, &updatedAt)
	if err != nil {
		return s, fmt.Errorf("failed to scan schedule: %w", err)
	}

	d, err := scheduling.ParseDate(date)
	if err != nil {
		return s, fmt.Errorf("schedule %s: %w", id, err)
	}
	fd, err := parseNullDate(feedbackDate)
	if err != nil {
		return s, fmt.Errorf("schedule %s: %w", id, err)
	}

	s.ID = scheduling.ScheduleID(id)
	s.SessionID = scheduling.SessionID(session)
	s.StudentID = scheduling.StudentID(student)
	s.TeacherID = scheduling.TeacherID(teacher)
	s.CourseID = scheduling.CourseID(course)
	s.Room = scheduling.RoomID(room)
	s.Date = d
	s.StartTime = scheduling.TimeOfDay(start)
	s.EndTime = scheduling.TimeOfDay(end)
	s.Attendance = scheduling.Attendance(attendance)
	s.FeedbackDate = fd
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return s, nil
}

// dimensionForConstraint maps an index or column list in a driver message to
// the conflict dimension it guards.
func dimensionForConstraint(s string) (scheduling.Dimension, bool) {
	switch {
	case strings.Contains(s, "uq_schedules_teacher_slot"), strings.Contains(s, "schedules.teacher_id"):
		return scheduling.DimensionTeacher, true
	case strings.Contains(s, "uq_schedules_room_slot"), strings.Contains(s, "schedules.room"):
		return scheduling.DimensionRoom, true
	case strings.Contains(s, "uq_schedules_student_slot"), strings.Contains(s, "schedules.student_id"):
		return scheduling.DimensionStudent, true
	}
	return "", false
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }
