package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kdl/schedule-engine/scheduling"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SESSIONS
// =============================================================================

const sessionColumns = `id, student_id, course_id, teacher_id, class_option_id, class_mode,
	class_limit, completed_count, scheduled_count, class_cancel, payment, status,
	invoice_done, version, created_at, updated_at`

func (c *conn) GetSession(ctx context.Context, id scheduling.SessionID) (*scheduling.Session, error) {
	row := c.queryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, string(id))

	var (
		s                                  scheduling.Session
		sid, student, course, teacher, opt string
		mode, payment, status              string
		createdAt, updatedAt               string
	)
	err := row.Scan(&sid, &student, &course, &teacher, &opt, &mode,
		&s.ClassLimit, &s.CompletedCount, &s.ScheduledCount, &s.ClassCancel,
		&payment, &status, &s.InvoiceDone, &s.Version, &createdAt, &updatedAt)
	if isNoRows(err) {
		return nil, scheduling.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	s.ID = scheduling.SessionID(sid)
	s.StudentID = scheduling.StudentID(student)
	s.CourseID = scheduling.CourseID(course)
	s.TeacherID = scheduling.TeacherID(teacher)
	s.ClassOptionID = scheduling.ClassOptionID(opt)
	s.Mode = scheduling.ClassMode(mode)
	s.Payment = scheduling.PaymentStatus(payment)
	s.Status = scheduling.SessionStatus(status)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

func (c *conn) CreateSession(ctx context.Context, s scheduling.Session) error {
	_, err := c.exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(s.ID), string(s.StudentID), string(s.CourseID), string(s.TeacherID),
		string(s.ClassOptionID), string(s.Mode), s.ClassLimit,
		s.CompletedCount, s.ScheduledCount, s.ClassCancel,
		string(s.Payment), string(s.Status), s.InvoiceDone, s.Version,
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt),
	)
	if err != nil {
		err = c.d.translate(fmt.Errorf("failed to create session %s: %w", s.ID, err), "")
	}
	return err
}

// UpdateSession writes s when the stored version still equals s.Version.
func (c *conn) UpdateSession(ctx context.Context, s scheduling.Session) error {
	res, err := c.exec(ctx, `
		UPDATE sessions SET
			course_id = ?, teacher_id = ?, class_option_id = ?, class_mode = ?,
			class_limit = ?, completed_count = ?, scheduled_count = ?, class_cancel = ?,
			payment = ?, status = ?, invoice_done = ?, version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ?`,
		string(s.CourseID), string(s.TeacherID), string(s.ClassOptionID), string(s.Mode),
		s.ClassLimit, s.CompletedCount, s.ScheduledCount, s.ClassCancel,
		string(s.Payment), string(s.Status), s.InvoiceDone,
		formatTime(s.UpdatedAt),
		string(s.ID), s.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", s.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := c.GetSession(ctx, s.ID); err != nil {
		return err
	}
	return scheduling.ErrStale
}

// =============================================================================
// CLASS OPTIONS
// =============================================================================

const classOptionColumns = `id, name, class_mode, tuition_fee, class_limit,
	effective_start_date, effective_end_date, created_at`

func (c *conn) GetClassOption(ctx context.Context, id scheduling.ClassOptionID) (*scheduling.ClassOption, error) {
	opts, err := c.queryClassOptions(ctx, `SELECT `+classOptionColumns+` FROM class_options WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(opts) == 0 {
		return nil, scheduling.ErrClassOptionNotFound
	}
	return &opts[0], nil
}

func (c *conn) ListClassOptions(ctx context.Context) ([]scheduling.ClassOption, error) {
	return c.queryClassOptions(ctx, `SELECT `+classOptionColumns+` FROM class_options ORDER BY id`)
}

// SaveClassOption inserts or replaces the option.
func (c *conn) SaveClassOption(ctx context.Context, o scheduling.ClassOption) error {
	start := ""
	if !o.EffectiveStartDate.IsZero() {
		start = o.EffectiveStartDate.String()
	}
	_, err := c.exec(ctx, `
		INSERT INTO class_options (`+classOptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			class_mode = excluded.class_mode,
			tuition_fee = excluded.tuition_fee,
			class_limit = excluded.class_limit,
			effective_start_date = excluded.effective_start_date,
			effective_end_date = excluded.effective_end_date`,
		string(o.ID), o.Name, string(o.Mode), o.TuitionFee.String(), o.ClassLimit,
		start, nullDate(o.EffectiveEndDate), formatTime(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save class option %s: %w", o.ID, err)
	}
	return nil
}

func (c *conn) IsClassOptionReferenced(ctx context.Context, id scheduling.ClassOptionID) (bool, error) {
	var n int
	err := c.queryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE class_option_id = ?`, string(id)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count sessions for class option %s: %w", id, err)
	}
	return n > 0, nil
}

func (c *conn) queryClassOptions(ctx context.Context, query string, args ...any) ([]scheduling.ClassOption, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query class options: %w", err)
	}
	defer rows.Close()

	var out []scheduling.ClassOption
	for rows.Next() {
		var (
			o                scheduling.ClassOption
			id, mode, fee    string
			start, createdAt string
			end              sql.NullString
		)
		if err := rows.Scan(&id, &o.Name, &mode, &fee, &o.ClassLimit, &start, &end, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan class option: %w", err)
		}
		o.ID = scheduling.ClassOptionID(id)
		o.Mode = scheduling.ClassMode(mode)
		if o.TuitionFee, err = decimal.NewFromString(fee); err != nil {
			return nil, fmt.Errorf("class option %s: invalid tuition fee %q: %w", id, fee, err)
		}
		if start != "" {
			if o.EffectiveStartDate, err = scheduling.ParseDate(start); err != nil {
				return nil, fmt.Errorf("class option %s: %w", id, err)
			}
		}
		if o.EffectiveEndDate, err = parseNullDate(end); err != nil {
			return nil, fmt.Errorf("class option %s: %w", id, err)
		}
		o.CreatedAt = parseTime(createdAt)
		out = append(out, o)
	}
	return out, rows.Err()
}
