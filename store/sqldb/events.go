package sqldb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kdl/schedule-engine/scheduling"
)

// =============================================================================
// EVENTS - Outbox written in the same transaction as the change
// =============================================================================

func (c *conn) AppendEvents(ctx context.Context, events []scheduling.Event) error {
	for _, e := range events {
		ids, err := json.Marshal(scheduleIDStrings(e.ScheduleIDs))
		if err != nil {
			return fmt.Errorf("failed to encode schedule ids: %w", err)
		}
		payload := e.Payload
		if payload == nil {
			payload = map[string]string{}
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode event payload: %w", err)
		}
		if _, err := c.exec(ctx, `
			INSERT INTO events (id, occurred_at, action, session_id, schedule_ids, payload)
			VALUES (?, ?, ?, ?, ?, ?)`,
			e.ID, formatTime(e.At), string(e.Action), string(e.SessionID), string(ids), string(body),
		); err != nil {
			return fmt.Errorf("failed to append event %s: %w", e.Action, err)
		}
	}
	return nil
}

// ListEvents returns matching events in append order.
func (c *conn) ListEvents(ctx context.Context, f scheduling.EventFilter) ([]scheduling.Event, error) {
	var (
		where []string
		args  []any
	)
	if f.SessionID != nil {
		where = append(where, "session_id = ?")
		args = append(args, string(*f.SessionID))
	}
	if len(f.Actions) > 0 {
		where = append(where, "action IN ("+inList(len(f.Actions))+")")
		for _, a := range f.Actions {
			args = append(args, string(a))
		}
	}

	query := `SELECT id, occurred_at, action, session_id, schedule_ids, payload FROM events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []scheduling.Event
	for rows.Next() {
		var (
			e                 scheduling.Event
			at, action, sid   string
			idsJSON, bodyJSON string
		)
		if err := rows.Scan(&e.ID, &at, &action, &sid, &idsJSON, &bodyJSON); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		var ids []string
		if err := json.Unmarshal([]byte(idsJSON), &ids); err != nil {
			return nil, fmt.Errorf("event %s: invalid schedule ids: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(bodyJSON), &e.Payload); err != nil {
			return nil, fmt.Errorf("event %s: invalid payload: %w", e.ID, err)
		}
		for _, id := range ids {
			e.ScheduleIDs = append(e.ScheduleIDs, scheduling.ScheduleID(id))
		}
		e.At = parseTime(at)
		e.Action = scheduling.EventAction(action)
		e.SessionID = scheduling.SessionID(sid)
		out = append(out, e)
	}
	return out, rows.Err()
}

func scheduleIDStrings(ids []scheduling.ScheduleID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
