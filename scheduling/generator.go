/*
generator.go - Schedule Row Generator

PURPOSE:
  Turns a validated slot list into the canonical draft Schedule rows for a
  session. Pure and deterministic: the same input always yields the same
  rows in the same order with the same IDs and class numbers, which is what
  makes a retried batch recognisable as a replay.

ORDERING:
  Rows are sorted chronologically by (date, start, end), ties broken by the
  slot's position in the request. Class numbers continue from the session's
  progress instead of restarting at 1:

    first = max(completed + scheduled, highest active classNumber) + 1

IDENTIFIERS:
  uuid.NewSHA1(scheduleNamespace, "session|date|start|end|teacher|room|gen")
  gen starts at 0 and is bumped past any ID already held by a cancelled row,
  so a re-booked slot never reuses the retired row's ID.

WARNINGS (advisory, never block a commit):
  - the room is habitually used by another course at that weekday and time
  - the session already has a class on that date

SEE ALSO:
  - coordinator.go: Supplies Existing and RoomHistory from the transaction
*/
package scheduling

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// scheduleNamespace roots the deterministic schedule IDs.
var scheduleNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("schedule-engine/schedules"))

const (
	// roomHistoryWeeks is how far back room habits are looked up.
	roomHistoryWeeks = 4
	// roomHabitThreshold is how many past weeks make a room "typically used".
	roomHabitThreshold = 2
)

// GenerateInput is everything the generator needs. Existing holds every
// schedule of the session (cancelled included); RoomHistory holds active
// schedules of Room on the look-back dates from RoomHistoryFilter.
type GenerateInput struct {
	Session     Session
	TeacherID   TeacherID
	Room        RoomID
	Slots       []Slot
	Nickname    string
	Remark      string
	Existing    []Schedule
	RoomHistory []Schedule
}

// Draft is a generated row and the request slot it came from.
type Draft struct {
	Schedule  Schedule
	SlotIndex int
}

// Proposal returns the resources the draft would occupy.
func (d Draft) Proposal() Proposal {
	s := d.Schedule
	return Proposal{Slot: s.Slot(), TeacherID: s.TeacherID, StudentID: s.StudentID, Room: s.Room}
}

// Generate produces one draft per slot. Timestamps are left zero; the
// coordinator stamps them at commit.
func Generate(in GenerateInput) []Draft {
	order := make([]int, len(in.Slots))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return slotLess(in.Slots[order[a]], in.Slots[order[b]])
	})

	retired := make(map[ScheduleID]bool)
	sameDay := make(map[Date]int)
	for _, s := range in.Existing {
		if s.Active() {
			sameDay[s.Date]++
		} else {
			retired[s.ID] = true
		}
	}
	for _, sl := range in.Slots {
		sameDay[sl.Date]++
	}

	next := NextClassNumber(in.Session, in.Existing)
	drafts := make([]Draft, 0, len(in.Slots))
	issued := make(map[ScheduleID]bool)
	for n, idx := range order {
		sl := in.Slots[idx]
		id := scheduleID(in.Session.ID, sl, in.TeacherID, in.Room, retired, issued)
		issued[id] = true

		row := Schedule{
			ID:          id,
			SessionID:   in.Session.ID,
			StudentID:   in.Session.StudentID,
			TeacherID:   in.TeacherID,
			CourseID:    in.Session.CourseID,
			Room:        in.Room,
			Date:        sl.Date,
			StartTime:   sl.Start,
			EndTime:     sl.End,
			ClassNumber: next + n,
			Attendance:  AttendanceScheduled,
			Nickname:    in.Nickname,
			Remark:      in.Remark,
		}
		row.Warning = warningFor(row, sameDay[sl.Date], in.RoomHistory)
		drafts = append(drafts, Draft{Schedule: row, SlotIndex: idx})
	}
	return drafts
}

// NextClassNumber returns the class number the next generated row gets.
func NextClassNumber(s Session, existing []Schedule) int {
	base := s.CompletedCount + s.ScheduledCount
	for _, e := range existing {
		if e.Active() && e.ClassNumber > base {
			base = e.ClassNumber
		}
	}
	return base + 1
}

// RoomHistoryFilter selects the room's schedules on the same weekday in the
// weeks before each slot.
func RoomHistoryFilter(room RoomID, slots []Slot) ScheduleFilter {
	f := ScheduleFilter{Rooms: []RoomID{room}}
	if room == "" {
		return f
	}
	seen := make(map[Date]bool)
	for _, sl := range slots {
		for w := 1; w <= roomHistoryWeeks; w++ {
			d := sl.Date.AddDays(-7 * w)
			if !seen[d] {
				seen[d] = true
				f.Dates = append(f.Dates, d)
			}
		}
	}
	sort.Slice(f.Dates, func(i, j int) bool { return f.Dates[i].Before(f.Dates[j]) })
	return f
}

func slotLess(a, b Slot) bool {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c < 0
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.End < b.End
}

func scheduleID(session SessionID, sl Slot, teacher TeacherID, room RoomID, retired, issued map[ScheduleID]bool) ScheduleID {
	for gen := 0; ; gen++ {
		name := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d", session, sl.Date, sl.Start, sl.End, teacher, room, gen)
		id := ScheduleID(uuid.NewSHA1(scheduleNamespace, []byte(name)).String())
		if !retired[id] && !issued[id] {
			return id
		}
	}
}

func warningFor(row Schedule, classesThatDay int, history []Schedule) string {
	var notes []string

	if row.Room != "" {
		weeks := make(map[Date]bool)
		for _, h := range history {
			if h.Room != row.Room || h.CourseID == row.CourseID || h.SessionID == row.SessionID {
				continue
			}
			if h.Date.Weekday() != row.Date.Weekday() {
				continue
			}
			if h.StartTime < row.EndTime && row.StartTime < h.EndTime {
				weeks[h.Date] = true
			}
		}
		if len(weeks) >= roomHabitThreshold {
			notes = append(notes, fmt.Sprintf("room %s typically used by another course on %s at %s",
				row.Room, row.Date.Weekday(), row.StartTime))
		}
	}

	if classesThatDay > 1 {
		notes = append(notes, fmt.Sprintf("session has %d classes on %s", classesThatDay, row.Date))
	}
	return strings.Join(notes, "; ")
}
