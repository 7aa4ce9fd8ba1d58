/*
conflict.go - Teacher, room and student double-booking detection

PURPOSE:
  Decides whether proposed slots collide with persisted schedules or with
  each other. Three dimensions are checked independently:

    teacher: same TeacherID
    room:    same Room
    student: same StudentID

OVERLAP TEST:
  Two slots on the same date overlap iff s1 < e2 AND s2 < e1. Intervals are
  half-open, so back-to-back classes (e1 == s2) do not conflict.

    existing   09:00 |=========| 10:00
    proposed         09:30 |=========| 10:30   -> conflict
    proposed              10:00 |=========| 11:00 -> no conflict (adjacent)

ENTRY POINTS:
  CheckConflict:   one proposal against persisted state
  CheckConflicts:  a batch against persisted state AND every sibling pair
                   within the batch (operator error can request two
                   overlapping camp days in one submission)
  DetectConflicts: the pure core both use, over an explicit snapshot

CANCELLED SCHEDULES:
  Excluded from every scan. Cancelling a slot frees its teacher, room and
  student at that time.

SEE ALSO:
  - coordinator.go: Runs the batch check inside the commit transaction
  - store.go: ScheduleReader supplies the persisted snapshot
*/
package scheduling

import (
	"context"
	"fmt"
	"sort"
)

// =============================================================================
// DIMENSIONS
// =============================================================================

type Dimension string

const (
	DimensionTeacher Dimension = "teacher"
	DimensionRoom    Dimension = "room"
	DimensionStudent Dimension = "student"
)

var allDimensions = []Dimension{DimensionTeacher, DimensionRoom, DimensionStudent}

// Overlaps reports whether a and b share any instant. Symmetric.
func Overlaps(a, b Slot) bool {
	return a.Date == b.Date && a.Start < b.End && b.Start < a.End
}

// =============================================================================
// CONFLICT DETAIL
// =============================================================================

// Collision is one offending booking for one dimension. Persisted bookings
// carry ScheduleID; sibling bookings from the same batch carry SiblingIndex.
type Collision struct {
	Dimension    Dimension
	ScheduleID   ScheduleID
	SiblingIndex int // -1 for persisted schedules
	Slot         Slot
}

// Sibling reports whether the collision is with another slot of the batch.
func (c Collision) Sibling() bool { return c.SiblingIndex >= 0 }

// ConflictDetail lists every collision of one proposed slot.
type ConflictDetail struct {
	SlotIndex  int
	Slot       Slot
	Collisions []Collision
}

// Dimensions returns the distinct dimensions involved, in canonical order.
func (d ConflictDetail) Dimensions() []Dimension {
	var out []Dimension
	for _, dim := range allDimensions {
		for _, c := range d.Collisions {
			if c.Dimension == dim {
				out = append(out, dim)
				break
			}
		}
	}
	return out
}

// ScheduleIDs returns the persisted schedules involved for a dimension.
func (d ConflictDetail) ScheduleIDs(dim Dimension) []ScheduleID {
	var out []ScheduleID
	for _, c := range d.Collisions {
		if c.Dimension == dim && !c.Sibling() {
			out = append(out, c.ScheduleID)
		}
	}
	return out
}

func (d ConflictDetail) String() string {
	return fmt.Sprintf("slot %d (%s): %v", d.SlotIndex, d.Slot, d.Dimensions())
}

// =============================================================================
// SCHEDULE INDEX - Persisted snapshot bucketed by date and resource
// =============================================================================

type resourceKey struct {
	dim Dimension
	id  string
}

func keysOf(teacher TeacherID, student StudentID, room RoomID) []resourceKey {
	keys := make([]resourceKey, 0, 3)
	if teacher != "" {
		keys = append(keys, resourceKey{DimensionTeacher, string(teacher)})
	}
	if room != "" {
		keys = append(keys, resourceKey{DimensionRoom, string(room)})
	}
	if student != "" {
		keys = append(keys, resourceKey{DimensionStudent, string(student)})
	}
	return keys
}

type scheduleIndex map[Date]map[resourceKey][]Schedule

func buildIndex(existing []Schedule, exclude map[ScheduleID]bool) scheduleIndex {
	idx := make(scheduleIndex)
	for _, s := range existing {
		if !s.Active() || exclude[s.ID] {
			continue
		}
		byKey := idx[s.Date]
		if byKey == nil {
			byKey = make(map[resourceKey][]Schedule)
			idx[s.Date] = byKey
		}
		for _, k := range keysOf(s.TeacherID, s.StudentID, s.Room) {
			byKey[k] = append(byKey[k], s)
		}
	}
	return idx
}

func (idx scheduleIndex) collisions(p Proposal) []Collision {
	byKey := idx[p.Slot.Date]
	if byKey == nil {
		return nil
	}
	var out []Collision
	for _, k := range keysOf(p.TeacherID, p.StudentID, p.Room) {
		for _, s := range byKey[k] {
			if Overlaps(p.Slot, s.Slot()) {
				out = append(out, Collision{Dimension: k.dim, ScheduleID: s.ID, SiblingIndex: -1, Slot: s.Slot()})
			}
		}
	}
	return out
}

// =============================================================================
// PURE DETECTION
// =============================================================================

// DetectConflicts checks every proposal against existing (minus cancelled
// and excluded schedules) and every sibling pair. The result holds one
// ConflictDetail per conflicting proposal, ordered by slot index, with
// collisions ordered by dimension and then by schedule ID / sibling index.
func DetectConflicts(proposals []Proposal, existing []Schedule, exclude map[ScheduleID]bool) []ConflictDetail {
	idx := buildIndex(existing, exclude)
	found := make([][]Collision, len(proposals))

	for i, p := range proposals {
		found[i] = idx.collisions(p)
	}

	for i := 0; i < len(proposals); i++ {
		for j := i + 1; j < len(proposals); j++ {
			a, b := proposals[i], proposals[j]
			if !Overlaps(a.Slot, b.Slot) {
				continue
			}
			for _, dim := range sharedDimensions(a, b) {
				found[i] = append(found[i], Collision{Dimension: dim, SiblingIndex: j, Slot: b.Slot})
				found[j] = append(found[j], Collision{Dimension: dim, SiblingIndex: i, Slot: a.Slot})
			}
		}
	}

	var out []ConflictDetail
	for i, cs := range found {
		if len(cs) == 0 {
			continue
		}
		sortCollisions(cs)
		out = append(out, ConflictDetail{SlotIndex: i, Slot: proposals[i].Slot, Collisions: cs})
	}
	return out
}

func sharedDimensions(a, b Proposal) []Dimension {
	var dims []Dimension
	if a.TeacherID != "" && a.TeacherID == b.TeacherID {
		dims = append(dims, DimensionTeacher)
	}
	if a.Room != "" && a.Room == b.Room {
		dims = append(dims, DimensionRoom)
	}
	if a.StudentID != "" && a.StudentID == b.StudentID {
		dims = append(dims, DimensionStudent)
	}
	return dims
}

func dimensionRank(d Dimension) int {
	for i, dim := range allDimensions {
		if dim == d {
			return i
		}
	}
	return len(allDimensions)
}

func sortCollisions(cs []Collision) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Dimension != b.Dimension {
			return dimensionRank(a.Dimension) < dimensionRank(b.Dimension)
		}
		if a.Sibling() != b.Sibling() {
			return !a.Sibling()
		}
		if a.ScheduleID != b.ScheduleID {
			return a.ScheduleID < b.ScheduleID
		}
		return a.SiblingIndex < b.SiblingIndex
	})
}

// =============================================================================
// DETECTOR - Store-backed entry points
// =============================================================================

// Detector loads the relevant persisted schedules and runs DetectConflicts.
type Detector struct {
	Reader ScheduleReader
}

func NewDetector(reader ScheduleReader) *Detector {
	return &Detector{Reader: reader}
}

// CheckConflict checks a single proposal. Returns nil when the slot is clear.
func (d *Detector) CheckConflict(ctx context.Context, p Proposal, exclude ...ScheduleID) (*ConflictDetail, error) {
	details, err := d.CheckConflicts(ctx, []Proposal{p}, exclude...)
	if err != nil || len(details) == 0 {
		return nil, err
	}
	return &details[0], nil
}

// CheckConflicts checks a batch against persisted state and within itself.
func (d *Detector) CheckConflicts(ctx context.Context, proposals []Proposal, exclude ...ScheduleID) ([]ConflictDetail, error) {
	if len(proposals) == 0 {
		return nil, nil
	}
	existing, err := d.Reader.ListActiveSchedules(ctx, FilterFor(proposals))
	if err != nil {
		return nil, fmt.Errorf("failed to load schedules for conflict check: %w", err)
	}
	return DetectConflicts(proposals, existing, excludeSet(exclude)), nil
}

// FilterFor returns the narrowest filter that still covers every schedule
// that could collide with one of the proposals.
func FilterFor(proposals []Proposal) ScheduleFilter {
	var f ScheduleFilter
	seenDate := make(map[Date]bool)
	seenTeacher := make(map[TeacherID]bool)
	seenRoom := make(map[RoomID]bool)
	seenStudent := make(map[StudentID]bool)
	for _, p := range proposals {
		if !seenDate[p.Slot.Date] {
			seenDate[p.Slot.Date] = true
			f.Dates = append(f.Dates, p.Slot.Date)
		}
		if p.TeacherID != "" && !seenTeacher[p.TeacherID] {
			seenTeacher[p.TeacherID] = true
			f.TeacherIDs = append(f.TeacherIDs, p.TeacherID)
		}
		if p.Room != "" && !seenRoom[p.Room] {
			seenRoom[p.Room] = true
			f.Rooms = append(f.Rooms, p.Room)
		}
		if p.StudentID != "" && !seenStudent[p.StudentID] {
			seenStudent[p.StudentID] = true
			f.StudentIDs = append(f.StudentIDs, p.StudentID)
		}
	}
	sort.Slice(f.Dates, func(i, j int) bool { return f.Dates[i].Before(f.Dates[j]) })
	return f
}

func excludeSet(ids []ScheduleID) map[ScheduleID]bool {
	if len(ids) == 0 {
		return nil
	}
	m := make(map[ScheduleID]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}
