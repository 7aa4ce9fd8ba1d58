/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Dates travel as
  "YYYY-MM-DD", times of day as "HH:MM", so the domain types never leak
  into the wire format.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry validator/v10 struct tags (see validate.go). Shape
  errors become 400 with per-field messages; business rule failures come
  from the engine and map through errors.go.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/catalog.go: ClassOptionJSON, the class option wire format
*/
package api

import (
	"time"

	"github.com/kdl/schedule-engine/scheduling"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// SlotRequest is one proposed (date, start, end).
type SlotRequest struct {
	Date      string `json:"date" validate:"required,isodate"`
	StartTime string `json:"start_time" validate:"required,hhmm"`
	EndTime   string `json:"end_time" validate:"required,hhmm"`
}

type ValidateSlotsRequest struct {
	Slots []SlotRequest `json:"slots" validate:"required,min=1,dive"`
}

// ProposalRequest is a slot plus the resources it would occupy.
type ProposalRequest struct {
	SlotRequest
	TeacherID string `json:"teacher_id"`
	StudentID string `json:"student_id"`
	Room      string `json:"room"`
}

type ConflictRequest struct {
	ProposalRequest
	Exclude []string `json:"exclude,omitempty"`
}

type ConflictsRequest struct {
	Proposals []ProposalRequest `json:"proposals" validate:"required,min=1,dive"`
	Exclude   []string          `json:"exclude,omitempty"`
}

type BulkSchedulesRequest struct {
	SessionID string        `json:"session_id" validate:"required,notblank"`
	StudentID string        `json:"student_id,omitempty"`
	CourseID  string        `json:"course_id,omitempty"`
	TeacherID string        `json:"teacher_id,omitempty"`
	Room      string        `json:"room,omitempty"`
	Nickname  string        `json:"nickname,omitempty"`
	Remark    string        `json:"remark,omitempty"`
	Slots     []SlotRequest `json:"slots" validate:"required,min=1,dive"`
}

// UpdateScheduleRequest is a partial update; omitted fields are unchanged.
type UpdateScheduleRequest struct {
	Date         *string `json:"date,omitempty" validate:"omitempty,isodate"`
	StartTime    *string `json:"start_time,omitempty" validate:"omitempty,hhmm"`
	EndTime      *string `json:"end_time,omitempty" validate:"omitempty,hhmm"`
	Room         *string `json:"room,omitempty" validate:"omitempty,notblank"`
	TeacherID    *string `json:"teacher_id,omitempty" validate:"omitempty,notblank"`
	Attendance   *string `json:"attendance,omitempty" validate:"omitempty,oneof=scheduled present absent cancelled"`
	Feedback     *string `json:"feedback,omitempty"`
	FeedbackDate *string `json:"feedback_date,omitempty" validate:"omitempty,isodate"`
	Nickname     *string `json:"nickname,omitempty"`
	Remark       *string `json:"remark,omitempty"`
}

type CreateSessionRequest struct {
	ID            string `json:"id,omitempty"`
	StudentID     string `json:"student_id" validate:"required,notblank"`
	CourseID      string `json:"course_id,omitempty"`
	TeacherID     string `json:"teacher_id,omitempty"`
	ClassOptionID string `json:"class_option_id,omitempty"`
}

type AssignSessionRequest struct {
	CourseID      string `json:"course_id" validate:"required,notblank"`
	TeacherID     string `json:"teacher_id" validate:"required,notblank"`
	ClassOptionID string `json:"class_option_id" validate:"required,notblank"`
}

type ExtendSessionRequest struct {
	Extra int `json:"extra" validate:"required,min=1"`
}

type ClassOptionRequest struct {
	ID                 string `json:"id,omitempty"`
	Name               string `json:"name" validate:"required,notblank"`
	ClassMode          string `json:"class_mode" validate:"required,oneof=fixed-12 camp-2 camp-5 package-open"`
	TuitionFee         string `json:"tuition_fee,omitempty" validate:"omitempty,numeric"`
	ClassLimit         int    `json:"class_limit,omitempty" validate:"min=0"`
	EffectiveStartDate string `json:"effective_start_date,omitempty" validate:"omitempty,isodate"`
	EffectiveEndDate   string `json:"effective_end_date,omitempty" validate:"omitempty,isodate"`
}

type DeactivateClassOptionRequest struct {
	Date string `json:"date,omitempty" validate:"omitempty,isodate"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type SlotDTO struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type ScheduleDTO struct {
	ID           string  `json:"id"`
	SessionID    string  `json:"session_id"`
	StudentID    string  `json:"student_id"`
	TeacherID    string  `json:"teacher_id"`
	CourseID     string  `json:"course_id"`
	Room         string  `json:"room"`
	Date         string  `json:"date"`
	StartTime    string  `json:"start_time"`
	EndTime      string  `json:"end_time"`
	ClassNumber  int     `json:"class_number"`
	Attendance   string  `json:"attendance"`
	Feedback     string  `json:"feedback,omitempty"`
	FeedbackDate *string `json:"feedback_date,omitempty"`
	Warning      string  `json:"warning,omitempty"`
	Nickname     string  `json:"nickname,omitempty"`
	Remark       string  `json:"remark,omitempty"`
	CreatedAt    string  `json:"created_at,omitempty"`
	UpdatedAt    string  `json:"updated_at,omitempty"`
}

type SessionDTO struct {
	ID             string `json:"id"`
	StudentID      string `json:"student_id"`
	CourseID       string `json:"course_id"`
	TeacherID      string `json:"teacher_id"`
	ClassOptionID  string `json:"class_option_id"`
	ClassMode      string `json:"class_mode"`
	ClassLimit     int    `json:"class_limit"`
	CompletedCount int    `json:"completed_count"`
	ScheduledCount int    `json:"scheduled_count"`
	ClassCancel    int    `json:"class_cancel"`
	Payment        string `json:"payment"`
	Status         string `json:"status"`
	InvoiceDone    bool   `json:"invoice_done"`
	Version        int    `json:"version"`
	CreatedAt      string `json:"created_at,omitempty"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

type CollisionDTO struct {
	Dimension    string  `json:"dimension"`
	ScheduleID   string  `json:"schedule_id,omitempty"`
	SiblingIndex *int    `json:"sibling_index,omitempty"`
	Slot         SlotDTO `json:"slot"`
}

type ConflictDTO struct {
	SlotIndex  int            `json:"slot_index"`
	Slot       SlotDTO        `json:"slot"`
	Dimensions []string       `json:"dimensions"`
	Collisions []CollisionDTO `json:"collisions"`
}

type ConflictResultDTO struct {
	Conflict  bool          `json:"conflict"`
	Conflicts []ConflictDTO `json:"conflicts"`
}

type WarningDTO struct {
	SlotIndex  int    `json:"slot_index"`
	ScheduleID string `json:"schedule_id"`
	Message    string `json:"message"`
}

type EventDTO struct {
	ID          string            `json:"id"`
	At          string            `json:"at"`
	Action      string            `json:"action"`
	SessionID   string            `json:"session_id"`
	ScheduleIDs []string          `json:"schedule_ids,omitempty"`
	Payload     map[string]string `json:"payload,omitempty"`
}

type BatchResultDTO struct {
	Session   SessionDTO    `json:"session"`
	Created   int           `json:"created"`
	Replayed  bool          `json:"replayed"`
	Schedules []ScheduleDTO `json:"schedules"`
	Warnings  []WarningDTO  `json:"warnings"`
}

type RequirementDTO struct {
	Mode      string `json:"mode"`
	Required  *int   `json:"required,omitempty"`
	Selected  int    `json:"selected"`
	Satisfied bool   `json:"satisfied"`
	Shortfall int    `json:"shortfall,omitempty"`
	Excess    int    `json:"excess,omitempty"`
	Message   string `json:"message,omitempty"`
}

type PreviewDTO struct {
	Session     SessionDTO     `json:"session"`
	Requirement RequirementDTO `json:"requirement"`
	Schedules   []ScheduleDTO  `json:"schedules"`
	Warnings    []WarningDTO   `json:"warnings"`
	Conflicts   []ConflictDTO  `json:"conflicts"`
	Violations  []ViolationDTO `json:"violations,omitempty"`
	Replayed    bool           `json:"replayed"`
	Blocked     bool           `json:"blocked"`
}

type ClassOptionDTO struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	ClassMode          string `json:"class_mode"`
	TuitionFee         string `json:"tuition_fee"`
	ClassLimit         int    `json:"class_limit"`
	EffectiveStartDate string `json:"effective_start_date,omitempty"`
	EffectiveEndDate   string `json:"effective_end_date,omitempty"`
	Active             bool   `json:"active"`
}

// ViolationDTO lists the rule failures of one slot.
type ViolationDTO struct {
	SlotIndex int      `json:"slot_index"`
	Slot      SlotDTO  `json:"slot"`
	Messages  []string `json:"messages"`
}

type ValidateSlotsDTO struct {
	Valid      bool           `json:"valid"`
	Violations []ViolationDTO `json:"violations,omitempty"`
}

// ErrorResponse is the body of every non-2xx response. Kind is the engine
// error kind; Fields, Violations and Conflicts are filled when relevant.
type ErrorResponse struct {
	Error      string            `json:"error"`
	Kind       string            `json:"kind,omitempty"`
	Details    string            `json:"details,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	Violations []ViolationDTO    `json:"violations,omitempty"`
	Conflicts  []ConflictDTO     `json:"conflicts,omitempty"`
	Retryable  bool              `json:"retryable,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func (s SlotRequest) toSlot() (scheduling.Slot, error) {
	d, err := scheduling.ParseDate(s.Date)
	if err != nil {
		return scheduling.Slot{}, err
	}
	start, err := scheduling.ParseTimeOfDay(s.StartTime)
	if err != nil {
		return scheduling.Slot{}, err
	}
	end, err := scheduling.ParseTimeOfDay(s.EndTime)
	if err != nil {
		return scheduling.Slot{}, err
	}
	return scheduling.Slot{Date: d, Start: start, End: end}, nil
}

func toSlots(in []SlotRequest) ([]scheduling.Slot, error) {
	out := make([]scheduling.Slot, len(in))
	for i, s := range in {
		slot, err := s.toSlot()
		if err != nil {
			return nil, err
		}
		out[i] = slot
	}
	return out, nil
}

func (p ProposalRequest) toProposal() (scheduling.Proposal, error) {
	slot, err := p.toSlot()
	if err != nil {
		return scheduling.Proposal{}, err
	}
	return scheduling.Proposal{
		Slot:      slot,
		TeacherID: scheduling.TeacherID(p.TeacherID),
		StudentID: scheduling.StudentID(p.StudentID),
		Room:      scheduling.RoomID(p.Room),
	}, nil
}

func toScheduleIDs(in []string) []scheduling.ScheduleID {
	out := make([]scheduling.ScheduleID, len(in))
	for i, id := range in {
		out[i] = scheduling.ScheduleID(id)
	}
	return out
}

func toSlotDTO(s scheduling.Slot) SlotDTO {
	return SlotDTO{Date: s.Date.String(), StartTime: s.Start.String(), EndTime: s.End.String()}
}

func toScheduleDTO(s scheduling.Schedule) ScheduleDTO {
	dto := ScheduleDTO{
		ID:          string(s.ID),
		SessionID:   string(s.SessionID),
		StudentID:   string(s.StudentID),
		TeacherID:   string(s.TeacherID),
		CourseID:    string(s.CourseID),
		Room:        string(s.Room),
		Date:        s.Date.String(),
		StartTime:   s.StartTime.String(),
		EndTime:     s.EndTime.String(),
		ClassNumber: s.ClassNumber,
		Attendance:  string(s.Attendance),
		Feedback:    s.Feedback,
		Warning:     s.Warning,
		Nickname:    s.Nickname,
		Remark:      s.Remark,
		CreatedAt:   formatTime(s.CreatedAt),
		UpdatedAt:   formatTime(s.UpdatedAt),
	}
	if s.FeedbackDate != nil {
		fd := s.FeedbackDate.String()
		dto.FeedbackDate = &fd
	}
	return dto
}

func toScheduleDTOs(in []scheduling.Schedule) []ScheduleDTO {
	out := make([]ScheduleDTO, len(in))
	for i, s := range in {
		out[i] = toScheduleDTO(s)
	}
	return out
}

func toSessionDTO(s scheduling.Session) SessionDTO {
	return SessionDTO{
		ID:             string(s.ID),
		StudentID:      string(s.StudentID),
		CourseID:       string(s.CourseID),
		TeacherID:      string(s.TeacherID),
		ClassOptionID:  string(s.ClassOptionID),
		ClassMode:      string(s.Mode),
		ClassLimit:     s.ClassLimit,
		CompletedCount: s.CompletedCount,
		ScheduledCount: s.ScheduledCount,
		ClassCancel:    s.ClassCancel,
		Payment:        string(s.Payment),
		Status:         string(s.Status),
		InvoiceDone:    s.InvoiceDone,
		Version:        s.Version,
		CreatedAt:      formatTime(s.CreatedAt),
		UpdatedAt:      formatTime(s.UpdatedAt),
	}
}

func toConflictDTOs(in []scheduling.ConflictDetail) []ConflictDTO {
	out := make([]ConflictDTO, len(in))
	for i, d := range in {
		dto := ConflictDTO{SlotIndex: d.SlotIndex, Slot: toSlotDTO(d.Slot)}
		for _, dim := range d.Dimensions() {
			dto.Dimensions = append(dto.Dimensions, string(dim))
		}
		for _, c := range d.Collisions {
			cd := CollisionDTO{
				Dimension:  string(c.Dimension),
				ScheduleID: string(c.ScheduleID),
				Slot:       toSlotDTO(c.Slot),
			}
			if c.Sibling() {
				idx := c.SiblingIndex
				cd.SiblingIndex = &idx
			}
			dto.Collisions = append(dto.Collisions, cd)
		}
		out[i] = dto
	}
	return out
}

func toWarningDTOs(in []scheduling.SlotWarning) []WarningDTO {
	out := make([]WarningDTO, len(in))
	for i, w := range in {
		out[i] = WarningDTO{SlotIndex: w.SlotIndex, ScheduleID: string(w.ScheduleID), Message: w.Message}
	}
	return out
}

func toViolationDTOs(e *scheduling.BatchValidationError) []ViolationDTO {
	if e == nil {
		return nil
	}
	out := make([]ViolationDTO, len(e.Slots))
	for i, se := range e.Slots {
		v := ViolationDTO{SlotIndex: se.Index, Slot: toSlotDTO(se.Slot)}
		for _, err := range se.Violations {
			v.Messages = append(v.Messages, err.Error())
		}
		out[i] = v
	}
	return out
}

func toRequirementDTO(r scheduling.Requirement) RequirementDTO {
	return RequirementDTO{
		Mode:      string(r.Mode),
		Required:  r.Required,
		Selected:  r.Selected,
		Satisfied: r.Satisfied,
		Shortfall: r.Shortfall,
		Excess:    r.Excess,
		Message:   r.Message,
	}
}

func toEventDTO(e scheduling.Event) EventDTO {
	dto := EventDTO{
		ID:        e.ID,
		At:        formatTime(e.At),
		Action:    string(e.Action),
		SessionID: string(e.SessionID),
		Payload:   e.Payload,
	}
	for _, id := range e.ScheduleIDs {
		dto.ScheduleIDs = append(dto.ScheduleIDs, string(id))
	}
	return dto
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
