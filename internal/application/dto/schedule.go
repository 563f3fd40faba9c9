package dto

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"notifyd/internal/domain/constant"
	"notifyd/internal/domain/entity"
	"notifyd/internal/domain/repository"
)

// CanonicalID derives the stored schedule id from the caller's logical
// notification id. This is the single point where the caller's integer id is
// coerced to the core's string id; nothing below the DTO layer converts ids.
func CanonicalID(notificationID int64) string {
	return fmt.Sprintf("ntf-%d", notificationID)
}

// IntervalSpec describes the step of a custom schedule.
type IntervalSpec struct {
	Every int    `json:"every"`
	Unit  string `json:"unit"` // minute | hour | day | week | month
}

// RegisterScheduleRequest is the DTO for registering (or re-registering) a
// schedule. Re-registering the same notification_id overwrites the previous
// record instead of duplicating it.
type RegisterScheduleRequest struct {
	NotificationID int64           `json:"notification_id"`
	ScheduleType   string          `json:"schedule_type"`
	Anchor         time.Time       `json:"anchor"`
	Timezone       string          `json:"timezone,omitempty"` // IANA TZ; defaults to UTC
	WeekDays       []string        `json:"week_days,omitempty"`
	Interval       *IntervalSpec   `json:"interval,omitempty"`
	EndDate        *time.Time      `json:"end_date,omitempty"`
	MaxOccurrences *int            `json:"max_occurrences,omitempty"`
	AdjustForDST   *bool           `json:"adjust_for_dst,omitempty"` // defaults to true
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// UpdateScheduleRequest is the DTO for partially updating a stored schedule
// spec. Nil fields are left unchanged. Updating does not re-arm the wake-up;
// the merged spec takes effect at the next fire or restart.
type UpdateScheduleRequest struct {
	ScheduleType   *string          `json:"schedule_type,omitempty"`
	Anchor         *time.Time       `json:"anchor,omitempty"`
	Timezone       *string          `json:"timezone,omitempty"`
	WeekDays       []string         `json:"week_days,omitempty"`
	Interval       *IntervalSpec    `json:"interval,omitempty"`
	EndDate        *time.Time       `json:"end_date,omitempty"`
	MaxOccurrences *int             `json:"max_occurrences,omitempty"`
	AdjustForDST   *bool            `json:"adjust_for_dst,omitempty"`
	Payload        *json.RawMessage `json:"payload,omitempty"`
}

// ScheduleResponse is the DTO for sending schedule information to the client.
type ScheduleResponse struct {
	ID             string          `json:"id"`
	ScheduleType   string          `json:"schedule_type"`
	Anchor         time.Time       `json:"anchor"`
	Timezone       string          `json:"timezone"`
	WeekDays       []string        `json:"week_days,omitempty"`
	Interval       *IntervalSpec   `json:"interval,omitempty"`
	EndDate        *time.Time      `json:"end_date,omitempty"`
	MaxOccurrences *int            `json:"max_occurrences,omitempty"`
	AdjustForDST   bool            `json:"adjust_for_dst"`
	Active         bool            `json:"active"`
	TriggerCount   int             `json:"trigger_count"`
	NextOccurrence *time.Time      `json:"next_occurrence,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// StatisticsResponse is the DTO for the schedule statistics summary.
type StatisticsResponse struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Expired   int `json:"expired"`
	Recurring int `json:"recurring"`
	OneTime   int `json:"one_time"`
}

// ToScheduleResponse converts an entity.Schedule to a ScheduleResponse DTO.
func ToScheduleResponse(s *entity.Schedule) ScheduleResponse {
	resp := ScheduleResponse{
		ID:             s.ID,
		ScheduleType:   s.ScheduleType.String(),
		Anchor:         s.AnchorTime,
		Timezone:       s.Timezone,
		WeekDays:       FormatWeekDays(s.WeekDaySet()),
		EndDate:        s.EndDate,
		MaxOccurrences: s.MaxOccurrences,
		AdjustForDST:   s.AdjustForDST,
		Active:         s.Active,
		TriggerCount:   s.TriggerCount,
		NextOccurrence: s.NextOccurrence,
		Payload:        json.RawMessage(s.Payload),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	if s.ScheduleType == constant.TypeCustom {
		resp.Interval = &IntervalSpec{Every: s.IntervalEvery, Unit: s.IntervalUnit.String()}
	}
	return resp
}

// ToScheduleResponseList converts a slice of entity.Schedule to a slice of
// ScheduleResponse DTOs.
func ToScheduleResponseList(schedules []*entity.Schedule) []ScheduleResponse {
	list := make([]ScheduleResponse, len(schedules))
	for i, s := range schedules {
		list[i] = ToScheduleResponse(s)
	}
	return list
}

// ToStatisticsResponse converts repository statistics to the response DTO.
func ToStatisticsResponse(stats repository.Statistics) StatisticsResponse {
	return StatisticsResponse{
		Total:     stats.Total,
		Active:    stats.Active,
		Expired:   stats.Expired,
		Recurring: stats.Recurring,
		OneTime:   stats.OneTime,
	}
}

var weekDayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekDays converts weekday names ("mon", "Monday", ...) to their
// time.Weekday values.
func ParseWeekDays(names []string) ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		d, ok := weekDayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		days = append(days, d)
	}
	return days, nil
}

// FormatWeekDays converts weekday values back to their short names.
func FormatWeekDays(days []time.Weekday) []string {
	if len(days) == 0 {
		return nil
	}
	short := []string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = short[int(d)%7]
	}
	return names
}
