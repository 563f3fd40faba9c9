package entity

import (
	"strconv"
	"strings"
	"time"

	"notifyd/internal/domain/constant"
	"notifyd/internal/domain/recurrence"
)

// Schedule is the stored schedule record. The payload is an opaque blob owned
// by the caller; the engine never inspects it. Columns are only ever added,
// never renamed or removed, so records written by older versions stay
// readable (missing columns read as zero values).
type Schedule struct {
	ID             string                `gorm:"column:id;primaryKey"`
	ScheduleType   constant.ScheduleType `gorm:"column:schedule_type;index"`
	AnchorTime     time.Time             `gorm:"column:anchor_time"`
	Timezone       string                `gorm:"column:timezone"` // IANA TZ, e.g. "Asia/Tokyo"
	WeekDays       string                `gorm:"column:week_days"` // comma-separated weekday numbers, Sunday=0
	IntervalEvery  int                   `gorm:"column:interval_every"`
	IntervalUnit   constant.IntervalUnit `gorm:"column:interval_unit"`
	EndDate        *time.Time            `gorm:"column:end_date"`
	MaxOccurrences *int                  `gorm:"column:max_occurrences"`
	AdjustForDST   bool                  `gorm:"column:adjust_for_dst"`
	Active         bool                  `gorm:"column:active;index"`
	Payload        []byte                `gorm:"column:payload;type:blob"`
	TriggerCount   int                   `gorm:"column:trigger_count"`
	NextOccurrence *time.Time            `gorm:"column:next_occurrence"`
	BackendToken   string                `gorm:"column:backend_token"` // opaque alarm backend handle; dead after a restart
	CreatedAt      time.Time             `gorm:"column:created_at"`
	UpdatedAt      time.Time             `gorm:"column:updated_at"`
}

// TableName specifies the table name for the Schedule entity.
func (Schedule) TableName() string {
	return "schedule_record"
}

// WeekDaySet parses the stored comma-separated weekday list. Unparseable
// entries are dropped.
func (s *Schedule) WeekDaySet() []time.Weekday {
	if s.WeekDays == "" {
		return nil
	}
	parts := strings.Split(s.WeekDays, ",")
	days := make([]time.Weekday, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		days = append(days, time.Weekday(n))
	}
	return days
}

// SetWeekDays stores the weekday set in its serialized column form.
func (s *Schedule) SetWeekDays(days []time.Weekday) {
	if len(days) == 0 {
		s.WeekDays = ""
		return
	}
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	s.WeekDays = strings.Join(parts, ",")
}

// RecurrenceSpec projects the stored columns into the calculator's value
// type. An unknown or empty timezone falls back to UTC. When AdjustForDST is
// false the location is frozen to the anchor's UTC offset, so occurrences do
// not reproject through the zone's DST rules.
func (s *Schedule) RecurrenceSpec() recurrence.Spec {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil || s.Timezone == "" {
		loc = time.UTC
	}
	if !s.AdjustForDST {
		name, offset := s.AnchorTime.In(loc).Zone()
		loc = time.FixedZone(name, offset)
	}
	return recurrence.Spec{
		Type:          s.ScheduleType,
		Anchor:        s.AnchorTime.In(loc),
		Location:      loc,
		WeekDays:      s.WeekDaySet(),
		IntervalEvery: s.IntervalEvery,
		IntervalUnit:  s.IntervalUnit,
		EndDate:       s.EndDate,
		Active:        s.Active,
	}
}

// IsRecurring reports whether the schedule produces more than one occurrence.
func (s *Schedule) IsRecurring() bool {
	return s.ScheduleType.IsRecurring()
}

// ReachedMaxOccurrences reports whether the trigger count has hit the
// optional occurrence cap.
func (s *Schedule) ReachedMaxOccurrences() bool {
	return s.MaxOccurrences != nil && s.TriggerCount >= *s.MaxOccurrences
}

// Expired reports whether the end date has passed at the given instant.
func (s *Schedule) Expired(now time.Time) bool {
	return s.EndDate != nil && now.After(*s.EndDate)
}

// Retire permanently deactivates the schedule. A retired schedule never
// becomes active again except by re-registration under the same id.
func (s *Schedule) Retire() {
	s.Active = false
	s.NextOccurrence = nil
	s.BackendToken = ""
}
