package constant

// ScheduleType defines the closed set of recurrence variants a schedule can have.
type ScheduleType string

const (
	// TypeOneTime fires exactly once, at the anchor instant.
	TypeOneTime ScheduleType = "oneTime"
	// TypeDaily fires every day at the anchor's time-of-day.
	TypeDaily ScheduleType = "daily"
	// TypeWeekly fires on a set of weekdays at the anchor's time-of-day.
	TypeWeekly ScheduleType = "weekly"
	// TypeMonthly fires on the anchor's day-of-month at the anchor's time-of-day.
	TypeMonthly ScheduleType = "monthly"
	// TypeYearly fires on the anchor's month and day at the anchor's time-of-day.
	TypeYearly ScheduleType = "yearly"
	// TypeCustom fires every N interval units counted from the anchor.
	TypeCustom ScheduleType = "custom"
)

// Valid reports whether the value is a member of the closed variant set.
func (t ScheduleType) Valid() bool {
	switch t {
	case TypeOneTime, TypeDaily, TypeWeekly, TypeMonthly, TypeYearly, TypeCustom:
		return true
	}
	return false
}

// IsRecurring reports whether the type produces more than one occurrence.
func (t ScheduleType) IsRecurring() bool {
	return t.Valid() && t != TypeOneTime
}

func (t ScheduleType) String() string {
	return string(t)
}

// IntervalUnit defines the step unit for TypeCustom schedules.
type IntervalUnit string

const (
	UnitMinute IntervalUnit = "minute"
	UnitHour   IntervalUnit = "hour"
	UnitDay    IntervalUnit = "day"
	UnitWeek   IntervalUnit = "week"
	UnitMonth  IntervalUnit = "month"
)

// Valid reports whether the value is a recognized interval unit.
func (u IntervalUnit) Valid() bool {
	switch u {
	case UnitMinute, UnitHour, UnitDay, UnitWeek, UnitMonth:
		return true
	}
	return false
}

func (u IntervalUnit) String() string {
	return string(u)
}
