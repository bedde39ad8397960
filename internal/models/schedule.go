package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Day: день занятия: либо день недели (еженедельное расписание), либо конкретная дата.
type Day struct {
	Weekday time.Weekday
	Date    time.Time // нулевая для еженедельных занятий
}

func WeekdayDay(w time.Weekday) Day {
	return Day{Weekday: w}
}

func DateDay(t time.Time) Day {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return Day{Weekday: d.Weekday(), Date: d}
}

func (d Day) IsDate() bool {
	return !d.Date.IsZero()
}

// Key: каноническое строковое представление дня: "2025-09-01" или "monday".
func (d Day) Key() string {
	if d.IsDate() {
		return d.Date.Format(dateLayout)
	}
	return strings.ToLower(d.Weekday.String())
}

func (d Day) String() string {
	return d.Key()
}

func (d Day) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Key())
}

func (d *Day) UnmarshalJSON(b []byte) error {
	var key string
	if err := json.Unmarshal(b, &key); err != nil {
		return err
	}
	parsed, err := ParseDayKey(key)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDayKey разбирает значение, полученное из Day.Key.
func ParseDayKey(key string) (Day, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	for w := time.Sunday; w <= time.Saturday; w++ {
		if strings.ToLower(w.String()) == key {
			return WeekdayDay(w), nil
		}
	}
	t, err := time.Parse(dateLayout, key)
	if err != nil {
		return Day{}, fmt.Errorf("unknown day key %q", key)
	}
	return DateDay(t), nil
}

// Clock: время суток с точностью до минуты (минуты от полуночи).
type Clock int

func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return c.parse(s)
}

// Value пишет время в колонку TIME.
func (c Clock) Value() (driver.Value, error) {
	return fmt.Sprintf("%02d:%02d:00", c.Hour(), c.Minute()), nil
}

func (c *Clock) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*c = NewClock(v.Hour(), v.Minute())
		return nil
	case []byte:
		return c.parse(string(v))
	case string:
		return c.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into Clock", src)
	}
}

func (c *Clock) parse(s string) error {
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseClock принимает "15:04" и "15:04:05".
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewClock(t.Hour(), t.Minute()), nil
		}
	}
	return 0, fmt.Errorf("invalid clock value %q", s)
}

// ScheduleEntry: одно занятие группы после нормализации.
type ScheduleEntry struct {
	Group       string      `json:"group"`
	Day         Day         `json:"day"`
	Start       Clock       `json:"start"`
	End         Clock       `json:"end"`
	Subject     string      `json:"subject"`
	Room        string      `json:"room,omitempty"`
	Instructor  string      `json:"instructor,omitempty"`
	BatchID     string      `json:"batch_id"`
	Fingerprint Fingerprint `json:"fingerprint"`
}

func (e ScheduleEntry) Scope() Scope {
	return Scope{Group: e.Group, Day: e.Day}
}

// SlotKey идентифицирует занятие: (группа, день, начало).
func (e ScheduleEntry) SlotKey() string {
	return e.Scope().Key() + "|" + e.Start.String()
}

// Scope: единица атомарной замены: (группа, день).
type Scope struct {
	Group string
	Day   Day
}

func (s Scope) Key() string {
	return s.Group + "|" + s.Day.Key()
}

// ScopesOf возвращает различные области батча в порядке первого появления.
func ScopesOf(entries []ScheduleEntry) []Scope {
	seen := make(map[string]struct{}, len(entries))
	var scopes []Scope
	for _, e := range entries {
		sc := e.Scope()
		if _, ok := seen[sc.Key()]; ok {
			continue
		}
		seen[sc.Key()] = struct{}{}
		scopes = append(scopes, sc)
	}
	return scopes
}

// DaySchedule: занятия группы в конкретную дату.
type DaySchedule struct {
	Date    time.Time       `json:"date"`
	Entries []ScheduleEntry `json:"entries"`
}
