package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout 排班日期格式
const DateLayout = "2006-01-02"

// TimeOfDay 一天中的时间（自零点起的分钟数）
type TimeOfDay int

// EndOfDay 24:00，只能作为结束时间（Postgres TIME 允许 24:00:00）
const EndOfDay TimeOfDay = 24 * 60

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS" (seconds are dropped), plus "24:00" as EndOfDay.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" || s == "24:00:00" {
		return EndOfDay, nil
	}
	var t time.Time
	var err error
	if strings.Count(s, ":") == 2 {
		t, err = time.Parse("15:04:05", s)
	} else {
		t, err = time.Parse("15:04", s)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// MustTimeOfDay is ParseTimeOfDay for constants; it panics on malformed input.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String formats as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// MarshalText 以 HH:MM 输出
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText 解析 HH:MM
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// NormalizeDate validates a YYYY-MM-DD date and returns it in canonical form.
func NormalizeDate(s string) (string, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d.Format(DateLayout), nil
}
