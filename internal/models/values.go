package models

import (
	"math"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

const dayLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// Day is a calendar date counted in days since 1970-01-01 (UTC).
// It marshals to and from "YYYY-MM-DD".
type Day int32

func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	secs := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
	days := secs / secondsPerDay
	if secs%secondsPerDay < 0 {
		days--
	}
	return Day(days)
}

func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return 0, errors.Wrapf(err, "parse date %q", s)
	}
	return DayOf(t), nil
}

func (d Day) Time() time.Time {
	return time.Unix(int64(d)*secondsPerDay, 0).UTC()
}

func (d Day) String() string {
	return d.Time().Format(dayLayout)
}

func (d Day) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, d.String()), nil
}

func (d *Day) UnmarshalJSON(b []byte) error {
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return errors.Newf("date must be a quoted YYYY-MM-DD string, got %s", b)
	}
	v, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Stat is a statistic that may be undefined. The zero value is undefined
// and marshals as JSON null, so "no data" is never confused with 0 or NaN.
type Stat struct {
	value   float64
	defined bool
}

// Known returns a defined Stat. NaN and infinities are stored as undefined.
func Known(v float64) Stat {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Stat{}
	}
	return Stat{value: v, defined: true}
}

func (s Stat) Value() (float64, bool) {
	return s.value, s.defined
}

func (s Stat) Defined() bool {
	return s.defined
}

func (s Stat) String() string {
	if !s.defined {
		return "n/a"
	}
	return strconv.FormatFloat(s.value, 'f', -1, 64)
}

func (s Stat) MarshalJSON() ([]byte, error) {
	if !s.defined {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, s.value, 'g', -1, 64), nil
}

func (s *Stat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = Stat{}
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return errors.Wrap(err, "parse statistic")
	}
	*s = Known(v)
	return nil
}
