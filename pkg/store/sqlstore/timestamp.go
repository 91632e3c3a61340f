package sqlstore

import (
	"fmt"
	"time"
)

// Drivers differ in what they hand back for a timestamp column:
// lib/pq gives a time.Time, SQLite may give the text it stored.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

type nullTime struct {
	Time  time.Time
	Valid bool // Valid is true if Time is not NULL
}

func (n *nullTime) Scan(value interface{}) error {
	if value == nil {
		n.Time, n.Valid = time.Time{}, false
		return nil
	}
	t, err := parseTime(value)
	if err != nil {
		return err
	}
	n.Time, n.Valid = t, true
	return nil
}

func (n nullTime) Ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

type timestamp struct {
	time.Time
}

func (t *timestamp) Scan(value interface{}) error {
	parsed, err := parseTime(value)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func parseTime(value interface{}) (time.Time, error) {
	var s string
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return time.Time{}, fmt.Errorf("unsupported Scan of %T into timestamp", value)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a timestamp", s)
}

// dbTime normalises times written to the database, so they compare
// and sort the same in every driver.
func dbTime(t time.Time) time.Time {
	return t.UTC()
}

func dbNullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return dbTime(*t)
}
