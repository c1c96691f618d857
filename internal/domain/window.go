package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RequestWindow describes one extraction request: an inclusive date range,
// the hours of day to keep, and the provider variable long names to fetch.
type RequestWindow struct {
	Start     time.Time
	End       time.Time
	Hours     []int
	Variables []string
}

// ParseHours parses a comma-separated list of zero-padded hour-of-day
// strings ("00".."23") as passed on the command line.
func ParseHours(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, &InputError{Err: fmt.Errorf("empty hour selection")}
	}
	parts := strings.Split(s, ",")
	hours := make([]int, 0, len(parts))
	seen := make(map[int]bool)
	for _, p := range parts {
		p = strings.TrimSpace(p)
		h, err := strconv.Atoi(p)
		if err != nil || h < 0 || h > 23 {
			return nil, &InputError{Err: fmt.Errorf("invalid hour %q (want \"00\"..\"23\")", p)}
		}
		if !seen[h] {
			seen[h] = true
			hours = append(hours, h)
		}
	}
	sort.Ints(hours)
	return hours, nil
}

// ParseVariables parses a comma-separated variable list.
func ParseVariables(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, &InputError{Err: fmt.Errorf("empty variable selection")}
	}
	parts := strings.Split(s, ",")
	vars := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, &InputError{Err: fmt.Errorf("empty variable name in list")}
		}
		vars = append(vars, p)
	}
	return vars, nil
}

// Validate checks the window invariants: non-empty hour and variable sets,
// start not after end.
func (w RequestWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return &InputError{Err: fmt.Errorf("start and end dates are required")}
	}
	if w.End.Before(w.Start) {
		return &InputError{Err: fmt.Errorf("start date %s is after end date %s",
			w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))}
	}
	if len(w.Hours) == 0 {
		return &InputError{Err: fmt.Errorf("empty hour selection")}
	}
	for _, h := range w.Hours {
		if h < 0 || h > 23 {
			return &InputError{Err: fmt.Errorf("hour %d out of range", h)}
		}
	}
	if len(w.Variables) == 0 {
		return &InputError{Err: fmt.Errorf("empty variable selection")}
	}
	return nil
}

// ContainsHour reports whether a timestamp's UTC hour is in the selection.
func (w RequestWindow) ContainsHour(t time.Time) bool {
	h := t.UTC().Hour()
	for _, sel := range w.Hours {
		if sel == h {
			return true
		}
	}
	return false
}

// Years, Months and Days return the de-duplicated, sorted, zero-padded
// component sets covering the inclusive date range, in the shape the
// provider request body expects.
func (w RequestWindow) Years() []string  { return w.dateComponents(func(t time.Time) int { return t.Year() }, 4) }
func (w RequestWindow) Months() []string { return w.dateComponents(func(t time.Time) int { return int(t.Month()) }, 2) }
func (w RequestWindow) Days() []string   { return w.dateComponents(func(t time.Time) int { return t.Day() }, 2) }

func (w RequestWindow) dateComponents(pick func(time.Time) int, width int) []string {
	seen := make(map[int]bool)
	var vals []int
	for d := w.Start; !d.After(w.End); d = d.AddDate(0, 0, 1) {
		v := pick(d)
		if !seen[v] {
			seen[v] = true
			vals = append(vals, v)
		}
	}
	sort.Ints(vals)
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = fmt.Sprintf("%0*d", width, v)
	}
	return out
}

// HourStrings returns the hour selection as zero-padded strings, the form
// the provider request uses.
func (w RequestWindow) HourStrings() []string {
	out := make([]string, len(w.Hours))
	for i, h := range w.Hours {
		out[i] = fmt.Sprintf("%02d", h)
	}
	return out
}

// DateSuffix names run-scoped files: "<YYYYMMDD>_<YYYYMMDD>".
func (w RequestWindow) DateSuffix() string {
	return w.Start.Format("20060102") + "_" + w.End.Format("20060102")
}
