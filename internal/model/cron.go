package model

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrISOFormat = errors.New("invalid ISO8601 duration")

// ParseCron parses a 5 field cron expression or a @macro.
func ParseCron(expr string) (cron.Schedule, error) {
	e := strings.TrimSpace(expr)
	if e == "" {
		return nil, fmt.Errorf("empty cron expression")
	}
	if strings.HasPrefix(e, "@") {
		return cron.ParseStandard(e)
	}
	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser5.Parse(e)
}

// ParseDuration accepts both Go (1h30m) and ISO8601 (PT1H30M, P1D) durations.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "P") {
		return ParseISODuration(s)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing duration %q: %w", s, err)
	}
	return d, nil
}

var isoDurationRx = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:[.,]\d+)?)S)?)?$`)

// ParseISODuration parses the day/time subset of ISO8601 durations. Years,
// months and weeks are rejected as they have no fixed length.
func ParseISODuration(dur string) (time.Duration, error) {
	if dur == "P" || strings.HasSuffix(dur, "T") {
		return 0, ErrISOFormat
	}
	m := isoDurationRx.FindStringSubmatch(dur)
	if m == nil {
		return 0, ErrISOFormat
	}

	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, part := range m[1:] {
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(strings.Replace(part, ",", ".", 1), 64)
		if err != nil {
			return 0, fmt.Errorf("parsing %q: %w", part, err)
		}
		add := f * float64(units[i])
		if add > math.MaxInt64-float64(total) {
			return 0, errors.New("duration overflow")
		}
		total += time.Duration(add)
	}
	return total, nil
}
