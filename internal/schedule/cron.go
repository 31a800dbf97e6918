package schedule

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/camilorivas/mayordomo/internal/timeutil"
)

// cronFieldCount is the number of whitespace-separated fields in a supported
// expression: minute, hour, day-of-month, month, day-of-week (0 = Sunday).
const cronFieldCount = 5

// MatchesCron reports whether the given wall-clock components satisfy a
// 5-field cron expression. All five fields must match. An expression with the
// wrong field count never matches; callers treat that as a configuration
// error, not a crash.
//
// Per field: "*" matches anything, "*/n" matches values divisible by n,
// "a-b" is an inclusive ascending range, "a,b,c" is a list of exact values,
// and a bare integer matches exactly. Combined syntaxes like "1-5/2" and
// named months/days are not supported and will not match.
func MatchesCron(expr string, wc timeutil.WallClock) bool {
	fields := strings.Fields(expr)
	if len(fields) != cronFieldCount {
		return false
	}

	return matchCronField(fields[0], wc.Minute) &&
		matchCronField(fields[1], wc.Hour) &&
		matchCronField(fields[2], wc.DayOfMonth) &&
		matchCronField(fields[3], wc.Month) &&
		matchCronField(fields[4], wc.DayOfWeek)
}

func matchCronField(field string, value int) bool {
	if field == "*" {
		return true
	}

	if step, ok := strings.CutPrefix(field, "*/"); ok {
		n, err := strconv.Atoi(step)
		if err != nil || n <= 0 {
			return false
		}
		// Step matching is on the raw value, so "*/2" for day-of-month
		// matches even days rather than stepping from the range start.
		return value%n == 0
	}

	if lo, hi, ok := strings.Cut(field, "-"); ok {
		a, errA := strconv.Atoi(lo)
		b, errB := strconv.Atoi(hi)
		if errA != nil || errB != nil {
			return false
		}
		return value >= a && value <= b
	}

	if strings.Contains(field, ",") {
		for _, part := range strings.Split(field, ",") {
			n, err := strconv.Atoi(part)
			if err == nil && n == value {
				return true
			}
		}
		return false
	}

	n, err := strconv.Atoi(field)
	return err == nil && n == value
}

// ValidateCron checks an expression at write time so malformed recurrences are
// rejected before they reach the store. The evaluator still tolerates bad
// stored expressions defensively.
func ValidateCron(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != cronFieldCount {
		return fmt.Errorf("cron expression must have %d fields, got %d: %q", cronFieldCount, len(fields), expr)
	}

	for i, field := range fields {
		if err := validateCronField(field); err != nil {
			return fmt.Errorf("cron field %d (%q): %w", i+1, field, err)
		}
	}
	return nil
}

func validateCronField(field string) error {
	if field == "*" {
		return nil
	}

	if step, ok := strings.CutPrefix(field, "*/"); ok {
		n, err := strconv.Atoi(step)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid step value")
		}
		return nil
	}

	if lo, hi, ok := strings.Cut(field, "-"); ok {
		a, errA := strconv.Atoi(lo)
		b, errB := strconv.Atoi(hi)
		if errA != nil || errB != nil {
			return fmt.Errorf("invalid range bounds")
		}
		if a > b {
			return fmt.Errorf("descending range")
		}
		return nil
	}

	for _, part := range strings.Split(field, ",") {
		if _, err := strconv.Atoi(part); err != nil {
			return fmt.Errorf("invalid value %q", part)
		}
	}
	return nil
}
