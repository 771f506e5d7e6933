package aggregate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"w2wcli/internal/errors"
)

// WeekRange is a resolved week span with an inclusive Monday 00:00 start and
// an exclusive end at Monday 00:00 of the week after the last included week.
type WeekRange struct {
	Start     time.Time
	End       time.Time
	StartCode string
	EndCode   string
}

// ParseWeek parses a week string in full form "YYYYWww" or short form "ww".
// The short form resolves against the ISO year of now.
func ParseWeek(value string, now time.Time) (year, week int, err error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, 0, errors.NewValidationError("week value is empty", nil)
	}

	if idx := strings.Index(value, "W"); idx >= 0 {
		year, err = strconv.Atoi(value[:idx])
		if err != nil {
			return 0, 0, errors.NewValidationError(fmt.Sprintf("invalid week format %q", value), err)
		}
		week, err = strconv.Atoi(value[idx+1:])
		if err != nil {
			return 0, 0, errors.NewValidationError(fmt.Sprintf("invalid week format %q", value), err)
		}
	} else {
		if !allDigits(value) {
			return 0, 0, errors.NewValidationError(fmt.Sprintf("invalid short week format %q", value), nil)
		}
		week, err = strconv.Atoi(value)
		if err != nil {
			return 0, 0, errors.NewValidationError(fmt.Sprintf("invalid short week format %q", value), err)
		}
		year, _ = now.ISOWeek()
	}

	if week < 1 || week > 53 {
		return 0, 0, errors.NewValidationError(fmt.Sprintf("week number out of range 1..53: %d", week), nil)
	}
	return year, week, nil
}

// allDigits reports whether s is non-empty and consists only of ASCII
// digits. Atoi alone would also accept a leading sign.
func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// WeekStart returns Monday 00:00 local time of the given ISO week. It fails
// when the week does not exist (week 53 in a 52-week year).
func WeekStart(year, week int) (time.Time, error) {
	if week < 1 || week > 53 {
		return time.Time{}, errors.NewValidationError(fmt.Sprintf("week number out of range 1..53: %d", week), nil)
	}
	t := weekStartOf(year, week)
	if y, w := t.ISOWeek(); y != year || w != week {
		return time.Time{}, errors.NewValidationError(fmt.Sprintf("ISO year %d has no week %d", year, week), nil)
	}
	return t, nil
}

// weekStartOf computes the Monday of the given ISO week without validating
// that the week exists. January 4 is always in ISO week 1.
func weekStartOf(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.Local)
	wd := int(jan4.Weekday())
	if wd == 0 {
		wd = 7
	}
	monday := jan4.AddDate(0, 0, 1-wd)
	return monday.AddDate(0, 0, (week-1)*7)
}

// WeekFollowingStart returns Monday 00:00 of the week after the given ISO
// week, rolling into week 1 of the next ISO year when needed.
func WeekFollowingStart(year, week int) time.Time {
	if t, err := WeekStart(year, week+1); err == nil {
		return t
	}
	t, _ := WeekStart(year+1, 1)
	return t
}

// ResolveWeekRange resolves start/end week strings into concrete bounds.
// When end is empty the range ends at Monday 00:00 of the current week and
// the last fully included week is the previous one.
func ResolveWeekRange(start, end string, now time.Time) (WeekRange, error) {
	startYear, startWeek, err := ParseWeek(start, now)
	if err != nil {
		return WeekRange{}, err
	}
	startTime, err := WeekStart(startYear, startWeek)
	if err != nil {
		return WeekRange{}, err
	}

	var endBoundary time.Time
	var endCode string
	if end != "" {
		endYear, endWeek, err := ParseWeek(end, now)
		if err != nil {
			return WeekRange{}, err
		}
		if _, err := WeekStart(endYear, endWeek); err != nil {
			return WeekRange{}, err
		}
		endBoundary = WeekFollowingStart(endYear, endWeek)
		endCode = ISOWeek{Year: endYear, Week: endWeek}.Label()
	} else {
		nowYear, nowWeek := now.ISOWeek()
		currentWeekStart, err := WeekStart(nowYear, nowWeek)
		if err != nil {
			return WeekRange{}, err
		}
		endBoundary = currentWeekStart
		prevMonday := currentWeekStart.AddDate(0, 0, -7)
		prevYear, prevWeek := prevMonday.ISOWeek()
		endCode = ISOWeek{Year: prevYear, Week: prevWeek}.Label()
	}

	return WeekRange{
		Start:     startTime,
		End:       endBoundary,
		StartCode: ISOWeek{Year: startYear, Week: startWeek}.Label(),
		EndCode:   endCode,
	}, nil
}
