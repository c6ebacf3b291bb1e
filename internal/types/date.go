package types

import (
	"fmt"
	"time"
)

// DateLayout is the only accepted textual form of a target date.
const DateLayout = "2006/01/02"

// FiscalYearStartMonth is the first month of the Japanese April to March fiscal year.
const FiscalYearStartMonth = time.April

// TargetDate is the calendar date a retrieval is performed for.
type TargetDate struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseTargetDate parses a YYYY/MM/DD string.
func ParseTargetDate(s string) (TargetDate, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TargetDate{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) TargetDate {
	y, m, d := t.Date()
	return TargetDate{Year: y, Month: m, Day: d}
}

// String returns the YYYY/MM/DD form used on the command line and by the site.
func (d TargetDate) String() string {
	return fmt.Sprintf("%04d/%02d/%02d", d.Year, int(d.Month), d.Day)
}

// Compact returns the slash-stripped YYYYMMDD form used in file names.
func (d TargetDate) Compact() string {
	return fmt.Sprintf("%04d%02d%02d", d.Year, int(d.Month), d.Day)
}

// PickerMonth is the zero-indexed month value used by the date-picker widget.
func (d TargetDate) PickerMonth() int {
	return int(d.Month) - 1
}

// FiscalYear returns the April to March fiscal year the date belongs to.
func (d TargetDate) FiscalYear() int {
	if d.Month >= FiscalYearStartMonth {
		return d.Year
	}
	return d.Year - 1
}

// Time returns midnight of the date in loc.
func (d TargetDate) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Artifact is a retrieved file: raw bytes plus the name the server suggested for it.
type Artifact struct {
	Name string
	Data []byte
}

// Size returns the artifact length in bytes.
func (a *Artifact) Size() int {
	if a == nil {
		return 0
	}
	return len(a.Data)
}
