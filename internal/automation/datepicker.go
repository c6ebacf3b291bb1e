package automation

import (
	"fmt"
	"strconv"

	"github.com/IshaanNene/jepx/internal/types"
)

// Selectors of the site's jQuery UI date picker.
const (
	DatePickerToggle = "#button--calender-show"
	DatePickerYear   = ".ui-datepicker-year"
	DatePickerMonth  = ".ui-datepicker-month"
)

// DayCellSelector matches the calendar cell for day of the displayed month.
func DayCellSelector(day int) string {
	return fmt.Sprintf("a.ui-state-default[data-date='%d']", day)
}

// DatePickerSteps sets the picker to d. The day cell is only clicked when both
// year and month were selected, otherwise it would pick that day in whatever
// month the widget happens to show.
func DatePickerSteps(d types.TargetDate, w Waiter) Recipe {
	return Recipe{
		Click("open-date-picker", PhaseDateSet, DatePickerToggle),
		Select("select-year", PhaseDateSet, DatePickerYear, strconv.Itoa(d.Year)),
		Select("select-month", PhaseDateSet, DatePickerMonth, strconv.Itoa(d.PickerMonth())),
		withRequires(
			Click("select-day", PhaseDateSet, DayCellSelector(d.Day)),
			"select-year", "select-month",
		),
		Settle("settle-date", PhaseDateSet, w, nil),
	}
}

func withRequires(s Step, names ...string) Step {
	s.Requires = append(s.Requires, names...)
	return s
}
