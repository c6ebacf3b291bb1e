package market

import (
	"github.com/IshaanNene/jepx/internal/automation"
	"github.com/IshaanNene/jepx/internal/fetcher"
	"github.com/IshaanNene/jepx/internal/types"
)

// spotGraphSteps verifies the default view, sets the date, shows all areas and
// opens the download dialog. A layout mismatch fails only its own step.
func spotGraphSteps(url string, d types.TargetDate, w automation.Waiter) automation.Recipe {
	r := automation.Recipe{
		automation.Goto(url),
		automation.ExpectText("assert-price-mode", automation.PhaseLayoutVerified, PriceModeLabel, DefaultPriceMode),
		automation.ExpectText("assert-interval", automation.PhaseLayoutVerified, IntervalLabel, DefaultInterval),
	}
	r = append(r, automation.DatePickerSteps(d, w)...)
	return append(r,
		automation.Check("select-all-areas", automation.PhaseAreaOrModeSelected, AllAreasCheckbox),
		automation.Click("open-download-menu", automation.PhaseAreaOrModeSelected, SpotSummaryButton),
		automation.Settle("settle-view", automation.PhaseReady, w, automation.ElementPresent(CSVDownloadButton)),
	)
}

func calendarSteps(url string, d types.TargetDate, w automation.Waiter) automation.Recipe {
	r := automation.Recipe{automation.Goto(url)}
	r = append(r, automation.DatePickerSteps(d, w)...)
	return append(r, automation.Settle("settle-view", automation.PhaseReady, w, nil))
}

// downloadMenuSteps opens the dataset's download dialog. The file itself is
// fetched over the side channel, so no date is entered.
func downloadMenuSteps(button string) func(string, types.TargetDate, automation.Waiter) automation.Recipe {
	return func(url string, _ types.TargetDate, w automation.Waiter) automation.Recipe {
		return automation.Recipe{
			automation.Goto(url),
			automation.Click("open-download-menu", automation.PhaseAreaOrModeSelected, button),
			automation.Settle("settle-view", automation.PhaseReady, w, nil),
		}
	}
}

// landingSteps only loads the page, giving the side channel session cookies.
func landingSteps(url string, _ types.TargetDate, w automation.Waiter) automation.Recipe {
	return automation.Recipe{
		automation.Goto(url),
		automation.Settle("settle-page", automation.PhaseReady, w, nil),
	}
}

func csvFormSteps(url string, _ types.TargetDate, w automation.Waiter) automation.Recipe {
	return automation.Recipe{
		automation.Goto(url),
		automation.Settle("settle-page", automation.PhasePageLoaded, w, automation.ElementPresent(CSVFormatField)),
		automation.SetValue("select-csv-format", automation.PhaseAreaOrModeSelected, CSVFormatField, "csv"),
	}
}

func csvFormDownload(prefix string) func(Params) fetcher.Strategy {
	return func(Params) fetcher.Strategy {
		return fetcher.DownloadCapture{Trigger: CSVDownloadButton, Prefix: prefix}
	}
}
