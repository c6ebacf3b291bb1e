// Package market describes the data items the site publishes: where each one
// lives, how to navigate to it and how its CSV is retrieved.
package market

import (
	"fmt"
	"sort"
	"strings"

	"github.com/IshaanNene/jepx/internal/automation"
	"github.com/IshaanNene/jepx/internal/fetcher"
	"github.com/IshaanNene/jepx/internal/storage"
	"github.com/IshaanNene/jepx/internal/types"
)

// Kind identifies a data item.
type Kind string

const (
	KindSpotGraph          Kind = "spot-graph"
	KindBidCurve           Kind = "bid-curve"
	KindVirtualPrice       Kind = "virtual-price"
	KindSummary            Kind = "summary"
	KindUnitStatus         Kind = "unit-status"
	KindOutages            Kind = "outages"
	KindUnit               Kind = "unit"
	KindTransmissionRights Kind = "transmission-rights"
)

// Landing pages, relative to the site base URL.
const (
	SpotPage               = "electricpower/market-data/spot/"
	BidCurvePage           = "electricpower/market-data/spot/bid-curves/"
	VirtualPricePage       = "electricpower/market-data/spot/virtual-price/"
	TransmissionRightsPage = "electricpower/market-data/transmission-rights/"
	UnitPage               = "unit"
	OutagesPage            = "outages"
)

// Page selectors. The data-dl buttons open a dataset's download dialog and
// never start a download themselves; CSVDownloadButton submits the export.
const (
	PriceModeLabel     = "span.active"
	IntervalLabel      = "label.filter-label.active"
	AllAreasCheckbox   = "#checkbox-area--graph #area_all"
	CSVFormatField     = "#csv"
	CSVDownloadButton  = "input[type='submit'][value='CSVダウンロード']"
	SpotSummaryButton  = "button[data-dl='spot_summary']"
	VirtualPriceButton = "button[data-dl='virtualprice']"
)

// Default UI state expected on the spot page.
const (
	DefaultPriceMode = "約定価格　入札・約定量"
	DefaultInterval  = "30分コマ"
)

// DefaultArea is the unit-status area used when none is given (Kyushu).
const DefaultArea = "9"

// Params are per-invocation choices that shape an item's recipe or strategy.
type Params struct {
	Area string
}

// Item is one retrievable data item.
type Item struct {
	Kind Kind
	Path string

	// Calendar is true when the item is navigated by date picker rather than
	// addressed by a fixed dataset identifier.
	Calendar bool

	// Dated is true when the command takes a target date.
	Dated bool

	steps    func(url string, d types.TargetDate, w automation.Waiter) automation.Recipe
	strategy func(p Params) fetcher.Strategy
}

// Recipe returns the navigation steps for d, with goto targeting base+Path.
func (it Item) Recipe(base string, d types.TargetDate, w automation.Waiter) automation.Recipe {
	return it.steps(strings.TrimSuffix(base, "/")+"/"+it.Path, d, w)
}

// Strategy returns the retrieval strategy for this item.
func (it Item) Strategy(p Params) fetcher.Strategy {
	if p.Area == "" {
		p.Area = DefaultArea
	}
	return it.strategy(p)
}

var registry = map[Kind]Item{
	KindSpotGraph: {
		Kind:     KindSpotGraph,
		Path:     SpotPage,
		Calendar: true,
		Dated:    true,
		steps:    spotGraphSteps,
		strategy: func(Params) fetcher.Strategy {
			return fetcher.DownloadCapture{Trigger: CSVDownloadButton, Prefix: "spot"}
		},
	},
	KindBidCurve: {
		Kind:     KindBidCurve,
		Path:     BidCurvePage,
		Calendar: true,
		Dated:    true,
		steps:    calendarSteps,
		strategy: func(Params) fetcher.Strategy {
			return fetcher.DirectFetch{
				Datasets:  []string{"spot_bid_curves"},
				Naming:    storage.NamingDate,
				TokenPage: BidCurvePage,
			}
		},
	},
	KindVirtualPrice: {
		Kind:  KindVirtualPrice,
		Path:  VirtualPricePage,
		Dated: true,
		steps: downloadMenuSteps(VirtualPriceButton),
		strategy: func(Params) fetcher.Strategy {
			return fetcher.DirectFetch{
				Datasets: []string{"virtualprice", "virtualprice_diff"},
				Naming:   storage.NamingFiscalYear,
			}
		},
	},
	KindSummary: {
		Kind:  KindSummary,
		Path:  SpotPage,
		Dated: true,
		steps: downloadMenuSteps(SpotSummaryButton),
		strategy: func(Params) fetcher.Strategy {
			return fetcher.DirectFetch{
				Datasets: []string{"spot_summary"},
				Naming:   storage.NamingFiscalYear,
			}
		},
	},
	KindUnitStatus: {
		Kind:  KindUnitStatus,
		Path:  SpotPage,
		Dated: true,
		steps: landingSteps,
		strategy: func(p Params) fetcher.Strategy {
			return fetcher.UnitStatusFetch{Area: p.Area}
		},
	},
	KindUnit: {
		Kind:     KindUnit,
		Path:     UnitPage,
		steps:    csvFormSteps,
		strategy: csvFormDownload("unit"),
	},
	KindOutages: {
		Kind:     KindOutages,
		Path:     OutagesPage,
		steps:    csvFormSteps,
		strategy: csvFormDownload("outages"),
	},
	KindTransmissionRights: {
		Kind:     KindTransmissionRights,
		Path:     TransmissionRightsPage,
		Calendar: true,
		Dated:    true,
		steps:    calendarSteps,
		strategy: func(Params) fetcher.Strategy {
			return fetcher.DirectFetch{
				Datasets:  []string{"ftr_result"},
				Naming:    storage.NamingDate,
				TokenPage: TransmissionRightsPage,
			}
		},
	},
}

// Lookup returns the item registered for kind.
func Lookup(kind Kind) (Item, error) {
	it, ok := registry[kind]
	if !ok {
		return Item{}, fmt.Errorf("%w: %q", types.ErrUnknownItem, kind)
	}
	return it, nil
}

// Kinds lists every registered item kind in name order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
