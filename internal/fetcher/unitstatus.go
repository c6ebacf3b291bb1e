package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IshaanNene/jepx/internal/storage"
	"github.com/IshaanNene/jepx/internal/types"
)

const (
	unitStatusPage = "unit_status"
	unitStatusAjax = "unit_status_ajax"
)

// Table is a header plus string rows, ready for CSV encoding.
type Table struct {
	Header []string
	Rows   [][]string
}

type unitStatusPayload struct {
	Status     string            `json:"status"`
	StartDates []json.RawMessage `json:"startdtList"`
	Operating  []unitSeries      `json:"unitStatusSeriesList"`
	Stopped    []unitSeries      `json:"unitStopStatusSeriesList"`
}

type unitSeries struct {
	Name string     `json:"name"`
	Data []*float64 `json:"data"`
}

// ParseUnitStatus decodes the unit-status JSON into operating and stopped
// capacity tables. Values are converted from kW to MW; nulls become empty cells.
func ParseUnitStatus(body []byte) (operating, stopped *Table, err error) {
	var payload unitStatusPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil, fmt.Errorf("decode unit status: %w", err)
	}
	if payload.Status != "success" {
		return nil, nil, fmt.Errorf("unit status response status %q", payload.Status)
	}

	dates := make([]string, len(payload.StartDates))
	for i, raw := range payload.StartDates {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			dates[i] = s
		} else {
			dates[i] = string(raw)
		}
	}

	if operating, err = seriesTable(dates, payload.Operating); err != nil {
		return nil, nil, fmt.Errorf("operating series: %w", err)
	}
	if stopped, err = seriesTable(dates, payload.Stopped); err != nil {
		return nil, nil, fmt.Errorf("stopped series: %w", err)
	}
	return operating, stopped, nil
}

func seriesTable(dates []string, series []unitSeries) (*Table, error) {
	t := &Table{Header: make([]string, 0, len(series)+1)}
	t.Header = append(t.Header, "Date")
	for _, s := range series {
		if len(s.Data) != len(dates) {
			return nil, fmt.Errorf("series %q has %d points for %d dates", s.Name, len(s.Data), len(dates))
		}
		t.Header = append(t.Header, s.Name)
	}

	t.Rows = make([][]string, len(dates))
	for i, d := range dates {
		row := make([]string, 0, len(series)+1)
		row = append(row, d)
		for _, s := range series {
			if v := s.Data[i]; v != nil {
				row = append(row, strconv.FormatFloat(*v/1000, 'f', -1, 64))
			} else {
				row = append(row, "")
			}
		}
		t.Rows[i] = row
	}
	return t, nil
}

// UnitStatusFetch retrieves the generating-unit status series for one area
// and writes the operating and stopped tables as per-date CSVs.
type UnitStatusFetch struct {
	Area string
}

func (u UnitStatusFetch) Name() string { return "unit-status" }

// ValidateArea accepts the grid area codes 1 through 9.
func ValidateArea(area string) error {
	if len(area) != 1 || area[0] < '1' || area[0] > '9' {
		return fmt.Errorf("%w: %q", types.ErrInvalidArea, area)
	}
	return nil
}

func (u UnitStatusFetch) datasets() []string {
	return []string{
		"unit_status_opr_area" + u.Area,
		"unit_status_stop_area" + u.Area,
	}
}

func (u UnitStatusFetch) Retrieve(ctx context.Context, env *Env, date types.TargetDate) []Outcome {
	log := env.logger().With("strategy", u.Name(), "area", u.Area)

	// The area becomes part of the file name, so nothing is resolved before it is checked.
	if err := ValidateArea(u.Area); err != nil {
		log.Warn("unit status retrieval refused", "error", err)
		return []Outcome{
			{Dataset: "unit_status_opr", Err: err},
			{Dataset: "unit_status_stop", Err: err},
		}
	}

	names := u.datasets()
	outcomes := make([]Outcome, len(names))
	skipped := 0
	for i, name := range names {
		outcomes[i] = Outcome{Dataset: name, Path: env.Sink.Path(storage.NamingDate, name, date)}
		if !env.Overwrite && env.Sink.Exists(outcomes[i].Path) {
			outcomes[i].Skipped = true
			skipped++
		}
	}
	if skipped == len(outcomes) {
		if env.Metrics != nil {
			env.Metrics.FilesSkipped.Add(int64(skipped))
		}
		log.Info("files exist, skipping download")
		return outcomes
	}

	fail := func(err error) []Outcome {
		log.Warn("unit status retrieval failed, no file written", "error", err)
		for i := range outcomes {
			if !outcomes[i].Skipped {
				outcomes[i].Err = err
			}
		}
		return outcomes
	}

	body, err := u.fetch(ctx, env.Client, date)
	if err != nil {
		return fail(err)
	}
	operating, stopped, err := ParseUnitStatus(body)
	if err != nil {
		return fail(err)
	}

	for i, table := range []*Table{operating, stopped} {
		out := &outcomes[i]
		if out.Skipped {
			if env.Metrics != nil {
				env.Metrics.FilesSkipped.Add(1)
			}
			continue
		}
		data, err := storage.EncodeTable(table.Header, table.Rows)
		if err == nil {
			err = env.Sink.Write(out.Path, data)
		}
		if err != nil {
			out.Err = err
			log.Warn("write failed", "path", out.Path, "error", err)
			continue
		}
		out.Size = len(data)
		if env.Metrics != nil {
			env.Metrics.FilesWritten.Add(1)
		}
	}
	return outcomes
}

// fetch primes the server-side query with a token-bearing request, then reads
// the JSON the page would load over XHR.
func (u UnitStatusFetch) fetch(ctx context.Context, c *Client, date types.TargetDate) ([]byte, error) {
	token, err := c.FetchToken(ctx, unitStatusPage)
	if err != nil {
		return nil, err
	}

	query := map[string]string{
		"from":   date.String(),
		"to":     "",
		"area":   u.Area,
		"format": "1",
		"_csrf":  token,
	}
	res, err := c.Get(ctx, unitStatusPage, query, c.Resolve(unitStatusPage))
	if err != nil {
		return nil, &types.FetchError{URL: c.Resolve(unitStatusPage), Err: err}
	}
	if err := Accept(res.StatusCode(), res.Body(), 0); err != nil {
		return nil, &types.FetchError{URL: c.Resolve(unitStatusPage), StatusCode: res.StatusCode(), Err: err}
	}

	ms := strconv.FormatInt(time.Now().UnixMilli(), 10)
	res, err = c.Get(ctx, unitStatusAjax, map[string]string{"_": ms}, c.Resolve(unitStatusPage))
	if err != nil {
		return nil, &types.FetchError{URL: c.Resolve(unitStatusAjax), Err: err}
	}
	if err := Accept(res.StatusCode(), res.Body(), 0); err != nil {
		return nil, &types.FetchError{URL: c.Resolve(unitStatusAjax), StatusCode: res.StatusCode(), Err: err}
	}
	return res.Body(), nil
}
