package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/jepx/internal/automation"
	"github.com/IshaanNene/jepx/internal/config"
	"github.com/IshaanNene/jepx/internal/fetcher"
	"github.com/IshaanNene/jepx/internal/jepx"
	"github.com/IshaanNene/jepx/internal/market"
	"github.com/IshaanNene/jepx/internal/types"
)

func TestDateArg(t *testing.T) {
	cmd := &cobra.Command{}
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"valid", []string{"2025/04/01"}, false},
		{"missing", nil, true},
		{"extra", []string{"2025/04/01", "2025/04/02"}, true},
		{"bad month", []string{"2025/13/40"}, true},
		{"dashes", []string{"2025-04-01"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := dateArg(cmd, tt.args)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatedCommandRejectsBadDate(t *testing.T) {
	cmd := datedCmd("curve", market.KindBidCurve, "test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"2025-04-01"})

	err := cmd.Execute()
	assert.ErrorIs(t, err, types.ErrInvalidDate)
	assert.Contains(t, out.String(), "Usage:")
}

func TestUnitStatusCommandRejectsBadArea(t *testing.T) {
	for _, bad := range []string{"../x", "0", "10"} {
		t.Run(bad, func(t *testing.T) {
			cmd := unitStatusCmd()
			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetErr(&out)
			cmd.SetArgs([]string{"2025/04/24", "--area", bad})

			err := cmd.Execute()
			assert.ErrorIs(t, err, types.ErrInvalidArea)
		})
	}
}

func TestTraceFlagOverridesConfig(t *testing.T) {
	t.Cleanup(func() { traceOut = "" })

	cmd := datedCmd("curve", market.KindBidCurve, "test")
	require.NoError(t, cmd.ParseFlags([]string{"--trace", "stdout"}))
	cfg := config.DefaultConfig()
	applyCLIOverrides(cmd, cfg)
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)
	assert.NoError(t, config.Validate(cfg))

	require.NoError(t, cmd.ParseFlags([]string{"--trace", "jaeger"}))
	cfg = config.DefaultConfig()
	applyCLIOverrides(cmd, cfg)
	assert.Error(t, config.Validate(cfg))
}

func TestPrintReport(t *testing.T) {
	res := &jepx.Result{
		Kind: market.KindVirtualPrice,
		Date: types.TargetDate{Year: 2025, Month: time.April, Day: 24},
		Report: &automation.Report{Results: []automation.StepResult{
			{Step: "goto", Phase: automation.PhasePageLoaded},
			{Step: "open-download-menu", Phase: automation.PhaseAreaOrModeSelected, Err: errors.New("element not found")},
		}},
		Outcomes: []fetcher.Outcome{
			{Dataset: "virtualprice", Path: "csv/virtualprice_2025.csv", Size: 4096},
			{Dataset: "virtualprice_diff", Path: "csv/virtualprice_diff_2025.csv", Skipped: true},
		},
		Duration: 1500 * time.Millisecond,
	}

	var buf bytes.Buffer
	printReport(&buf, res)
	out := buf.String()

	for _, want := range []string{
		"virtual-price 2025/04/24",
		"open-download-menu",
		"element not found",
		"csv/virtualprice_2025.csv",
		"exists, skipped",
		"completed in 1.5s",
	} {
		assert.Contains(t, out, want)
	}
	require.True(t, strings.Contains(out, "4096"))
}
