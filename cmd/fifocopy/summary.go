package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/jzx17/fifocopy/pkg/retry"
	"github.com/jzx17/fifocopy/pkg/types"
)

// renderSummary reports what one run did once both loops have exited
func renderSummary(stats types.RunStats, copies *retry.RetryStats, files, bytes int64, elapsed time.Duration) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Summary", ""})
	tw.AppendRows([]table.Row{
		{"State", stats.State.String()},
		{"Queued", humanize.Comma(stats.Queue.Accepted)},
		{"Not queued", humanize.Comma(stats.Queue.Rejected)},
		{"Peak queue", fmt.Sprintf("%d / %d", stats.Queue.HighWater, stats.Queue.Capacity)},
		{"Copied", humanize.Comma(files)},
		{"Failed", humanize.Comma(stats.Consumer.TotalFailed)},
		{"Success rate", fmt.Sprintf("%.1f%%", stats.Consumer.GetSuccessRate()*100)},
		{"Retries", humanize.Comma(stats.Consumer.TotalRetries)},
	})
	if copies != nil {
		tw.AppendRows([]table.Row{
			{"Copy attempts", humanize.Comma(copies.TotalAttempts)},
			{"Attempts per file", fmt.Sprintf("%.2f", copies.AverageAttempts)},
			{"Retry wait", copies.TotalRetryDelay.Round(time.Millisecond).String()},
		})
	}
	tw.AppendRows([]table.Row{
		{"Bytes", humanize.Bytes(uint64(max(bytes, 0)))},
		{"Elapsed", elapsed.Round(time.Millisecond).String()},
	})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	return tw.Render()
}
