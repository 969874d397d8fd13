package alerting

import (
	"fmt"
	"strings"

	"perpwatch/internal/detector"
	"perpwatch/internal/enrich"
)

// RenderAlert formats a detected event plus its enrichment into the single
// human-readable alert message sent to every recipient.
func RenderAlert(event *detector.Event, snapshot enrich.Snapshot, score float64) string {
	arrow := "▼"
	verb := "DUMP"
	if event.Direction == detector.DirectionUp {
		arrow = "▲"
		verb = "PUMP"
	}

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("%s %s %s (%s)\n", arrow, verb, event.Symbol, event.Exchange))
	builder.WriteString(fmt.Sprintf("Move: %.2f%% (%s)\n", event.VariationPct, event.Direction))
	builder.WriteString(fmt.Sprintf("OI 1h: %+.2f%% (%.0f → %.0f)\n", snapshot.OIDeltaPct, snapshot.OIPrev, snapshot.OILast))
	builder.WriteString(fmt.Sprintf("Volume 1h: %+.2f%% | Notional: %+.2f%%\n", snapshot.VolDeltaPct, snapshot.NotionalDeltaPct))
	builder.WriteString(fmt.Sprintf("Funding: %+.4f%%\n", snapshot.FundingRate*100))
	builder.WriteString(fmt.Sprintf("All-time position: %s (%.2f)\n", snapshot.PositionLabel, snapshot.PositionRatio))
	if snapshot.LiquidationOK {
		builder.WriteString(fmt.Sprintf("Liq 5m: long %.0f / short %.0f\n", snapshot.LongLiqQty, snapshot.ShortLiqQty))
	}
	builder.WriteString(fmt.Sprintf("Short score: %.2f\n", score))
	builder.WriteString(fmt.Sprintf("At: %s UTC", event.ObservedAt.UTC().Format("2006-01-02 15:04:05")))
	return builder.String()
}
