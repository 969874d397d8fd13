package app

import (
	"context"
	"fmt"
	"os"
)

// Evaluate runs the on-demand enrichment and scoring path for one symbol and
// prints the resulting snapshot. No live trigger or stream is required.
func (a *App) Evaluate(ctx context.Context, symbol string) error {
	client := a.newBybitClient()
	enricher := a.newEnricher(client, nil)

	snapshot := enricher.Fetch(ctx, symbol)
	score := snapshot.ShortScore()

	fmt.Fprintf(os.Stdout, "%s\n", symbol)
	fmt.Fprintf(os.Stdout, "  OI 1h:        %+.2f%% (%.0f -> %.0f)\n", snapshot.OIDeltaPct, snapshot.OIPrev, snapshot.OILast)
	fmt.Fprintf(os.Stdout, "  Volume 1h:    %+.2f%%\n", snapshot.VolDeltaPct)
	fmt.Fprintf(os.Stdout, "  Notional 1h:  %+.2f%%\n", snapshot.NotionalDeltaPct)
	fmt.Fprintf(os.Stdout, "  Funding:      %+.4f%%\n", snapshot.FundingRate*100)
	fmt.Fprintf(os.Stdout, "  Position:     %s (%.2f)\n", snapshot.PositionLabel, snapshot.PositionRatio)
	if snapshot.LiquidationOK {
		fmt.Fprintf(os.Stdout, "  Liquidations: long %.0f / short %.0f\n", snapshot.LongLiqQty, snapshot.ShortLiqQty)
	}
	fmt.Fprintf(os.Stdout, "  Short score:  %.2f\n", score)
	return nil
}
