package executor

import "fmt"

// order-id kind tags, per the client order id grammar of spec.md §6.
const (
	kindEntryBuy      = "entry_buy"
	kindExitSell      = "exit_sell"
	kindStopSell      = "stop_sell"
	kindStopSellRetry = "stop_sell_retry"
)

// clientOrderID builds the {trade_date}_{ticker}_{kind} grammar shared
// by the state store, the broker, and the signal file.
func clientOrderID(tradeDate, ticker, kind string) string {
	return fmt.Sprintf("%s_%s_%s", tradeDate, ticker, kind)
}
