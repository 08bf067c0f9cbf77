package binance

import (
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
)

const (
	// BinanceDecimalPrecision is a default decimal precision used as a fallback.
	// 8 decimals allows for satoshi-level precision (0.00000001 BTC) for BTC-like assets.
	BinanceDecimalPrecision = 8

	clientIDSeparator = "."
	cidLength         = 22

	ocoLimitSuffix = ":l"
	ocoStopSuffix  = ":s"
)

// Binance error codes, see https://developers.binance.com/docs/binance-spot-api-docs/errors
const (
	codeFilterFailure    = -1013
	codeNewOrderRejected = -2010
	codeCancelRejected   = -2011
)

// encodeClientID packs the gid and the cid into one Binance client order id of at most
// 36 characters: base36(gid) "." cid [suffix].
func encodeClientID(gid int64, cid, suffix string) string {
	return strconv.FormatInt(gid, 36) + clientIDSeparator + cid + suffix
}

// decodeClientID reverses encodeClientID. Client ids not created by this package return false.
func decodeClientID(clientID string) (gid int64, cid string, ok bool) {
	prefix, rest, found := strings.Cut(clientID, clientIDSeparator)
	if !found || len(rest) < cidLength {
		return 0, "", false
	}

	gid, err := strconv.ParseInt(prefix, 36, 64)
	if err != nil {
		return 0, "", false
	}

	return gid, rest[:cidLength], true
}

// isOCOLeg reports whether clientID names one leg of an OCO order.
func isOCOLeg(clientID string) bool {
	return strings.HasSuffix(clientID, ocoLimitSuffix) || strings.HasSuffix(clientID, ocoStopSuffix)
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', BinanceDecimalPrecision, 64)
}

func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)

	return v
}

func sideOf(order types.Order) binance.SideType {
	if order.Side() == types.PurchaseTypeBuy {
		return binance.SideTypeBuy
	}

	return binance.SideTypeSell
}

func signFor(side string) float64 {
	if side == string(binance.SideTypeSell) {
		return -1
	}

	return 1
}

// mapBinanceOrderStatus maps Binance order status to our OrderStatus type.
func mapBinanceOrderStatus(status string) types.OrderStatus {
	switch binance.OrderStatusType(status) {
	case binance.OrderStatusTypeNew, binance.OrderStatusTypePendingCancel:
		return types.OrderStatusActive
	case binance.OrderStatusTypePartiallyFilled:
		return types.OrderStatusPartiallyFilled
	case binance.OrderStatusTypeFilled:
		return types.OrderStatusExecuted
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired:
		return types.OrderStatusCancelled
	case binance.OrderStatusTypeRejected:
		return types.OrderStatusRejected
	default:
		return types.OrderStatusActive
	}
}

// convertBinanceOrder converts an open Binance order. Orders not placed by an algo order
// return false.
func convertBinanceOrder(bo *binance.Order) (types.Order, bool) {
	gid, cid, ok := decodeClientID(bo.ClientOrderID)
	if !ok {
		return types.Order{}, false
	}

	sign := signFor(string(bo.Side))
	orig := parseFloat(bo.OrigQuantity)
	executed := parseFloat(bo.ExecutedQuantity)

	orderType := types.OrderTypeLimit
	price := optional.Some(parseFloat(bo.Price))

	if bo.Type == binance.OrderTypeMarket {
		orderType = types.OrderTypeMarket
		price = optional.None[float64]()
	}

	return types.Order{
		CID:          cid,
		GID:          gid,
		ID:           strconv.FormatInt(bo.OrderID, 10),
		Symbol:       bo.Symbol,
		Type:         orderType,
		Amount:       sign * (orig - executed),
		AmountOrig:   sign * orig,
		Price:        price,
		PriceAvg:     averagePrice(parseFloat(bo.CummulativeQuoteQuantity), executed),
		Hidden:       false,
		PostOnly:     bo.Type == binance.OrderTypeLimitMaker,
		Leverage:     0,
		OCO:          isOCOLeg(bo.ClientOrderID),
		OCOStopPrice: parseFloat(bo.StopPrice),
		Status:       mapBinanceOrderStatus(string(bo.Status)),
		CreatedAt:    time.UnixMilli(bo.Time),
		Label:        "",
	}, true
}

func averagePrice(quote, base float64) float64 {
	if base == 0 {
		return 0
	}

	return quote / base
}

// classifyError maps a Binance API error onto the exchange error codes the host
// turns into errors:* events.
func classifyError(err error, message string) error {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return errors.Wrap(errors.ErrCodeOrderFailed, message, err)
	}

	text := strings.ToLower(apiErr.Message)

	switch {
	case strings.Contains(text, "insufficient balance"):
		return errors.Wrap(errors.ErrCodeInsufficientBalance, message, err)
	case apiErr.Code == codeFilterFailure && (strings.Contains(text, "notional") || strings.Contains(text, "lot_size")):
		return errors.Wrap(errors.ErrCodeMinimumSize, message, err)
	case strings.Contains(text, "disabled") || strings.Contains(text, "not allowed"):
		return errors.Wrap(errors.ErrCodeActionDisabled, message, err)
	case apiErr.Code == codeCancelRejected:
		return errors.Wrap(errors.ErrCodeCancelFailed, message, err)
	case apiErr.Code == codeNewOrderRejected:
		return errors.Wrap(errors.ErrCodeOrderFailed, message, err)
	}

	return errors.Wrap(errors.ErrCodeOrderFailed, message, err)
}

func klineToCandle(symbol, interval string, k *binance.Kline) types.Candle {
	return types.Candle{
		Symbol:    symbol,
		Timeframe: interval,
		Time:      time.UnixMilli(k.OpenTime),
		Open:      parseFloat(k.Open),
		High:      parseFloat(k.High),
		Low:       parseFloat(k.Low),
		Close:     parseFloat(k.Close),
		Volume:    parseFloat(k.Volume),
	}
}

func wsKlineToCandle(symbol string, k BinanceWsKline) types.Candle {
	return types.Candle{
		Symbol:    symbol,
		Timeframe: k.Interval,
		Time:      time.UnixMilli(k.StartTime),
		Open:      parseFloat(k.Open),
		High:      parseFloat(k.High),
		Low:       parseFloat(k.Low),
		Close:     parseFloat(k.Close),
		Volume:    parseFloat(k.Volume),
	}
}

func bookTickerToBook(event *BinanceWsBookTickerEvent) types.Book {
	return types.Book{
		Symbol: event.Symbol,
		Bids:   []types.PriceLevel{{Price: parseFloat(event.BestBidPrice), Amount: parseFloat(event.BestBidQty)}},
		Asks:   []types.PriceLevel{{Price: parseFloat(event.BestAskPrice), Amount: parseFloat(event.BestAskQty)}},
		Time:   time.Now(),
	}
}

func wsTradeToTrade(event *BinanceWsTradeEvent) types.Trade {
	amount := parseFloat(event.Quantity)
	if event.IsBuyerMaker {
		// the taker sold
		amount = -amount
	}

	return types.Trade{
		ID:     event.TradeID,
		Symbol: event.Symbol,
		Price:  parseFloat(event.Price),
		Amount: amount,
		Time:   time.UnixMilli(event.TradeTime),
	}
}
