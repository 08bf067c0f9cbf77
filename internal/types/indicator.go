package types

type IndicatorType string

const (
	IndicatorTypeMA             IndicatorType = "ma"
	IndicatorTypeEMA            IndicatorType = "ema"
	IndicatorTypeBollingerBands IndicatorType = "bollinger_bands"
)

// CandlePrice selects which candle field feeds an indicator.
type CandlePrice string

const (
	CandlePriceOpen  CandlePrice = "open"
	CandlePriceHigh  CandlePrice = "high"
	CandlePriceLow   CandlePrice = "low"
	CandlePriceClose CandlePrice = "close"
)
