package types

import "fmt"

type ChannelType string

const (
	ChannelTypeBook    ChannelType = "book"
	ChannelTypeTrades  ChannelType = "trades"
	ChannelTypeCandles ChannelType = "candles"
)

// Channel is a market data subscription declared by an algo order.
// Timeframe is only meaningful for candle channels.
type Channel struct {
	Type      ChannelType `yaml:"type" json:"type" validate:"required,oneof=book trades candles"`
	Symbol    string      `yaml:"symbol" json:"symbol" validate:"required"`
	Timeframe string      `yaml:"timeframe" json:"timeframe,omitempty"`
}

// Key identifies identical subscriptions.
func (c Channel) Key() string {
	if c.Type == ChannelTypeCandles {
		return fmt.Sprintf("%s:%s:%s", c.Type, c.Symbol, c.Timeframe)
	}

	return fmt.Sprintf("%s:%s", c.Type, c.Symbol)
}

func BookChannel(symbol string) Channel {
	return Channel{Type: ChannelTypeBook, Symbol: symbol, Timeframe: ""}
}

func TradesChannel(symbol string) Channel {
	return Channel{Type: ChannelTypeTrades, Symbol: symbol, Timeframe: ""}
}

func CandlesChannel(symbol, timeframe string) Channel {
	return Channel{Type: ChannelTypeCandles, Symbol: symbol, Timeframe: timeframe}
}
