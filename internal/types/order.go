package types

import (
	"encoding/base64"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
)

// DustAmount is the magnitude below which a remaining amount counts as zero.
const DustAmount = 0.00000001

type OrderType string

type OrderStatus string

type PurchaseType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

const (
	// OrderStatusPending is a child order that was generated but not yet acknowledged by the exchange.
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusActive          OrderStatus = "ACTIVE"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusExecuted        OrderStatus = "EXECUTED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

const (
	PurchaseTypeBuy  PurchaseType = "BUY"
	PurchaseTypeSell PurchaseType = "SELL"
)

// Order is a child order generated by an algo order instance.
// Amount is signed: positive buys, negative sells. Amount is what remains open,
// AmountOrig is what was originally requested. Handlers always receive a copy.
type Order struct {
	CID        string                   `yaml:"cid" json:"cid" validate:"required"`
	GID        int64                    `yaml:"gid" json:"gid" validate:"required"`
	ID         string                   `yaml:"id" json:"id,omitempty"`
	Symbol     string                   `yaml:"symbol" json:"symbol" validate:"required"`
	Type       OrderType                `yaml:"type" json:"type" validate:"required,oneof=MARKET LIMIT"`
	Amount     float64                  `yaml:"amount" json:"amount"`
	AmountOrig float64                  `yaml:"amount_orig" json:"amount_orig" validate:"required"`
	Price      optional.Option[float64] `yaml:"price" json:"price"`
	PriceAvg   float64                  `yaml:"price_avg" json:"price_avg,omitempty"`
	Hidden     bool                     `yaml:"hidden" json:"hidden,omitempty"`
	PostOnly   bool                     `yaml:"post_only" json:"post_only,omitempty"`
	Leverage   int                      `yaml:"lev" json:"lev,omitempty" validate:"gte=0"`
	// OCO marks a one-cancels-other order: a limit leg at Price and a stop leg at OCOStopPrice sharing the CID.
	OCO          bool        `yaml:"oco" json:"oco,omitempty"`
	OCOStopPrice float64     `yaml:"oco_stop_price" json:"oco_stop_price,omitempty"`
	Status       OrderStatus `yaml:"status" json:"status"`
	CreatedAt    time.Time   `yaml:"created_at" json:"created_at"`
	// Label is a free-form tag set by the generating algorithm (e.g. "slice", "hidden", "pong").
	Label string `yaml:"label" json:"label,omitempty"`
}

// NewCID returns a fresh client order id: a random UUID in unpadded base64url, 22 characters.
// The short form leaves room for exchanges that cap client ids at 36 characters.
func NewCID() string {
	id := uuid.New()

	return base64.RawURLEncoding.EncodeToString(id[:])
}

// NewLimitOrder builds a pending limit child order.
func NewLimitOrder(gid int64, symbol string, amount, price float64) Order {
	return Order{
		CID:          NewCID(),
		GID:          gid,
		ID:           "",
		Symbol:       symbol,
		Type:         OrderTypeLimit,
		Amount:       amount,
		AmountOrig:   amount,
		Price:        optional.Some(price),
		PriceAvg:     0,
		Hidden:       false,
		PostOnly:     false,
		Leverage:     0,
		OCO:          false,
		OCOStopPrice: 0,
		Status:       OrderStatusPending,
		CreatedAt:    time.Now(),
		Label:        "",
	}
}

// NewMarketOrder builds a pending market child order. Market orders carry no price.
func NewMarketOrder(gid int64, symbol string, amount float64) Order {
	order := NewLimitOrder(gid, symbol, amount, 0)
	order.Type = OrderTypeMarket
	order.Price = optional.None[float64]()

	return order
}

// Side returns BUY for positive amounts and SELL otherwise.
func (o Order) Side() PurchaseType {
	if o.AmountOrig > 0 {
		return PurchaseTypeBuy
	}

	return PurchaseTypeSell
}

// FilledAmount returns the signed amount executed so far.
func (o Order) FilledAmount() float64 {
	return o.AmountOrig - o.Amount
}

// IsOpen reports whether the order can still be filled or cancelled.
func (o Order) IsOpen() bool {
	switch o.Status {
	case OrderStatusPending, OrderStatusActive, OrderStatusPartiallyFilled:
		return true
	case OrderStatusExecuted, OrderStatusCancelled, OrderStatusRejected:
		return false
	}

	return false
}

// IsFullyFilled reports whether the remaining amount is dust.
func (o Order) IsFullyFilled() bool {
	return IsDust(o.Amount)
}

// PriceOr returns the limit price or the fallback for market orders.
func (o Order) PriceOr(fallback float64) float64 {
	return o.Price.TakeOr(fallback)
}

// Validate validates the Order struct.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	if o.Type == OrderTypeLimit && o.Price.IsNone() {
		return errors.Newf(errors.ErrCodeInvalidOrder, "limit order %s has no price", o.CID)
	}

	if IsDust(o.AmountOrig) {
		return errors.Newf(errors.ErrCodeInvalidOrder, "order %s amount %v is below dust", o.CID, o.AmountOrig)
	}

	if o.Amount != 0 && math.Signbit(o.Amount) != math.Signbit(o.AmountOrig) {
		return errors.Newf(errors.ErrCodeInvalidOrder, "order %s remaining amount flipped sign", o.CID)
	}

	return nil
}

// IsDust reports whether |amount| is at or below DustAmount.
func IsDust(amount float64) bool {
	return math.Abs(amount) <= DustAmount
}
