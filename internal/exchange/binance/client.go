package binance

import (
	"context"

	"github.com/adshao/go-binance/v2"
)

// Service interfaces for mocking the Binance API

// CreateOrderService interface for creating orders.
type CreateOrderService interface {
	Symbol(symbol string) CreateOrderService
	Side(side binance.SideType) CreateOrderService
	Type(orderType binance.OrderType) CreateOrderService
	Quantity(quantity string) CreateOrderService
	Price(price string) CreateOrderService
	TimeInForce(tif binance.TimeInForceType) CreateOrderService
	NewClientOrderID(id string) CreateOrderService
	Do(ctx context.Context) (*binance.CreateOrderResponse, error)
}

// CreateOCOService interface for creating one-cancels-other order lists.
type CreateOCOService interface {
	Symbol(symbol string) CreateOCOService
	Side(side binance.SideType) CreateOCOService
	Quantity(quantity string) CreateOCOService
	Price(price string) CreateOCOService
	StopPrice(price string) CreateOCOService
	StopLimitPrice(price string) CreateOCOService
	StopLimitTimeInForce(tif binance.TimeInForceType) CreateOCOService
	ListClientOrderID(id string) CreateOCOService
	LimitClientOrderID(id string) CreateOCOService
	StopClientOrderID(id string) CreateOCOService
	Do(ctx context.Context) (*binance.CreateOCOResponse, error)
}

// ListOpenOrdersService interface for listing open orders.
type ListOpenOrdersService interface {
	Do(ctx context.Context) ([]*binance.Order, error)
}

// CancelOrderService interface for canceling orders.
type CancelOrderService interface {
	Symbol(symbol string) CancelOrderService
	OrigClientOrderID(id string) CancelOrderService
	Do(ctx context.Context) (*binance.CancelOrderResponse, error)
}

// KlinesService interface for fetching historical candles.
type KlinesService interface {
	Symbol(symbol string) KlinesService
	Interval(interval string) KlinesService
	Limit(limit int) KlinesService
	Do(ctx context.Context) ([]*binance.Kline, error)
}

// UserStreamService interface for managing the user data stream listen key.
type UserStreamService interface {
	Start(ctx context.Context) (string, error)
	Keepalive(ctx context.Context, listenKey string) error
	Close(ctx context.Context, listenKey string) error
}

// BinanceClient interface abstracts the Binance client for testing.
type BinanceClient interface {
	NewCreateOrderService() CreateOrderService
	NewCreateOCOService() CreateOCOService
	NewListOpenOrdersService() ListOpenOrdersService
	NewCancelOrderService() CancelOrderService
	NewKlinesService() KlinesService
	UserStream() UserStreamService
}

// realBinanceClient wraps the actual binance.Client.
type realBinanceClient struct {
	client *binance.Client
}

func (r *realBinanceClient) NewCreateOrderService() CreateOrderService {
	return &realCreateOrderService{service: r.client.NewCreateOrderService()}
}

func (r *realBinanceClient) NewCreateOCOService() CreateOCOService {
	return &realCreateOCOService{service: r.client.NewCreateOCOService()}
}

func (r *realBinanceClient) NewListOpenOrdersService() ListOpenOrdersService {
	return &realListOpenOrdersService{service: r.client.NewListOpenOrdersService()}
}

func (r *realBinanceClient) NewCancelOrderService() CancelOrderService {
	return &realCancelOrderService{service: r.client.NewCancelOrderService()}
}

func (r *realBinanceClient) NewKlinesService() KlinesService {
	return &realKlinesService{service: r.client.NewKlinesService()}
}

func (r *realBinanceClient) UserStream() UserStreamService {
	return &realUserStreamService{client: r.client}
}

// Real service wrappers

type realCreateOrderService struct {
	service *binance.CreateOrderService
}

func (s *realCreateOrderService) Symbol(symbol string) CreateOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCreateOrderService) Side(side binance.SideType) CreateOrderService {
	s.service = s.service.Side(side)

	return s
}

func (s *realCreateOrderService) Type(orderType binance.OrderType) CreateOrderService {
	s.service = s.service.Type(orderType)

	return s
}

func (s *realCreateOrderService) Quantity(quantity string) CreateOrderService {
	s.service = s.service.Quantity(quantity)

	return s
}

func (s *realCreateOrderService) Price(price string) CreateOrderService {
	s.service = s.service.Price(price)

	return s
}

func (s *realCreateOrderService) TimeInForce(tif binance.TimeInForceType) CreateOrderService {
	s.service = s.service.TimeInForce(tif)

	return s
}

func (s *realCreateOrderService) NewClientOrderID(id string) CreateOrderService {
	s.service = s.service.NewClientOrderID(id)

	return s
}

func (s *realCreateOrderService) Do(ctx context.Context) (*binance.CreateOrderResponse, error) {
	return s.service.Do(ctx)
}

type realCreateOCOService struct {
	service *binance.CreateOCOService
}

func (s *realCreateOCOService) Symbol(symbol string) CreateOCOService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCreateOCOService) Side(side binance.SideType) CreateOCOService {
	s.service = s.service.Side(side)

	return s
}

func (s *realCreateOCOService) Quantity(quantity string) CreateOCOService {
	s.service = s.service.Quantity(quantity)

	return s
}

func (s *realCreateOCOService) Price(price string) CreateOCOService {
	s.service = s.service.Price(price)

	return s
}

func (s *realCreateOCOService) StopPrice(price string) CreateOCOService {
	s.service = s.service.StopPrice(price)

	return s
}

func (s *realCreateOCOService) StopLimitPrice(price string) CreateOCOService {
	s.service = s.service.StopLimitPrice(price)

	return s
}

func (s *realCreateOCOService) StopLimitTimeInForce(tif binance.TimeInForceType) CreateOCOService {
	s.service = s.service.StopLimitTimeInForce(tif)

	return s
}

func (s *realCreateOCOService) ListClientOrderID(id string) CreateOCOService {
	s.service = s.service.ListClientOrderID(id)

	return s
}

func (s *realCreateOCOService) LimitClientOrderID(id string) CreateOCOService {
	s.service = s.service.LimitClientOrderID(id)

	return s
}

func (s *realCreateOCOService) StopClientOrderID(id string) CreateOCOService {
	s.service = s.service.StopClientOrderID(id)

	return s
}

func (s *realCreateOCOService) Do(ctx context.Context) (*binance.CreateOCOResponse, error) {
	return s.service.Do(ctx)
}

type realListOpenOrdersService struct {
	service *binance.ListOpenOrdersService
}

func (s *realListOpenOrdersService) Do(ctx context.Context) ([]*binance.Order, error) {
	return s.service.Do(ctx)
}

type realCancelOrderService struct {
	service *binance.CancelOrderService
}

func (s *realCancelOrderService) Symbol(symbol string) CancelOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCancelOrderService) OrigClientOrderID(id string) CancelOrderService {
	s.service = s.service.OrigClientOrderID(id)

	return s
}

func (s *realCancelOrderService) Do(ctx context.Context) (*binance.CancelOrderResponse, error) {
	return s.service.Do(ctx)
}

type realKlinesService struct {
	service *binance.KlinesService
}

func (s *realKlinesService) Symbol(symbol string) KlinesService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realKlinesService) Interval(interval string) KlinesService {
	s.service = s.service.Interval(interval)

	return s
}

func (s *realKlinesService) Limit(limit int) KlinesService {
	s.service = s.service.Limit(limit)

	return s
}

func (s *realKlinesService) Do(ctx context.Context) ([]*binance.Kline, error) {
	return s.service.Do(ctx)
}

type realUserStreamService struct {
	client *binance.Client
}

func (s *realUserStreamService) Start(ctx context.Context) (string, error) {
	return s.client.NewStartUserStreamService().Do(ctx)
}

func (s *realUserStreamService) Keepalive(ctx context.Context, listenKey string) error {
	return s.client.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx)
}

func (s *realUserStreamService) Close(ctx context.Context, listenKey string) error {
	return s.client.NewCloseUserStreamService().ListenKey(listenKey).Do(ctx)
}
