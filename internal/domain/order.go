package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus is the exchange-reported order state.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusClosed    OrderStatus = "closed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// HedgeOrderRequest describes the offsetting order placed on a breach.
type HedgeOrderRequest struct {
	ProductID  string
	Asset      string
	Side       OrderSide
	Size       float64
	LimitPrice float64
}

// OrderResult wraps the exchange response after order submission. Exchange
// rejections are reported with Success=false and a Message rather than an
// error.
type OrderResult struct {
	Success   bool
	OrderID   string
	Side      OrderSide
	Size      float64
	Status    OrderStatus
	Symbol    string
	Message   string
	CreatedAt time.Time
}
