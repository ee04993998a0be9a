package domain

import "context"

// PriceFeed returns the current spot price of an asset. Any error means the
// price is absent for this attempt.
type PriceFeed interface {
	SpotPrice(ctx context.Context, asset string) (float64, error)
}

// ProductResolver maps an asset to the exchange product used for hedging.
type ProductResolver interface {
	ResolveProductID(ctx context.Context, asset string) (string, error)
}

// OrderPlacer submits hedge orders. Rejections are returned as an OrderResult
// with Success=false; a non-nil error means the request itself failed.
type OrderPlacer interface {
	PlaceHedgeOrder(ctx context.Context, req HedgeOrderRequest) (OrderResult, error)
}

// UserNotifier delivers a message to a single user.
type UserNotifier interface {
	NotifyUser(ctx context.Context, userID int64, event, title, body string) error
}

// Prediction is a model forecast for the next candle of an asset.
type Prediction struct {
	Asset          string  `json:"asset"`
	PredictedClose float64 `json:"predicted_close"`
	Open           float64 `json:"open"`
	High           float64 `json:"high"`
	Low            float64 `json:"low"`
	Volume         float64 `json:"volume"`
}

// Predictor returns a price forecast.
type Predictor interface {
	Predict(ctx context.Context, asset string) (Prediction, error)
}
