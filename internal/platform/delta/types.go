package delta

import "encoding/json"

// Product is an entry of GET /v2/products.
type Product struct {
	ID           int64  `json:"id"`
	Symbol       string `json:"symbol"`
	Description  string `json:"description"`
	ContractType string `json:"contract_type"`
	State        string `json:"state"`
}

// orderRequest is the body of POST /v2/orders. Prices and sizes are sent as
// decimal strings.
type orderRequest struct {
	ProductID   int64  `json:"product_id"`
	LimitPrice  string `json:"limit_price"`
	Size        string `json:"size"`
	Side        string `json:"side"`
	OrderType   string `json:"order_type"`
	TimeInForce string `json:"time_in_force"`
}

// Order is the order object returned by Delta.
type Order struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	ProductSymbol string          `json:"product_symbol"`
	Size          json.Number     `json:"size"`
	UnfilledSize  json.Number     `json:"unfilled_size"`
	Side          string          `json:"side"`
	State         string          `json:"state"`
	OrderType     string          `json:"order_type"`
	LimitPrice    json.RawMessage `json:"limit_price"`
	CreatedAt     string          `json:"created_at"`
}

// apiError is the error object of a failed response.
type apiError struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Context json.RawMessage `json:"context"`
}

// envelope wraps every Delta REST response.
type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *apiError       `json:"error"`
}
