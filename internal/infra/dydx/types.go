package dydx

// placeOrderRequest is the POST /v4/orders payload.
type placeOrderRequest struct {
	ClientID string `json:"clientId"`
	Market   string `json:"market"`
	Side     string `json:"side"` // "BUY" or "SELL"
	Size     string `json:"size"`
	Price    string `json:"price,omitempty"`
	Type     string `json:"type"` // "MARKET" or "LIMIT"
}

// orderPayload is the order body shared by place and status responses.
type orderPayload struct {
	ID            string `json:"id"`
	Status        string `json:"status"` // "OPEN", "FILLED", "CANCELED", "BEST_EFFORT_CANCELED"
	Size          string `json:"size"`
	TotalFilled   string `json:"totalFilled"`
	RemainingSize string `json:"remainingSize"`
}

type orderResponse struct {
	Order  *orderPayload `json:"order"`
	Errors []apiError    `json:"errors,omitempty"`
}

type apiError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

type perpetualPosition struct {
	Market     string `json:"market"`
	Size       string `json:"size"`
	EntryPrice string `json:"entryPrice"`
}

type positionsResponse struct {
	Positions []perpetualPosition `json:"positions"`
	Errors    []apiError          `json:"errors,omitempty"`
}

// Permanent rejection codes. Everything else on a 2xx/4xx error list is
// treated as transient.
const (
	codeMarketNotFound  = "MARKET_NOT_FOUND"
	codeUnderCollateral = "UNDERCOLLATERALIZED"
	codeOrderNotFound   = "ORDER_NOT_FOUND"
)

// wsMessage is one frame on the /v4/ws order stream.
type wsMessage struct {
	Type     string        `json:"type"`    // "subscribed", "channel_data"
	Channel  string        `json:"channel"` // "v4_orders"
	Contents *orderPayload `json:"contents"`
	TsMillis int64         `json:"ts"`
}
