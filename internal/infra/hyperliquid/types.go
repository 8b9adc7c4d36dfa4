package hyperliquid

// submitOrderRequest is the POST /v1/orders payload.
type submitOrderRequest struct {
	ClientOrderID string `json:"cloid"`
	Coin          string `json:"coin"`
	Side          string `json:"side"` // "B" or "A" (bid/ask)
	Size          string `json:"sz"`
	Price         string `json:"px,omitempty"`
	Type          string `json:"orderType"` // "market" or "limit"
}

// orderData is the order payload shared by submit and status responses.
type orderData struct {
	OrderID  string `json:"oid"`
	Status   string `json:"status"` // "open", "filled", "rejected"
	FilledSz string `json:"filledSz"`
	RemainSz string `json:"remainSz"`
}

// apiResponse is the generic REST envelope.
type apiResponse struct {
	Code string     `json:"code"` // "0" on success
	Msg  string     `json:"msg"`
	Data *orderData `json:"data"`
}

// positionData is the GET /v1/positions payload.
type positionData struct {
	Coin       string `json:"coin"`
	Size       string `json:"szi"`
	EntryPrice string `json:"entryPx"`
}

type positionResponse struct {
	Code string         `json:"code"`
	Msg  string         `json:"msg"`
	Data []positionData `json:"data"`
}

// Business rejection codes that must never be retried.
const (
	codeUnknownSymbol     = "10001"
	codeInsufficientFunds = "10002"
	codeOrderNotFound     = "10404"
)

// wsSubscribeRequest subscribes to the authenticated order-update stream.
type wsSubscribeRequest struct {
	Method       string `json:"method"`
	Subscription struct {
		Type string `json:"type"`
		User string `json:"user"`
	} `json:"subscription"`
}

// wsOrderUpdate is one push event on the order-update stream.
type wsOrderUpdate struct {
	Channel string `json:"channel"`
	Data    struct {
		OrderID  string `json:"oid"`
		Status   string `json:"status"`
		FilledSz string `json:"filledSz"`
		RemainSz string `json:"remainSz"`
		Ts       int64  `json:"ts"` // unix millis
	} `json:"data"`
}
