package domain

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Valid reports whether s is one of the known sides.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderType indicates the time-in-force policy.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Till-Cancelled
	OrderTypeGTD OrderType = "GTD" // Good-Till-Date
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill
	OrderTypeFAK OrderType = "FAK" // Fill-And-Kill
)

// Valid reports whether t is one of the known order types.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeGTC, OrderTypeGTD, OrderTypeFOK, OrderTypeFAK:
		return true
	}
	return false
}

// BoolSide is the direction taken on a two-outcome market. LONG buys the
// main outcome, SHORT buys the counter outcome.
type BoolSide string

const (
	BoolSideLong  BoolSide = "LONG"
	BoolSideShort BoolSide = "SHORT"
)

// Valid reports whether b is LONG or SHORT.
func (b BoolSide) Valid() bool {
	return b == BoolSideLong || b == BoolSideShort
}

// OrderStatus tracks the exchange-side order lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusMatched   OrderStatus = "matched"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// OrderRequest is a single limit order in 1/1000 fixed-point units, as
// handed to an exchange client.
type OrderRequest struct {
	TokenID   string
	Price1000 int64
	Size1000  int64
	Side      OrderSide
	Type      OrderType
}

// Price returns the float64 display price.
func (r OrderRequest) Price() float64 {
	return float64(r.Price1000) / 1000
}

// Size returns the float64 display size.
func (r OrderRequest) Size() float64 {
	return float64(r.Size1000) / 1000
}

// OrderResult wraps the API response after order submission.
type OrderResult struct {
	Success     bool
	OrderID     string
	Status      OrderStatus
	Message     string
	ShouldRetry bool
}
