package orders

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrNoValidItems  = errors.New("order has no valid items")
	ErrOrderNotFound = errors.New("order not found")
)

const (
	maxNameLen  = 120
	maxTableLen = 32
	maxNoteLen  = 500
	maxImageLen = 2048

	minQty = 1
	maxQty = 99

	// per item, in minor currency units; also keeps the float -> int
	// conversion and the total sum far away from integer overflow
	maxPrice = 10_000_000

	defaultCustomerName = "Guest"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPreparing Status = "preparing"
	StatusServed    Status = "served"
	StatusCancelled Status = "cancelled"
)

// ParseStatus matches case-insensitively and normalizes to lowercase.
// Any known status may be set from any other one - transition legality
// beyond "status is known" is deliberately not enforced here.
func ParseStatus(s string) (Status, error) {
	switch status := Status(strings.ToLower(strings.TrimSpace(s))); status {
	case StatusPending, StatusPreparing, StatusServed, StatusCancelled:
		return status, nil
	default:
		return "", fmt.Errorf("unknown status: %q", s)
	}
}

type Order struct {
	ID           int         `json:"id"`
	CustomerName string      `json:"customerName"`
	TableNo      string      `json:"tableNo"`
	Note         string      `json:"note"`
	Status       Status      `json:"status"`
	Total        int         `json:"total"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
	Items        []OrderItem `json:"items"`
}

type OrderItem struct {
	ID      int    `json:"id"`
	OrderID int    `json:"orderId"`
	Name    string `json:"name"`
	Price   int    `json:"price"`
	Qty     int    `json:"qty"`
	Image   string `json:"image,omitempty"`
}

// NewOrderRequest is the raw, untrusted order submission payload. Numbers
// come in as floats on purpose, clients send all sorts of things.
type NewOrderRequest struct {
	CustomerName string         `json:"customerName"`
	TableNo      string         `json:"tableNo"`
	Note         string         `json:"note"`
	Items        []NewOrderItem `json:"items"`
}

type NewOrderItem struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
	Image string  `json:"image"`
}

func trimAndCap(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	// cap by runes, a byte cut could split a multi-byte character
	if runes := []rune(s); len(runes) > maxLen {
		s = string(runes[:maxLen])
	}
	return s
}

// NormalizeNewOrder coerces a raw submission into a valid Order, or fails
// with ErrNoValidItems. Items without a name are dropped, not rejected -
// a submission is refused only when nothing valid remains. No side effects,
// persistence happens in the repo.
func NormalizeNewOrder(req NewOrderRequest) (*Order, error) {
	order := &Order{
		CustomerName: trimAndCap(req.CustomerName, maxNameLen),
		TableNo:      trimAndCap(req.TableNo, maxTableLen),
		Note:         trimAndCap(req.Note, maxNoteLen),
		Status:       StatusPending,
	}
	if order.CustomerName == "" {
		order.CustomerName = defaultCustomerName
	}

	for _, rawItem := range req.Items {
		name := trimAndCap(rawItem.Name, maxNameLen)
		if name == "" {
			continue
		}

		// clamp in the float domain first, a conversion of an
		// out-of-range (or NaN) float64 to int is not defined
		price := 0
		switch {
		case rawItem.Price >= maxPrice:
			price = maxPrice
		case rawItem.Price > 0:
			price = int(math.Round(rawItem.Price))
		}

		qty := minQty
		switch {
		case rawItem.Qty >= maxQty:
			qty = maxQty
		case rawItem.Qty > minQty:
			qty = int(math.Round(rawItem.Qty))
		}

		order.Items = append(order.Items, OrderItem{
			Name:  name,
			Price: price,
			Qty:   qty,
			Image: trimAndCap(rawItem.Image, maxImageLen),
		})
	}

	if len(order.Items) == 0 {
		return nil, ErrNoValidItems
	}

	for _, item := range order.Items {
		order.Total += item.Price * item.Qty
	}

	return order, nil
}
