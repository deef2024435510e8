// Package source decodes the order payloads attached to upstream webhook
// events. The upstream is not consistent about shape: some events nest the
// order under an "order" key, others deliver it flat, and customer fields
// arrive in snake_case or camelCase depending on the emitting subsystem.
package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMissingOrderID means the payload carries no usable source order identifier.
var ErrMissingOrderID = errors.New("payload has no source order id")

// Customer is the buyer sub-record of a source order.
type Customer struct {
	Name     string
	Email    string
	Document string
	Phone    string
}

// Address is the shipping address of a source order.
type Address struct {
	Street  string
	Number  string
	City    string
	State   string
	ZipCode string
	Country string
}

// LineItem is one purchased item.
type LineItem struct {
	SKU      string
	Name     string
	Quantity int
	Price    decimal.Decimal
}

// Order is the normalized source order extracted from a webhook payload.
type Order struct {
	ID            string
	Total         decimal.Decimal
	PaymentMethod string
	Customer      Customer
	Address       Address
	Items         []LineItem
}

// ParseOptions controls field precedence when payload shapes conflict.
// The defaults reflect observed upstream behavior, not a documented contract.
type ParseOptions struct {
	// PreferNestedOrder makes a payload nested under an "order" key win over
	// top-level fields when both are present.
	PreferNestedOrder bool
	// PreferSnakeCase makes snake_case customer fields win over camelCase.
	PreferSnakeCase bool
}

// DefaultParseOptions returns the observed upstream precedence.
func DefaultParseOptions() ParseOptions {
	return ParseOptions{PreferNestedOrder: true, PreferSnakeCase: true}
}

// Parse extracts and normalizes an Order from a raw webhook payload.
// A missing customer record is tolerated and filled with defaults; a missing
// order id is not.
func Parse(raw []byte, opts ParseOptions) (*Order, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	body := top
	if nested, ok := top["order"]; ok && opts.PreferNestedOrder {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(nested, &inner); err == nil && inner != nil {
			body = inner
		}
	}

	o := &Order{}
	o.ID = stringField(body, "id", "order_id", "orderId")
	if o.ID == "" {
		return nil, ErrMissingOrderID
	}

	o.Total = decimalField(body, "total", "amount")
	o.PaymentMethod = stringField(body, "payment_method", "paymentMethod")
	o.Customer = parseCustomer(body, opts)
	o.Address = parseAddress(body, opts)
	o.Items = parseItems(body)

	normalize(o)
	return o, nil
}

func parseCustomer(body map[string]json.RawMessage, opts ParseOptions) Customer {
	var sub map[string]json.RawMessage
	if raw, ok := body["customer"]; ok {
		_ = json.Unmarshal(raw, &sub)
	}
	if sub == nil {
		return Customer{}
	}

	snakeFirst := func(snake, camel string) string {
		if opts.PreferSnakeCase {
			return stringField(sub, snake, camel)
		}
		return stringField(sub, camel, snake)
	}

	return Customer{
		Name:     snakeFirst("name", "fullName"),
		Email:    stringField(sub, "email"),
		Document: snakeFirst("document", "documentNumber"),
		Phone:    snakeFirst("phone", "phoneNumber"),
	}
}

func parseAddress(body map[string]json.RawMessage, opts ParseOptions) Address {
	var sub map[string]json.RawMessage
	if raw, ok := body["address"]; ok {
		_ = json.Unmarshal(raw, &sub)
	}
	if sub == nil {
		if raw, ok := body["shipping_address"]; ok {
			_ = json.Unmarshal(raw, &sub)
		}
	}
	if sub == nil {
		return Address{}
	}

	snakeFirst := func(snake, camel string) string {
		if opts.PreferSnakeCase {
			return stringField(sub, snake, camel)
		}
		return stringField(sub, camel, snake)
	}

	return Address{
		Street:  stringField(sub, "street"),
		Number:  stringField(sub, "number"),
		City:    stringField(sub, "city"),
		State:   stringField(sub, "state"),
		ZipCode: snakeFirst("zip_code", "zipCode"),
		Country: stringField(sub, "country"),
	}
}

func parseItems(body map[string]json.RawMessage) []LineItem {
	raw, ok := body["items"]
	if !ok {
		raw, ok = body["line_items"]
	}
	if !ok {
		return nil
	}

	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}

	items := make([]LineItem, 0, len(entries))
	for _, e := range entries {
		item := LineItem{
			SKU:   stringField(e, "sku", "code"),
			Name:  stringField(e, "name", "title"),
			Price: decimalField(e, "price", "unit_price"),
		}
		if qty := stringField(e, "quantity", "qty"); qty != "" {
			if n, err := strconv.Atoi(qty); err == nil {
				item.Quantity = n
			}
		}
		if item.Quantity == 0 {
			item.Quantity = 1
		}
		items = append(items, item)
	}
	return items
}

// normalize fills documented defaults for missing customer fields so that a
// partial upstream payload still produces a creatable sink order.
func normalize(o *Order) {
	if o.Customer.Name == "" {
		o.Customer.Name = "Cliente"
	}
	if o.Customer.Email == "" {
		o.Customer.Email = fmt.Sprintf("pedido-%s@sync.invalid", o.ID)
	}
	if o.Total.IsZero() && len(o.Items) > 0 {
		total := decimal.Zero
		for _, it := range o.Items {
			total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		o.Total = total
	}
}

// stringField returns the first present key decoded as a string. Numeric
// values are rendered without a trailing ".0" so integer ids survive the
// float round-trip JSON forces on them.
func stringField(m map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return strings.TrimSpace(s)
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

func decimalField(m map[string]json.RawMessage, keys ...string) decimal.Decimal {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			if d, err := decimal.NewFromString(n.String()); err == nil {
				return d
			}
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if d, err := decimal.NewFromString(s); err == nil {
				return d
			}
		}
	}
	return decimal.Zero
}
