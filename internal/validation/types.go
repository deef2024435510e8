package validation

import "encoding/json"

// WebhookRequest is the envelope for POST /webhooks/orders. The upstream
// platform wraps every delivery as {event, data}; data is kept raw because
// its shape varies per event and is decoded downstream.
type WebhookRequest struct {
	Event string          `json:"event" validate:"required"`
	Data  json.RawMessage `json:"data" validate:"required"`
}
