// Package api serves the items and movies HTTP API.
package api

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
)

// Fields is one submitted object, keyed by field name, values still undecoded.
type Fields map[string]json.RawMessage

// PayloadKind says which variant a Payload holds.
type PayloadKind int

const (
	PayloadSingle PayloadKind = iota + 1
	PayloadMany
)

// Payload is the body of a bulk request: either one object or a list of objects.
// In the Many variant an element that is not an object is nil and reported per item.
type Payload struct {
	Kind   PayloadKind
	Single Fields
	Many   []Fields
}

// Request body errors reported verbatim to clients.
var (
	ErrWrongShape = fmt.Errorf("Expected a list or a single item")
	ErrEmptyList  = fmt.Errorf("No items provided in the list")
)

// DecodePayload resolves body into a Payload by its first significant byte.
func DecodePayload(body []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Payload{}, ErrWrongShape
	}
	switch trimmed[0] {
	case '{':
		var f Fields
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return Payload{}, fmt.Errorf("JSON parse error - %w", err)
		}
		return Payload{Kind: PayloadSingle, Single: f}, nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return Payload{}, fmt.Errorf("JSON parse error - %w", err)
		}
		if len(raw) == 0 {
			return Payload{}, ErrEmptyList
		}
		many := make([]Fields, len(raw))
		for i, elem := range raw {
			elem = bytes.TrimSpace(elem)
			if len(elem) == 0 || elem[0] != '{' {
				continue
			}
			if err := json.Unmarshal(elem, &many[i]); err != nil {
				return Payload{}, fmt.Errorf("JSON parse error - %w", err)
			}
		}
		return Payload{Kind: PayloadMany, Many: many}, nil
	default:
		if !json.Valid(trimmed) {
			return Payload{}, fmt.Errorf("JSON parse error - invalid JSON")
		}
		return Payload{}, ErrWrongShape
	}
}
