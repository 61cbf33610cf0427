package master

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MaxPayloadBytes bounds a single telemetry report.
const MaxPayloadBytes = 1 << 20

//go:embed schema/telemetry.json
var telemetrySchema []byte

// ErrEmptyPayload is returned when the peer closed without sending anything.
var ErrEmptyPayload = errors.New("empty payload")

// Validator checks raw telemetry against the embedded report schema.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("telemetry.json", bytes.NewReader(telemetrySchema)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile("telemetry.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Decode reads one JSON value from r and validates it. Numbers stay json.Number so
// forwarded port objects keep their original representation.
func (v *Validator) Decode(r io.Reader) (map[string]interface{}, error) {
	dec := json.NewDecoder(io.LimitReader(r, MaxPayloadBytes))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyPayload
		}
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if err := v.schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	payload, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("validation failed: payload is not an object")
	}
	return payload, nil
}

// portsOf returns the port objects of a validated payload.
func portsOf(payload map[string]interface{}) []map[string]interface{} {
	list, _ := payload["ports"].([]interface{})
	out := make([]map[string]interface{}, 0, len(list))
	for _, p := range list {
		if m, ok := p.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func nodeIDOf(payload map[string]interface{}) string {
	if id, ok := payload["node_id"].(string); ok && id != "" {
		return id
	}
	return "unknown-node"
}
