package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// jsonCodec serializes plain Go structs for connect. It registers under the
// name "json" so handlers answer application/json and application/connect+json
// requests and clients speak the same.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		// Connect GET requests and empty bodies decode to the zero message.
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
