package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Encode serializes a request as one JSON object terminated by a newline.
func Encode(req Request) ([]byte, error) {
	if _, err := MethodFor(req.Params); err != nil {
		return nil, err
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal request: %w", err)
	}
	return append(data, '\n'), nil
}

type wireResponse struct {
	ID     *int            `json:"id"`
	Result json.RawMessage `json:"result"`
}

// DecodeResponse parses a complete reply as a Response. Both id and result must be present.
func DecodeResponse(data []byte) (Response, error) {
	var wire wireResponse
	if err := decodeSingle(data, &wire); err != nil {
		return Response{}, fmt.Errorf("protocol: decode response: %w", err)
	}
	if wire.ID == nil {
		return Response{}, fmt.Errorf("protocol: decode response: missing id")
	}
	if wire.Result == nil {
		return Response{}, fmt.Errorf("protocol: decode response: missing result")
	}
	return Response{ID: *wire.ID, Result: wire.Result}, nil
}

type wireFailure struct {
	Error json.RawMessage `json:"error"`
}

type wireErrorObject struct {
	Code    int     `json:"code"`
	Message *string `json:"message"`
}

// DecodeFailure parses a complete reply as a Failure. The error field may be a
// plain string or a JSON-RPC error object with code and message.
func DecodeFailure(data []byte) (Failure, error) {
	var wire wireFailure
	if err := decodeSingle(data, &wire); err != nil {
		return Failure{}, fmt.Errorf("protocol: decode failure: %w", err)
	}
	if wire.Error == nil {
		return Failure{}, fmt.Errorf("protocol: decode failure: missing error")
	}

	var msg string
	if err := json.Unmarshal(wire.Error, &msg); err == nil {
		return Failure{Error: msg}, nil
	}

	var obj wireErrorObject
	if err := json.Unmarshal(wire.Error, &obj); err == nil && obj.Message != nil {
		return Failure{Error: *obj.Message, Code: obj.Code}, nil
	}

	return Failure{}, fmt.Errorf("protocol: decode failure: error is neither a string nor an error object")
}

func decodeSingle(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}

	var trailing json.RawMessage
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after message")
	}
	return nil
}
