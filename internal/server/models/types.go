package models

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/wpnas/wpnas/internal/log"
)

type Request struct {
	ID     interface{}            `json:"id,omitempty"`
	Method string                 `json:"method"`
	Params map[string]interface{} `json:"params,omitempty"`
}

type Response[T any] struct {
	ID     interface{} `json:"id,omitempty"`
	Result *T          `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

type SuccessResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func RespondError(conn net.Conn, id interface{}, errMsg string) {
	log.Errorf("wpnas API Error: id=%v error=%s", id, errMsg)
	resp := Response[any]{ID: id, Error: errMsg}
	json.NewEncoder(conn).Encode(resp)
}

func Respond[T any](conn net.Conn, id interface{}, result T) {
	resp := Response[T]{ID: id, Result: &result}
	json.NewEncoder(conn).Encode(resp)
}

// StringParam returns a required, non-empty string parameter.
func StringParam(req Request, name string) (string, error) {
	v, ok := req.Params[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("missing or invalid '%s' parameter", name)
	}
	return v, nil
}

// DecodeParams re-decodes the loose params map into out. Keys absent from
// params leave the corresponding fields of out untouched.
func DecodeParams(req Request, out any) error {
	if len(req.Params) == 0 {
		return nil
	}
	data, err := json.Marshal(req.Params)
	if err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}
