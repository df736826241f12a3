package utils

import (
	"encoding/json"
	"net/http"
)

const (
	CodeOK   = "00"
	CodeFail = "01"
)

// Envelope is the body every API route answers with.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	ErrCd   string `json:"errCd"`
	ErrMsg  string `json:"errMsg"`
	Code    string `json:"code,omitempty"`
}

func WriteOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data, ErrCd: CodeOK})
}

// WriteResult answers 200 with a business status code and message.
func WriteResult(w http.ResponseWriter, data any, errCd, errMsg string) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data, ErrCd: errCd, ErrMsg: errMsg})
}

func WriteError(w http.ResponseWriter, status int, message, code string) {
	WriteJSON(w, status, Envelope{
		Success: false,
		ErrCd:   CodeFail,
		ErrMsg:  message,
		Code:    code,
	})
}

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
