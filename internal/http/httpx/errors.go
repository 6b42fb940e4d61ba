// Package httpx contiene helpers JSON y códigos de error de la API.
package httpx

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// Códigos numéricos estables para clientes (el string puede cambiar de texto).
const (
	CodeInvalidJSON      = 1102
	CodeInvalidRequest   = 1103
	CodeUnknownTenant    = 1201
	CodeUnknownProvider  = 1202
	CodeProviderDisabled = 1203
	CodeStateInvalid     = 1204
	CodeExchangeFailed   = 1205
	CodeMFABadCode       = 1302
	CodeMFANotEnrolled   = 1303
	CodeMFAAlreadyOn     = 1304
	CodeChallengeExpired = 1305
	CodeTokenMissing     = 1401
	CodeTokenInvalid     = 1402
	CodeRateLimited      = 1501
	CodeInternal         = 1900
)

type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorCode        int    `json:"error_code,omitempty"`
	RequestID        string `json:"request_id,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, code, desc string, errCode int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rid := w.Header().Get("X-Request-ID")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{
		Error:            code,
		ErrorDescription: desc,
		ErrorCode:        errCode,
		RequestID:        rid,
	})
}

// WriteJSON: respuesta JSON estándar
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON decodifica JSON de forma tolerante (no falla por campos
// desconocidos). Valida Content-Type y limita el body a 1MB.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		WriteError(w, http.StatusBadRequest, "invalid_json", "Content-Type debe ser application/json", CodeInvalidJSON)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && err != io.EOF {
		WriteError(w, http.StatusBadRequest, "invalid_json", "json inválido", CodeInvalidJSON)
		return false
	}
	return true
}
