package http

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// HTMXResponse builds htmx responses: HX-Trigger headers plus an HTML
// fragment body, with a fluent API so handlers read top to bottom.
type HTMXResponse struct {
	triggers   map[string]any
	statusCode int
	body       []byte
	headers    map[string]string
}

func NewHTMXResponse() *HTMXResponse {
	return &HTMXResponse{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *HTMXResponse) Status(code int) *HTMXResponse {
	b.statusCode = code
	return b
}

func (b *HTMXResponse) Trigger(name string, data any) *HTMXResponse {
	b.triggers[name] = data
	return b
}

// TriggerEntryCreated tells the dashboard to refresh the affected month.
func (b *HTMXResponse) TriggerEntryCreated(year, month int) *HTMXResponse {
	return b.Trigger("entry:created", map[string]int{"year": year, "month": month})
}

// TriggerVaultsChanged refreshes the vault list and summary partials.
func (b *HTMXResponse) TriggerVaultsChanged() *HTMXResponse {
	return b.Trigger("vaults:changed", struct{}{})
}

// TriggerLoansChanged refreshes the loan overview partial.
func (b *HTMXResponse) TriggerLoansChanged() *HTMXResponse {
	return b.Trigger("loans:changed", struct{}{})
}

// TriggerOrdersChanged refreshes the standing-order list partial.
func (b *HTMXResponse) TriggerOrdersChanged() *HTMXResponse {
	return b.Trigger("orders:changed", struct{}{})
}

func (b *HTMXResponse) Header(name, value string) *HTMXResponse {
	b.headers[name] = value
	return b
}

// BodyHTML sets a raw HTML fragment body. Callers escape interpolated
// values themselves.
func (b *HTMXResponse) BodyHTML(html string) *HTMXResponse {
	b.headers["Content-Type"] = "text/html; charset=utf-8"
	b.body = []byte(html)
	return b
}

func (b *HTMXResponse) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if len(b.triggers) > 0 {
		if triggerJSON, err := json.Marshal(b.triggers); err == nil {
			w.Header().Set("HX-Trigger", string(triggerJSON))
		}
	}
	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// SuccessResponse renders a success fragment with the message escaped.
func SuccessResponse(message string) *HTMXResponse {
	return NewHTMXResponse().
		BodyHTML(`<div class="success">` + template.HTMLEscapeString(message) + `</div>`)
}

// ErrorResponse renders an error fragment with the message escaped.
func ErrorResponse(statusCode int, message string) *HTMXResponse {
	return NewHTMXResponse().
		Status(statusCode).
		BodyHTML(`<div class="error">` + template.HTMLEscapeString(message) + `</div>`)
}

func BadRequestError(message string) *HTMXResponse {
	return ErrorResponse(http.StatusBadRequest, message)
}

func UnprocessableEntityError(message string) *HTMXResponse {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func InternalServerError(message string) *HTMXResponse {
	return ErrorResponse(http.StatusInternalServerError, message)
}

func MethodNotAllowedError(allowedMethods string) *HTMXResponse {
	return NewHTMXResponse().
		Status(http.StatusMethodNotAllowed).
		Header("Allow", allowedMethods)
}
