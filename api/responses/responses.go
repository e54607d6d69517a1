package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
)

// Envelope wraps every successful body except the scheduled-job summaries.
type Envelope struct {
	Data any `json:"data"`
}

// ErrorBody is what clients receive for every rejected request.
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	write(w, status, Envelope{Data: data})
}

// WriteJSON skips the data envelope.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	write(w, status, payload)
}

// WriteError renders err as an ErrorBody. Untyped errors become
// INTERNAL_ERROR and never leak their text. logg may be nil.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("nil error written as response")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())
	body := publicBody(typed, meta)

	if logg != nil {
		fields := pkgerrors.LogFields(err)
		fields["http_status"] = meta.HTTPStatus
		ctx = logg.WithFields(ctx, fields)
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(ctx, "request.error", err)
		} else {
			logg.Warn(ctx, "request.rejected")
		}
	}
	write(w, meta.HTTPStatus, body)
}

func publicBody(err *pkgerrors.Error, meta pkgerrors.Metadata) ErrorBody {
	body := ErrorBody{Error: meta.PublicMessage, Code: string(err.Code())}
	if msg := err.Message(); meta.ExposeMessage && msg != "" {
		body.Error = msg
	}
	if meta.DetailsAllowed {
		body.Details = err.Details()
	}
	return body
}

// write encodes before touching the ResponseWriter so an unencodable payload
// still produces a clean 500.
func write(w http.ResponseWriter, status int, payload any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		status = http.StatusInternalServerError
		buf.Reset()
		_ = json.NewEncoder(&buf).Encode(ErrorBody{
			Error: pkgerrors.MetadataFor(pkgerrors.CodeInternal).PublicMessage,
			Code:  string(pkgerrors.CodeInternal),
		})
	}
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
