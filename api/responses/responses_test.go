package responses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWriteSuccessWrapsData(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccessStatus(rec, http.StatusCreated, map[string]string{"plan": "NANNY_PRO"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"data":{"plan":"NANNY_PRO"}}`, rec.Body.String())
}

func TestWriteJSONIsUnwrapped(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, map[string]int{"totalProcessed": 2, "succeeded": 2, "failed": 0})
	assert.JSONEq(t, `{"totalProcessed":2,"succeeded":2,"failed":0}`, rec.Body.String())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		body    ErrorBody
		details bool
	}{
		{
			name:    "validation keeps message and details",
			err:     pkgerrors.New(pkgerrors.CodeValidation, "bad input").WithDetails(map[string]string{"plan": "is required"}),
			status:  http.StatusBadRequest,
			body:    ErrorBody{Error: "bad input", Code: "VALIDATION_ERROR"},
			details: true,
		},
		{
			name:   "domain conflict through a wrap",
			err:    fmt.Errorf("checkout: %w", pkgerrors.New(pkgerrors.CodeAlreadySubscribed, "family already holds FAMILY_PLUS")),
			status: http.StatusConflict,
			body:   ErrorBody{Error: "family already holds FAMILY_PLUS", Code: "ALREADY_SUBSCRIBED"},
		},
		{
			name:   "not found hides details",
			err:    pkgerrors.New(pkgerrors.CodeNotFound, "no subscription").WithDetails("sub_1"),
			status: http.StatusNotFound,
			body:   ErrorBody{Error: "no subscription", Code: "NOT_FOUND"},
		},
		{
			name:   "untyped error stays private",
			err:    errors.New("pq: connection refused"),
			status: http.StatusInternalServerError,
			body:   ErrorBody{Error: "internal server error", Code: "INTERNAL_ERROR"},
		},
		{
			name:   "dependency uses public text",
			err:    pkgerrors.New(pkgerrors.CodeDependency, "asaas returned 502"),
			status: http.StatusServiceUnavailable,
			body:   ErrorBody{Error: "dependency unavailable", Code: "DEPENDENCY_ERROR"},
		},
		{
			name:   "nil error",
			status: http.StatusInternalServerError,
			body:   ErrorBody{Error: "internal server error", Code: "INTERNAL_ERROR"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(context.Background(), nil, rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			got := decodeError(t, rec)
			assert.Equal(t, tt.body.Error, got.Error)
			assert.Equal(t, tt.body.Code, got.Code)
			if tt.details {
				assert.NotNil(t, got.Details)
			} else {
				assert.Nil(t, got.Details)
			}
		})
	}
}

func TestWriteFallsBackWhenPayloadCannotEncode(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, map[string]any{"broken": make(chan int)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec).Code)
}
