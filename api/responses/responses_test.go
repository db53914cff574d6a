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

	pkgerrors "github.com/petalpost/storefront-backend/pkg/errors"
	"github.com/petalpost/storefront-backend/pkg/types"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.ErrorEnvelope {
	t.Helper()
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Success)
	return body
}

func TestWriteSuccessWrapsData(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccessStatus(rec, http.StatusCreated, map[string]string{"orderNumber": "ORD1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"data":{"orderNumber":"ORD1"}}`, rec.Body.String())
}

func TestWriteJSONUnencodablePayload(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, map[string]any{"bad": make(chan int)})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWriteErrorEnvelope(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		status      int
		code        pkgerrors.Code
		message     string
		wantDetails bool
	}{
		{
			name:        "validation keeps message and details",
			err:         pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive").WithDetails(map[string]string{"field": "amount"}),
			status:      http.StatusBadRequest,
			code:        pkgerrors.CodeValidation,
			message:     "amount must be positive",
			wantDetails: true,
		},
		{
			name:        "gateway is 500 with provider details",
			err:         pkgerrors.Wrap(pkgerrors.CodeGateway, errors.New("BAD_REQUEST_ERROR"), "razorpay create order failed").WithDetails(map[string]string{"description": "amount exceeds maximum"}),
			status:      http.StatusInternalServerError,
			code:        pkgerrors.CodeGateway,
			message:     "razorpay create order failed",
			wantDetails: true,
		},
		{
			name:    "unverified payment is 422",
			err:     fmt.Errorf("submit: %w", pkgerrors.New(pkgerrors.CodeStateConflict, "payment not verified")),
			status:  http.StatusUnprocessableEntity,
			code:    pkgerrors.CodeStateConflict,
			message: "payment not verified",
		},
		{
			name:    "dependency hides its message",
			err:     pkgerrors.New(pkgerrors.CodeDependency, "redis dial tcp 10.0.0.3:6379"),
			status:  http.StatusServiceUnavailable,
			code:    pkgerrors.CodeDependency,
			message: "dependency unavailable",
		},
		{
			name:    "untyped errors are internal",
			err:     errors.New("boom"),
			status:  http.StatusInternalServerError,
			code:    pkgerrors.CodeInternal,
			message: "internal server error",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(context.Background(), nil, rec, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, string(tc.code), body.Error.Code)
			assert.Equal(t, tc.message, body.Error.Message)
			assert.Equal(t, tc.wantDetails, body.Error.Details != nil)
		})
	}
}
