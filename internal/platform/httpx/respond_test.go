package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Name   string `json:"name" validate:"required"`
	Amount int    `json:"amount" validate:"gte=0"`
}

func TestDecodeJSONValidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"","amount":-1}`))
	var s sample
	err := DecodeJSON(req, &s)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrValidation))
	require.Contains(t, err.Error(), "name failed required")
	require.Contains(t, err.Error(), "amount failed gte")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	var s sample
	require.ErrorIs(t, DecodeJSON(req, &s), ErrValidation)
}

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("invoice 7: %w", ErrNotFound): http.StatusNotFound,
		ErrConflict:                             http.StatusConflict,
		ErrValidation:                           http.StatusBadRequest,
		ErrForbidden:                            http.StatusForbidden,
		ErrUnavailable:                          http.StatusServiceUnavailable,
		errors.New("boom"):                      http.StatusInternalServerError,
	}
	for err, status := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, err)
		require.Equal(t, status, rec.Code, err.Error())
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}
}
