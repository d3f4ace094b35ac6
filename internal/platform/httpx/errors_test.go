package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/siteledger/internal/shared"
)

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) ProblemDetail {
	t.Helper()
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestRespondErrorStatusAndCode(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{shared.NewValidationError("amount", "is required"), http.StatusBadRequest, shared.CodeValidation},
		{fmt.Errorf("%w: invoice 4", shared.ErrNotFound), http.StatusNotFound, shared.CodeNotFound},
		{fmt.Errorf("%w: invoice 4 is FINALIZED", shared.ErrInvalidState), http.StatusConflict, shared.CodeInvalid},
		{&shared.StoreError{Kind: shared.ErrConcurrencyConflict, Code: "40001", Err: errors.New("serialize")}, http.StatusConflict, shared.CodeConflict},
		{&shared.StoreError{Kind: shared.ErrPersistence, Code: "23503", Err: errors.New("fk vendor_ledger")}, http.StatusServiceUnavailable, shared.CodePersistence},
		{errors.New("boom"), http.StatusInternalServerError, shared.CodeInternal},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code)
		require.Equal(t, tc.code, decodeProblem(t, rec).Code)
	}
}

func TestRespondErrorHidesStoreDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, &shared.StoreError{Kind: shared.ErrPersistence, Code: "23503", Err: errors.New(`insert or update on table "vendor_ledger"`)})
	require.NotContains(t, rec.Body.String(), "vendor_ledger")
	require.NotContains(t, rec.Body.String(), "23503")
}

func TestRespondErrorIncludesValidationFields(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, &shared.ValidationError{Fields: map[string]string{"name": "is required"}})
	p := decodeProblem(t, rec)
	require.Equal(t, "is required", p.Fields["name"])
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	var dst struct {
		Name string `json:"name"`
	}
	err := DecodeJSON(req, &dst)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestIntQueryFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=7", nil)
	v, err := IntQuery(req, "limit", 10)
	require.NoError(t, err)
	require.Equal(t, 7, v)

	v, err = IntQuery(httptest.NewRequest(http.MethodGet, "/", nil), "limit", 10)
	require.NoError(t, err)
	require.Equal(t, 10, v)

	_, err = IntQuery(httptest.NewRequest(http.MethodGet, "/?limit=x", nil), "limit", 10)
	require.ErrorIs(t, err, shared.ErrValidation)
}
