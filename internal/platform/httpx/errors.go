// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/siteledger/internal/shared"
)

// RespondError maps the shared error taxonomy to RFC7807 responses with a stable code.
// Store-side detail is never written to the client.
func RespondError(w http.ResponseWriter, err error) {
	code := shared.ErrorCode(err)
	switch code {
	case shared.CodeValidation:
		var verr *shared.ValidationError
		if errors.As(err, &verr) {
			JSON(w, http.StatusBadRequest, ProblemDetail{
				Title:  "Validation Failed",
				Status: http.StatusBadRequest,
				Code:   code,
				Detail: err.Error(),
				Fields: verr.Fields,
			})
			return
		}
		Problem(w, http.StatusBadRequest, code, "Validation Failed", err.Error())
	case shared.CodeNotFound:
		Problem(w, http.StatusNotFound, code, "Not Found", err.Error())
	case shared.CodeInvalid:
		Problem(w, http.StatusConflict, code, "Invalid State", err.Error())
	case shared.CodeConflict:
		Problem(w, http.StatusConflict, code, "Concurrency Conflict", "the operation raced with another writer; retry it")
	case shared.CodePersistence:
		Problem(w, http.StatusServiceUnavailable, code, "Persistence Failure", "")
	default:
		Problem(w, http.StatusInternalServerError, code, "Internal Error", "")
	}
}
