package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"eviforge/internal/api"
	"eviforge/internal/cases"
	"eviforge/internal/custody"
	"eviforge/internal/dispatch"
	"eviforge/internal/store"
	"eviforge/internal/vault"
)

const defaultJSONMaxBody = 1 << 20 // 1 MiB

func (s *Server) writeErrorReq(w http.ResponseWriter, r *http.Request, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	code := errorCode(status, err)
	numericCode := errorNumericCode(status, err)
	message := err.Error()

	fields := []any{"status", status, "code", code, "error_code", numericCode, "error", err}
	if r != nil {
		fields = append(fields, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	}

	switch {
	case status >= 500:
		s.log().Error("request error", fields...)
		message = "internal error"
	case status >= 400 && shouldWarnClientError(status):
		s.log().Warn("request rejected", fields...)
	case status >= 400:
		s.log().Debug("request rejected", fields...)
	}

	s.writeJSON(w, status, api.ErrorResponse{Error: message, Code: code, ErrorCode: numericCode})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write json response", "status", status, "error", err)
	}
}

type apiError struct {
	status  int
	code    string
	errCode int
	err     error
}

func (e apiError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e apiError) Unwrap() error {
	return e.err
}

func makeAPIError(status int, code string, errCode int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	var existing apiError
	if errors.As(err, &existing) {
		if existing.status != 0 {
			return existing
		}
	}

	return apiError{status: status, code: code, errCode: errCode, err: err}
}

func badRequest(err error) error {
	return badRequestCode(err, ErrCodeInvalidArgument)
}

func badRequestCode(err error, code int) error {
	return makeAPIError(http.StatusBadRequest, "invalid_argument", code, err)
}

func notFoundCode(err error, code int) error {
	return makeAPIError(http.StatusNotFound, "not_found", code, err)
}

func conflictCode(err error, codeName string, code int) error {
	return makeAPIError(http.StatusConflict, codeName, code, err)
}

func storeFailure(err error) error {
	return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeStoreFailure, err)
}

func httpStatusFromError(err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		return apiErr.status
	}
	return http.StatusInternalServerError
}

func errorCode(status int, err error) string {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.code != "" {
		return apiErr.code
	}
	switch status {
	case http.StatusBadRequest:
		return "invalid_argument"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "resource_exhausted"
	case http.StatusInternalServerError:
		return "internal"
	default:
		return ""
	}
}

func errorNumericCode(status int, err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.errCode > 0 {
		return apiErr.errCode
	}
	return defaultErrorCodeByStatus(status)
}

func shouldWarnClientError(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// classifyDomainError maps sentinel errors from the lower layers onto
// the apiError envelope; string codes reuse the job reason vocabulary
// where one applies.
func classifyDomainError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return notFoundCode(err, ErrCodeCaseNotFound)
	case errors.Is(err, dispatch.ErrUnknownModule):
		return notFoundCode(err, ErrCodeUnknownModule)
	case errors.Is(err, dispatch.ErrIncompatibleEvidence):
		return badRequestCode(err, ErrCodeIncompatibleEvidence)
	case errors.Is(err, dispatch.ErrEvidenceRequired):
		return badRequestCode(err, ErrCodeMissingRequired)
	case errors.Is(err, dispatch.ErrCaseClosed), errors.Is(err, cases.ErrCaseClosed):
		return conflictCode(err, "case_closed", ErrCodeCaseClosed)
	case errors.Is(err, vault.ErrDuplicateTarget):
		return conflictCode(err, "duplicate_target", ErrCodeDuplicateTarget)
	case errors.Is(err, vault.ErrPathOutsideVault):
		return makeAPIError(http.StatusBadRequest, "path_outside_vault", ErrCodePathOutsideVault, err)
	case errors.Is(err, vault.ErrIntegrityMismatch):
		return makeAPIError(http.StatusInternalServerError, "integrity_mismatch", ErrCodeIntegrityMismatch, err)
	case errors.Is(err, custody.ErrCaseHalted):
		return conflictCode(err, "case_halted", ErrCodeCaseHalted)
	default:
		return storeFailure(err)
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	classified := classifyDomainError(err)
	s.writeErrorReq(w, r, httpStatusFromError(classified), classified)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, int64(defaultJSONMaxBody))
	return json.NewDecoder(r.Body).Decode(dst)
}

func classifyDecodeJSONError(err error) error {
	if err == nil {
		return nil
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return badRequestCode(fmt.Errorf("invalid JSON payload"), ErrCodeInvalidJSON)
	}

	return badRequestCode(err, ErrCodeInvalidJSON)
}

func (s *Server) decodeJSONReq(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyDecodeJSONError(err))
		return false
	}
	return true
}

func (s *Server) pathCaseIDOrBadRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid case id"), ErrCodeInvalidID))
		return "", false
	}
	return id, true
}

func (s *Server) pathSeqOrBadRequest(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.PathValue("seq"))
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seq < 1 {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid job seq"), ErrCodeInvalidID))
		return 0, false
	}
	return seq, true
}
