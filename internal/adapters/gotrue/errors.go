package gotrue

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
)

// APIError is an error response returned by the identity server. Older
// servers send error/error_description, newer ones code/msg/error_code.
type APIError struct {
	Status           int    `json:"-"`
	Code             int    `json:"code,omitempty"`
	ErrorCode        string `json:"error_code,omitempty"`
	Msg              string `json:"msg,omitempty"`
	ErrorName        string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gotrue %d: %s", e.Status, e.message())
}

func (e *APIError) message() string {
	for _, s := range []string{e.Msg, e.ErrorDescription, e.ErrorName, e.ErrorCode} {
		if s != "" {
			return s
		}
	}
	return http.StatusText(e.Status)
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	if len(body) > 0 {
		// a non-JSON body leaves only the status
		_ = json.Unmarshal(body, apiErr)
	}
	apiErr.Status = status
	return apiErr
}

// classify maps transport and API failures onto auth error kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *domainauth.Error
	if errors.As(err, &domainErr) {
		return err
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return domainauth.NewError(apiKind(op, apiErr), apiErr.message(), err)
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return domainauth.NewError(domainauth.KindNetworkFailure, op+": identity service unreachable", err)
	}
	return domainauth.NewError(domainauth.KindUnknown, op+" failed", err)
}

func apiKind(op string, e *APIError) domainauth.ErrorKind {
	text := strings.ToLower(e.ErrorCode + " " + e.Msg + " " + e.ErrorDescription)
	switch {
	case e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests:
		return domainauth.KindNetworkFailure
	case e.ErrorCode == "email_not_confirmed" || strings.Contains(text, "email not confirmed"):
		return domainauth.KindUnverifiedAccount
	case e.ErrorCode == "invalid_credentials" || e.ErrorName == "invalid_grant" && op == opSignIn:
		return domainauth.KindInvalidCredentials
	case e.Status == http.StatusUnauthorized || e.ErrorCode == "session_not_found" || e.ErrorCode == "refresh_token_not_found":
		return domainauth.KindNoActiveSession
	case e.ErrorName == "invalid_grant":
		return domainauth.KindNoActiveSession
	default:
		return domainauth.KindUnknown
	}
}
