package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	apperrors "github.com/tracenation/tracenation-api/internal/errors"
)

const maxJSONBody = 1 << 20

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
	Field   string
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, errorBody{Error: p.ErrCode, Message: p.Err.Error(), Field: p.Field})
}

// WriteServiceError maps err onto a status and error code and writes it.
func WriteServiceError(w http.ResponseWriter, err error) {
	status, code := classifyError(err)
	WriteError(w, ErrorParams{Code: status, ErrCode: code, Err: err, Field: apperrors.GetField(err)})
}

// classifyError maps auth kinds first, then data layer codes.
func classifyError(err error) (int, string) {
	var authErr *domainauth.Error
	if errors.As(err, &authErr) {
		switch authErr.Kind {
		case domainauth.KindInvalidCredentials:
			return http.StatusUnauthorized, string(authErr.Kind)
		case domainauth.KindNoActiveSession:
			return http.StatusUnauthorized, string(authErr.Kind)
		case domainauth.KindUnverifiedAccount:
			return http.StatusForbidden, string(authErr.Kind)
		case domainauth.KindNetworkFailure, domainauth.KindRoleFetchFailure:
			return http.StatusBadGateway, string(authErr.Kind)
		case domainauth.KindRoleUpsertFailure:
			return http.StatusConflict, string(authErr.Kind)
		default:
			// Rejections the identity service explains in its message.
			return http.StatusUnprocessableEntity, "auth_rejected"
		}
	}

	code := string(apperrors.GetCode(err))
	if code == "" {
		code = string(apperrors.ErrCodeInternal)
	}
	return apperrors.HTTPStatus(err), code
}

// userMessage is the French text shown on forms for err.
func userMessage(err error) string {
	var authErr *domainauth.Error
	if !errors.As(err, &authErr) {
		return "Une erreur est survenue. Veuillez réessayer."
	}
	switch authErr.Kind {
	case domainauth.KindInvalidCredentials:
		return "Email ou mot de passe incorrect."
	case domainauth.KindUnverifiedAccount:
		return "Veuillez confirmer votre adresse email avant de vous connecter."
	case domainauth.KindNetworkFailure:
		return "Le service d'authentification est indisponible. Veuillez réessayer plus tard."
	case domainauth.KindNoActiveSession:
		return "Votre session a expiré. Veuillez vous reconnecter."
	case domainauth.KindRoleUpsertFailure:
		return "Le rôle n'a pas pu être mis à jour."
	default:
		return authErr.Message
	}
}
