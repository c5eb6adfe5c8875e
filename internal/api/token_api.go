package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-fcm-dispatch/pkg/dispatch"
)

// MinTokenLength is the shortest registration identifier accepted.
const MinTokenLength = 32

type TokenAPI struct {
	Store  dispatch.TokenStore
	Logger *slog.Logger
}

func NewTokenAPI(store dispatch.TokenStore, logger *slog.Logger) *TokenAPI {
	return &TokenAPI{
		Store:  store,
		Logger: logger.With("component", "TokenAPI"),
	}
}

// Ack is the body of every non-401 response.
type Ack struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// UpdateToken stores the caller's device registration identifier.
// Body: {"fcm_token": "<string, at least 32 characters>"}.
func (api *TokenAPI) UpdateToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserHandleFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	userURN, err := urn.Parse(userID)
	if err != nil {
		api.Logger.Warn("UpdateToken: caller identity is not a URN", "user", userID, "err", err)
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	token, problems := validateTokenRequest(r)
	if len(problems) > 0 {
		writeAck(w, http.StatusUnprocessableEntity, Ack{
			Success: false,
			Message: "Validation failed",
			Errors:  map[string][]string{"fcm_token": problems},
		})
		return
	}

	if err := api.Store.SaveToken(ctx, userURN, token); err != nil {
		api.Logger.Error("Failed to update FCM token", "user", userURN.String(), "err", err)
		writeAck(w, http.StatusInternalServerError, Ack{Success: false, Message: "Failed to update FCM token"})
		return
	}

	api.Logger.Info("FCM token updated", "user", userURN.String())
	writeAck(w, http.StatusOK, Ack{Success: true, Message: "FCM token updated successfully"})
}

// validateTokenRequest returns the token or the list of rule violations.
func validateTokenRequest(r *http.Request) (string, []string) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return "", []string{"The fcm token field is required."}
	}

	raw, ok := body["fcm_token"]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", []string{"The fcm token field is required."}
	}

	var token string
	if err := json.Unmarshal(raw, &token); err != nil {
		return "", []string{"The fcm token field must be a string."}
	}
	if token == "" {
		return "", []string{"The fcm token field is required."}
	}
	if utf8.RuneCountInString(token) < MinTokenLength {
		return "", []string{fmt.Sprintf("The fcm token field must be at least %d characters.", MinTokenLength)}
	}
	return token, nil
}

func writeAck(w http.ResponseWriter, status int, ack Ack) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ack)
}
