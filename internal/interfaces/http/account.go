package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"brokerlink/internal/domain/account"
)

// AccountHandler exposes the mirrored accounts of a user to operators.
type AccountHandler struct {
	accountService *account.Service
	logger         *slog.Logger
}

// NewAccountHandler creates a new account handler with service layer
func NewAccountHandler(accountService *account.Service, logger *slog.Logger) *AccountHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountHandler{accountService: accountService, logger: logger}
}

// AccountResponse adds the holdings total to the stored account.
type AccountResponse struct {
	*account.ExternalAccount
	Positions   []account.Position `json:"positions,omitempty"`
	MarketValue string             `json:"marketValue,omitempty"`
}

func pathUserID(r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(r.PathValue("userId"), 10, 64)
	return userID, err == nil && userID > 0
}

// HandleListAccounts returns all accounts of the user in the path.
func (h *AccountHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := pathUserID(r)
	if !ok {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	accounts, err := h.accountService.ListAccountsByUserID(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list accounts", "user_id", userID, "error", err)
		http.Error(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}

	response := make([]AccountResponse, 0, len(accounts))
	for _, acc := range accounts {
		response = append(response, AccountResponse{ExternalAccount: acc})
	}
	writeJSON(w, http.StatusOK, response)
}

// HandleAccountByID returns one account with its holdings.
func (h *AccountHandler) HandleAccountByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := pathUserID(r)
	if !ok {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	accountID := r.PathValue("id")
	if accountID == "" {
		http.Error(w, "Account ID is required", http.StatusBadRequest)
		return
	}

	acc, err := h.accountService.GetAccount(r.Context(), accountID, userID)
	if err != nil {
		h.writeAccountError(w, r, accountID, err)
		return
	}
	positions, err := h.accountService.ListPositions(r.Context(), accountID, userID)
	if err != nil {
		h.writeAccountError(w, r, accountID, err)
		return
	}

	resp := AccountResponse{ExternalAccount: acc, Positions: positions}
	if len(positions) > 0 {
		total := positions[0].MarketValue()
		for _, p := range positions[1:] {
			total = total.Add(p.MarketValue())
		}
		resp.MarketValue = total.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AccountHandler) writeAccountError(w http.ResponseWriter, r *http.Request, accountID string, err error) {
	switch {
	case errors.Is(err, account.ErrAccountNotFound):
		http.Error(w, "Account not found", http.StatusNotFound)
	case errors.Is(err, account.ErrForbidden):
		http.Error(w, "Forbidden", http.StatusForbidden)
	default:
		h.logger.ErrorContext(r.Context(), "failed to load account", "account_id", accountID, "error", err)
		http.Error(w, "Failed to load account", http.StatusInternalServerError)
	}
}
