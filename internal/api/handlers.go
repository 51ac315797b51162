package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lkadlec/cashier/internal/reconciler"
	"github.com/lkadlec/cashier/internal/storage/sqlite"
	"github.com/lkadlec/cashier/internal/xcontest"
	"github.com/lkadlec/cashier/pkg/logger"
)

// maxCommandSize bounds the accepted command body
const maxCommandSize = 4 * 1024

// Handler contains the operator command handlers. Replies to command
// failures are short plain-text reasons; internal diagnostics stay in
// the logs.
type Handler struct {
	service *reconciler.Service
	logger  *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(service *reconciler.Service, logger *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger.Named("api-handler"),
	}
}

// PairCommand handles a raw pairing command posted as plain text
func (h *Handler) PairCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandSize))
	if err != nil {
		reply(w, http.StatusBadRequest, "Could not read the command.")
		return
	}

	cmd, err := reconciler.ParsePairCommand(string(body))
	if err != nil {
		var formatErr *reconciler.CommandFormatError
		if errors.As(err, &formatErr) {
			reply(w, http.StatusBadRequest, formatErr.Reason+". Please see /api/v1/help")
			return
		}
		reply(w, http.StatusBadRequest, "Invalid command.")
		return
	}

	if err := h.service.Pair(r.Context(), cmd); err != nil {
		var duplicate *sqlite.DuplicateMembershipError
		switch {
		case errors.As(err, &duplicate):
			reply(w, http.StatusConflict, duplicate.Error()+".")
		case errors.Is(err, xcontest.ErrIdentityNotFound):
			reply(w, http.StatusNotFound, "Pilot "+cmd.PilotUsername+" was not found on the flight site.")
		default:
			h.logger.Error("Pairing failed", logger.Error(err))
			reply(w, http.StatusInternalServerError, "Pairing failed, please try again later.")
		}
		return
	}

	reply(w, http.StatusOK, "Okay, paired.")
}

// NotifyFlight re-sends the offending flight notification and returns
// the rendered message
func (h *Handler) NotifyFlight(w http.ResponseWriter, r *http.Request) {
	flightID := chi.URLParam(r, "id")

	message, err := h.service.Notify(r.Context(), flightID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			reply(w, http.StatusNotFound, "Flight "+flightID+" is not known.")
			return
		}
		h.logger.Error("Flight notification failed", logger.Error(err))
		reply(w, http.StatusInternalServerError, "Notification failed, please try again later.")
		return
	}

	reply(w, http.StatusOK, message)
}

// GetHelp returns the operator command overview
func (h *Handler) GetHelp(w http.ResponseWriter, r *http.Request) {
	reply(w, http.StatusOK, reconciler.HelpMsg())
}

// GetHealth returns the service health status
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func reply(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(text + "\n"))
}
