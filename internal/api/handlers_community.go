package api

import (
	"log/slog"
	"net/http"
	"opshop/internal/models"

	"github.com/google/uuid"
)

// SubmitBuyback handles POST /api/buyback/submissions. Valuation happens
// downstream; the submission is acknowledged with an id.
func (h *Handlers) SubmitBuyback(w http.ResponseWriter, r *http.Request) {
	var req models.BuybackSubmissionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusUnprocessableEntity, models.ErrorCodeValidation, err.Error())
		return
	}

	id := uuid.NewString()
	slog.Info("Buyback submission received", "submission_id", id, "condition", req.Condition, "photos", len(req.PhotoURLs))
	h.writeJSONResponse(w, http.StatusAccepted, models.AcceptedResponse{
		ID:        id,
		Message:   "Buyback submission received, a valuation will follow",
		CreatedAt: h.clock.Now().UTC(),
	})
}

// SendMessage handles POST /api/messages. Only logged-in users can message.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req models.MessageRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusUnprocessableEntity, models.ErrorCodeValidation, err.Error())
		return
	}
	if req.RecipientID == userID {
		h.writeErrorResponse(w, http.StatusUnprocessableEntity, models.ErrorCodeValidation, "cannot message yourself")
		return
	}

	id := uuid.NewString()
	slog.Info("Message sent", "message_id", id, "from", userID, "to", req.RecipientID, "product_id", req.ProductID)
	h.writeJSONResponse(w, http.StatusAccepted, models.AcceptedResponse{
		ID:        id,
		Message:   "Message sent",
		CreatedAt: h.clock.Now().UTC(),
	})
}
