package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"donatrack/internal/donations"
)

// DonationHandler exposes the dispatch stage, the three reconciliation
// entry points and the cash workflow over HTTP.
type DonationHandler struct {
	DB       *sqlx.DB
	Dispatch *donations.DispatchService
	Engine   *donations.Engine
	Cash     *donations.CashService
}

func NewDonationHandler(db *sqlx.DB, dispatch *donations.DispatchService, engine *donations.Engine, cash *donations.CashService) *DonationHandler {
	return &DonationHandler{DB: db, Dispatch: dispatch, Engine: engine, Cash: cash}
}

// statusFor maps the donation error taxonomy to HTTP codes.
func statusFor(err error) int {
	switch donations.KindOf(err) {
	case donations.KindValidation, donations.KindUnrecognizedReference:
		return http.StatusBadRequest
	case donations.KindNotFound:
		return http.StatusNotFound
	case donations.KindForbidden:
		return http.StatusForbidden
	case donations.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case donations.KindGateway:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if e, ok := err.(*donations.Error); ok && status < http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": e.Msg})
		return
	}
	log.Println("donation handler error:", err)
	c.JSON(status, gin.H{"error": "Server error."})
}

type CreateDonationRequest struct {
	DonorName     string `json:"donor_name" binding:"required"`
	DonorEmail    string `json:"donor_email" binding:"required,email"`
	DonorMessage  string `json:"donor_message"`
	Amount        int64  `json:"amount" binding:"required,gt=0"`
	PaymentMethod string `json:"payment_method" binding:"required,oneof=cash gcash paymaya card"`
	RecipientType string `json:"recipient_type" binding:"omitempty,oneof=crd department event"`
	DepartmentID  *int   `json:"department_id"`
	EventID       *int   `json:"event_id"`
}

func (h *DonationHandler) CreateDonation(c *gin.Context) {
	var req CreateDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	in := donations.CreateInput{
		DonorName:     req.DonorName,
		DonorEmail:    req.DonorEmail,
		DonorMessage:  req.DonorMessage,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		RecipientType: req.RecipientType,
		DepartmentID:  req.DepartmentID,
		EventID:       req.EventID,
	}
	// Anonymous donations are fine; link the account only when a valid
	// token was presented.
	if userID, exists := c.Get("userID"); exists {
		id := userID.(int)
		in.UserID = &id
	}

	result, err := h.Dispatch.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"donation_id":  result.Donation.ID,
		"status":       result.Donation.Status,
		"checkout_url": result.CheckoutURL,
	})
}

type ConfirmSourceRequest struct {
	SourceID   string `json:"sourceId"`
	DonationID string `json:"donationId" binding:"required"`
}

// ConfirmSource is the client poll entry point. "Still pending" is a
// normal answer here, not an error.
func (h *DonationHandler) ConfirmSource(c *gin.Context) {
	var req ConfirmSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	d, err := h.Engine.ConfirmSource(c.Request.Context(), req.DonationID, req.SourceID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"donation_id": d.ID, "status": d.Status})
}

// HandleWebhook receives PSP events. Unmatched events are acknowledged
// and dropped; a 2xx must go back even when fanout fails, or the PSP
// will retry the event forever.
func (h *DonationHandler) HandleWebhook(c *gin.Context) {
	var payload donations.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Println("Failed to bind webhook payload:", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook format"})
		return
	}

	if err := h.Engine.HandleWebhook(c.Request.Context(), payload.Event()); err != nil {
		// Non-2xx makes the PSP redeliver, which is what we want for
		// transient store/gateway failures.
		log.Println("Webhook processing failed:", err)
		c.JSON(statusFor(err), gin.H{"error": "Webhook processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// PaymongoRedirect is the browser-return entry point.
func (h *DonationHandler) PaymongoRedirect(c *gin.Context) {
	donationID := c.Query("donationId")
	refID := c.Query("id")

	location, err := h.Engine.HandleRedirect(c.Request.Context(), donationID, refID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Redirect(http.StatusFound, location)
}

func actorFromContext(c *gin.Context) donations.Actor {
	actor := donations.Actor{
		UserID: c.GetInt("userID"),
		Role:   c.GetString("role"),
	}
	if dep, exists := c.Get("departmentID"); exists {
		id := dep.(int)
		actor.DepartmentID = &id
	}
	return actor
}

type VerifyCashRequest struct {
	ReceiptNumber string `json:"receipt_number"`
	Notes         string `json:"notes"`
}

func (h *DonationHandler) VerifyCash(c *gin.Context) {
	var req VerifyCashRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
	}

	d, err := h.Cash.Verify(c.Request.Context(), actorFromContext(c), donations.VerifyCashInput{
		DonationID:    c.Param("id"),
		ReceiptNumber: req.ReceiptNumber,
		Notes:         req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"donation_id": d.ID, "status": d.Status})
}

func (h *DonationHandler) CompleteCash(c *gin.Context) {
	d, err := h.Cash.Complete(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"donation_id": d.ID, "status": d.Status})
}

// ListDonations is the public transparency feed: completed donations,
// newest first. Donor emails are never exposed here.
func (h *DonationHandler) ListDonations(c *gin.Context) {
	type row struct {
		ID            string `db:"id" json:"id"`
		DonorName     string `db:"donor_name" json:"donor_name"`
		Amount        int64  `db:"amount" json:"amount"`
		PaymentMethod string `db:"payment_method" json:"payment_method"`
		Status        string `db:"status" json:"status"`
		RecipientType string `db:"recipient_type" json:"recipient_type"`
	}

	var rows []row
	query := `
		SELECT id, donor_name, amount, payment_method, status, recipient_type
		  FROM donations
		 WHERE status IN ('succeeded', 'cash_completed')
		 ORDER BY updated_at DESC
		 LIMIT 100
	`
	if err := h.DB.Select(&rows, query); err != nil {
		log.Println("Failed to list donations:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch donations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"donations": rows})
}
