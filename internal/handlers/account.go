package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"donatrack/internal/models"
)

type AccountHandler struct {
	DB *sqlx.DB
}

func NewAccountHandler(db *sqlx.DB) *AccountHandler {
	return &AccountHandler{DB: db}
}

func (h *AccountHandler) GetMyProfile(c *gin.Context) {
	userID := c.GetInt("userID")

	var user models.User
	query := `SELECT id, email, name, role, department_id, created_at, updated_at
	            FROM users WHERE id = $1`
	err := h.DB.Get(&user, query, userID)
	if err != nil {
		log.Println("Failed to get user profile:", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
		return
	}

	resp := gin.H{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
		"role":  user.Role,
	}
	if user.DepartmentID.Valid {
		resp["department_id"] = user.DepartmentID.Int64
	}
	c.JSON(http.StatusOK, resp)
}

// GetMyDonations lists the donations linked to the logged-in account,
// newest first.
func (h *AccountHandler) GetMyDonations(c *gin.Context) {
	userID := c.GetInt("userID")

	var rows []models.Donation
	query := `SELECT * FROM donations WHERE user_id = $1 ORDER BY created_at DESC`
	if err := h.DB.Select(&rows, query, userID); err != nil {
		log.Println("Failed to get donations:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch donations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"donations": rows})
}

// GetMyNotifications returns the in-app notification feed.
func (h *AccountHandler) GetMyNotifications(c *gin.Context) {
	userID := c.GetInt("userID")

	type row struct {
		ID         int    `db:"id" json:"id"`
		DonationID string `db:"donation_id" json:"donation_id"`
		Kind       string `db:"kind" json:"kind"`
		Message    string `db:"message" json:"message"`
		Read       bool   `db:"read" json:"read"`
	}

	var rows []row
	query := `
		SELECT id, donation_id, kind, message, read_at IS NOT NULL AS read
		  FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT 50
	`
	if err := h.DB.Select(&rows, query, userID); err != nil {
		log.Println("Failed to get notifications:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": rows})
}
