package websocket

import (
	"encoding/json"
	"log"

	"github.com/gorilla/websocket"
)

type Client struct {
	Hub          *Hub
	Conn         *websocket.Conn
	Send         chan []byte
	UserID       int
	Role         string // staff | department
	DepartmentID int    // 0 for oversight staff
}

// StaffAlert is pushed to staff dashboards when a donation changes
// state. Oversight staff receive every alert; department clients only
// receive alerts for their own department.
type StaffAlert struct {
	TargetDepartmentID int    `json:"-"`
	DonationID         string `json:"donation_id"`
	DonorName          string `json:"donor_name"`
	Amount             int64  `json:"amount"`
	PaymentMethod      string `json:"payment_method"`
	Status             string `json:"status"`
	Message            string `json:"message"`
}

type Hub struct {
	Clients        map[*Client]bool
	Register       chan *Client
	Unregister     chan *Client
	BroadcastAlert chan StaffAlert
}

func NewHub() *Hub {
	return &Hub{
		Clients:        make(map[*Client]bool),
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		BroadcastAlert: make(chan StaffAlert),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.Clients[client] = true
			log.Printf("WebSocket client registered for user %d", client.UserID)

		case client := <-h.Unregister:
			if _, ok := h.Clients[client]; ok {
				delete(h.Clients, client)
				close(client.Send)
				log.Printf("WebSocket client unregistered for user %d", client.UserID)
			}

		case alert := <-h.BroadcastAlert:
			jsonData, err := json.Marshal(alert)
			if err != nil {
				log.Println("Failed to marshal staff alert:", err)
				continue
			}

			for client := range h.Clients {
				if !h.wants(client, alert) {
					continue
				}
				select {
				case client.Send <- jsonData:
				default:
					close(client.Send)
					delete(h.Clients, client)
				}
			}
		}
	}
}

func (h *Hub) wants(client *Client, alert StaffAlert) bool {
	if client.Role == "staff" {
		return true
	}
	return alert.TargetDepartmentID != 0 && client.DepartmentID == alert.TargetDepartmentID
}
