package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"clientportal/models"
	"clientportal/utils"

	"github.com/gofiber/websocket/v2"
)

type wsProgress struct {
	Message string `json:"message"`
	Percent int    `json:"percent"`
	Status  string `json:"status"`
}

// HandleSyncProgressWS streams live progress for one provider sync. The
// client authenticates by sending its JWT in the first frame; websocket
// upgrades bypass the HTTP auth middleware.
func (lc *LeadController) HandleSyncProgressWS(c *websocket.Conn) {
	defer c.Close()

	var input struct {
		Token     string `json:"token"`
		ForceFull bool   `json:"force_full"`
	}
	if err := c.ReadJSON(&input); err != nil {
		log.Printf("sync ws: error reading JSON: %v", err)
		return
	}

	claims, err := utils.ParseJWTToken(input.Token)
	if err != nil {
		c.WriteJSON(wsProgress{Message: "Authentication failed", Status: "failed"})
		return
	}

	var user models.User
	if err := lc.DB.First(&user, claims.UserID).Error; err != nil {
		c.WriteJSON(wsProgress{Message: "Account not found", Status: "failed"})
		return
	}
	if user.TokenVersion != claims.TokenVersion {
		c.WriteJSON(wsProgress{Message: "Session expired", Status: "failed"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	c.WriteJSON(wsProgress{Message: "Starting sync...", Percent: 0, Status: "running"})

	result, err := lc.Sync.Sync(ctx, &user, input.ForceFull, func(page, totalPages, fetched int) {
		percent := 0
		if totalPages > 0 {
			percent = page * 100 / totalPages
		}
		c.WriteJSON(wsProgress{
			Message: fmt.Sprintf("Fetched page %d of %d (%d activities)", page, totalPages, fetched),
			Percent: percent,
			Status:  "running",
		})
	})
	if err != nil {
		msg := "Sync failed"
		if errors.Is(err, utils.ErrUpstreamAuth) {
			msg = "Provider authorization failed; reconnect the tracking account"
		} else if errors.Is(err, utils.ErrUpstreamUnavailable) {
			msg = "Provider unavailable; showing cached activities"
		}
		c.WriteJSON(wsProgress{Message: msg, Percent: 100, Status: "failed"})
		return
	}

	c.WriteJSON(wsProgress{
		Message: fmt.Sprintf("Sync completed: %d new, %d updated", result.NewCount, result.UpdatedCount),
		Percent: 100,
		Status:  "completed",
	})
}
