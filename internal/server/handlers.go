package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchyard/internal/models"
	"github.com/zulandar/switchyard/internal/store"
	"github.com/zulandar/switchyard/internal/webhook"
)

// handleWebhook ingests one delivery. The order of checks is part of the
// contract: header validation rejects before any signature work, the
// signature gates body parsing, and parse failures are the caller's
// fault, not ours.
func (s *Server) handleWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	delivery, err := webhook.ParseHeaders(c.Request.Header)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !s.verifyAnyInstallation(body, delivery.Signature) {
		// Which secret failed is deliberately not disclosed.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "signature verification failed"})
		return
	}

	ev, err := webhook.Normalize(delivery, body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	if err := s.engine.HandleWebhook(c.Request.Context(), ev); err != nil {
		log.Printf("server: delivery %s: %v", delivery.DeliveryID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// verifyAnyInstallation checks the signature against every configured
// installation secret. The payload has not been parsed yet, so the
// target installation is unknown; a match against any configured secret
// admits the delivery and the engine routes it by repository after.
func (s *Server) verifyAnyInstallation(body []byte, signature string) bool {
	for i := range s.cfg.Installations {
		if webhook.Verify(body, signature, s.cfg.Installations[i].Secret()) {
			return true
		}
	}
	return false
}

// installationStatus is the status API's view of one installation.
type installationStatus struct {
	ID           uint       `json:"id"`
	Owner        string     `json:"owner"`
	Repo         string     `json:"repo"`
	Strategy     string     `json:"strategy"`
	SyncStatus   string     `json:"sync_status"`
	ErrorCount   int        `json:"error_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	LastEventID  string     `json:"last_event_id,omitempty"`
}

func (s *Server) handleInstallations(c *gin.Context) {
	insts, err := s.store.ActiveInstallations()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	out := make([]installationStatus, 0, len(insts))
	for i := range insts {
		out = append(out, s.statusFor(&insts[i]))
	}
	c.JSON(http.StatusOK, gin.H{"installations": out})
}

func (s *Server) handleInstallationStatus(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid installation id"})
		return
	}

	var inst models.Installation
	insts, err := s.store.ActiveInstallations()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	found := false
	for i := range insts {
		if insts[i].ID == uint(id) {
			inst = insts[i]
			found = true
			break
		}
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "installation not found"})
		return
	}
	c.JSON(http.StatusOK, s.statusFor(&inst))
}

// statusFor joins the installation row with its sync state.
func (s *Server) statusFor(inst *models.Installation) installationStatus {
	out := installationStatus{
		ID:       inst.ID,
		Owner:    inst.Owner,
		Repo:     inst.Repo,
		Strategy: inst.Strategy,
	}
	state, err := s.store.State(inst.ID)
	if errors.Is(err, store.ErrNotFound) {
		out.SyncStatus = models.SyncIdle
		return out
	}
	if err != nil {
		out.SyncStatus = "unknown"
		return out
	}
	out.SyncStatus = state.SyncStatus
	out.ErrorCount = state.ErrorCount
	out.ErrorMessage = state.ErrorMessage
	out.LastSyncAt = state.LastSyncAt
	out.LastEventID = state.LastEventID
	return out
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
