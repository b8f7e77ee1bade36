package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"repair-tracker-backend/internal/model"
	"repair-tracker-backend/internal/store"
)

type addIssueRequest struct {
	Issue    string `json:"issue"`
	Note     string `json:"note"`
	Severity string `json:"severity"`
}

// AddIssue handles POST /machines/:id/issues and answers with the machine's issues.
func (h *Handler) AddIssue(c *gin.Context) {
	id, ok := parseID(c, "id", "machine ID")
	if !ok {
		return
	}
	var req addIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	issue := &model.Issue{MachineID: id, Issue: req.Issue, Note: req.Note, Severity: req.Severity}
	if err := h.store.AddIssue(c.Request.Context(), issue); err != nil {
		respondError(c, err)
		return
	}
	h.respondIssues(c, http.StatusCreated, id)
}

// DeleteIssue handles DELETE /machines/:id/issues/:issueId.
func (h *Handler) DeleteIssue(c *gin.Context) {
	machineID, issueID, ok := issuePath(c)
	if !ok {
		return
	}
	if err := h.store.DeleteIssue(c.Request.Context(), machineID, issueID); err != nil {
		respondError(c, err)
		return
	}
	h.respondIssues(c, http.StatusOK, machineID)
}

// UpdateIssueField returns the handler for PUT .../issues/:issueId/<field>,
// which expects a body of the form {"<field>": "value"}.
func (h *Handler) UpdateIssueField(field store.IssueField) gin.HandlerFunc {
	return func(c *gin.Context) {
		machineID, issueID, ok := issuePath(c)
		if !ok {
			return
		}
		var body map[string]string
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		value, present := body[string(field)]
		if !present {
			c.JSON(http.StatusBadRequest, gin.H{"error": string(field) + " is required"})
			return
		}
		if err := h.store.UpdateIssueField(c.Request.Context(), machineID, issueID, field, value); err != nil {
			respondError(c, err)
			return
		}
		h.respondIssues(c, http.StatusOK, machineID)
	}
}

type trackingRequest struct {
	TrackingNumber string `json:"tracking_number"`
	CarrierCode    string `json:"carrier_code"`
}

// UpdateIssueTracking handles PUT .../issues/:issueId/tracking. An empty
// tracking number stops tracking the issue.
func (h *Handler) UpdateIssueTracking(c *gin.Context) {
	machineID, issueID, ok := issuePath(c)
	if !ok {
		return
	}
	var req trackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := h.store.SetIssueTracking(c.Request.Context(), machineID, issueID, req.TrackingNumber, req.CarrierCode); err != nil {
		respondError(c, err)
		return
	}
	h.respondIssues(c, http.StatusOK, machineID)
}

func issuePath(c *gin.Context) (machineID, issueID uint, ok bool) {
	if machineID, ok = parseID(c, "id", "machine ID"); !ok {
		return 0, 0, false
	}
	if issueID, ok = parseID(c, "issueId", "issue ID"); !ok {
		return 0, 0, false
	}
	return machineID, issueID, true
}

func (h *Handler) respondIssues(c *gin.Context, code int, machineID uint) {
	issues, err := h.store.ListIssues(c.Request.Context(), machineID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(code, issues)
}
