package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"repair-tracker-backend/internal/model"
)

type createMachineRequest struct {
	Name       string `json:"name"`
	WorkerName string `json:"worker_name"`
}

// CreateMachine handles POST /machines.
func (h *Handler) CreateMachine(c *gin.Context) {
	var req createMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	m := &model.Machine{Name: req.Name, WorkerName: req.WorkerName}
	if err := h.store.CreateMachine(c.Request.Context(), m); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": m.ID})
}

// ListMachines handles GET /machines.
func (h *Handler) ListMachines(c *gin.Context) {
	machines, err := h.store.ListMachines(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]machineResponse, 0, len(machines))
	for i := range machines {
		resp = append(resp, newMachineResponse(&machines[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// GetMachine handles GET /machines/:id and includes the machine's issues.
func (h *Handler) GetMachine(c *gin.Context) {
	id, ok := parseID(c, "id", "machine ID")
	if !ok {
		return
	}
	h.respondMachine(c, id, true)
}

func (h *Handler) respondMachine(c *gin.Context, id uint, withIssues bool) {
	ctx := c.Request.Context()
	m, err := h.store.GetMachine(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !withIssues {
		c.JSON(http.StatusOK, newMachineResponse(m))
		return
	}

	issues, err := h.store.ListIssues(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, machineDetailResponse{machineResponse: newMachineResponse(m), Issues: issues})
}

// DeleteMachine handles DELETE /machines/:id. The machine's issues go with it.
func (h *Handler) DeleteMachine(c *gin.Context) {
	id, ok := parseID(c, "id", "machine ID")
	if !ok {
		return
	}
	if err := h.store.DeleteMachine(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Machine deleted"})
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateMachineStatus handles PUT /machines/:id/status.
func (h *Handler) UpdateMachineStatus(c *gin.Context) {
	id, ok := parseID(c, "id", "machine ID")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := h.store.SetMachineStatus(c.Request.Context(), id, req.Status); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Status updated"})
}
