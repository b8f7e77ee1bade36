package api

import (
	"github.com/gin-gonic/gin"

	"repair-tracker-backend/internal/timer"
)

// PhaseCommand returns the handler that applies action a to phase p of the
// machine in the path and answers with the updated machine.
func (h *Handler) PhaseCommand(p timer.Phase, a timer.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id", "machine ID")
		if !ok {
			return
		}
		if _, err := h.tracker.Apply(c.Request.Context(), id, p, a); err != nil {
			respondError(c, err)
			return
		}
		h.respondMachine(c, id, false)
	}
}
