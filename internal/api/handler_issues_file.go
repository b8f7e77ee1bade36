package api

import (
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// GetIssuesFile serves the configured issue catalogue file verbatim.
func (h *Handler) GetIssuesFile(c *gin.Context) {
	data, err := os.ReadFile(h.issuesFile)
	if err != nil {
		log.Printf("Error reading issues file %q: %v", h.issuesFile, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error reading issues file"})
		return
	}
	if !json.Valid(data) {
		log.Printf("Issues file %q does not contain valid JSON", h.issuesFile)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error reading issues file"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}
