package api

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

// UploadPhoto handles POST /machines/:id/photo with a multipart "photo" file.
func (h *Handler) UploadPhoto(c *gin.Context) {
	id, ok := parseID(c, "id", "machine ID")
	if !ok {
		return
	}
	if h.photos == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "photo storage is not configured"})
		return
	}
	ctx := c.Request.Context()
	m, err := h.store.GetMachine(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	fh, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
		return
	}
	if fh.Size > h.maxPhotoBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("photo exceeds %d bytes", h.maxPhotoBytes)})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read photo"})
		return
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read photo"})
		return
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo must be an image, got " + mtype.String()})
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read photo"})
		return
	}

	ref, err := h.photos.Save(ctx, id, mtype.Extension(), f, fh.Size, mtype.String())
	if err != nil {
		log.Printf("Failed to store photo for machine %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store photo"})
		return
	}
	if err := h.store.SetMachinePhoto(ctx, id, ref); err != nil {
		h.deletePhoto(ctx, id, ref)
		respondError(c, err)
		return
	}
	if m.Photo != "" && m.Photo != ref {
		h.deletePhoto(ctx, id, m.Photo)
	}
	c.JSON(http.StatusOK, gin.H{"photo": ref})
}

// deletePhoto removes a photo no machine refers to anymore. Failures only
// leave an orphaned object, so they are logged and not returned.
func (h *Handler) deletePhoto(ctx context.Context, id uint, ref string) {
	if err := h.photos.Delete(context.WithoutCancel(ctx), ref); err != nil {
		log.Printf("Failed to delete photo %s of machine %d: %v", ref, id, err)
	}
}
