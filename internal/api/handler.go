package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"repair-tracker-backend/internal/photo"
	"repair-tracker-backend/internal/store"
	"repair-tracker-backend/internal/timer"
)

// defaultMaxPhotoBytes applies when Options.MaxPhotoBytes is unset.
const defaultMaxPhotoBytes = 10 << 20

// Options carries the optional collaborators of a Handler.
type Options struct {
	Photos        photo.Store
	MaxPhotoBytes int64
	IssuesFile    string
	WebPush       *webpush.Options
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store         store.Store
	tracker       *timer.Tracker
	photos        photo.Store
	maxPhotoBytes int64
	issuesFile    string
	webpush       *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, tracker *timer.Tracker, opts Options) *Handler {
	if opts.MaxPhotoBytes <= 0 {
		opts.MaxPhotoBytes = defaultMaxPhotoBytes
	}
	return &Handler{
		store:         s,
		tracker:       tracker,
		photos:        opts.Photos,
		maxPhotoBytes: opts.MaxPhotoBytes,
		issuesFile:    opts.IssuesFile,
		webpush:       opts.WebPush,
	}
}
