package tracking

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"repair-tracker-backend/config"
	"repair-tracker-backend/internal/model"
	"repair-tracker-backend/internal/store"
)

// maxBodyBytes caps how much of a carrier response is persisted.
const maxBodyBytes = 1 << 20

// Service refreshes the shipment status of issues that carry a tracking number.
type Service struct {
	cfg    config.TrackingConfig
	store  store.Store
	client *http.Client
	now    func() time.Time
}

// NewService creates a tracking service using the configured proxy and timeout.
func NewService(cfg config.TrackingConfig, s store.Store) *Service {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Printf("Warning: Invalid proxy URL %q: %v. Tracking will not use a proxy.", cfg.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &Service{
		cfg:   cfg,
		store: s,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		now: time.Now,
	}
}

// Run refreshes tracking data on the configured cron schedule until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		log.Println("Shipment tracking is disabled. Not starting.")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Schedule, func() { s.RefreshOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid tracking schedule %q: %w", s.cfg.Schedule, err)
	}
	log.Printf("Starting shipment tracking (schedule %q)...", s.cfg.Schedule)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	log.Println("Shipment tracking shutting down.")
	return nil
}

// RefreshOnce fetches the carrier status of every tracked issue. A failing
// issue is logged and skipped. It returns the number of issues updated.
func (s *Service) RefreshOnce(ctx context.Context) int {
	issues, err := s.store.ListTrackedIssues(ctx)
	if err != nil {
		log.Printf("Error listing tracked issues: %v", err)
		return 0
	}

	updated := 0
	for _, issue := range issues {
		if ctx.Err() != nil {
			break
		}
		data, err := s.fetch(ctx, issue)
		if err != nil {
			log.Printf("Error fetching tracking data for issue %d: %v", issue.ID, err)
			continue
		}
		if err := s.store.SaveTrackingData(ctx, issue.ID, data, s.now()); err != nil {
			log.Printf("Error saving tracking data for issue %d: %v", issue.ID, err)
			continue
		}
		updated++
	}
	log.Printf("Tracking refresh finished: %d/%d issues updated", updated, len(issues))
	return updated
}

func (s *Service) fetch(ctx context.Context, issue model.Issue) (string, error) {
	q := url.Values{}
	q.Set("carrier_code", issue.CarrierCode)
	q.Set("tracking_number", issue.TrackingNumber)
	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/tracking?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("API-Key", s.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	return string(body), nil
}
