// Google Photos implementation of [Target]
//
// Uploads are two-phase: raw bytes go to the uploads endpoint for an upload
// token, then batchCreate turns the token into a library media item.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/mbx/internal/shared"
)

const (
	photosBaseURL   = "https://photoslibrary.googleapis.com/v1"
	photosScope     = "https://www.googleapis.com/auth/photoslibrary"
	photosMaxUpload = 10 << 30
)

// PhotosTarget implements [Target] for Google Photos.
type PhotosTarget struct {
	config     shared.PhotosConfig
	oauth      *oauth2.Config
	httpClient *http.Client
	logger     *log.Logger
}

// NewPhotosTarget creates a Google Photos target from configuration.
func NewPhotosTarget(cfg shared.PhotosConfig, client *http.Client, logger *log.Logger) (*PhotosTarget, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client_id and client_secret are required", shared.ErrMissingCredentials)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &PhotosTarget{
		config:     cfg,
		oauth:      googleOAuthConfig(cfg.ClientID, cfg.ClientSecret, "http://localhost:8080/callback", []string{photosScope}),
		httpClient: client,
		logger:     logger,
	}, nil
}

func (p *PhotosTarget) ID() string   { return "google_photos" }
func (p *PhotosTarget) Name() string { return "Google Photos" }

// DestinationHint returns the configured album id, if any.
func (p *PhotosTarget) DestinationHint() string { return p.config.TargetAlbumID }

// OAuthConfig exposes the oauth2 configuration for the authorization flow.
func (p *PhotosTarget) OAuthConfig() *oauth2.Config { return p.oauth }

// TokenFile returns the path the cached token is stored at.
func (p *PhotosTarget) TokenFile() string { return p.config.TokenFile }

// Authenticate installs a cached token, refreshing through the oauth2
// TokenSource on use.
func (p *PhotosTarget) Authenticate(ctx context.Context) error {
	token, err := LoadToken(p.config.TokenFile)
	if err != nil {
		return fmt.Errorf("%w: %v (run `mbx auth photos`)", shared.ErrMissingCredentials, err)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	p.httpClient = oauth2.NewClient(ctx, p.oauth.TokenSource(ctx, token))
	return nil
}

// Upload replicates the local file to Photos and returns the media item id.
func (p *PhotosTarget) Upload(ctx context.Context, localPath, desiredFilename, hint string) (string, error) {
	if _, err := validateFile(localPath, photosMaxUpload); err != nil {
		return "", err
	}

	filename := filepath.Base(localPath)
	if desiredFilename != "" {
		filename = shared.SanitizeFilename(desiredFilename) + filepath.Ext(localPath)
	}

	token, err := p.uploadBytes(ctx, localPath, filename)
	if err != nil {
		return "", err
	}

	albumID := hint
	if albumID == "" {
		albumID = p.config.TargetAlbumID
	}

	id, err := p.createMediaItem(ctx, token, filename, albumID)
	if err != nil {
		return "", err
	}

	p.logger.Info("uploaded to Google Photos", "file", filename, "id", id)
	return id, nil
}

// CreateAlbum creates a new album and returns its id.
func (p *PhotosTarget) CreateAlbum(ctx context.Context, title string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"album": map[string]string{"title": title},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal album request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, photosBaseURL+"/albums", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", statusError("Photos", resp.StatusCode, string(detail))
	}

	var album struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&album); err != nil {
		return "", fmt.Errorf("failed to decode album response: %w", err)
	}

	return album.ID, nil
}

// uploadBytes pushes the raw file content and returns the upload token.
func (p *PhotosTarget) uploadBytes(ctx context.Context, localPath, filename string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, photosBaseURL+"/uploads", file)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Goog-Upload-Content-Type", "video/mp4")
	req.Header.Set("X-Goog-Upload-File-Name", filename)
	req.Header.Set("X-Goog-Upload-Protocol", "raw")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrConnection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("%w: failed reading upload token: %v", shared.ErrConnection, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError("Photos", resp.StatusCode, string(body))
	}

	token := string(bytes.TrimSpace(body))
	if token == "" {
		return "", fmt.Errorf("%w: Photos returned an empty upload token", shared.ErrValidation)
	}

	return token, nil
}

// createMediaItem registers an upload token as a library item.
func (p *PhotosTarget) createMediaItem(ctx context.Context, uploadToken, filename, albumID string) (string, error) {
	payload := map[string]any{
		"newMediaItems": []map[string]any{{
			"simpleMediaItem": map[string]string{
				"fileName":    filename,
				"uploadToken": uploadToken,
			},
		}},
	}
	if albumID != "" {
		payload["albumId"] = albumID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal batchCreate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, photosBaseURL+"/mediaItems:batchCreate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", statusError("Photos", resp.StatusCode, string(detail))
	}

	var result struct {
		NewMediaItemResults []struct {
			Status struct {
				Message string `json:"message"`
				Code    int    `json:"code"`
			} `json:"status"`
			MediaItem struct {
				ID string `json:"id"`
			} `json:"mediaItem"`
		} `json:"newMediaItemResults"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode batchCreate response: %w", err)
	}

	if len(result.NewMediaItemResults) == 0 {
		return "", fmt.Errorf("%w: batchCreate returned no results", shared.ErrValidation)
	}

	item := result.NewMediaItemResults[0]
	if item.MediaItem.ID == "" {
		return "", fmt.Errorf("%w: batchCreate failed: %s", shared.ErrValidation, item.Status.Message)
	}

	return item.MediaItem.ID, nil
}
