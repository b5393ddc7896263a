// Google Drive implementation of [Target]
//
// Speaks the Drive v3 REST API directly: multipart upload for files, a
// quota pre-flight via the about endpoint, and folder lookup/creation for
// the default upload location.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/mbx/internal/shared"
)

const (
	driveBaseURL       = "https://www.googleapis.com/drive/v3"
	driveUploadURL     = "https://www.googleapis.com/upload/drive/v3/files"
	driveScope         = "https://www.googleapis.com/auth/drive.file"
	driveDefaultFolder = "mbx uploads"

	// Largest file this client sends in a single multipart request, 5 GiB.
	// Larger files would need the resumable upload protocol.
	driveMaxUploadBytes = 5 << 30
)

// DriveTarget implements [Target] for Google Drive.
type DriveTarget struct {
	config     shared.DriveConfig
	oauth      *oauth2.Config
	httpClient *http.Client
	logger     *log.Logger
}

// NewDriveTarget creates a Google Drive target from configuration. The
// target is unusable until a token exists (see Authenticate); construction
// only validates credentials presence.
func NewDriveTarget(cfg shared.DriveConfig, client *http.Client, logger *log.Logger) (*DriveTarget, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client_id and client_secret are required", shared.ErrMissingCredentials)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &DriveTarget{
		config:     cfg,
		oauth:      googleOAuthConfig(cfg.ClientID, cfg.ClientSecret, "http://localhost:8080/callback", []string{driveScope}),
		httpClient: client,
		logger:     logger,
	}, nil
}

func (d *DriveTarget) ID() string   { return "google_drive" }
func (d *DriveTarget) Name() string { return "Google Drive" }

// DestinationHint returns the configured upload folder id, if any.
func (d *DriveTarget) DestinationHint() string { return d.config.TargetFolderID }

// OAuthConfig exposes the oauth2 configuration for the authorization flow.
func (d *DriveTarget) OAuthConfig() *oauth2.Config { return d.oauth }

// TokenFile returns the path the cached token is stored at.
func (d *DriveTarget) TokenFile() string { return d.config.TokenFile }

// Authenticate installs a cached token, refreshing through the oauth2
// TokenSource on use.
func (d *DriveTarget) Authenticate(ctx context.Context) error {
	token, err := LoadToken(d.config.TokenFile)
	if err != nil {
		return fmt.Errorf("%w: %v (run `mbx auth drive`)", shared.ErrMissingCredentials, err)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, d.httpClient)
	d.httpClient = oauth2.NewClient(ctx, d.oauth.TokenSource(ctx, token))
	return nil
}

// Upload replicates the local file to Drive and returns the created file id.
func (d *DriveTarget) Upload(ctx context.Context, localPath, desiredFilename, hint string) (string, error) {
	size, err := validateFile(localPath, driveMaxUploadBytes)
	if err != nil {
		return "", err
	}

	if err := d.checkQuota(ctx, size); err != nil {
		return "", err
	}

	folderID := hint
	if folderID == "" && d.config.TargetFolderID != "" {
		folderID = d.config.TargetFolderID
	}
	if folderID == "" {
		folderID, err = d.ensureFolder(ctx, driveDefaultFolder)
		if err != nil {
			return "", err
		}
	}

	filename := filepath.Base(localPath)
	if desiredFilename != "" {
		filename = shared.SanitizeFilename(desiredFilename) + filepath.Ext(localPath)
	}

	id, err := d.doUpload(ctx, localPath, filename, folderID)
	if err != nil {
		return "", err
	}

	d.logger.Info("uploaded to Google Drive", "file", filename, "id", id)
	return id, nil
}

// checkQuota verifies the account has room for size bytes before the upload
// request is built.
func (d *DriveTarget) checkQuota(ctx context.Context, size int64) error {
	var about struct {
		StorageQuota struct {
			Limit string `json:"limit"`
			Usage string `json:"usage"`
		} `json:"storageQuota"`
	}

	endpoint := driveBaseURL + "/about?fields=storageQuota"
	if err := d.getJSON(ctx, endpoint, &about); err != nil {
		return err
	}

	// An absent limit means unlimited storage.
	if about.StorageQuota.Limit == "" {
		return nil
	}

	limit, err := strconv.ParseInt(about.StorageQuota.Limit, 10, 64)
	if err != nil {
		return nil
	}
	usage, err := strconv.ParseInt(about.StorageQuota.Usage, 10, 64)
	if err != nil {
		return nil
	}

	if usage+size > limit {
		return fmt.Errorf("%w: need %d bytes, %d available", shared.ErrQuotaExceeded, size, limit-usage)
	}

	return nil
}

// ensureFolder finds or creates a folder by name and returns its id.
func (d *DriveTarget) ensureFolder(ctx context.Context, name string) (string, error) {
	query := fmt.Sprintf("mimeType='application/vnd.google-apps.folder' and name='%s' and trashed=false", name)
	endpoint := driveBaseURL + "/files?spaces=drive&fields=files(id,name)&q=" + url.QueryEscape(query)

	var listing struct {
		Files []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"files"`
	}
	if err := d.getJSON(ctx, endpoint, &listing); err != nil {
		return "", err
	}
	if len(listing.Files) > 0 {
		return listing.Files[0].ID, nil
	}

	body, err := json.Marshal(map[string]string{
		"name":     name,
		"mimeType": "application/vnd.google-apps.folder",
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal folder metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, driveBaseURL+"/files?fields=id", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var created struct {
		ID string `json:"id"`
	}
	if err := d.doJSON(req, &created); err != nil {
		return "", err
	}

	return created.ID, nil
}

// doUpload performs the multipart upload request and returns the file id.
func (d *DriveTarget) doUpload(ctx context.Context, localPath, filename, folderID string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	defer file.Close()

	metadata := map[string]any{"name": filename}
	if folderID != "" {
		metadata["parents"] = []string{folderID}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal file metadata: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return "", fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := metaPart.Write(metaJSON); err != nil {
		return "", fmt.Errorf("failed to build multipart body: %w", err)
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", "application/octet-stream")
	mediaPart, err := writer.CreatePart(mediaHeader)
	if err != nil {
		return "", fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := io.Copy(mediaPart, file); err != nil {
		return "", fmt.Errorf("%w: failed to read %s: %v", shared.ErrValidation, localPath, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to build multipart body: %w", err)
	}

	endpoint := driveUploadURL + "?uploadType=multipart&fields=id"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())

	var uploaded struct {
		ID string `json:"id"`
	}
	if err := d.doJSON(req, &uploaded); err != nil {
		return "", err
	}
	if uploaded.ID == "" {
		return "", fmt.Errorf("%w: Drive returned no file id", shared.ErrValidation)
	}

	return uploaded.ID, nil
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (d *DriveTarget) getJSON(ctx context.Context, endpoint string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return d.doJSON(req, result)
}

// doJSON executes a request, mapping non-2xx statuses onto the taxonomy.
func (d *DriveTarget) doJSON(req *http.Request, result any) error {
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError("Drive", resp.StatusCode, string(body))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
