// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/desertthunder/mbx/internal/download"
)

// MockEngine is a test double for [download.Engine]. Errs are consumed in
// order before Result is returned, so a slice of n errors followed by a
// non-nil Result simulates n failed attempts and then success.
type MockEngine struct {
	mu       sync.Mutex
	Result   *download.Result
	Errs     []error
	Attempts int
}

func (m *MockEngine) Fetch(ctx context.Context, url string, opts download.Options) (*download.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Attempts++
	if len(m.Errs) > 0 {
		err := m.Errs[0]
		m.Errs = m.Errs[1:]
		if err != nil {
			return nil, err
		}
	}

	if m.Result == nil {
		return nil, errors.New("no result configured")
	}
	res := *m.Result
	if res.URL == "" {
		res.URL = url
	}
	return &res, nil
}

// MockTarget is a test double for [services.Target].
type MockTarget struct {
	mu       sync.Mutex
	TargetID string
	Hint     string
	IDs      []string // uploaded ids returned in order; last repeats
	Errs     []error  // consumed in order before ids are returned
	Attempts int
	Uploaded []string // local paths received, in order
}

func (m *MockTarget) ID() string {
	if m.TargetID == "" {
		return "mock"
	}
	return m.TargetID
}

func (m *MockTarget) Name() string            { return "Mock " + m.ID() }
func (m *MockTarget) DestinationHint() string { return m.Hint }

func (m *MockTarget) Upload(ctx context.Context, localPath, desiredFilename, hint string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Attempts++
	if len(m.Errs) > 0 {
		err := m.Errs[0]
		m.Errs = m.Errs[1:]
		if err != nil {
			return "", err
		}
	}

	m.Uploaded = append(m.Uploaded, localPath)
	if len(m.IDs) == 0 {
		return fmt.Sprintf("%s-upload-%d", m.ID(), m.Attempts), nil
	}
	id := m.IDs[0]
	if len(m.IDs) > 1 {
		m.IDs = m.IDs[1:]
	}
	return id, nil
}

// MockRoundTripper allows custom HTTP responses for testing. Responses are
// consumed in order; the last one repeats.
type MockRoundTripper struct {
	mu        sync.Mutex
	Responses []*http.Response
	Err       error
	Requests  []*http.Request
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{Responses: []*http.Response{r}, Err: e}
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) == 0 {
		return nil, errors.New("no response configured")
	}
	resp := m.Responses[0]
	if len(m.Responses) > 1 {
		m.Responses = m.Responses[1:]
	}
	return resp, nil
}

// WriteTempMedia creates a small media file in a temp dir and returns its path.
func WriteTempMedia(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("media bytes"), 0644); err != nil {
		t.Fatalf("Failed to write temp media file: %v", err)
	}
	return path
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
