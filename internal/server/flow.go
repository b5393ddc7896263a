package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/mbx/internal/shared"
)

// CallbackAddr is the loopback address the flow listens on. It must match
// the redirect URL registered with the OAuth provider.
const CallbackAddr = "localhost:8080"

// RunAuthFlow runs a complete authorization code flow: start the loopback
// listener, open the consent page in the browser, wait for the callback,
// and return the exchanged token.
func RunAuthFlow(ctx context.Context, config *oauth2.Config, logger *log.Logger) (*oauth2.Token, error) {
	state := shared.GenerateID()
	handler := NewOAuthHandler(config, state)

	router := NewBasicRouter()
	router.Handler(handler)

	srv := &http.Server{
		Addr:              CallbackAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	go drainContext(ctx, handler)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	logger.Info("opening browser for authorization", "url", authURL)
	if err := shared.OpenBrowser(authURL); err != nil {
		logger.Warn("could not open browser, visit the URL manually", "url", authURL)
	}

	select {
	case err := <-serveErr:
		return nil, fmt.Errorf("callback server failed: %w", err)
	case result := <-handler.Result():
		if err := result.Error(); err != nil {
			return nil, err
		}
		return result.Token, nil
	}
}
