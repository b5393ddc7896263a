package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/desertthunder/mbx/internal/server"
	"github.com/desertthunder/mbx/internal/services"
	"github.com/desertthunder/mbx/internal/shared"
)

// AuthDrive runs the OAuth flow for Google Drive and caches the token.
func (r *Runner) AuthDrive(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	target, err := services.NewDriveTarget(config.Storage.GoogleDrive, r.httpClient, r.logger)
	if err != nil {
		return fmt.Errorf("google drive: %w", err)
	}

	return r.authorize(ctx, target.Name(), target.OAuthConfig(), target.TokenFile())
}

// AuthPhotos runs the OAuth flow for Google Photos and caches the token.
func (r *Runner) AuthPhotos(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	target, err := services.NewPhotosTarget(config.Storage.GooglePhotos, r.httpClient, r.logger)
	if err != nil {
		return fmt.Errorf("google photos: %w", err)
	}

	return r.authorize(ctx, target.Name(), target.OAuthConfig(), target.TokenFile())
}

// authorize completes the browser flow and saves the resulting token.
func (r *Runner) authorize(ctx context.Context, name string, oauth *oauth2.Config, tokenFile string) error {
	if tokenFile == "" {
		return fmt.Errorf("%w: token_file is not configured for %s", shared.ErrInvalidConfig, name)
	}

	token, err := server.RunAuthFlow(ctx, oauth, r.logger)
	if err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	if err := services.SaveToken(tokenFile, token); err != nil {
		return err
	}

	r.logger.Info("token saved", "service", name, "path", tokenFile)
	return r.writePlain("✓ %s authorized, token saved to %s\n", name, tokenFile)
}
