package connector

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// createDatabase issues the CREATE DATABASE query for the configured database.
func createDatabase(ctx context.Context, client *http.Client, s Settings) (int, error) {
	queryURL, err := composeQueryURL(s, "CREATE DATABASE "+s.Database)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	req.Close = true

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to create database: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return resp.StatusCode, fmt.Errorf("create database returned %q", resp.Status)
	}
	return resp.StatusCode, nil
}
