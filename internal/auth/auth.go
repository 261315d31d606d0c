package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

// loggingTokenSource wraps an oauth2.TokenSource and logs every time a new
// access token is issued.
type loggingTokenSource struct {
	source    oauth2.TokenSource
	logger    *slog.Logger
	mu        sync.Mutex
	lastToken *oauth2.Token
}

// Token implements oauth2.TokenSource.
func (l *loggingTokenSource) Token() (*oauth2.Token, error) {
	token, err := l.source.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain service account token: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Check if the token was refreshed by comparing access tokens
	if l.lastToken == nil || l.lastToken.AccessToken != token.AccessToken {
		l.logger.Debug("obtained access token", "expiry", token.Expiry)
		l.lastToken = token
	}

	return token, nil
}

// ServiceAccountClient returns an HTTP client that authenticates with the
// service account key stored at credentialsFile. The client only requests
// read access to calendars.
func ServiceAccountClient(ctx context.Context, credentialsFile string, logger *slog.Logger) (*http.Client, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	return ServiceAccountClientFromJSON(ctx, data, logger)
}

// ServiceAccountClientFromJSON is ServiceAccountClient for a key already in memory.
func ServiceAccountClientFromJSON(ctx context.Context, data []byte, logger *slog.Logger) (*http.Client, error) {
	conf, err := google.JWTConfigFromJSON(data, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account key: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	source := &loggingTokenSource{
		source: conf.TokenSource(ctx),
		logger: logger.With("client_email", conf.Email),
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(nil, source)), nil
}
