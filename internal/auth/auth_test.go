package auth

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func serviceAccountKey(t *testing.T, tokenURL string) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	data, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"client_email":   "widget@project.iam.gserviceaccount.com",
		"private_key_id": "key-1",
		"private_key":    string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
		"token_uri":      tokenURL,
	})
	require.NoError(t, err)
	return data
}

func TestServiceAccountClient_AuthorizesRequests(t *testing.T) {
	var issued atomic.Int32
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		issued.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"sa-token","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokenServer.Close()

	var auth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer api.Close()

	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, serviceAccountKey(t, tokenServer.URL), 0o600))

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	client, err := ServiceAccountClient(context.Background(), path, logger)
	require.NoError(t, err)

	for range 2 {
		resp, err := client.Get(api.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, "Bearer sa-token", auth)
	assert.Equal(t, int32(1), issued.Load())
	assert.Equal(t, 1, strings.Count(logs.String(), "obtained access token"))
	assert.Contains(t, logs.String(), "widget@project.iam.gserviceaccount.com")
}

func TestServiceAccountClient_Errors(t *testing.T) {
	_, err := ServiceAccountClient(context.Background(), filepath.Join(t.TempDir(), "missing.json"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read credentials file")

	_, err = ServiceAccountClientFromJSON(context.Background(), []byte("not json"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse service account key")
}

type countingSource struct {
	tokens []string
	calls  int
}

func (c *countingSource) Token() (*oauth2.Token, error) {
	if c.calls >= len(c.tokens) {
		return nil, fmt.Errorf("exhausted")
	}
	tok := &oauth2.Token{AccessToken: c.tokens[c.calls]}
	c.calls++
	return tok, nil
}

func TestLoggingTokenSource(t *testing.T) {
	var logs bytes.Buffer
	src := &loggingTokenSource{
		source: &countingSource{tokens: []string{"a", "a", "b"}},
		logger: slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}

	for _, want := range []string{"a", "a", "b"} {
		tok, err := src.Token()
		require.NoError(t, err)
		assert.Equal(t, want, tok.AccessToken)
	}
	assert.Equal(t, 2, strings.Count(logs.String(), "obtained access token"))

	_, err := src.Token()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exhausted")
}
