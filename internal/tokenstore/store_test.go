package tokenstore

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/birbparty/firenest/internal/emulator"
	"github.com/birbparty/firenest/sdk"
	"github.com/birbparty/firenest/sdk/testdata"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emulatorConfig(t *testing.T) (*sdk.Credentials, *sdk.Config) {
	t.Helper()

	cfg := emulator.DefaultConfig()
	cfg.ProjectID = testdata.TestProject
	cfg.APIKey = testdata.TestAPIKey
	server := httptest.NewServer(adaptor.FiberApp(emulator.NewApp(cfg, emulator.NewStore(), emulator.NewAuthority(cfg))))
	t.Cleanup(server.Close)

	sa, err := testdata.NewServiceAccount(testdata.TestProject)
	require.NoError(t, err)
	creds, err := sdk.ParseCredentials(sa.JSON())
	require.NoError(t, err)

	config := sdk.DefaultConfig().
		WithFirestoreURL(server.URL + "/v1").
		WithAuthURLs(server.URL).
		WithTimeout(5 * time.Second)
	return creds.WithAPIKey(testdata.TestAPIKey), config
}

func TestResumeUserSession(t *testing.T) {
	ctx := context.Background()
	creds, config := emulatorConfig(t)
	store, err := NewFileStore(filepath.Join(t.TempDir(), "tokens.json"))
	require.NoError(t, err)

	first, err := ResumeUserSession(ctx, store, creds, "alice", config)
	require.NoError(t, err)
	assert.Equal(t, "alice", first.UserID())

	saved, err := store.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.RefreshToken(), saved)

	second, err := ResumeUserSession(ctx, store, creds, "alice", config)
	require.NoError(t, err)
	assert.Equal(t, saved, second.RefreshToken(), "the saved refresh token is reused")
}

func TestResumeUserSession_StaleToken(t *testing.T) {
	ctx := context.Background()
	creds, config := emulatorConfig(t)
	store, err := NewFileStore(filepath.Join(t.TempDir(), "tokens.json"))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "alice", "revoked"))

	session, err := ResumeUserSession(ctx, store, creds, "alice", config)
	require.NoError(t, err)

	saved, err := store.Load(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "revoked", saved)
	assert.Equal(t, session.RefreshToken(), saved)
}
