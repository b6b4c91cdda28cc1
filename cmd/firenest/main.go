// Command firenest reads and writes documents from the command line.
//
//	firenest --credentials sa.json get users/alice
//	firenest --credentials sa.json --user alice query players --where 'score >= 10' --order score:desc
//
// FIRESTORE_EMULATOR_HOST, or --emulator, points it at a local emulator.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/birbparty/firenest/internal/telemetry"
	"github.com/birbparty/firenest/internal/tokenstore"
	"github.com/birbparty/firenest/sdk"
	"github.com/spf13/cobra"
)

var (
	credentialsPath string
	apiKey          string
	userID          string
	tokenStoreSpec  string
	emulatorURL     string
	timeout         time.Duration

	client *sdk.Client
	store  tokenstore.Store
)

var rootCmd = &cobra.Command{
	Use:           "firenest",
	Short:         "Read, write and query documents",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := telemetry.Init(telemetry.NewConfigFromEnv("firenest")); err != nil {
			return err
		}

		var err error
		client, err = newClient(cmd.Context())
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			store.Close()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(ctx)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&credentialsPath, "credentials", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"), "Service account key file")
	flags.StringVar(&apiKey, "api-key", os.Getenv("FIRENEST_API_KEY"), "Web API key, required for user sessions")
	flags.StringVar(&userID, "user", "", "Act as this user instead of the service account")
	flags.StringVar(&tokenStoreSpec, "token-store", defaultTokenStore(), "Refresh token file or redis:// URL")
	flags.StringVar(&emulatorURL, "emulator", "", "Base URL of a firenest emulator")
	flags.DurationVar(&timeout, "timeout", 0, "Per request timeout (default from FIRENEST_TIMEOUT or 30s)")

	rootCmd.AddCommand(getCmd, listCmd, queryCmd, writeCmd, deleteCmd)
}

func defaultTokenStore() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".firenest-tokens.json"
	}
	return filepath.Join(dir, "firenest", "tokens.json")
}

// newClient builds a client from the flags. A user session is resumed
// from the token store when --user is set.
func newClient(ctx context.Context) (*sdk.Client, error) {
	if credentialsPath == "" {
		return nil, fmt.Errorf("--credentials or GOOGLE_APPLICATION_CREDENTIALS is required")
	}
	creds, err := sdk.LoadCredentials(credentialsPath)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		creds = creds.WithAPIKey(apiKey)
	}

	config := sdk.ConfigFromEnv().
		WithObserver(telemetry.NewObserver(nil)).
		WithLogger(telemetry.L())
	if emulatorURL != "" {
		config.WithFirestoreURL(emulatorURL + "/v1").WithAuthURLs(emulatorURL)
	}
	if timeout > 0 {
		config.WithTimeout(timeout)
	}

	var session sdk.Session
	if userID == "" {
		session, err = sdk.NewServiceSession(creds, config)
	} else {
		store, err = tokenstore.Open(tokenStoreSpec)
		if err != nil {
			return nil, fmt.Errorf("failed to open token store: %w", err)
		}
		session, err = tokenstore.ResumeUserSession(ctx, store, creds, userID, config)
	}
	if err != nil {
		return nil, err
	}

	return sdk.NewClient(session, config)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "firenest: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps error kinds to distinct exit statuses for scripts
func exitCode(err error) int {
	switch {
	case sdk.IsNotFound(err):
		return 3
	case sdk.IsConflict(err):
		return 4
	case sdk.KindOf(err) == sdk.KindAuthentication:
		return 5
	}
	return 1
}
