package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/birbparty/firenest/sdk"
)

// Colors for terminal output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// Game is one finished game of a player, stored under
// players/{player}/games/{id}
type Game struct {
	Level    string
	Score    int64
	Finished time.Time
	Stats    map[string]int64
}

// EncodeFields implements sdk.Encoder
func (g Game) EncodeFields() (sdk.Fields, error) {
	return sdk.Fields{
		"level":    sdk.String(g.Level),
		"score":    sdk.Int(g.Score),
		"finished": sdk.Timestamp(g.Finished),
		"stats":    sdk.MapOf(g.Stats, sdk.Int[int64]),
	}, nil
}

// DecodeFields implements sdk.Decoder
func (g *Game) DecodeFields(f sdk.Fields) (err error) {
	if g.Level, err = sdk.Required(f, "level", sdk.AsString); err != nil {
		return err
	}
	if g.Score, err = sdk.Required(f, "score", sdk.AsInt[int64]); err != nil {
		return err
	}
	if g.Finished, err = sdk.Required(f, "finished", sdk.AsTime); err != nil {
		return err
	}
	g.Stats, err = sdk.OrDefault(f, "stats", map[string]int64{}, sdk.AsMap(sdk.AsInt[int64]))
	return err
}

func section(title string) {
	fmt.Printf("\n%s%s=== %s ===%s\n", colorBold, colorCyan, title, colorReset)
}

func ok(format string, args ...interface{}) {
	fmt.Printf("%s✓%s %s\n", colorGreen, colorReset, fmt.Sprintf(format, args...))
}

func main() {
	creds, err := sdk.LoadCredentials(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	if err != nil {
		log.Fatalf("Failed to load credentials: %v", err)
	}
	creds = creds.WithAPIKey(os.Getenv("FIRENEST_API_KEY"))

	metrics := sdk.NewMetricsCollector()
	config := sdk.ConfigFromEnv().
		WithObserver(metrics).
		WithPageSize(5)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Sign in as a user. Security rules then apply to every request.
	section("User Session")
	session, err := sdk.NewUserSessionByUserID(ctx, creds, "player-1", true, config)
	if err != nil {
		log.Fatalf("%sFailed to sign in: %v%s", colorRed, err, colorReset)
	}
	ok("Signed in as %s", session.UserID())

	// Keep the refresh token to resume later without signing in again
	resumed, err := sdk.NewUserSessionByRefreshToken(ctx, creds, session.RefreshToken(), config)
	if err != nil {
		log.Fatalf("%sFailed to resume session: %v%s", colorRed, err, colorReset)
	}
	ok("Resumed session for %s", resumed.UserID())

	client, err := sdk.NewClient(resumed, config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	games := "players/" + resumed.UserID() + "/games"

	// Independent writes may run concurrently on one client
	section("Concurrent Writes")
	levels := []string{"forest", "cave", "castle", "forest", "sky", "cave", "castle", "forest"}
	var wg sync.WaitGroup
	errs := make(chan error, len(levels))
	for i, level := range levels {
		wg.Add(1)
		go func(i int, level string) {
			defer wg.Done()
			game := Game{
				Level:    level,
				Score:    int64((i * 37) % 100),
				Finished: time.Now().Add(-time.Duration(i) * time.Hour),
				Stats:    map[string]int64{"jumps": int64(i * 3), "coins": int64(i * 11)},
			}
			_, err := client.Write(ctx, games, fmt.Sprintf("game-%02d", i), game, sdk.WriteOptions{})
			errs <- err
		}(i, level)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			log.Fatalf("%sWrite failed: %v%s", colorRed, err, colorReset)
		}
	}
	ok("Wrote %d games", len(levels))

	// Queries
	section("Queries")
	forest, err := sdk.QueryAs[Game](ctx, client, games,
		sdk.Where("level", sdk.Equal, sdk.String("forest")),
		[]sdk.Order{sdk.Desc("score")})
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	for _, g := range forest {
		ok("forest game scored %d", g.Score)
	}

	// Nested fields are addressed with dots
	busy, err := client.Query(ctx, games, sdk.Where("stats.coins", sdk.GreaterThanOrEqual, sdk.Int(40)), nil)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	ok("%d games collected at least 40 coins", len(busy))

	// Listing pages through the collection transparently
	section("Listing")
	count := 0
	for game, err := range sdk.ListAs[Game](ctx, client, games) {
		if err != nil {
			log.Fatalf("List failed: %v", err)
		}
		count++
		fmt.Printf("  %s%-7s%s %3d\n", colorYellow, game.Level, colorReset, game.Score)
	}
	ok("Listed %d games in pages of 5", count)

	// Clean up
	section("Cleanup")
	for i := range levels {
		if err := client.Delete(ctx, fmt.Sprintf("%s/game-%02d", games, i), false); err != nil {
			log.Fatalf("Delete failed: %v", err)
		}
	}
	ok("Deleted %d games", len(levels))

	snapshot := metrics.GetMetrics()
	section("Metrics")
	fmt.Printf("  requests:        %v\n", snapshot["requests"])
	fmt.Printf("  retries:         %v\n", snapshot["retries"])
	fmt.Printf("  token refreshes: %v\n", snapshot["token_refreshes"])
}
