package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/birbparty/firenest/sdk"
)

// Player is stored in the "players" collection
type Player struct {
	Name     string
	Score    int64
	Nickname *string
}

// EncodeFields implements sdk.Encoder
func (p Player) EncodeFields() (sdk.Fields, error) {
	return sdk.Fields{
		"name":  sdk.String(p.Name),
		"score": sdk.Int(p.Score),
	}.SetOptional("nickname", sdk.OptionalValue(p.Nickname, sdk.String)), nil
}

// DecodeFields implements sdk.Decoder
func (p *Player) DecodeFields(f sdk.Fields) (err error) {
	if p.Name, err = sdk.Required(f, "name", sdk.AsString); err != nil {
		return err
	}
	if p.Score, err = sdk.OrDefault(f, "score", 0, sdk.AsInt[int64]); err != nil {
		return err
	}
	p.Nickname, err = sdk.Optional(f, "nickname", sdk.AsString)
	return err
}

func main() {
	// Point FIRESTORE_EMULATOR_HOST and FIRENEST_AUTH_URL at a local
	// emulator to run this without a real project.
	creds, err := sdk.LoadCredentials(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	if err != nil {
		log.Fatalf("Failed to load credentials: %v", err)
	}

	config := sdk.ConfigFromEnv().
		WithTimeout(10 * time.Second)

	session, err := sdk.NewServiceSession(creds, config)
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}

	client, err := sdk.NewClient(session, config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()

	// Example 1: Create a document
	fmt.Println("\n--- Example 1: Create ---")
	alice := Player{Name: "Alice", Score: 10}
	if _, err := client.Create(ctx, "players", "alice", alice); err != nil {
		if !sdk.IsConflict(err) {
			log.Fatalf("Failed to create player: %v", err)
		}
		fmt.Println("✓ Player 'alice' already exists")
	} else {
		fmt.Println("✓ Created players/alice")
	}

	// Example 2: Read it back
	fmt.Println("\n--- Example 2: Read ---")
	var retrieved Player
	if err := client.Read(ctx, "players", "alice", &retrieved); err != nil {
		log.Fatalf("Failed to read player: %v", err)
	}
	fmt.Printf("✓ Retrieved: %+v\n", retrieved)

	// Example 3: Generated id
	fmt.Println("\n--- Example 3: Generated ID ---")
	result, err := client.Create(ctx, "players", "", Player{Name: "Anonymous"})
	if err != nil {
		log.Fatalf("Failed to create player: %v", err)
	}
	fmt.Printf("✓ Created players/%s\n", result.DocumentID)

	// Example 4: Merge a single field
	fmt.Println("\n--- Example 4: Merge ---")
	nickname := "Ace"
	update := sdk.Fields{}.Set("nickname", sdk.String(nickname))
	if _, err := client.Write(ctx, "players", "alice", update, sdk.WriteOptions{Merge: true}); err != nil {
		log.Fatalf("Failed to merge: %v", err)
	}
	if err := client.Read(ctx, "players", "alice", &retrieved); err != nil {
		log.Fatalf("Failed to read player: %v", err)
	}
	fmt.Printf("✓ Nickname is now %q, score kept at %d\n", *retrieved.Nickname, retrieved.Score)

	// Example 5: Missing documents
	fmt.Println("\n--- Example 5: Not Found ---")
	err = client.Read(ctx, "players", "nobody", &retrieved)
	fmt.Printf("✓ Not found: %v\n", sdk.IsNotFound(err))

	// Example 6: Delete
	fmt.Println("\n--- Example 6: Delete ---")
	if err := client.Delete(ctx, "players/"+result.DocumentID, true); err != nil {
		log.Fatalf("Failed to delete: %v", err)
	}
	fmt.Printf("✓ Deleted players/%s\n", result.DocumentID)

	err = client.Delete(ctx, "players/"+result.DocumentID, true)
	fmt.Printf("✓ Deleting again fails: %v\n", err != nil)

	fmt.Println("\n✅ All examples completed successfully!")
}
