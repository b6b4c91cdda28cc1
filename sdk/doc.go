// Package sdk is a Go client for a Firestore-style REST document database.
// It signs in as a service account or as an end user, keeps the access
// token fresh, and reads and writes documents with automatic retries of
// transient failures.
//
// # Sessions
//
// Every request is authenticated by a Session. A service session signs a
// JWT assertion with the service account key and exchanges it for an
// OAuth2 access token:
//
//	creds, err := sdk.LoadCredentials("service-account.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	session, err := sdk.NewServiceSession(creds, sdk.DefaultConfig())
//
// A user session acts on behalf of one end user, so security rules apply.
// It can be created from a user id (a custom token is minted and
// exchanged), from a refresh token, or from an existing access token:
//
//	creds = creds.WithAPIKey(os.Getenv("FIREBASE_API_KEY"))
//	session, err := sdk.NewUserSessionByUserID(ctx, creds, "alice", true, config)
//
// Sessions cache their token and refresh it at most once for concurrent
// callers, shortly before it expires.
//
// # Documents
//
//	client, err := sdk.NewClient(session, config)
//
//	// Create fails with a conflict if the document exists
//	_, err = client.Create(ctx, "users", "alice", sdk.MapFields{"age": sdk.Int(30)})
//
//	// Replace or merge
//	_, err = client.Write(ctx, "users", "alice", fields, sdk.WriteOptions{Merge: true})
//
//	// Read into any Decoder
//	var user User
//	err = client.Read(ctx, "users", "alice", &user)
//
//	// Delete, optionally failing when the document is missing
//	err = client.Delete(ctx, "users/alice", false)
//
// # Records
//
// Types implement Encoder and Decoder to map themselves to document fields.
// The Required, Optional and OrDefault helpers read fields with converters
// such as AsString, AsInt and AsRecord:
//
//	func (u User) EncodeFields() (sdk.Fields, error) {
//	    return sdk.Fields{}.
//	        Set("name", sdk.String(u.Name)).
//	        Set("age", sdk.Int(u.Age)), nil
//	}
//
//	func (u *User) DecodeFields(f sdk.Fields) (err error) {
//	    if u.Name, err = sdk.Required(f, "name", sdk.AsString); err != nil {
//	        return err
//	    }
//	    u.Age, err = sdk.OrDefault(f, "age", 0, sdk.AsInt[int])
//	    return err
//	}
//
// ReadAs, ListAs and QueryAs return typed values directly.
//
// # Listing and Queries
//
// List pages through a collection lazily:
//
//	for doc, err := range client.List(ctx, "users").All() {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(doc.ID())
//	}
//
// Query runs a structured query with one field filter and an ordering.
// Field paths are quoted automatically:
//
//	docs, err := client.Query(ctx, "users",
//	    sdk.Where("age", sdk.GreaterThan, sdk.Int(18)),
//	    []sdk.Order{sdk.Asc("address.city")})
//
// # Error Handling
//
// Errors are typed. KindOf reports the category, and helpers test for the
// common API statuses:
//
//	err := client.Read(ctx, "users", "bob", &user)
//	if sdk.IsNotFound(err) {
//	    return nil
//	}
//
//	var exhausted *sdk.BudgetExhaustedError
//	if errors.As(err, &exhausted) {
//	    log.Printf("gave up after %d attempts", exhausted.Attempts)
//	}
//
// # Retries
//
// Transport failures, 5xx responses and 429s are retried with exponential
// backoff until the per-operation budget runs out. Everything else is
// returned immediately:
//
//	config := sdk.DefaultConfig().WithBackoff(sdk.BackoffConfig{
//	    InitialInterval: 100 * time.Millisecond,
//	    MaxElapsedTime:  20 * time.Second,
//	})
//
// # Observability
//
// An Observer receives request, retry and token refresh events. Use
// MetricsCollector for an in-memory view, or combine several observers
// with NewCompositeObserver.
package sdk
