package sdk

import (
	"context"
	"iter"
)

// decoderPtr constrains PT to be a pointer to T implementing Decoder, so
// typed helpers can allocate a T and decode into it.
type decoderPtr[T any] interface {
	*T
	Decoder
}

// ReadAs reads collection/documentID and decodes it into a new T.
//
// Example:
//
//	user, err := sdk.ReadAs[User](ctx, client, "users", "alice")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(user.Name) // user is already a User
func ReadAs[T any, PT decoderPtr[T]](ctx context.Context, c *Client, collection, documentID string) (T, error) {
	var out T
	err := c.Read(ctx, collection, documentID, PT(&out))
	return out, err
}

// ListAs lists collection, decoding each document into T. The sequence
// stops after the first error, including a decode error.
//
// Example:
//
//	for user, err := range sdk.ListAs[User](ctx, client, "users") {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(user.Name)
//	}
func ListAs[T any, PT decoderPtr[T]](ctx context.Context, c *Client, collection string) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for doc, err := range c.List(ctx, collection).All() {
			var out T
			if err == nil {
				err = doc.DataTo(PT(&out))
			}
			if !yield(out, err) || err != nil {
				return
			}
		}
	}
}

// QueryAs runs Query and decodes every result into T.
func QueryAs[T any, PT decoderPtr[T]](ctx context.Context, c *Client, collection string, filter *Filter, orderBy []Order) ([]T, error) {
	docs, err := c.Query(ctx, collection, filter, orderBy)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(docs))
	for i, doc := range docs {
		if err := doc.DataTo(PT(&out[i])); err != nil {
			return nil, err
		}
	}
	return out, nil
}
