package sdk

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"net/url"
	"strconv"
)

// Done is returned by DocumentIterator.Next when the listing is exhausted.
var Done = errors.New("no more documents")

type listResponse struct {
	Documents     []documentWire `json:"documents"`
	NextPageToken string         `json:"nextPageToken"`
}

// DocumentIterator walks a collection page by page. Pages are fetched
// lazily as Next is called, each under the retry executor. An iterator
// cannot be restarted; call List again for a fresh listing.
type DocumentIterator struct {
	ctx        context.Context
	client     *Client
	collection string

	buf       []*Document
	pageToken string
	fetched   bool
	err       error
}

// List returns an iterator over every document of collection.
//
// Example:
//
//	it := client.List(ctx, "users")
//	for {
//	    doc, err := it.Next()
//	    if err == sdk.Done {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(doc.ID())
//	}
func (c *Client) List(ctx context.Context, collection string) *DocumentIterator {
	return &DocumentIterator{ctx: ctx, client: c, collection: collection}
}

// Next returns the next document, Done at the end, or the error that
// stopped the listing. Once an error is returned every later call returns
// it again.
func (it *DocumentIterator) Next() (*Document, error) {
	for len(it.buf) == 0 {
		if it.err != nil {
			return nil, it.err
		}
		if it.fetched && it.pageToken == "" {
			it.err = Done
			return nil, Done
		}
		if err := it.fetch(); err != nil {
			it.err = err
			return nil, err
		}
	}
	doc := it.buf[0]
	it.buf = it.buf[1:]
	return doc, nil
}

// All returns the remaining documents as a sequence. Iteration stops after
// the first error is yielded.
//
//	for doc, err := range client.List(ctx, "users").All() {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(doc.ID())
//	}
func (it *DocumentIterator) All() iter.Seq2[*Document, error] {
	return func(yield func(*Document, error) bool) {
		for {
			doc, err := it.Next()
			if errors.Is(err, Done) {
				return
			}
			if !yield(doc, err) || err != nil {
				return
			}
		}
	}
}

func (it *DocumentIterator) fetch() error {
	query := url.Values{}
	query.Set("pageSize", strconv.Itoa(it.client.config.PageSize))
	if it.pageToken != "" {
		query.Set("pageToken", it.pageToken)
	}

	var resp listResponse
	target := it.client.documentURL(it.collection, "", query)
	if err := it.client.call(it.ctx, "list", http.MethodGet, target, it.collection, nil, &resp); err != nil {
		return err
	}

	it.fetched = true
	it.pageToken = resp.NextPageToken
	for i := range resp.Documents {
		doc, err := resp.Documents[i].document()
		if err != nil {
			return err
		}
		it.buf = append(it.buf, doc)
	}
	return nil
}
