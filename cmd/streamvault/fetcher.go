/*
NAME
  fetcher.go

DESCRIPTION
  fetcher.go implements archiver.Fetcher over net/http, the concrete
  collaborator the archiver package only specifies as an interface.

AUTHORS
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Connection retry policy: the initial GET is attempted up to fetchAttempts
// times with fetchBackoff between attempts before the failure surfaces.
const (
	fetchAttempts = 3
	fetchBackoff  = 500 * time.Millisecond
)

// httpFetcher implements archiver.Fetcher by issuing a plain HTTP GET,
// forwarding the given headers on the request.
type httpFetcher struct {
	client *http.Client
}

func newHTTPFetcher() *httpFetcher {
	return &httpFetcher{client: &http.Client{Timeout: 0}} // No overall timeout: streams are long-lived.
}

func (f *httpFetcher) Fetch(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, error) {
	var err error
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(fetchBackoff):
			}
		}
		var body io.ReadCloser
		body, err = f.fetchOnce(ctx, url, headers)
		if err == nil {
			return body, nil
		}
	}
	return nil, err
}

func (f *httpFetcher) fetchOnce(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", url, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching %s: unexpected status %s", url, resp.Status)
	}
	return resp.Body, nil
}
