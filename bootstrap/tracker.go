// Package bootstrap fetches the initial peer list a newly started node uses
// to join the network, grounded on SPEC_FULL.md §6's Bootstrap interface and
// modeled on the original_source tracker's REST response shape.
package bootstrap

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/luxfi/validation/errs"
	"github.com/luxfi/validation/identity"
)

// TrackerResponse is the tracker's JSON reply: the tracker's own peer id
// plus the network addresses it advertises.
type TrackerResponse struct {
	ID        identity.PeerID `json:"id"`
	Addresses []string        `json:"addresses"`
}

// FetchTracker performs one GET against url and decodes the response, with
// a bounded timeout so startup never hangs on an unreachable tracker.
func FetchTracker(ctx context.Context, client *http.Client, url string, timeout time.Duration) (TrackerResponse, error) {
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return TrackerResponse{}, errs.Runtime("bootstrap: build request for %s: %s", url, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return TrackerResponse{}, errs.Connection(err, "bootstrap: fetch "+url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return TrackerResponse{}, errs.Runtime("bootstrap: %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TrackerResponse{}, errs.Connection(err, "bootstrap: read response from "+url)
	}

	var tr TrackerResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return TrackerResponse{}, errs.Deserialization(err, "bootstrap: decode tracker response")
	}
	return tr, nil
}
