package notify

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"golang.org/x/xerrors"
)

type Notifier struct {
	URL    string
	Client *http.Client
}

// NewNotifier returns a Notifier whose client retries gateway errors and connection
// failures up to three times.
func NewNotifier(url string) *Notifier {
	return &Notifier{
		URL: url,
		Client: &http.Client{
			// bounds the whole exchange including retries
			Timeout: 10 * time.Second,
			Transport: &RetryTransport{
				Base:    http.DefaultTransport,
				Backoff: &Exponential{Base: 10 * time.Millisecond, Cap: 1 * time.Second, MaxAttempts: 3},
				Policy:  DefaultPolicy(),
			},
		},
	}
}

// Send PATCHes a JSON document to the callback URL.
func (n *Notifier) Send(ctx context.Context, body []byte) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPatch, n.URL, bytes.NewReader(body))
	if err != nil {
		return xerrors.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	response, err := client.Do(request)
	if err != nil {
		return xerrors.Errorf("failed to send request: %w", err)
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return xerrors.Errorf("callback returned %s", response.Status)
	}
	return nil
}
