package notify

import (
	"io"
	"net/http"
	"time"

	"golang.org/x/xerrors"
)

// RetryTransport re-sends a request while Policy matches and Backoff allows it.
// Requests with a body must set GetBody, which http.NewRequest does for in-memory readers.
type RetryTransport struct {
	Base    http.RoundTripper
	Backoff Backoff
	Policy  *Policy
}

func (t *RetryTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	for attempt := uint(0); ; attempt++ {
		wait, done := t.backoff().Delay(attempt)

		response, err := t.base().RoundTrip(request)
		retry := false
		if err != nil {
			retry = t.Policy != nil && t.Policy.RetryError(err)
		} else {
			retry = t.Policy != nil && t.Policy.RetryResponse(response)
		}
		if done || !retry {
			return response, err
		}

		if response != nil {
			_, _ = io.Copy(io.Discard, response.Body)
			_ = response.Body.Close()
		}

		timer := time.NewTimer(wait)
		select {
		case <-request.Context().Done():
			timer.Stop()
			return nil, request.Context().Err()
		case <-timer.C:
		}

		if request, err = rewind(request); err != nil {
			return nil, err
		}
	}
}

func rewind(request *http.Request) (*http.Request, error) {
	if request.Body == nil || request.Body == http.NoBody {
		return request, nil
	}
	if request.GetBody == nil {
		return nil, xerrors.New("failed to retry request: body cannot be rewound")
	}
	body, err := request.GetBody()
	if err != nil {
		return nil, xerrors.Errorf("failed to rewind request body: %w", err)
	}
	next := request.Clone(request.Context())
	next.Body = body
	return next, nil
}

func (t *RetryTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *RetryTransport) backoff() Backoff {
	if t.Backoff != nil {
		return t.Backoff
	}
	return NoRetry()
}
