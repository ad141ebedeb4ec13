package notify

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// Policy selects which responses and transport errors are retried. Conditions follow
// Envoy's retry_on names.
type Policy struct {
	ServerError    bool
	GatewayError   bool
	ConnectFailure bool
	Retriable4xx   bool
	StatusCodes    []int
}

func DefaultPolicy() *Policy {
	return &Policy{
		GatewayError:   true,
		ConnectFailure: true,
		Retriable4xx:   true,
	}
}

// ParsePolicy reads a comma separated list such as "gateway-error,connect-failure,429".
func ParsePolicy(s string) (*Policy, error) {
	p := &Policy{}
	for _, condition := range strings.Split(s, ",") {
		switch condition = strings.TrimSpace(condition); condition {
		case "":
		case "5xx":
			p.ServerError = true
		case "gateway-error":
			p.GatewayError = true
		case "connect-failure":
			p.ConnectFailure = true
		case "retriable-4xx":
			p.Retriable4xx = true
		default:
			statusCode, err := strconv.Atoi(condition)
			if err != nil {
				return nil, xerrors.Errorf("invalid retry condition: %s", condition)
			}
			p.StatusCodes = append(p.StatusCodes, statusCode)
		}
	}
	return p, nil
}

func (p *Policy) RetryResponse(response *http.Response) bool {
	code := response.StatusCode
	switch {
	case p.ServerError && code >= 500 && code < 600:
		return true
	case p.GatewayError && code >= 502 && code < 505:
		return true
	case p.Retriable4xx && code == http.StatusConflict:
		return true
	}

	for _, c := range p.StatusCodes {
		if c == code {
			return true
		}
	}
	return false
}

func (p *Policy) RetryError(err error) bool {
	if !p.ConnectFailure && !p.ServerError {
		return false
	}
	type temporary interface{ Temporary() bool }
	var t temporary
	return (errors.As(err, &t) && t.Temporary()) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
