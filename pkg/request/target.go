package request

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/bentsolheim/httpsink/pkg/constants"
	"github.com/bentsolheim/httpsink/pkg/errors"
)

// Target is a download location split into what the transport dials and what
// the request line carries.
type Target struct {
	Scheme string
	Host   string
	Port   uint16
	Path   string
}

// Request returns the GET for t under policy.
func (t Target) Request(policy ConnectionPolicy) Request {
	return Request{Host: t.Host, Path: t.Path, Policy: policy}
}

// ParseURL parses an absolute http or https URL. A missing port defaults by
// scheme, an empty path becomes "/" and fragments are dropped.
func ParseURL(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, errors.NewValidationError("invalid url " + strconv.Quote(raw) + ": " + err.Error())
	}

	var t Target
	t.Scheme = strings.ToLower(u.Scheme)
	switch t.Scheme {
	case "http":
		t.Port = constants.DefaultHTTPPort
	case "https":
		t.Port = constants.DefaultHTTPSPort
	default:
		return Target{}, errors.NewValidationError("unsupported scheme in " + strconv.Quote(raw))
	}

	t.Host = u.Hostname()
	if t.Host == "" {
		return Target{}, errors.NewValidationError("missing host in " + strconv.Quote(raw))
	}
	if p := u.Port(); p != "" {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil || n == 0 {
			return Target{}, errors.NewValidationError("invalid port in " + strconv.Quote(raw))
		}
		t.Port = uint16(n)
	}
	t.Path = u.RequestURI()
	return t, nil
}
