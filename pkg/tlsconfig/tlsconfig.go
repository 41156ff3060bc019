// Package tlsconfig builds the crypto/tls configuration used by the TCP
// transport when the scheme is https.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"strings"

	"github.com/bentsolheim/httpsink/pkg/errors"
)

// VersionProfile is a named min/max TLS version range.
type VersionProfile struct {
	Name        string
	Min         uint16
	Max         uint16
	Description string
}

var (
	// ProfileModern - TLS 1.3 only
	ProfileModern = VersionProfile{
		Name:        "modern",
		Min:         tls.VersionTLS13,
		Max:         tls.VersionTLS13,
		Description: "TLS 1.3 only",
	}

	// ProfileSecure - TLS 1.2 and 1.3 (default)
	ProfileSecure = VersionProfile{
		Name:        "secure",
		Min:         tls.VersionTLS12,
		Max:         tls.VersionTLS13,
		Description: "TLS 1.2+",
	}

	// ProfileCompatible - TLS 1.0 through 1.3, for old embedded servers
	ProfileCompatible = VersionProfile{
		Name:        "compatible",
		Min:         tls.VersionTLS10,
		Max:         tls.VersionTLS13,
		Description: "TLS 1.0+, includes deprecated versions",
	}
)

// ParseProfile returns the profile with the given name. An empty name
// selects ProfileSecure.
func ParseProfile(name string) (VersionProfile, error) {
	switch strings.ToLower(name) {
	case "", ProfileSecure.Name:
		return ProfileSecure, nil
	case ProfileModern.Name:
		return ProfileModern, nil
	case ProfileCompatible.Name:
		return ProfileCompatible, nil
	}
	return VersionProfile{}, errors.NewValidationError("unknown TLS profile " + name)
}

// GetVersionName returns human-readable name for a TLS version
func GetVersionName(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return "Unknown"
	}
}

// IsVersionDeprecated reports whether version is older than TLS 1.2.
func IsVersionDeprecated(version uint16) bool {
	return version < tls.VersionTLS12
}

var (
	// CipherSuitesTLS12Secure are AEAD suites with forward secrecy.
	CipherSuitesTLS12Secure = []uint16{
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	}

	// CipherSuitesTLS12Compatible adds CBC and plain RSA key exchange, which
	// is all many embedded TLS stacks offer.
	CipherSuitesTLS12Compatible = []uint16{
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA,
		tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA,
		tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_RSA_WITH_AES_128_CBC_SHA,
		tls.TLS_RSA_WITH_AES_256_CBC_SHA,
	}
)

// CipherSuites returns the TLS 1.2 and below suites offered when the minimum
// version is minVersion. TLS 1.3 suites are not configurable, so a TLS 1.3
// minimum yields nil.
func CipherSuites(minVersion uint16) []uint16 {
	switch {
	case minVersion >= tls.VersionTLS13:
		return nil
	case minVersion >= tls.VersionTLS12:
		return CipherSuitesTLS12Secure
	default:
		return CipherSuitesTLS12Compatible
	}
}

// Options configures Build.
type Options struct {
	ServerName    string
	Insecure      bool
	Profile       VersionProfile
	CustomCACerts [][]byte // PEM encoded roots added to a fresh pool
}

// Build returns a client tls.Config. ALPN is pinned to http/1.1.
func Build(opts Options) (*tls.Config, error) {
	profile := opts.Profile
	if profile.Min == 0 {
		profile = ProfileSecure
	}

	cfg := &tls.Config{
		ServerName:         opts.ServerName,
		InsecureSkipVerify: opts.Insecure,
		MinVersion:         profile.Min,
		MaxVersion:         profile.Max,
		CipherSuites:       CipherSuites(profile.Min),
		NextProtos:         []string{"http/1.1"},
	}

	if len(opts.CustomCACerts) > 0 {
		pool := x509.NewCertPool()
		for _, pem := range opts.CustomCACerts {
			if !pool.AppendCertsFromPEM(pem) {
				return nil, errors.NewValidationError("custom CA certificate is not valid PEM")
			}
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}
