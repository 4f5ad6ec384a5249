// Package connstr parses account connection strings of the form
// "AccountEndpoint=<uri>;AccountKey=<key>;".
package connstr

import (
	"strings"

	"github.com/polisai/cosmosclient/pkg/domain"
)

const (
	// EndpointKey names the endpoint segment.
	EndpointKey = "AccountEndpoint"
	// AccountKeyKey names the key segment.
	AccountKeyKey = "AccountKey"
)

// Credentials is the endpoint/key pair extracted from a connection string.
type Credentials struct {
	Endpoint string
	Key      string
}

// String renders the credentials without the secret.
func (c Credentials) String() string {
	return EndpointKey + "=" + c.Endpoint + ";" + AccountKeyKey + "=[REDACTED];"
}

// Parse splits s on ';' and each segment on its first '='. Keys match
// case-insensitively and unknown keys are ignored; when a key repeats the
// last value wins.
func Parse(s string) (Credentials, error) {
	if strings.TrimSpace(s) == "" {
		return Credentials{}, domain.NewConfigError(domain.KindMalformedInput, "ConnectionString", "connection string is empty")
	}

	values := make(map[string]string)
	for _, segment := range strings.Split(s, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		parts := strings.SplitN(segment, "=", 2)
		if len(parts) != 2 {
			return Credentials{}, domain.NewConfigError(domain.KindMalformedInput, "ConnectionString",
				"segment %q is not a key=value pair", redactSegment(segment))
		}

		key := strings.ToLower(strings.TrimSpace(parts[0]))
		if key == "" {
			return Credentials{}, domain.NewConfigError(domain.KindMalformedInput, "ConnectionString", "segment has an empty key")
		}
		values[key] = strings.TrimSpace(parts[1])
	}

	endpoint, ok := values[strings.ToLower(EndpointKey)]
	if !ok || endpoint == "" {
		return Credentials{}, domain.NewConfigError(domain.KindMissingField, EndpointKey, "connection string is missing %s", EndpointKey)
	}

	key, ok := values[strings.ToLower(AccountKeyKey)]
	if !ok || key == "" {
		return Credentials{}, domain.NewConfigError(domain.KindMissingField, AccountKeyKey, "connection string is missing %s", AccountKeyKey)
	}

	return Credentials{Endpoint: endpoint, Key: key}, nil
}

// Format renders credentials back into canonical connection string form.
func Format(c Credentials) string {
	return EndpointKey + "=" + c.Endpoint + ";" + AccountKeyKey + "=" + c.Key + ";"
}

// redactSegment keeps a malformed segment out of error text when it may hold key material.
func redactSegment(segment string) string {
	if len(segment) <= 8 {
		return "***"
	}
	return segment[:4] + "***"
}
