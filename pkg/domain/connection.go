package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ConnectionMode selects how the client reaches the service.
type ConnectionMode int

const (
	// ConnectionModeDirect talks to backend replicas directly over TCP.
	ConnectionModeDirect ConnectionMode = iota
	// ConnectionModeGateway routes every request through the HTTPS gateway.
	ConnectionModeGateway
)

// String returns "Direct" or "Gateway".
func (m ConnectionMode) String() string {
	switch m {
	case ConnectionModeDirect:
		return "Direct"
	case ConnectionModeGateway:
		return "Gateway"
	default:
		return fmt.Sprintf("ConnectionMode(%d)", int(m))
	}
}

// MarshalText renders the mode name.
func (m ConnectionMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseConnectionMode accepts "direct" or "gateway" in any case.
func ParseConnectionMode(s string) (ConnectionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "direct":
		return ConnectionModeDirect, nil
	case "gateway":
		return ConnectionModeGateway, nil
	default:
		return 0, NewConfigError(KindInvalidArgument, "ConnectionMode", "unknown connection mode %q", s)
	}
}

// Protocol is the wire protocol derived from the connection mode.
type Protocol int

const (
	// ProtocolTCP is used in direct mode.
	ProtocolTCP Protocol = iota
	// ProtocolHTTPS is used in gateway mode.
	ProtocolHTTPS
)

// String returns "Tcp" or "Https".
func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "Tcp"
	case ProtocolHTTPS:
		return "Https"
	default:
		return fmt.Sprintf("Protocol(%d)", int(p))
	}
}

// MarshalText renders the protocol name.
func (p Protocol) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ProtocolFor maps a connection mode onto its wire protocol.
func ProtocolFor(mode ConnectionMode) Protocol {
	if mode == ConnectionModeGateway {
		return ProtocolHTTPS
	}
	return ProtocolTCP
}

// APIType tags the account API surface the client targets.
type APIType int

const (
	// APITypeNone leaves the API unspecified.
	APITypeNone APIType = iota
	// APITypeSQL is the core document (SQL) API.
	APITypeSQL
	// APITypeMongoDB is the MongoDB wire protocol API.
	APITypeMongoDB
	// APITypeGremlin is the graph API.
	APITypeGremlin
	// APITypeCassandra is the Cassandra API.
	APITypeCassandra
	// APITypeTable is the table API.
	APITypeTable
)

var apiTypeNames = map[APIType]string{
	APITypeNone:      "None",
	APITypeSQL:       "Sql",
	APITypeMongoDB:   "MongoDB",
	APITypeGremlin:   "Gremlin",
	APITypeCassandra: "Cassandra",
	APITypeTable:     "Table",
}

// String returns the API type name, or APIType(n) for unknown values.
func (a APIType) String() string {
	if name, ok := apiTypeNames[a]; ok {
		return name
	}
	return fmt.Sprintf("APIType(%d)", int(a))
}

// ParseAPIType resolves an API type name, case-insensitively.
func ParseAPIType(s string) (APIType, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return APITypeNone, nil
	}
	for t, name := range apiTypeNames {
		if strings.EqualFold(name, trimmed) {
			return t, nil
		}
	}
	return 0, NewConfigError(KindInvalidArgument, "APIType", "unknown api type %q", s)
}

// RetryOptions governs how the transport retries throttled (429) requests.
type RetryOptions struct {
	MaxRetryAttemptsOnThrottledRequests int `json:"maxRetryAttemptsOnThrottledRequests" yaml:"max_retry_attempts_on_throttled_requests"`
	MaxRetryWaitTimeInSeconds           int `json:"maxRetryWaitTimeInSeconds" yaml:"max_retry_wait_time_in_seconds"`
}

// MaxRetryWaitTime returns the wait budget as a duration.
func (r RetryOptions) MaxRetryWaitTime() time.Duration {
	return time.Duration(r.MaxRetryWaitTimeInSeconds) * time.Second
}

// ConnectionPolicy is the resolved, immutable set of transport parameters.
// Fields are unexported; a built policy cannot be altered by its consumers.
type ConnectionPolicy struct {
	mode               ConnectionMode
	protocol           Protocol
	maxConnectionLimit int
	requestTimeout     time.Duration
	preferredLocations []string
	multiWrite         bool
	userAgentSuffix    string
	retry              RetryOptions
}

// ConnectionPolicyFields is the plain-data form used to assemble a ConnectionPolicy.
type ConnectionPolicyFields struct {
	ConnectionMode            ConnectionMode `json:"connectionMode" yaml:"connection_mode"`
	Protocol                  Protocol       `json:"protocol" yaml:"protocol"`
	MaxConnectionLimit        int            `json:"maxConnectionLimit" yaml:"max_connection_limit"`
	RequestTimeout            time.Duration  `json:"requestTimeout" yaml:"request_timeout"`
	PreferredLocations        []string       `json:"preferredLocations" yaml:"preferred_locations"`
	UseMultipleWriteLocations bool           `json:"useMultipleWriteLocations" yaml:"use_multiple_write_locations"`
	UserAgentSuffix           string         `json:"userAgentSuffix" yaml:"user_agent_suffix"`
	RetryOptions              RetryOptions   `json:"retryOptions" yaml:"retry_options"`
}

// NewConnectionPolicy freezes the given fields. The locations slice is copied.
func NewConnectionPolicy(f ConnectionPolicyFields) ConnectionPolicy {
	return ConnectionPolicy{
		mode:               f.ConnectionMode,
		protocol:           f.Protocol,
		maxConnectionLimit: f.MaxConnectionLimit,
		requestTimeout:     f.RequestTimeout,
		preferredLocations: slices.Clone(f.PreferredLocations),
		multiWrite:         f.UseMultipleWriteLocations,
		userAgentSuffix:    f.UserAgentSuffix,
		retry:              f.RetryOptions,
	}
}

// ConnectionMode returns how the client reaches the service.
func (p ConnectionPolicy) ConnectionMode() ConnectionMode { return p.mode }

// Protocol returns the wire protocol implied by the connection mode.
func (p ConnectionPolicy) Protocol() Protocol { return p.protocol }

// MaxConnectionLimit returns the gateway connection limit.
func (p ConnectionPolicy) MaxConnectionLimit() int { return p.maxConnectionLimit }

// RequestTimeout returns the per-request timeout.
func (p ConnectionPolicy) RequestTimeout() time.Duration { return p.requestTimeout }

// UseMultipleWriteLocations reports whether writes may go to any preferred region.
func (p ConnectionPolicy) UseMultipleWriteLocations() bool { return p.multiWrite }

// UserAgentSuffix returns the full user agent sent with each request.
func (p ConnectionPolicy) UserAgentSuffix() string { return p.userAgentSuffix }

// RetryOptions returns the throttle retry budget.
func (p ConnectionPolicy) RetryOptions() RetryOptions { return p.retry }

// PreferredLocations returns a copy of the ordered region preference list.
func (p ConnectionPolicy) PreferredLocations() []string {
	return slices.Clone(p.preferredLocations)
}

// Fields returns the plain-data view of the policy, suitable for serialization.
func (p ConnectionPolicy) Fields() ConnectionPolicyFields {
	return ConnectionPolicyFields{
		ConnectionMode:            p.mode,
		Protocol:                  p.protocol,
		MaxConnectionLimit:        p.maxConnectionLimit,
		RequestTimeout:            p.requestTimeout,
		PreferredLocations:        p.PreferredLocations(),
		UseMultipleWriteLocations: p.multiWrite,
		UserAgentSuffix:           p.userAgentSuffix,
		RetryOptions:              p.retry,
	}
}

// Equal reports value equality. A nil and an empty location list compare equal.
func (p ConnectionPolicy) Equal(other ConnectionPolicy) bool {
	return p.mode == other.mode &&
		p.protocol == other.protocol &&
		p.maxConnectionLimit == other.maxConnectionLimit &&
		p.requestTimeout == other.requestTimeout &&
		slices.Equal(p.preferredLocations, other.preferredLocations) &&
		p.multiWrite == other.multiWrite &&
		p.userAgentSuffix == other.userAgentSuffix &&
		p.retry == other.retry
}
