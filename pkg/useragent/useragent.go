// Package useragent composes the transport identification string sent with every request.
package useragent

import (
	"runtime"
	"strconv"
	"strings"
)

const (
	// SDKName identifies this client in the user agent.
	SDKName = "cosmos-go-sdk"
	// SDKVersion is the client version reported in the user agent.
	SDKVersion = "1.0.0"
)

// Environment describes the runtime the client runs in. It is injected into
// Compose so composition never reads process-wide state on its own.
type Environment struct {
	SDKName        string
	SDKVersion     string
	GoVersion      string
	OS             string
	Arch           string
	ProcessorCount int
}

// DetectEnvironment reads the descriptor of the current process.
func DetectEnvironment() Environment {
	return Environment{
		SDKName:        SDKName,
		SDKVersion:     SDKVersion,
		GoVersion:      runtime.Version(),
		OS:             runtime.GOOS,
		Arch:           runtime.GOARCH,
		ProcessorCount: runtime.NumCPU(),
	}
}

// String renders the descriptor as "name/version|go|os|arch|cpus|". The
// trailing separator lets a suffix be appended directly.
func (e Environment) String() string {
	var b strings.Builder
	b.WriteString(e.SDKName)
	b.WriteByte('/')
	b.WriteString(e.SDKVersion)
	b.WriteByte('|')
	for _, part := range []string{e.GoVersion, e.OS, e.Arch, strconv.Itoa(e.ProcessorCount)} {
		b.WriteString(part)
		b.WriteByte('|')
	}
	return b.String()
}

// Compose returns the descriptor followed by suffix. An empty suffix yields the descriptor alone.
func Compose(env Environment, suffix string) string {
	return env.String() + strings.TrimSpace(suffix)
}
