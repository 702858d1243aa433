package transport

// Mode selects how protocol bytes move between the bridge and the
// language server process.
type Mode string

const (
	// ModeStdio pipes the server's standard streams.
	ModeStdio Mode = "stdio"
	// ModeTCP listens on a fixed port and launches the server against it.
	ModeTCP Mode = "tcp"
	// ModeTCPRandom listens on an OS-assigned port and launches the server.
	ModeTCPRandom Mode = "tcp-random"
	// ModeTCPAttach listens on a fixed port for an externally managed server.
	ModeTCPAttach Mode = "tcp-attach"
)

// DefaultMode is substituted for invalid or absent configuration values.
const DefaultMode = ModeStdio

// ParseMode validates a raw configuration value against the known modes.
// Invalid or empty input yields DefaultMode and ok=false so the caller can
// persist the correction.
func ParseMode(raw string) (mode Mode, ok bool) {
	switch Mode(raw) {
	case ModeStdio, ModeTCP, ModeTCPRandom, ModeTCPAttach:
		return Mode(raw), true
	default:
		return DefaultMode, false
	}
}

// String returns the configuration spelling of the mode.
func (m Mode) String() string { return string(m) }
