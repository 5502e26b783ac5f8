package devlink

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/rosguard/internal/logging"
)

// CommandResult is the outcome of one command execution against the device
type CommandResult struct {
	// Stdout is the raw text output from the device
	Stdout string

	// Stderr is the captured error stream
	Stderr string

	// Duration is the elapsed wall time for the command
	Duration time.Duration

	// ErrKind classifies the failure, KindNone on success
	ErrKind ErrorKind

	// FromCache is true when the result was served without touching the
	// device
	FromCache bool
}

// mutatingVerbs are command words that change device state. Presence of any
// of these disables caching and limits retry to zero to avoid
// double-application of non-idempotent operations.
var mutatingVerbs = []string{
	"add", "set", "remove", "enable", "disable", "move",
	"reset", "reboot", "shutdown", "load", "save", "install",
	"uninstall", "upgrade", "downgrade", "import", "unset",
}

// readVerbs are command words that only observe device state
var readVerbs = []string{"print", "export", "monitor", "get", "ping"}

// IsMutating reports whether the command contains a side-effecting verb
func IsMutating(command string) bool {
	for _, word := range strings.Fields(strings.ToLower(command)) {
		for _, verb := range mutatingVerbs {
			if word == verb {
				return true
			}
		}
	}
	return false
}

// isCacheable reports whether a command's result may be served from and
// written to the cache: read-only, and no parameters that could make two
// invocations differ in meaning beyond their literal text.
func isCacheable(command string) bool {
	if IsMutating(command) {
		return false
	}
	if strings.Contains(command, "=") {
		return false
	}
	for _, word := range strings.Fields(strings.ToLower(command)) {
		for _, verb := range readVerbs {
			if word == verb {
				return true
			}
		}
	}
	return false
}

// Gateway executes commands against a device through a managed session,
// applying the per-command timeout, the response cache, retry policy, and
// error classification.
type Gateway struct {
	sessions *SessionManager
	cache    *responseCache
	metrics  *Metrics
	timeout  time.Duration
}

// NewGateway creates a gateway over the given session manager. cacheTTL <= 0
// selects the default TTL.
func NewGateway(sessions *SessionManager, cacheTTL time.Duration) *Gateway {
	return &Gateway{
		sessions: sessions,
		cache:    newResponseCache(cacheTTL),
		metrics:  &Metrics{},
		timeout:  sessions.Config().CommandTimeout,
	}
}

// Stats returns a snapshot of the gateway's request counters
func (g *Gateway) Stats() MetricsSnapshot {
	return g.metrics.Snapshot()
}

// Execute runs a command against the device. Read-only parameter-less
// commands are served from the cache when fresh. On a transport-indicative
// failure the session is marked unhealthy and, for read-only commands only,
// the command is retried exactly once on a fresh session.
//
// The returned CommandResult is populated even on error so callers always
// see the device's raw output alongside the classified failure.
func (g *Gateway) Execute(command string) (*CommandResult, error) {
	return g.execute(command, true)
}

// ExecuteFresh runs a command bypassing the cache consult. The result of a
// read-only command is still written back into the cache.
func (g *Gateway) ExecuteFresh(command string) (*CommandResult, error) {
	return g.execute(command, false)
}

func (g *Gateway) execute(command string, useCache bool) (*CommandResult, error) {
	command = strings.TrimSpace(command)
	cacheable := isCacheable(command)

	if useCache && cacheable {
		if cached, ok := g.cache.get(command); ok {
			g.metrics.recordHit()
			logging.Debug("Cache hit", zap.String("command", command))
			cached.FromCache = true
			return cached, nil
		}
		g.metrics.recordMiss()
	}

	mutating := IsMutating(command)

	result, err := g.runOnce(command)
	if err != nil && IsTransportError(err) && !mutating {
		// One reconnect-and-retry for reads. Mutations surface the
		// transport error immediately: the device may or may not have
		// applied the change, and re-issuing could double-apply it.
		g.metrics.recordRetry()
		logging.Warn("Transport failure, retrying on fresh session",
			zap.String("command", command), zap.Error(err))
		result, err = g.runOnce(command)
	}

	if mutating {
		// Invalidate even when the command failed: a timeout mid-flight
		// leaves the device state unknown, so cached listings cannot be
		// trusted either way.
		g.cache.invalidateAll()
	}

	if err != nil {
		return result, err
	}

	if cacheable {
		g.cache.put(command, result)
	}

	return result, nil
}

// runOnce borrows a session and executes the command a single time
func (g *Gateway) runOnce(command string) (*CommandResult, error) {
	session, err := g.sessions.Acquire()
	if err != nil {
		g.metrics.recordResult(0, false)
		return &CommandResult{ErrKind: classifyErr(err)}, err
	}

	start := time.Now()
	stdout, stderr, err := session.Transport.Run(command, g.timeout)
	elapsed := time.Since(start)

	result := &CommandResult{
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: elapsed,
	}

	if err != nil {
		if IsTransportError(err) {
			g.sessions.MarkUnhealthy(session)
		}
		result.ErrKind = classifyErr(err)
		g.metrics.recordResult(elapsed, false)
		logging.LogCommand(command, elapsed, false)
		return result, err
	}

	// The shell exits zero even for some device-level rejections; empty
	// stdout with error text on stderr is the device saying no.
	if stdout == "" && strings.TrimSpace(stderr) != "" {
		devErr := NewDeviceOutputError(command, stderr)
		result.ErrKind = devErr.Kind
		g.metrics.recordResult(elapsed, false)
		logging.LogCommand(command, elapsed, false)
		return result, devErr
	}

	g.metrics.recordResult(elapsed, true)
	logging.LogCommand(command, elapsed, true)
	return result, nil
}

// InvalidateCache drops all cached responses
func (g *Gateway) InvalidateCache() {
	g.cache.invalidateAll()
}

func classifyErr(err error) ErrorKind {
	if devErr := ClassifyTransportError(err); devErr != nil {
		return devErr.Kind
	}
	return KindNone
}
