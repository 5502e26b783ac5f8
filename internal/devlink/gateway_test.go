package devlink

import (
	"testing"
	"time"
)

const routeListing = `Flags: X - disabled, A - active
 0 A  dst-address=0.0.0.0/0 gateway=10.0.1.254 distance=1`

func newTestGateway(transports ...*fakeTransport) (*Gateway, *fakeDialer) {
	dialer := &fakeDialer{transports: transports}
	m := newTestManager(dialer)
	return NewGateway(m, time.Minute), dialer
}

func TestIsMutating(t *testing.T) {
	tests := []struct {
		command string
		want    bool
	}{
		{"/ip route print detail", false},
		{"/export", false},
		{"/interface monitor ether1", false},
		{"/ip firewall filter add chain=input action=drop", true},
		{"/system identity set name=core", true},
		{"/ip route remove [find dst-address=0.0.0.0/0]", true},
		{"/system reboot", true},
		{"/system backup save name=pre", true},
		{"/system backup load name=pre", true},
		{"/user disable admin", true},
	}

	for _, tt := range tests {
		if got := IsMutating(tt.command); got != tt.want {
			t.Errorf("IsMutating(%q) = %v, want %v", tt.command, got, tt.want)
		}
	}
}

func TestIsCacheable(t *testing.T) {
	tests := []struct {
		command string
		want    bool
	}{
		{"/ip route print detail", true},
		{"/export", true},
		{"/ip firewall filter print where chain=input", false}, // parameterized
		{"/system identity set name=core", false},              // mutating
		{"/system license", false},                             // no read verb
	}

	for _, tt := range tests {
		if got := isCacheable(tt.command); got != tt.want {
			t.Errorf("isCacheable(%q) = %v, want %v", tt.command, got, tt.want)
		}
	}
}

func TestExecute_CacheRoundTrip(t *testing.T) {
	transport := &fakeTransport{out: routeListing}
	g, _ := newTestGateway(transport)

	first, err := g.Execute("/ip route print detail")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if first.FromCache {
		t.Error("first execution served from cache")
	}
	if first.Stdout != routeListing {
		t.Errorf("Stdout = %q, want the device listing", first.Stdout)
	}

	second, err := g.Execute("/ip route print detail")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !second.FromCache {
		t.Error("second execution not served from cache")
	}
	if second.Stdout != routeListing {
		t.Errorf("cached Stdout = %q, want the device listing", second.Stdout)
	}

	if got := transport.runCount(); got != 1 {
		t.Errorf("device executions = %d, want 1", got)
	}

	stats := g.Stats()
	if stats.CacheHits != 1 {
		t.Errorf("CacheHits = %d, want 1", stats.CacheHits)
	}
	if stats.CacheMisses != 1 {
		t.Errorf("CacheMisses = %d, want 1", stats.CacheMisses)
	}
}

func TestExecuteFresh_BypassesCache(t *testing.T) {
	transport := &fakeTransport{out: routeListing}
	g, _ := newTestGateway(transport)

	if _, err := g.Execute("/ip route print detail"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	fresh, err := g.ExecuteFresh("/ip route print detail")
	if err != nil {
		t.Fatalf("ExecuteFresh() error = %v", err)
	}
	if fresh.FromCache {
		t.Error("ExecuteFresh() served from cache")
	}
	if got := transport.runCount(); got != 2 {
		t.Errorf("device executions = %d, want 2", got)
	}

	// ExecuteFresh still refreshed the cache for the next Execute
	cached, err := g.Execute("/ip route print detail")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !cached.FromCache {
		t.Error("Execute() after ExecuteFresh() missed the cache")
	}
}

func TestExecute_ParameterizedCommandsNotCached(t *testing.T) {
	transport := &fakeTransport{out: routeListing}
	g, _ := newTestGateway(transport)

	command := "/ip firewall filter print where chain=input"
	for i := 0; i < 2; i++ {
		result, err := g.Execute(command)
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if result.FromCache {
			t.Error("parameterized command served from cache")
		}
	}
	if got := transport.runCount(); got != 2 {
		t.Errorf("device executions = %d, want 2", got)
	}
}

func TestExecute_MutationInvalidatesCache(t *testing.T) {
	transport := &fakeTransport{out: routeListing}
	g, _ := newTestGateway(transport)

	if _, err := g.Execute("/ip route print detail"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if _, err := g.Execute("/ip route add dst-address=10.9.0.0/16 gateway=10.0.1.1"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	after, err := g.Execute("/ip route print detail")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if after.FromCache {
		t.Error("listing served from cache after a mutation")
	}
	// listing, mutation, listing again
	if got := transport.runCount(); got != 3 {
		t.Errorf("device executions = %d, want 3", got)
	}
}

func TestExecute_FailedMutationInvalidatesCache(t *testing.T) {
	transport := &fakeTransport{out: routeListing}
	g, _ := newTestGateway(transport)

	if _, err := g.Execute("/ip route print detail"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	// A mutation that times out mid-flight may or may not have been
	// applied; either way the cached listings are no longer trustworthy
	transport.mu.Lock()
	transport.err = NewTimeoutError("command exceeded 30s timeout", nil)
	transport.mu.Unlock()

	if _, err := g.Execute("/ip route add dst-address=10.9.0.0/16 gateway=10.0.1.1"); err == nil {
		t.Fatal("Execute() succeeded, want timeout")
	}

	transport.mu.Lock()
	transport.err = nil
	transport.mu.Unlock()

	after, err := g.Execute("/ip route print detail")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if after.FromCache {
		t.Error("read after a failed mutating command was served from cache")
	}
}

func TestExecute_RetriesReadOnTransportFailure(t *testing.T) {
	flaky := &fakeTransport{err: NewTimeoutError("command exceeded 30s timeout", nil)}
	healthy := &fakeTransport{out: routeListing}
	g, dialer := newTestGateway(flaky, healthy)

	result, err := g.Execute("/ip route print detail")
	if err != nil {
		t.Fatalf("Execute() error = %v, want retry to succeed", err)
	}
	if result.Stdout != routeListing {
		t.Errorf("Stdout = %q, want the listing from the fresh session", result.Stdout)
	}
	if got := dialer.dialCount(); got != 2 {
		t.Errorf("dial count = %d, want 2 (reconnect after failure)", got)
	}
	if !flaky.wasClosed() {
		t.Error("failed transport was not recycled")
	}

	stats := g.Stats()
	if stats.Retries != 1 {
		t.Errorf("Retries = %d, want 1", stats.Retries)
	}
}

func TestExecute_NeverRetriesMutations(t *testing.T) {
	flaky := &fakeTransport{err: NewTimeoutError("command exceeded 30s timeout", nil)}
	g, dialer := newTestGateway(flaky)

	_, err := g.Execute("/ip firewall filter add chain=input action=drop")
	if err == nil {
		t.Fatal("Execute() succeeded, want transport error surfaced")
	}
	if !IsTransportError(err) {
		t.Errorf("IsTransportError(%v) = false, want true", err)
	}
	if got := flaky.runCount(); got != 1 {
		t.Errorf("device executions = %d, want exactly 1 (no retry)", got)
	}
	if got := dialer.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1", got)
	}
	if got := g.Stats().Retries; got != 0 {
		t.Errorf("Retries = %d, want 0", got)
	}
}

func TestExecute_NeverRetriesDeviceRejections(t *testing.T) {
	transport := &fakeTransport{
		err: NewDeviceOutputError("/ip route print detial", "bad command name print detial"),
	}
	g, _ := newTestGateway(transport)

	_, err := g.Execute("/ip route print detial")
	if err == nil {
		t.Fatal("Execute() succeeded, want device error")
	}
	if !IsDeviceError(err) {
		t.Errorf("IsDeviceError(%v) = false, want true", err)
	}
	if got := transport.runCount(); got != 1 {
		t.Errorf("device executions = %d, want 1 (re-issuing cannot succeed)", got)
	}
}

func TestExecute_EmptyStdoutWithStderrIsDeviceError(t *testing.T) {
	transport := &fakeTransport{errOut: "expected end of command (line 1 column 19)"}
	g, _ := newTestGateway(transport)

	result, err := g.Execute("/ip route print detail")
	if err == nil {
		t.Fatal("Execute() succeeded, want device rejection")
	}
	if !IsDeviceError(err) {
		t.Errorf("IsDeviceError(%v) = false, want true", err)
	}
	if result.ErrKind != KindSyntax {
		t.Errorf("ErrKind = %v, want %v", result.ErrKind, KindSyntax)
	}
	if result.Stderr == "" {
		t.Error("raw device error text was dropped from the result")
	}
}

func TestExecute_FailedResultNeverCached(t *testing.T) {
	failing := &fakeTransport{errOut: "syntax error"}
	g, _ := newTestGateway(failing)

	if _, err := g.Execute("/badpath print"); err == nil {
		t.Fatal("Execute() succeeded, want device error")
	}

	// Clear the scripted failure; the next call must reach the device
	failing.mu.Lock()
	failing.errOut = ""
	failing.out = "ok"
	failing.mu.Unlock()

	result, err := g.Execute("/badpath print")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.FromCache {
		t.Error("failed result was served from cache")
	}
}

func TestStats_CountsOutcomes(t *testing.T) {
	transport := &fakeTransport{out: routeListing}
	g, _ := newTestGateway(transport)

	if _, err := g.Execute("/ip route print detail"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if _, err := g.Execute("/ip route print detail"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	transport.mu.Lock()
	transport.out = ""
	transport.errOut = "not enough permissions"
	transport.mu.Unlock()

	if _, err := g.ExecuteFresh("/user print detail"); err == nil {
		t.Fatal("ExecuteFresh() succeeded, want permission error")
	}

	stats := g.Stats()
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.Succeeded != 2 {
		t.Errorf("Succeeded = %d, want 2", stats.Succeeded)
	}
	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
	if rate := stats.CacheHitRate(); rate != 0.5 {
		t.Errorf("CacheHitRate() = %v, want 0.5", rate)
	}
}

func TestInvalidateCache(t *testing.T) {
	transport := &fakeTransport{out: routeListing}
	g, _ := newTestGateway(transport)

	if _, err := g.Execute("/ip route print detail"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	g.InvalidateCache()

	result, err := g.Execute("/ip route print detail")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.FromCache {
		t.Error("result served from cache after InvalidateCache()")
	}
	if got := transport.runCount(); got != 2 {
		t.Errorf("device executions = %d, want 2", got)
	}
}
