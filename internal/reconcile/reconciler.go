package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/rosguard/internal/devlink"
	"github.com/muurk/rosguard/internal/logging"
	"github.com/muurk/rosguard/internal/roscmd"
	"github.com/muurk/rosguard/internal/rosparse"
)

// DefaultSettleDelay is how long the reconciler waits after a mutating
// command before re-reading device state. These devices apply changes
// asynchronously; reading back immediately races the change.
const DefaultSettleDelay = 2 * time.Second

// DefaultMaxRetries bounds convergence attempts per desired state
const DefaultMaxRetries = 3

// Outcome is the result category of an idempotency check
type Outcome string

const (
	// OutcomeMatches means the device already satisfies the desired state
	OutcomeMatches Outcome = "MATCHES"
	// OutcomeDiffers means the resource exists but with differing values
	OutcomeDiffers Outcome = "DIFFERS"
	// OutcomeMissing means no matching resource exists on the device
	OutcomeMissing Outcome = "MISSING"
	// OutcomeExtra means a resource exists that the desired state forbids
	OutcomeExtra Outcome = "EXTRA"
	// OutcomeError means the check itself failed, or convergence was
	// exhausted
	OutcomeError Outcome = "ERROR"
)

// DifferenceKind classifies one itemized difference
type DifferenceKind string

const (
	// DiffMissingKey: the desired key is absent on the device
	DiffMissingKey DifferenceKind = "missing-key"
	// DiffValueMismatch: the key exists with a different value
	DiffValueMismatch DifferenceKind = "value-mismatch"
	// DiffExtraKey: the device has a key the desired state does not
	// mention. Informational only; never flips the outcome.
	DiffExtraKey DifferenceKind = "extra-key"
)

// Difference is one itemized discrepancy between desired and current state
type Difference struct {
	Kind    DifferenceKind
	Key     string
	Desired string
	Current string
}

func (d Difference) String() string {
	switch d.Kind {
	case DiffMissingKey:
		return fmt.Sprintf("%s: desired %q, absent on device", d.Key, d.Desired)
	case DiffExtraKey:
		return fmt.Sprintf("%s: present on device (%q), not in desired state", d.Key, d.Current)
	default:
		return fmt.Sprintf("%s: desired %q, device has %q", d.Key, d.Desired, d.Current)
	}
}

// Result is the outcome of one idempotency check or convergence attempt
type Result struct {
	Outcome Outcome

	// Current is the matched device record, nil when missing
	Current rosparse.Record

	// Desired echoes the requested property set
	Desired map[string]any

	// Differences itemizes discrepancies, including informational
	// extra keys
	Differences []Difference

	// ActionRequired is true when the device must change to satisfy the
	// desired state
	ActionRequired bool

	// Err carries the failure description for OutcomeError
	Err string
}

// DesiredState is a caller-supplied target for one resource
type DesiredState struct {
	// ResourceType selects the listing/create commands and identifying
	// keys, e.g. "firewall", "route", "address"
	ResourceType string `yaml:"resource_type"`

	// ID optionally distinguishes multiple desired states of one type
	ID string `yaml:"id,omitempty"`

	// Properties is the desired property set. Identifying properties
	// select the resource; the rest are converged.
	Properties map[string]any `yaml:"properties"`

	// Absent inverts the goal: the matching resource must not exist
	Absent bool `yaml:"absent,omitempty"`

	// Priority orders reconciliation, highest first
	Priority int `yaml:"priority,omitempty"`

	// DependsOn lists resource types that must converge before this one.
	// Priorities normally encode this; the list is advisory for callers
	// building manifests.
	DependsOn []string `yaml:"depends_on,omitempty"`
}

// key names a desired state in the EnsureDesiredState result map
func (d DesiredState) key() string {
	if d.ID != "" {
		return d.ResourceType + ":" + d.ID
	}
	return d.ResourceType
}

// resourceSpec maps a resource type to its device command path and the
// property subset that identifies one resource of that type
type resourceSpec struct {
	path            string
	identifyingKeys []string
}

var resourceSpecs = map[string]resourceSpec{
	"firewall":     {"/ip firewall filter", []string{"chain", "src-address", "dst-address", "protocol", "dst-port"}},
	"nat":          {"/ip firewall nat", []string{"chain", "src-address", "dst-address", "protocol", "dst-port"}},
	"address-list": {"/ip firewall address-list", []string{"list", "address"}},
	"route":        {"/ip route", []string{"dst-address"}},
	"address":      {"/ip address", []string{"address", "interface"}},
	"interface":    {"/interface", []string{"name"}},
	"dhcp-server":  {"/ip dhcp-server", []string{"name"}},
	"dns-static":   {"/ip dns static", []string{"name"}},
	"user":         {"/user", []string{"name"}},
}

// ResourceTypes lists the resource types the reconciler understands
func ResourceTypes() []string {
	types := make([]string, 0, len(resourceSpecs))
	for t := range resourceSpecs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Runner executes device commands. *devlink.Gateway satisfies it.
type Runner interface {
	Execute(command string) (*devlink.CommandResult, error)
	ExecuteFresh(command string) (*devlink.CommandResult, error)
}

// Reconciler checks and converges desired state against the device
type Reconciler struct {
	runner Runner

	// SettleDelay is the wait between a mutating command and the
	// follow-up state read
	SettleDelay time.Duration
}

// NewReconciler creates a reconciler over the given runner
func NewReconciler(runner Runner) *Reconciler {
	return &Reconciler{
		runner:      runner,
		SettleDelay: DefaultSettleDelay,
	}
}

// CheckIdempotency fetches the current resources of the type and compares
// the first identity-matching one against the desired properties. The
// listing goes through the gateway's cache, so repeated checks inside the
// TTL window cost one device call.
func (r *Reconciler) CheckIdempotency(resourceType string, desired map[string]any) *Result {
	return r.check(DesiredState{ResourceType: resourceType, Properties: desired})
}

func (r *Reconciler) check(state DesiredState) *Result {
	result := &Result{Desired: state.Properties}

	spec, ok := resourceSpecs[state.ResourceType]
	if !ok {
		result.Outcome = OutcomeError
		result.Err = fmt.Sprintf("unknown resource type %q (known: %v)", state.ResourceType, ResourceTypes())
		return result
	}

	listing, err := r.runner.Execute(roscmd.Print(spec.path, nil))
	if err != nil {
		result.Outcome = OutcomeError
		result.Err = fmt.Sprintf("failed to list %s resources: %v", state.ResourceType, err)
		return result
	}

	current := findMatch(rosparse.Parse(listing.Stdout), spec, state.Properties)

	if state.Absent {
		if current == nil {
			result.Outcome = OutcomeMatches
			return result
		}
		result.Outcome = OutcomeExtra
		result.Current = current
		result.ActionRequired = true
		return result
	}

	if current == nil {
		result.Outcome = OutcomeMissing
		result.ActionRequired = true
		return result
	}

	result.Current = current
	result.Differences = diff(state.Properties, current)

	for _, d := range result.Differences {
		if d.Kind != DiffExtraKey {
			result.Outcome = OutcomeDiffers
			result.ActionRequired = true
			return result
		}
	}

	result.Outcome = OutcomeMatches
	return result
}

// findMatch returns the first record whose identifying property subset
// matches the desired properties, or nil
func findMatch(records []rosparse.Record, spec resourceSpec, desired map[string]any) rosparse.Record {
	idKeys := identifyingSubset(spec, desired)

	for _, record := range records {
		matched := true
		for _, key := range idKeys {
			if Normalize(record[key]) != Normalize(desired[key]) {
				matched = false
				break
			}
		}
		if matched {
			return record
		}
	}
	return nil
}

// identifyingSubset returns the per-type identifying keys that the desired
// properties actually specify. A desired state that names none of them is
// matched on every key it does specify.
func identifyingSubset(spec resourceSpec, desired map[string]any) []string {
	var keys []string
	for _, key := range spec.identifyingKeys {
		if _, ok := desired[key]; ok {
			keys = append(keys, key)
		}
	}
	if len(keys) > 0 {
		return keys
	}

	keys = make([]string, 0, len(desired))
	for key := range desired {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// diff compares every desired key against the record and notes device keys
// absent from the desired state as informational extras
func diff(desired map[string]any, current rosparse.Record) []Difference {
	keys := make([]string, 0, len(desired))
	for key := range desired {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var differences []Difference
	for _, key := range keys {
		want := Normalize(desired[key])
		got, ok := current[key]
		if !ok {
			differences = append(differences, Difference{
				Kind:    DiffMissingKey,
				Key:     key,
				Desired: want,
			})
			continue
		}
		if Normalize(got) != want {
			differences = append(differences, Difference{
				Kind:    DiffValueMismatch,
				Key:     key,
				Desired: want,
				Current: Normalize(got),
			})
		}
	}

	extraKeys := make([]string, 0)
	for key := range current {
		if key == ".index" || key == ".flags" {
			continue
		}
		if _, ok := desired[key]; !ok {
			extraKeys = append(extraKeys, key)
		}
	}
	sort.Strings(extraKeys)
	for _, key := range extraKeys {
		differences = append(differences, Difference{
			Kind:    DiffExtraKey,
			Key:     key,
			Current: Normalize(current[key]),
		})
	}

	return differences
}

// EnsureDesiredState converges each desired state, highest priority first,
// retrying up to maxRetries times per state with a settle delay between a
// mutation and its re-check. Exhausted convergence yields an ERROR result
// for that state; it never panics or aborts the batch.
func (r *Reconciler) EnsureDesiredState(ctx context.Context, states []DesiredState, maxRetries int) map[string]*Result {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	ordered := make([]DesiredState, len(states))
	copy(ordered, states)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	results := make(map[string]*Result, len(ordered))
	for _, state := range ordered {
		results[state.key()] = r.converge(ctx, state, maxRetries)
	}
	return results
}

// converge drives one desired state to MATCHES or exhausts its retries
func (r *Reconciler) converge(ctx context.Context, state DesiredState, maxRetries int) *Result {
	spec, known := resourceSpecs[state.ResourceType]

	var result *Result
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result = r.check(state)

		switch result.Outcome {
		case OutcomeMatches:
			return result
		case OutcomeError:
			if !known {
				// Unknown type can never converge
				return result
			}
		case OutcomeMissing:
			if err := r.apply(roscmd.Add(spec.path, state.Properties)); err != nil {
				result.Err = fmt.Sprintf("create failed: %v", err)
			}
		case OutcomeDiffers:
			// Converge by replace: these devices have no partial
			// in-place update for compound-keyed resources.
			selectors := selectorProps(spec, state.Properties, result.Current)
			if err := r.apply(roscmd.Remove(spec.path, selectors)); err != nil {
				result.Err = fmt.Sprintf("remove failed: %v", err)
			} else if err := r.apply(roscmd.Add(spec.path, state.Properties)); err != nil {
				result.Err = fmt.Sprintf("recreate failed: %v", err)
			}
		case OutcomeExtra:
			selectors := selectorProps(spec, state.Properties, result.Current)
			if err := r.apply(roscmd.Remove(spec.path, selectors)); err != nil {
				result.Err = fmt.Sprintf("remove failed: %v", err)
			}
		}

		if attempt == maxRetries {
			break
		}
		if err := r.settle(ctx); err != nil {
			result.Outcome = OutcomeError
			result.Err = fmt.Sprintf("reconciliation cancelled: %v", err)
			return result
		}
	}

	logging.Warn("Desired state did not converge",
		zap.String("resource_type", state.ResourceType),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("attempts", maxRetries+1))

	exhausted := &Result{
		Outcome:        OutcomeError,
		Current:        result.Current,
		Desired:        state.Properties,
		Differences:    result.Differences,
		ActionRequired: true,
		Err:            fmt.Sprintf("did not converge after %d attempts (last outcome: %s)", maxRetries+1, result.Outcome),
	}
	if result.Err != "" {
		exhausted.Err += ": " + result.Err
	}
	return exhausted
}

// selectorProps builds remove selectors from the identifying keys, falling
// back to everything the desired state specifies
func selectorProps(spec resourceSpec, desired map[string]any, current rosparse.Record) map[string]any {
	selectors := make(map[string]any)
	for _, key := range identifyingSubset(spec, desired) {
		if v, ok := desired[key]; ok {
			selectors[key] = v
		} else if current != nil {
			if v, ok := current[key]; ok {
				selectors[key] = v
			}
		}
	}
	return selectors
}

// apply issues a mutating command, bypassing the cache
func (r *Reconciler) apply(command string) error {
	_, err := r.runner.ExecuteFresh(command)
	return err
}

// settle waits for the device to apply a change, honoring cancellation
func (r *Reconciler) settle(ctx context.Context) error {
	delay := r.SettleDelay
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
