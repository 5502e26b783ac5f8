// Package risk classifies device commands into safety tiers before they are
// allowed anywhere near a session. Classification is pattern-based and
// deterministic: pattern sets are checked in strict precedence order
// (CRITICAL, then HIGH, then SAFE) and the first match wins; anything
// unmatched is treated as MEDIUM, because an unknown command deserves
// caution, not trust.
package risk

import (
	"regexp"
	"strings"
)

// Tier is the safety classification of a command
type Tier int

const (
	// TierSafe commands only observe state
	TierSafe Tier = iota
	// TierLow commands have minor, easily reversed effects
	TierLow
	// TierMedium is the default for unknown commands
	TierMedium
	// TierHigh commands change security- or connectivity-relevant state
	TierHigh
	// TierCritical commands can take the device offline or destroy state
	TierCritical
)

// String returns the tier name
func (t Tier) String() string {
	switch t {
	case TierSafe:
		return "SAFE"
	case TierLow:
		return "LOW"
	case TierMedium:
		return "MEDIUM"
	case TierHigh:
		return "HIGH"
	case TierCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Assessment is the result of classifying one command. Created fresh per
// command and never persisted.
type Assessment struct {
	// Tier is the resolved safety tier
	Tier Tier

	// Reason names the rule that matched, or explains the default
	Reason string

	// Warnings are human-readable cautions for the operator
	Warnings []string

	// RequiresApproval is true when the command must not run without an
	// explicit operator or policy go-ahead (MEDIUM and above)
	RequiresApproval bool

	// RequiresBackup is true when a state snapshot must be taken before
	// execution (HIGH and CRITICAL only)
	RequiresBackup bool

	// Impact is a coarse estimate of the blast radius
	Impact string
}

type rule struct {
	pattern *regexp.Regexp
	reason  string
}

func mustRules(pairs ...[2]string) []rule {
	rules := make([]rule, 0, len(pairs))
	for _, p := range pairs {
		rules = append(rules, rule{
			pattern: regexp.MustCompile(p[0]),
			reason:  p[1],
		})
	}
	return rules
}

// Classifier assesses command risk. The zero value is not usable; construct
// with NewClassifier.
type Classifier struct {
	critical []rule
	high     []rule
	safe     []rule
}

// NewClassifier builds a classifier with the built-in rule sets
func NewClassifier() *Classifier {
	return &Classifier{
		critical: mustRules(
			[2]string{`reset-configuration`, "wipes the entire device configuration"},
			[2]string{`system\s+shutdown`, "powers the device off"},
			[2]string{`\bformat-drive\b|\bformat\s`, "destroys on-device storage"},
			[2]string{`system\s+package\s+(uninstall|downgrade)`, "removes or downgrades system software"},
			[2]string{`user\s+(remove|set).*(admin|full)`, "alters administrative access"},
			[2]string{`ip\s+service\s+(disable|set).*(ssh|api|winbox)`, "can cut off management access"},
		),
		high: mustRules(
			[2]string{`system\s+reboot`, "reboots the device, interrupting all traffic"},
			[2]string{`firewall\s+.*\b(remove|set|move)\b|\bremove\b.*firewall`, "modifies the firewall ruleset"},
			[2]string{`\broute\b.*\b(remove|set)\b`, "modifies the routing table"},
			[2]string{`interface\s+.*\b(disable|set|remove)\b`, "modifies interface state"},
			[2]string{`\buser\b.*\b(add|remove|set)\b`, "modifies device accounts"},
			[2]string{`\bpassword\b`, "changes credentials"},
			[2]string{`system\s+backup\s+load`, "replaces running configuration from backup"},
			[2]string{`\bupgrade\b|package\s+update`, "changes system software"},
			[2]string{`ip\s+address\s+(remove|set)`, "modifies device addressing"},
		),
		safe: mustRules(
			[2]string{`\bprint\b`, "read-only listing"},
			[2]string{`\bexport\b`, "read-only configuration export"},
			[2]string{`\bmonitor\b`, "read-only monitoring"},
			[2]string{`\bget\b`, "read-only property fetch"},
			[2]string{`\bping\b|\btraceroute\b`, "network diagnostic"},
			[2]string{`system\s+backup\s+save`, "creates a backup without changing state"},
		),
	}
}

// impactByTier is the fixed impact estimate lookup
var impactByTier = map[Tier]string{
	TierSafe:     "No configuration change; read-only.",
	TierLow:      "Minor change, easily reversed.",
	TierMedium:   "Unrecognized command; effect on the device is unknown.",
	TierHigh:     "Changes live configuration; may affect traffic or access.",
	TierCritical: "May cause outage, lockout, or irreversible data loss.",
}

// ImpactForTier returns the fixed impact estimate for a tier
func ImpactForTier(t Tier) string {
	return impactByTier[t]
}

// tierWarnings is boilerplate attached to every command of a tier
var tierWarnings = map[Tier][]string{
	TierMedium: {
		"Unknown command — treat with caution",
	},
	TierHigh: {
		"Verify the change window before applying",
		"A pre-change backup will be taken",
	},
	TierCritical: {
		"Test on a non-critical device first",
		"Ensure out-of-band access before proceeding",
		"A pre-change backup will be taken",
	},
}

// keywordWarnings layer extra cautions triggered by command content
var keywordWarnings = []struct {
	all    []string
	notice string
}{
	{[]string{"firewall", "remove"}, "Removing firewall rules can expose services; review the security impact"},
	{[]string{"firewall", "disable"}, "Disabling firewall rules can expose services; review the security impact"},
	{[]string{"reboot"}, "The device will drop all connectivity until it comes back"},
	{[]string{"shutdown"}, "The device will go offline and require physical or out-of-band recovery"},
	{[]string{"password"}, "Record the new credentials before applying; a lost password may mean a factory reset"},
	{[]string{"route", "remove"}, "Removing routes can black-hole traffic, including this management session"},
	{[]string{"dns"}, "DNS changes affect name resolution for the device and its clients"},
}

// Assess classifies a command. Matching is on the lowercased command text;
// within each tier the rules are checked in declaration order, so the result
// is deterministic.
func (c *Classifier) Assess(command string) *Assessment {
	normalized := strings.ToLower(strings.TrimSpace(command))

	tier := TierMedium
	reason := "unknown command — treat with caution"

	if r, ok := match(c.critical, normalized); ok {
		tier, reason = TierCritical, r.reason
	} else if r, ok := match(c.high, normalized); ok {
		tier, reason = TierHigh, r.reason
	} else if r, ok := match(c.safe, normalized); ok {
		tier, reason = TierSafe, r.reason
	}

	a := &Assessment{
		Tier:             tier,
		Reason:           reason,
		RequiresApproval: tier >= TierMedium,
		RequiresBackup:   tier >= TierHigh,
		Impact:           impactByTier[tier],
	}

	a.Warnings = append(a.Warnings, tierWarnings[tier]...)
	for _, kw := range keywordWarnings {
		if containsAll(normalized, kw.all) {
			a.Warnings = append(a.Warnings, kw.notice)
		}
	}

	return a
}

func match(rules []rule, command string) (rule, bool) {
	for _, r := range rules {
		if r.pattern.MatchString(command) {
			return r, true
		}
	}
	return rule{}, false
}

func containsAll(s string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}
