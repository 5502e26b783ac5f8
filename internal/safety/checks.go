package safety

import (
	"time"
)

// check is one pre-flight probe. Required checks veto the change when they
// fail; optional ones only annotate the record.
type check struct {
	name     string
	required bool
	probe    func(r Runner) error
}

// readProbe builds a probe that runs a read-only command, bypassing the
// cache, and fails on any error
func readProbe(command string) func(Runner) error {
	return func(r Runner) error {
		_, err := r.ExecuteFresh(command)
		return err
	}
}

var baseChecks = []check{
	{name: "device-reachable", required: true, probe: readProbe("/system identity print")},
	{name: "resources-readable", required: true, probe: readProbe("/system resource print")},
	{name: "clock-sane", required: false, probe: readProbe("/system clock print")},
}

var categoryChecks = map[string][]check{
	CategoryFirewall: {
		{name: "filter-table-readable", required: true, probe: readProbe("/ip firewall filter print detail")},
	},
	CategoryRouting: {
		{name: "route-table-readable", required: true, probe: readProbe("/ip route print detail")},
	},
	CategoryInterface: {
		{name: "interfaces-readable", required: true, probe: readProbe("/interface print detail")},
	},
	CategoryUser: {
		{name: "users-readable", required: true, probe: readProbe("/user print detail")},
	},
	CategorySystem: {
		{name: "packages-readable", required: false, probe: readProbe("/system package print")},
	},
	CategoryDHCP: {
		{name: "dhcp-servers-readable", required: true, probe: readProbe("/ip dhcp-server print detail")},
	},
	CategoryDNS: {
		{name: "dns-readable", required: true, probe: readProbe("/ip dns print")},
	},
}

// checksFor returns the base probes plus the category-specific ones
func checksFor(category string) []check {
	checks := make([]check, 0, len(baseChecks)+2)
	checks = append(checks, baseChecks...)
	checks = append(checks, categoryChecks[category]...)
	return checks
}

// runChecks executes every probe, timing each, and reports whether all
// required ones passed. It never stops early: the full check list in the
// record is worth more than a fast failure.
func runChecks(runner Runner, category string) ([]CheckResult, bool) {
	var results []CheckResult
	ok := true

	for _, c := range checksFor(category) {
		start := time.Now()
		err := c.probe(runner)
		result := CheckResult{
			Name:     c.name,
			Required: c.required,
			Passed:   err == nil,
			Duration: time.Since(start),
		}
		if err != nil {
			result.Detail = err.Error()
			if c.required {
				ok = false
			}
		}
		results = append(results, result)
	}

	return results, ok
}
