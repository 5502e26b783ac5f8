package roscmd

import "testing"

func TestQuote(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"plain word", "ether1", "ether1"},
		{"empty", "", `""`},
		{"embedded space", "guest network", `"guest network"`},
		{"embedded quote", `say "hi"`, `"say \"hi\""`},
		{"embedded backslash", `a\b`, `"a\\b"`},
		{"equals sign", "a=b", `"a=b"`},
		{"dollar", "cost$", `"cost\$"`},
		{"cidr untouched", "10.0.0.0/24", "10.0.0.0/24"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Quote(tt.value); got != tt.want {
				t.Errorf("Quote(%q) = %s, want %s", tt.value, got, tt.want)
			}
		})
	}
}

func TestFormatValue(t *testing.T) {
	if got := FormatValue(true); got != "yes" {
		t.Errorf("FormatValue(true) = %s, want yes", got)
	}
	if got := FormatValue(false); got != "no" {
		t.Errorf("FormatValue(false) = %s, want no", got)
	}
	if got := FormatValue(int64(443)); got != "443" {
		t.Errorf("FormatValue(443) = %s, want 443", got)
	}
	if got := FormatValue(0.5); got != "0.5" {
		t.Errorf("FormatValue(0.5) = %s, want 0.5", got)
	}
	if got := FormatValue([]string{"a", "b"}); got != `"a,b"` {
		t.Errorf(`FormatValue([a b]) = %s, want "a,b"`, got)
	}
}

func TestAdd_DeterministicOrder(t *testing.T) {
	props := map[string]any{
		"chain":    "input",
		"action":   "accept",
		"protocol": "tcp",
		"dst-port": int64(22),
	}

	want := "/ip firewall filter add action=accept chain=input dst-port=22 protocol=tcp"
	for i := 0; i < 10; i++ {
		if got := Add("/ip firewall filter", props); got != want {
			t.Fatalf("Add() = %q, want %q", got, want)
		}
	}
}

func TestRemove(t *testing.T) {
	got := Remove("/ip route", map[string]any{"dst-address": "0.0.0.0/0", "gateway": "10.0.0.1"})
	want := "/ip route remove [find dst-address=0.0.0.0/0 gateway=10.0.0.1]"
	if got != want {
		t.Errorf("Remove() = %q, want %q", got, want)
	}
}

func TestPrint(t *testing.T) {
	if got := Print("/interface", nil); got != "/interface print detail" {
		t.Errorf("Print() = %q", got)
	}
	got := Print("/ip address", map[string]any{"interface": "ether1"})
	want := "/ip address print detail where interface=ether1"
	if got != want {
		t.Errorf("Print() = %q, want %q", got, want)
	}
}

func TestAdd_QuotesHostileValues(t *testing.T) {
	got := Add("/ip firewall address-list", map[string]any{
		"list":    "blocked",
		"comment": `added by "ops"; review`,
	})
	want := `/ip firewall address-list add comment="added by \"ops\"; review" list=blocked`
	if got != want {
		t.Errorf("Add() = %q, want %q", got, want)
	}
}
