package discoveryengine

import "testing"

func TestExtractVendorName(t *testing.T) {
	cases := []struct {
		name    string
		display string
		want    string
	}{
		{"strips trailing OAuth suffix", "Zapier OAuth", "Zapier"},
		{"strips trailing TLD", "hubspot.com", "hubspot"},
		{"strips generic oauth app prefix", "OAuth App: 12345", ""},
		{"rejects numeric-only name", "98765", ""},
		{"rejects names shorter than 3 chars", "Go For It", ""},
		{"takes first token of multi-word name", "Acme Workflow Automation", "Acme"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ExtractVendorName(c.display); got != c.want {
				t.Errorf("ExtractVendorName(%q) = %q, want %q", c.display, got, c.want)
			}
		})
	}
}

func TestVendorGroup(t *testing.T) {
	if got := VendorGroup("Acme", "slack"); got != "acme-slack" {
		t.Errorf("VendorGroup() = %q, want %q", got, "acme-slack")
	}
	if got := VendorGroup("", "slack"); got != "" {
		t.Errorf("VendorGroup() with empty vendor name = %q, want empty", got)
	}
}
