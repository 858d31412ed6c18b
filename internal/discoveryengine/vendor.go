package discoveryengine

import (
	"regexp"
	"strings"
)

var (
	vendorSuffixPattern = regexp.MustCompile(`(?i)\s*(for [A-Za-z ]+|OAuth|API|App)\s*$`)
	genericPrefixes     = []string{"oauth app:"}
	numericOnlyPattern  = regexp.MustCompile(`^[0-9]+$`)
)

// ExtractVendorName implements §4.5's deterministic vendor-name extraction:
// strip a trailing descriptor suffix, strip a common TLD, trim, and take the
// first whitespace-delimited token. Returns "" when the result is too short
// or matches a generic/numeric-only prefix.
func ExtractVendorName(displayName string) string {
	name := vendorSuffixPattern.ReplaceAllString(displayName, "")
	for _, tld := range []string{".com", ".io", ".ai", ".net", ".org"} {
		name = strings.TrimSuffix(name, tld)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	lower := strings.ToLower(name)
	for _, prefix := range genericPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}
	if idx := strings.IndexAny(name, " \t"); idx >= 0 {
		name = name[:idx]
	}
	if len(name) < 3 {
		return ""
	}
	if numericOnlyPattern.MatchString(name) {
		return ""
	}
	return name
}

// VendorGroup implements §4.5's vendor_group derivation.
func VendorGroup(vendorName string, platform string) string {
	if vendorName == "" {
		return ""
	}
	return strings.ToLower(vendorName) + "-" + platform
}
