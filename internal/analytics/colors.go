package analytics

// platformColors gives the dashboard a stable color per platform (§4.10:
// "Platform distribution ... including ... a stable color mapping"), so a
// platform never jumps color between renders as other platforms' counts
// shift its position in the response array.
var platformColors = map[string]string{
	"slack":            "#4A154B",
	"google_workspace": "#4285F4",
	"microsoft365":     "#00A4EF",
	"ai_platform":      "#10A37F",
}

const defaultPlatformColor = "#6B7280"

func colorFor(platform string) string {
	if c, ok := platformColors[platform]; ok {
		return c
	}
	return defaultPlatformColor
}
