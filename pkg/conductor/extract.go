package conductor

import "strings"

// ExtractResponse isolates a participant's actual reply from the full
// streamed text. Providers frequently echo the "<participant>:" prefix (and
// sometimes the whole dialogue so far), so everything after the last
// occurrence of the marker is taken; with no marker present the text is
// returned unmodified. Provider output format is not guaranteed, hence the
// leniency.
func ExtractResponse(full string, participant string) string {
	marker := participant + ":"

	if idx := strings.LastIndex(full, marker); idx >= 0 {
		return strings.TrimSpace(full[idx+len(marker):])
	}

	if parts := strings.SplitN(full, marker, 2); len(parts) > 1 {
		return strings.TrimSpace(parts[1])
	}

	return strings.TrimSpace(full)
}
