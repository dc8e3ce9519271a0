package dbg

import (
	"encoding/json"
	"fmt"
	"strings"
)

// sourceLinkDocument is the JSON shape of a Source Link blob.
type sourceLinkDocument struct {
	Documents map[string]string `json:"documents"`
}

// validateSourceLink checks a Source Link JSON blob and returns a list of
// problems. An empty slice means the document is usable for source
// retrieval.
func validateSourceLink(data []byte) []string {
	var doc sourceLinkDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return []string{fmt.Sprintf("invalid Source Link JSON: %v", err)}
	}

	if len(doc.Documents) == 0 {
		return []string{"Source Link document contains no document mappings"}
	}

	var errs []string
	for pattern, target := range doc.Documents {
		if strings.Count(pattern, "*") > 1 {
			errs = append(errs, fmt.Sprintf("document pattern %q has more than one wildcard", pattern))
			continue
		}
		if strings.Count(pattern, "*") != strings.Count(target, "*") {
			errs = append(errs, fmt.Sprintf("document pattern %q and URL %q have mismatched wildcards", pattern, target))
			continue
		}
		if !strings.HasPrefix(target, "https://") && !strings.HasPrefix(target, "http://") {
			errs = append(errs, fmt.Sprintf("document URL %q is not an HTTP(S) URL", target))
		}
	}
	return errs
}
