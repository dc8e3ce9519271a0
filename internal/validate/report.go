package validate

import (
	"fmt"
	"strings"
)

// noFilesMessage is the report for a package with no candidate binaries.
const noFilesMessage = "No files found to validate"

// aggregate derives the verdict and report from the final bucket contents.
// The verdict depends only on which buckets are non-empty after recovery,
// never on the order files were discovered in: missing symbols is the most
// severe outcome, then Source Link errors, then missing Source Link.
func aggregate(b *buckets, external bool) (Result, string) {
	if len(b.all) == 0 {
		return ResultNothingToValidate, noFilesMessage
	}

	if len(b.noSourceLink) == 0 && len(b.linkErrors) == 0 && len(b.noSymbols) == 0 {
		if external {
			return ResultValidExternal, ""
		}
		return ResultValid, ""
	}

	// The report lists every contributing category, not just the one that
	// decides the verdict.
	var sections []string

	if len(b.noSourceLink) > 0 {
		var sb strings.Builder
		sb.WriteString("Missing Source Link for:\n")
		for _, tf := range b.noSourceLink {
			fmt.Fprintf(&sb, "\t%s\n", tf.file.Path())
		}
		sections = append(sections, sb.String())
	}

	if len(b.linkErrors) > 0 {
		var sb strings.Builder
		for _, issue := range b.linkErrors {
			fmt.Fprintf(&sb, "Source Link errors for %s:\n", issue.file.file.Path())
			for _, e := range issue.errors {
				fmt.Fprintf(&sb, "\t%s\n", e)
			}
		}
		sections = append(sections, sb.String())
	}

	if len(b.noSymbols) > 0 {
		var sb strings.Builder
		sb.WriteString("Missing Symbols for:\n")
		for _, tf := range b.missing() {
			fmt.Fprintf(&sb, "\t%s\n", tf.file.Path())
		}
		sections = append(sections, sb.String())
	}

	result := ResultNoSourceLink
	if len(b.linkErrors) > 0 {
		result = ResultInvalidSourceLink
	}
	if len(b.noSymbols) > 0 {
		result = ResultNoSymbols
	}

	return result, strings.TrimRight(strings.Join(sections, "\n"), "\n")
}
