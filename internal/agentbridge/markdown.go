package agentbridge

import (
	"regexp"
	"strings"
)

// Markdown table sanitiser modes.
const (
	MarkdownStrip       = "strip"
	MarkdownInline      = "inline"
	MarkdownPassthrough = "passthrough"
)

// tableRowPattern matches a GitHub-flavoured-markdown table row: a line
// whose first and last non-space characters are pipes.
var tableRowPattern = regexp.MustCompile(`(?m)^\s*\|.*\|\s*$`)

// tableSeparatorPattern matches a table's header separator row, e.g.
// "| --- | :--: |".
var tableSeparatorPattern = regexp.MustCompile(`^[\s|:-]+$`)

// mediaURLPattern matches an http(s) URL that points at a media file —
// something a voice peer cannot render and the bridge does not transport.
var mediaURLPattern = regexp.MustCompile(`https?://\S+\.(?:png|jpe?g|gif|webp|svg|mp3|mp4|wav|ogg|mov)\b`)

// sanitizeMarkdownTables rewrites any markdown tables in text per mode:
// "strip" drops table rows entirely, "inline" collapses each row into a
// comma-separated line of prose, and "passthrough" (or any unrecognised
// mode) leaves text untouched. Empty mode defaults to "inline".
func sanitizeMarkdownTables(text, mode string) string {
	switch mode {
	case MarkdownStrip:
		return rewriteTables(text, nil)
	case MarkdownInline, "":
		return rewriteTables(text, inlineTableBlock)
	default:
		return text
	}
}

// rewriteTables scans text for contiguous runs of table rows and replaces
// each run with the result of transform (or removes the run if transform is
// nil). Non-table lines pass through unchanged.
func rewriteTables(text string, transform func([]string) []string) string {
	lines := strings.Split(text, "\n")
	var out []string
	i := 0
	for i < len(lines) {
		if !tableRowPattern.MatchString(lines[i]) {
			out = append(out, lines[i])
			i++
			continue
		}
		start := i
		for i < len(lines) && tableRowPattern.MatchString(lines[i]) {
			i++
		}
		if transform != nil {
			out = append(out, transform(lines[start:i])...)
		}
	}
	return strings.Join(out, "\n")
}

// inlineTableBlock turns a contiguous run of table rows into one line of
// comma-separated prose per row, dropping the header separator row.
func inlineTableBlock(rows []string) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		cells := splitTableRow(row)
		if isHeaderSeparatorRow(cells) {
			continue
		}
		out = append(out, strings.Join(cells, ", "))
	}
	return out
}

func splitTableRow(row string) []string {
	row = strings.TrimSpace(row)
	row = strings.TrimPrefix(row, "|")
	row = strings.TrimSuffix(row, "|")
	parts := strings.Split(row, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isHeaderSeparatorRow(cells []string) bool {
	if len(cells) == 0 {
		return false
	}
	for _, c := range cells {
		if !tableSeparatorPattern.MatchString(c) {
			return false
		}
	}
	return true
}

// appendMediaNotices replaces any media URL in text with a bracketed notice,
// since the bridge has no transport for media to a voice peer.
func appendMediaNotices(text string) string {
	return mediaURLPattern.ReplaceAllStringFunc(text, func(url string) string {
		return "[media omitted: " + url + "]"
	})
}
