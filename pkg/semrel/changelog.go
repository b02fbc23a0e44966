package semrel

import (
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// changelog section order. Breaking changes surface first regardless of the
// record's own type.
var changelogSections = []struct {
	title string
	match func(CommitRecord) bool
}{
	{"Breaking Changes", func(r CommitRecord) bool { return r.IsBreaking }},
	{"Features", func(r CommitRecord) bool { return r.Type == TypeFeat }},
	{"Bug Fixes", func(r CommitRecord) bool { return r.Type == TypeFix }},
	{"Documentation", func(r CommitRecord) bool { return r.Type == TypeDocs }},
	{"Chores", func(r CommitRecord) bool { return r.Type == TypeChore }},
	{"Other", func(r CommitRecord) bool { return true }},
}

// Changelog renders the classified records grouped by type, preserving the
// original commit order within each group. The output is derived purely from
// the records, never re-parsed from disk. Each record appears in exactly one
// section, the first whose predicate matches.
func Changelog(version *semver.Version, date time.Time, records []CommitRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s (%s)\n", TagName(version), date.Format("2006-01-02"))

	used := make([]bool, len(records))
	for _, section := range changelogSections {
		var lines []string
		for i, r := range records {
			if used[i] || !section.match(r) {
				continue
			}
			used[i] = true
			lines = append(lines, changelogLine(r))
		}
		if len(lines) == 0 {
			continue
		}

		fmt.Fprintf(&b, "\n### %s\n\n", section.title)
		for _, line := range lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	return b.String()
}

func changelogLine(r CommitRecord) string {
	var b strings.Builder
	b.WriteString("- ")
	if r.Scope != "" {
		fmt.Fprintf(&b, "**%s**: ", r.Scope)
	}
	b.WriteString(r.Subject)
	if r.Hash != "" {
		fmt.Fprintf(&b, " (%s)", shortHash(r.Hash))
	}
	return b.String()
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
