// Package semrel turns conventional commit history into a semantic version
// decision and a changelog. Classification and bump computation are pure
// functions over commit messages; nothing here touches the repository.
package semrel

import "strings"

// Type is the semantic category of one commit.
type Type string

// Commit types recognized by the classifier. Everything else is TypeOther.
const (
	TypeFeat     Type = "feat"
	TypeFix      Type = "fix"
	TypeDocs     Type = "docs"
	TypeChore    Type = "chore"
	TypeBreaking Type = "breaking"
	TypeOther    Type = "other"
)

// Commit is one raw commit as read from the VCS.
type Commit struct {
	Hash    string
	Message string
}

// CommitRecord is one classified commit.
type CommitRecord struct {
	Hash       string
	Type       Type
	Scope      string
	Subject    string
	IsBreaking bool
}

// Footers that flag a breaking change regardless of the commit type.
var breakingFooters = []string{"BREAKING CHANGE:", "BREAKING-CHANGE:"}

// Classify parses each commit message into a structured record. It never
// fails: a message that does not follow the conventional format becomes a
// TypeOther record with the whole first line as its subject.
func Classify(commits []Commit) []CommitRecord {
	records := make([]CommitRecord, 0, len(commits))
	for _, c := range commits {
		records = append(records, classifyOne(c))
	}
	return records
}

func classifyOne(c Commit) CommitRecord {
	header, body, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
	header = strings.TrimSpace(header)

	record := CommitRecord{
		Hash:    c.Hash,
		Type:    TypeOther,
		Subject: header,
	}

	prefix, subject, found := strings.Cut(header, ":")
	if found && prefix != "" && !strings.ContainsAny(prefix, " \t") {
		if strings.HasSuffix(prefix, "!") {
			record.IsBreaking = true
			prefix = strings.TrimSuffix(prefix, "!")
		}

		if open := strings.Index(prefix, "("); open >= 0 && strings.HasSuffix(prefix, ")") {
			record.Scope = prefix[open+1 : len(prefix)-1]
			prefix = prefix[:open]
		}

		record.Type = typeFromToken(prefix)
		record.Subject = strings.TrimSpace(subject)
		if record.Type == TypeBreaking {
			record.IsBreaking = true
		}
	}

	if hasBreakingFooter(body) {
		record.IsBreaking = true
	}

	return record
}

func typeFromToken(token string) Type {
	switch Type(strings.ToLower(token)) {
	case TypeFeat, TypeFix, TypeDocs, TypeChore, TypeBreaking:
		return Type(strings.ToLower(token))
	default:
		return TypeOther
	}
}

func hasBreakingFooter(body string) bool {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		for _, footer := range breakingFooters {
			if strings.HasPrefix(line, footer) {
				return true
			}
		}
	}
	return false
}

// substantive reports whether the record justifies a release on its own.
// Documentation-only and housekeeping commits do not.
func (r CommitRecord) substantive() bool {
	switch r.Type {
	case TypeDocs, TypeChore:
		return false
	default:
		return true
	}
}
