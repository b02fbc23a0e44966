package semrel

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
)

// Bump is the version increment implied by a set of commits.
type Bump int

// Bump levels, lowest to highest.
const (
	BumpNone Bump = iota
	BumpPatch
	BumpMinor
	BumpMajor
)

func (b Bump) String() string {
	switch b {
	case BumpPatch:
		return "patch"
	case BumpMinor:
		return "minor"
	case BumpMajor:
		return "major"
	default:
		return "none"
	}
}

// ParseBump converts an explicit CLI level into a Bump.
func ParseBump(s string) (Bump, error) {
	switch strings.ToLower(s) {
	case "patch":
		return BumpPatch, nil
	case "minor":
		return BumpMinor, nil
	case "major":
		return BumpMajor, nil
	default:
		return BumpNone, errors.Errorf("unknown bump level %q", s)
	}
}

// ErrVersionCompute reports a malformed existing version tag. It is fatal and
// aborts a release before any mutation.
var ErrVersionCompute = errors.New("cannot compute next version")

// ErrNothingToRelease reports an empty commit range since the last tag.
// It is a condition to report, not a failure.
var ErrNothingToRelease = errors.New("nothing to release")

// ComputeBump folds classified records into one bump level. Precedence is
// fixed and independent of commit counts: any breaking record wins, then any
// feat, then any other substantive record; a range of documentation and
// housekeeping commits only yields no bump at all.
func ComputeBump(records []CommitRecord) Bump {
	bump := BumpNone
	for _, r := range records {
		switch {
		case r.IsBreaking:
			return BumpMajor
		case r.Type == TypeFeat && bump < BumpMinor:
			bump = BumpMinor
		case r.substantive() && bump < BumpPatch:
			bump = BumpPatch
		}
	}
	return bump
}

// ParseVersion parses a release tag into a version, accepting both "v1.2.3"
// and "1.2.3" forms. A malformed tag is an ErrVersionCompute.
func ParseVersion(tag string) (*semver.Version, error) {
	v, err := semver.NewVersion(strings.TrimPrefix(tag, "v"))
	if err != nil {
		return nil, errors.Wrapf(ErrVersionCompute, "malformed version tag %q: %v", tag, err)
	}
	return v, nil
}

// Next computes the version after applying bump to current. The result is
// guaranteed to be strictly greater than current; BumpNone is the caller's
// signal to skip the tag step and is rejected here.
func Next(current *semver.Version, bump Bump) (*semver.Version, error) {
	if current == nil {
		return nil, errors.Wrap(ErrVersionCompute, "no current version")
	}

	var next semver.Version
	switch bump {
	case BumpMajor:
		next = current.IncMajor()
	case BumpMinor:
		next = current.IncMinor()
	case BumpPatch:
		next = current.IncPatch()
	default:
		return nil, errors.Wrap(ErrNothingToRelease, "no bump to apply")
	}

	if !next.GreaterThan(current) {
		return nil, errors.Wrapf(ErrVersionCompute, "computed version %s does not exceed %s", next.String(), current.String())
	}

	return &next, nil
}

// TagName renders a version as a release tag.
func TagName(v *semver.Version) string {
	return "v" + v.String()
}
