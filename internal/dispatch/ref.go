package dispatch

import (
	"fmt"
	"strings"
)

// Ref is a parsed reusable workflow reference of the form
// owner/repo/path@version. The version pin is mandatory: an unpinned
// reference would silently float and is rejected at validate time.
type Ref struct {
	Owner   string
	Repo    string
	Path    string
	Version string
}

// ParseRef parses a `uses` reference.
func ParseRef(s string) (Ref, error) {
	base, version, found := strings.Cut(s, "@")
	if !found || version == "" {
		return Ref{}, fmt.Errorf("uses reference %q is missing a version pin", s)
	}
	if strings.Contains(version, "@") {
		return Ref{}, fmt.Errorf("uses reference %q has more than one version pin", s)
	}

	parts := strings.SplitN(base, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Ref{}, fmt.Errorf("uses reference %q is not of the form owner/repo/path@version", s)
	}

	return Ref{
		Owner:   parts[0],
		Repo:    parts[1],
		Path:    parts[2],
		Version: version,
	}, nil
}

// String reassembles the canonical reference form.
func (r Ref) String() string {
	return fmt.Sprintf("%s/%s/%s@%s", r.Owner, r.Repo, r.Path, r.Version)
}
