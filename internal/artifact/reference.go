// Package artifact is the versioned artifact store used by the stage: a SQLite
// registry of names, versions, aliases, runs and lineage in front of a blob
// backend holding the file contents.
package artifact

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rentalpipeline/basiccleaning/internal/errhandling"
	"github.com/rentalpipeline/basiccleaning/internal/pathutil"
)

// DefaultAlias is resolved when a reference names no version or alias, and is
// moved to every newly committed version.
const DefaultAlias = "latest"

// ErrArtifactNotFound is returned when a reference resolves to no committed version.
var ErrArtifactNotFound = fmt.Errorf("artifact %w", errhandling.ErrNotFound)

// Ref identifies an artifact version: either an explicit version number or an alias.
type Ref struct {
	Name    string
	Version int
	Alias   string
}

// ParseRef parses "name", "name:vN" or "name:alias".
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, fmt.Errorf("artifact reference cannot be empty")
	}

	name, qualifier, hasQualifier := strings.Cut(s, ":")
	if err := pathutil.ValidateArtifactName(name); err != nil {
		return Ref{}, err
	}
	ref := Ref{Name: name}

	switch {
	case !hasQualifier:
		ref.Alias = DefaultAlias
	case qualifier == "":
		return Ref{}, fmt.Errorf("artifact reference %q has an empty version", s)
	case isVersion(qualifier):
		n, err := strconv.Atoi(qualifier[1:])
		if err != nil || n < 1 {
			return Ref{}, fmt.Errorf("artifact reference %q has an invalid version", s)
		}
		ref.Version = n
	default:
		if err := validateAlias(qualifier); err != nil {
			return Ref{}, fmt.Errorf("artifact reference %q: %w", s, err)
		}
		ref.Alias = qualifier
	}
	return ref, nil
}

// String renders the reference in the form ParseRef accepts.
func (r Ref) String() string {
	if r.Version > 0 {
		return fmt.Sprintf("%s:v%d", r.Name, r.Version)
	}
	if r.Alias == "" {
		return r.Name
	}
	return r.Name + ":" + r.Alias
}

func isVersion(q string) bool {
	if len(q) < 2 || q[0] != 'v' {
		return false
	}
	for _, r := range q[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validateAlias(alias string) error {
	for _, r := range alias {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == '.') {
			return fmt.Errorf("invalid alias %q", alias)
		}
	}
	return nil
}

// BlobKey is where the file of a given version is stored.
func BlobKey(name string, version int, fileName string) string {
	return fmt.Sprintf("%s/v%d/%s", name, version, fileName)
}
