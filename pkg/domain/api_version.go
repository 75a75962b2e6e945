package domain

import (
	dErrors "fxsettle/pkg/domain-errors"
)

// APIVersion names a versioned route tree such as /v1.
type APIVersion string

const APIVersionV1 APIVersion = "v1"

// apiVersionRank orders the versions this build serves. A version missing
// from the map is unknown.
var apiVersionRank = map[APIVersion]int{
	APIVersionV1: 1,
}

// ParseAPIVersion accepts only versions this build serves.
func ParseAPIVersion(s string) (APIVersion, error) {
	v := APIVersion(s)
	if _, ok := apiVersionRank[v]; !ok {
		return "", dErrors.New(dErrors.CodeBadRequest, "unknown API version: "+s)
	}
	return v, nil
}

func (v APIVersion) String() string { return string(v) }

func (v APIVersion) IsNil() bool { return v == "" }

// IsAtLeast reports whether a route at version v can serve a client built
// against other. Unknown route versions serve nobody; unknown client versions
// are served by every known route.
func (v APIVersion) IsAtLeast(other APIVersion) bool {
	mine, ok := apiVersionRank[v]
	if !ok {
		return false
	}
	theirs, ok := apiVersionRank[other]
	if !ok {
		return true
	}
	return mine >= theirs
}
