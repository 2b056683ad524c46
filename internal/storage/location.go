// Package storage unifies reads and writes across the local filesystem,
// HTTP(S) URLs and object storage buckets. A path is parsed once into a
// Location and then dispatched to the Backend registered for its kind.
package storage

import (
	"fmt"
	"strings"
)

// LocationKind tags which backend serves a Location.
type LocationKind int

// Location kinds in dispatch priority order.
const (
	LocationObject LocationKind = iota + 1
	LocationHTTP
	LocationLocal
)

func (k LocationKind) String() string {
	switch k {
	case LocationObject:
		return "object"
	case LocationHTTP:
		return "http"
	case LocationLocal:
		return "local"
	default:
		return "unknown"
	}
}

// ObjectSchemes lists the URI schemes treated as object storage.
var ObjectSchemes = []string{"s3", "gs", "memory"}

// Location is a parsed storage path.
type Location struct {
	Kind   LocationKind
	Raw    string
	Scheme string
	Bucket string
	Key    string
}

// ParseLocation classifies raw. Object storage prefixes win over HTTP(S),
// and anything else is a local filesystem path.
func ParseLocation(raw string) (Location, error) {
	if strings.TrimSpace(raw) == "" {
		return Location{}, fmt.Errorf("path is required")
	}
	for _, scheme := range ObjectSchemes {
		prefix := scheme + "://"
		if !strings.HasPrefix(raw, prefix) {
			continue
		}
		// Keys are taken literally; "%" is a legal key character.
		bucket, key, _ := strings.Cut(strings.TrimPrefix(raw, prefix), "/")
		if bucket == "" {
			return Location{}, fmt.Errorf("object path %q has no bucket", raw)
		}
		return Location{Kind: LocationObject, Raw: raw, Scheme: scheme, Bucket: bucket, Key: key}, nil
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		scheme, _, _ := strings.Cut(raw, "://")
		return Location{Kind: LocationHTTP, Raw: raw, Scheme: scheme}, nil
	}
	return Location{Kind: LocationLocal, Raw: raw, Key: raw}, nil
}

// String returns the original path.
func (l Location) String() string {
	return l.Raw
}

// Join appends path elements to a storage path using "/" separators. It is
// used to build target paths that may be local or remote.
func Join(base string, elems ...string) string {
	out := strings.TrimRight(base, "/")
	for _, e := range elems {
		e = strings.Trim(e, "/")
		if e == "" {
			continue
		}
		out += "/" + e
	}
	return out
}
