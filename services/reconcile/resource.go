package reconcile

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ShadowAlejo/parqueadero/models"
)

var errEmptyRef = errors.New("empty resource reference")

// ResourceKey resolves a reservation's space reference into the canonical
// space key (the space document ID). The primary field wins whenever it
// resolves; the legacy field is consulted otherwise. collection is the space
// collection name; paths naming another collection are rejected.
func ResourceKey(primary, legacy interface{}, collection string) (string, error) {
	key, perr := resolveRef(primary, collection)
	if perr == nil {
		return key, nil
	}
	key, lerr := resolveRef(legacy, collection)
	if lerr == nil {
		return key, nil
	}
	cause := perr
	if errors.Is(perr, errEmptyRef) {
		cause = lerr
	}
	return "", &UnresolvableRefError{Value: describeRef(primary, legacy), Err: cause}
}

func resolveRef(v interface{}, collection string) (string, error) {
	switch ref := v.(type) {
	case nil:
		return "", errEmptyRef
	case models.ResourceRef:
		return resolveStructured(ref, collection)
	case *models.ResourceRef:
		if ref == nil {
			return "", errEmptyRef
		}
		return resolveStructured(*ref, collection)
	case string:
		return resolvePath(ref, collection)
	default:
		return "", fmt.Errorf("unsupported reference type %T", v)
	}
}

func resolveStructured(ref models.ResourceRef, collection string) (string, error) {
	if ref.Collection != "" && collection != "" && ref.Collection != collection {
		return "", fmt.Errorf("reference points at collection %q", ref.Collection)
	}
	if strings.TrimSpace(ref.ID) == "" {
		return "", errEmptyRef
	}
	if strings.Contains(ref.ID, "/") {
		return resolvePath(ref.ID, collection)
	}
	return ref.ID, nil
}

// resolvePath accepts "abc", "espacios/abc", "/espacios/abc" and fully
// qualified "projects/p/databases/d/documents/espacios/abc" paths.
func resolvePath(raw, collection string) (string, error) {
	s := strings.Trim(strings.TrimSpace(raw), "/")
	if s == "" {
		return "", errEmptyRef
	}
	segs := strings.Split(s, "/")
	for _, seg := range segs {
		if seg == "" {
			return "", fmt.Errorf("malformed path %q", raw)
		}
	}
	if len(segs) == 1 {
		return segs[0], nil
	}
	if segs[0] == "projects" {
		for i, seg := range segs {
			if seg == "documents" && i+1 < len(segs) {
				segs = segs[i+1:]
				break
			}
		}
	}
	if len(segs)%2 != 0 {
		return "", fmt.Errorf("path %q does not name a document", raw)
	}
	if parent := segs[len(segs)-2]; collection != "" && parent != collection {
		return "", fmt.Errorf("path %q points at collection %q", raw, parent)
	}
	return segs[len(segs)-1], nil
}

func describeRef(primary, legacy interface{}) string {
	if primary != nil {
		return fmt.Sprintf("%v", primary)
	}
	return fmt.Sprintf("%v", legacy)
}

// KeySet is an unordered, deduplicated set of space keys.
type KeySet map[string]struct{}

// Add inserts key, ignoring empty keys.
func (s KeySet) Add(key string) {
	if key != "" {
		s[key] = struct{}{}
	}
}

// Merge adds every key of other.
func (s KeySet) Merge(other KeySet) {
	for k := range other {
		s[k] = struct{}{}
	}
}

// Sorted returns the keys in lexical order.
func (s KeySet) Sorted() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
