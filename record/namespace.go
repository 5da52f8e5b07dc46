package record

import (
	"strings"

	"github.com/aminokad/kaddht/dhterr"
)

// NamespacedValidator dispatches Validate/Select to a sub-validator keyed by
// a key's first path component ("/pk/...", "/ipns/...", "/v/..."), per
// spec.md §4.3. It is a registry, not an inheritance hierarchy (spec.md §9
// design note): callers register concrete Validator implementations under a
// namespace string.
type NamespacedValidator map[string]Validator

// Namespace extracts the first path component of key ("/ns/rest" -> "ns").
// Keys not starting with '/' or with no second component are malformed.
func Namespace(key string) (ns string, rest string, ok bool) {
	if len(key) == 0 || key[0] != '/' {
		return "", "", false
	}
	trimmed := key[1:]
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (n NamespacedValidator) Validate(key string, value []byte) error {
	ns, _, ok := Namespace(key)
	if !ok {
		return dhterr.New("record", dhterr.CodeInvalidRecordType, "malformed key %q", key)
	}
	v, ok := n[ns]
	if !ok {
		return dhterr.New("record", dhterr.CodeInvalidRecordType, "unknown namespace %q", ns)
	}
	return v.Validate(key, value)
}

func (n NamespacedValidator) Select(key string, values [][]byte) (int, error) {
	ns, _, ok := Namespace(key)
	if !ok {
		return 0, dhterr.New("record", dhterr.CodeInvalidRecordType, "malformed key %q", key)
	}
	v, ok := n[ns]
	if !ok {
		return 0, dhterr.New("record", dhterr.CodeInvalidRecordType, "unknown namespace %q", ns)
	}
	return v.Select(key, values)
}
