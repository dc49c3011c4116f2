package overrides

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Pair is a single dotted-key override.
type Pair struct {
	// Key is the dot-separated option path, e.g. "AGENT.IG_PLANNER.utility_exp".
	Key string

	// Value is the typed value, parsed as a YAML scalar or flow node.
	Value any

	// Raw is the literal value text as supplied, preserved so the pair
	// can be passed through to the child exactly as written.
	Raw string
}

// String renders the pair in KEY=value form.
func (p Pair) String() string {
	return p.Key + "=" + p.Raw
}

// Set is an ordered collection of override pairs. Order matters: when a
// key appears more than once, the later pair wins during Apply.
type Set struct {
	pairs []Pair
}

// NewSet returns an empty override set.
func NewSet() *Set {
	return &Set{}
}

// Parse parses a single KEY=value pair. The value is typed via YAML
// scalar rules, so 48 becomes an int, 1.5 a float, true a bool, and
// anything else a string.
func Parse(s string) (Pair, error) {
	key, raw, ok := strings.Cut(s, "=")
	if !ok {
		return Pair{}, fmt.Errorf("override %q is not in KEY=value form", s)
	}
	key = strings.TrimSpace(key)
	if err := validateKey(key); err != nil {
		return Pair{}, err
	}

	return Pair{Key: key, Value: parseValue(raw), Raw: raw}, nil
}

// NewPair builds a pair from an already-typed value, rendering its
// literal form for child passthrough.
func NewPair(key string, value any) (Pair, error) {
	if err := validateKey(key); err != nil {
		return Pair{}, err
	}
	return Pair{Key: key, Value: value, Raw: formatValue(value)}, nil
}

// ParseList parses a comma-joined override list, the form the trainer's
// --options flag takes.
func ParseList(s string) (*Set, error) {
	set := NewSet()
	if strings.TrimSpace(s) == "" {
		return set, nil
	}
	for _, part := range strings.Split(s, ",") {
		pair, err := Parse(part)
		if err != nil {
			return nil, err
		}
		set.Add(pair)
	}
	return set, nil
}

// ParseArgs parses each argument as one KEY=value pair, the form the
// evaluator's trailing positionals take.
func ParseArgs(args []string) (*Set, error) {
	set := NewSet()
	for _, arg := range args {
		pair, err := Parse(arg)
		if err != nil {
			return nil, err
		}
		set.Add(pair)
	}
	return set, nil
}

// FromMap builds a set from a manifest options map. Keys may be dotted;
// nested maps contribute their leaves under dotted paths. Entries are
// sorted by key so manifest-sourced sets are deterministic.
func FromMap(m map[string]any) (*Set, error) {
	set := NewSet()
	if err := addMap(set, "", m); err != nil {
		return nil, err
	}
	return set, nil
}

func addMap(set *Set, prefix string, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if err := validateKey(key); err != nil {
			return err
		}
		if sub, ok := m[k].(map[string]any); ok {
			if err := addMap(set, key, sub); err != nil {
				return err
			}
			continue
		}
		v := m[k]
		set.Add(Pair{Key: key, Value: v, Raw: formatValue(v)})
	}
	return nil
}

// Add appends a pair to the set.
func (s *Set) Add(p Pair) {
	s.pairs = append(s.pairs, p)
}

// Merge appends all pairs from other, so other's values win on shared
// keys when the set is applied.
func (s *Set) Merge(other *Set) {
	if other == nil {
		return
	}
	s.pairs = append(s.pairs, other.pairs...)
}

// Pairs returns the pairs in order.
func (s *Set) Pairs() []Pair {
	return s.pairs
}

// Len returns the number of pairs.
func (s *Set) Len() int {
	return len(s.pairs)
}

// Get returns the effective (last) value for a key.
func (s *Set) Get(key string) (any, bool) {
	for i := len(s.pairs) - 1; i >= 0; i-- {
		if s.pairs[i].Key == key {
			return s.pairs[i].Value, true
		}
	}
	return nil, false
}

// OptionsArg serializes the set into the comma-joined form the trainer's
// --options flag expects, preserving pair order and literal values.
func (s *Set) OptionsArg() string {
	parts := make([]string, len(s.pairs))
	for i, p := range s.pairs {
		parts[i] = p.String()
	}
	return strings.Join(parts, ",")
}

// Args serializes the set into one KEY=value argument per pair, the form
// the evaluator's trailing positionals expect.
func (s *Set) Args() []string {
	args := make([]string, len(s.pairs))
	for i, p := range s.pairs {
		args[i] = p.String()
	}
	return args
}

// Apply writes every pair into the nested option tree, creating
// intermediate maps as needed. Descending through an existing scalar is
// an error. Later pairs overwrite earlier values.
func (s *Set) Apply(tree map[string]any) error {
	for _, p := range s.pairs {
		if err := applyPair(tree, p); err != nil {
			return err
		}
	}
	return nil
}

// Tree builds a fresh nested option tree from the set.
func (s *Set) Tree() (map[string]any, error) {
	tree := make(map[string]any)
	if err := s.Apply(tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func applyPair(tree map[string]any, p Pair) error {
	segments := strings.Split(p.Key, ".")
	node := tree

	for i, seg := range segments[:len(segments)-1] {
		child, ok := node[seg]
		if !ok {
			next := make(map[string]any)
			node[seg] = next
			node = next
			continue
		}
		childMap, ok := child.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot set %q: %q is not a section", p.Key, strings.Join(segments[:i+1], "."))
		}
		node = childMap
	}

	node[segments[len(segments)-1]] = p.Value
	return nil
}

// Lookup returns the value at a dotted path in an option tree.
func Lookup(tree map[string]any, key string) (any, bool) {
	node := any(tree)
	for _, seg := range strings.Split(key, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// DumpYAML renders an option tree as YAML, suitable for the per-run
// options snapshot.
func DumpYAML(tree map[string]any) ([]byte, error) {
	return yaml.Marshal(tree)
}

// LoadYAML parses a YAML document into an option tree.
func LoadYAML(data []byte) (map[string]any, error) {
	tree := make(map[string]any)
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to parse options: %w", err)
	}
	return tree, nil
}

// DecodeSubtree decodes the tree node at a dotted path into a typed
// struct. Missing paths leave the struct untouched.
func DecodeSubtree(tree map[string]any, path string, out any) error {
	node := any(tree)
	if path != "" {
		var ok bool
		node, ok = Lookup(tree, path)
		if !ok {
			return nil
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(node); err != nil {
		return fmt.Errorf("invalid options under %q: %w", path, err)
	}
	return nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("override key cannot be empty")
	}
	if strings.ContainsAny(key, " \t") {
		return fmt.Errorf("override key %q contains whitespace", key)
	}
	for _, seg := range strings.Split(key, ".") {
		if seg == "" {
			return fmt.Errorf("override key %q has an empty path segment", key)
		}
	}
	return nil
}

// parseValue types a raw value using YAML scalar rules. Invalid YAML
// (an unclosed flow list, say) falls back to the raw string, matching
// how loosely the child programs treat these values.
func parseValue(raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	if v == nil && strings.TrimSpace(raw) != "" && strings.TrimSpace(raw) != "null" && strings.TrimSpace(raw) != "~" {
		return raw
	}
	return v
}

// formatValue renders a typed value back into literal text.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	default:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", v)
	}
}
