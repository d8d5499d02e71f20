// Package header holds ordered header fields shared by HTTP requests,
// responses and CGI script output.
package header

import "strings"

// Field is a single "Key: Value" pair. Keys keep the case they were received with.
type Field struct {
	Key   string
	Value string
}

// Fields is an ordered list of header fields.
type Fields []Field

// ParseLine splits a header line on its first ':' and trims both sides.
// ok is false when the line has no ':' or the key is empty.
func ParseLine(line string) (key, value string, ok bool) {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) < 2 {
		return "", "", false
	}
	key = strings.TrimSpace(parts[0])
	value = strings.TrimSpace(parts[1])
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

// Get returns the value of the first field whose key matches key, ignoring case.
func (f Fields) Get(key string) (string, bool) {
	for _, kv := range f {
		if strings.EqualFold(kv.Key, key) {
			return kv.Value, true
		}
	}
	return "", false
}

// Add appends a field without touching existing ones.
func (f *Fields) Add(key, value string) {
	*f = append(*f, Field{Key: key, Value: value})
}

// Set replaces every field matching key (ignoring case) with a single field,
// keeping the position of the first match. A new key is appended.
func (f *Fields) Set(key, value string) {
	out := (*f)[:0]
	found := false
	for _, kv := range *f {
		if strings.EqualFold(kv.Key, key) {
			if found {
				continue
			}
			found = true
			kv = Field{Key: key, Value: value}
		}
		out = append(out, kv)
	}
	if !found {
		out = append(out, Field{Key: key, Value: value})
	}
	*f = out
}

// Del removes every field matching key, ignoring case.
func (f *Fields) Del(key string) {
	out := (*f)[:0]
	for _, kv := range *f {
		if !strings.EqualFold(kv.Key, key) {
			out = append(out, kv)
		}
	}
	*f = out
}
