package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/knadh/koanf/v2"
)

// ErrMarshalNotSupported is returned by the property parser's Marshal.
var ErrMarshalNotSupported = errors.New("config: marshalling to properties is not supported")

type propertiesParser struct{}

// PropertiesParser returns a koanf parser for the legacy key=value format:
//
//	blacklist.classes=org.slf4j,com.google
//	startpoint.methods=<demo.Main: void serve()>;<demo.Main: void serve$pilot()>
//	fastforward.targets=demo.Queue#take
//
// Lines starting with '#' or '!' are comments and a trailing backslash
// continues a value on the next line. List keys are split on commas, except
// startpoint.methods, which is split on semicolons because signatures
// contain commas.
func PropertiesParser() koanf.Parser { return propertiesParser{} }

func (propertiesParser) Unmarshal(b []byte) (map[string]any, error) {
	flat := make(map[string]any)
	sc := bufio.NewScanner(bytes.NewReader(b))
	var pending string
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if pending == "" && (text == "" || text[0] == '#' || text[0] == '!') {
			continue
		}
		if strings.HasSuffix(text, `\`) {
			pending += strings.TrimSuffix(text, `\`)
			continue
		}
		text = pending + text
		pending = ""

		i := strings.IndexAny(text, "=:")
		if i < 0 {
			return nil, fmt.Errorf("properties line %d: missing '=' in %q", line, text)
		}
		key := strings.TrimSpace(text[:i])
		flat[key] = normalize(key, strings.TrimSpace(text[i+1:]))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if pending != "" {
		key, value, _ := strings.Cut(pending, "=")
		flat[strings.TrimSpace(key)] = normalize(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	return unflatten(flat), nil
}

func (propertiesParser) Marshal(map[string]any) ([]byte, error) {
	return nil, ErrMarshalNotSupported
}

// normalize converts a flat string value into the shape the Config struct
// expects for key.
func normalize(key, value string) any {
	switch key {
	case "startpoint.methods":
		return splitList(value, ";")
	case "blacklist.classes", "whitelist.classes", "manual.ignore.classes", "fastforward.shadow_fields":
		return splitList(value, ",")
	case "fastforward.targets":
		return pairs(splitList(value, ","), "method")
	case "fastforward.field_reads":
		return pairs(splitList(value, ","), "field")
	}
	return value
}

func splitList(s, sep string) []any {
	var out []any
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// pairs turns "Class#member" entries into {class, <member>} maps.
func pairs(items []any, member string) []any {
	out := make([]any, 0, len(items))
	for _, it := range items {
		class, name, _ := strings.Cut(it.(string), "#")
		out = append(out, map[string]any{"class": class, member: name})
	}
	return out
}

// unflatten turns dotted keys into nested maps.
func unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts := strings.Split(k, ".")
		m := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = flat[k]
	}
	return out
}

// mapProvider is a koanf provider that loads configuration from a map.
type mapProvider map[string]any

// ReadBytes is not supported; koanf uses Read for map providers.
func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("config: ReadBytes not supported by map provider")
}

// Read returns the configuration map.
func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}
