// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// args.go - Argument parsing shared by all navstream commands.

package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// ARG PARSER
// =============================================================================

// ArgParser separates flags from positional arguments.
// It handles:
//   - Long flags: --flag value or --flag=value
//   - Short flags: -f value
//   - Boolean flags: --flag (no value needed)
//   - Repeated flags: --image a.png --image b.png
//   - "--" ends flag parsing
//
// Flags named in boolNames never consume the following argument, so
// "--json list" keeps "list" positional.
type ArgParser struct {
	flags      map[string][]string
	boolFlags  map[string]bool
	positional []string
	raw        []string
}

// NewArgParser parses raw. boolNames lists flags that take no value.
//
// Example:
//
//	args := NewArgParser([]string{"ask", "--image", "a.png", "--json", "hello"}, "json")
//	args.Positional(0)      // "ask"
//	args.Flag("image")      // "a.png"
//	args.BoolFlag("json")   // true
//	args.Positional(1)      // "hello"
func NewArgParser(raw []string, boolNames ...string) *ArgParser {
	isBool := make(map[string]bool, len(boolNames))
	for _, name := range boolNames {
		isBool[name] = true
	}

	parser := &ArgParser{
		flags:      make(map[string][]string),
		boolFlags:  make(map[string]bool),
		positional: make([]string, 0),
		raw:        raw,
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]

		if arg == "--" {
			parser.positional = append(parser.positional, raw[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			parser.positional = append(parser.positional, arg)
			continue
		}

		// --flag=value
		if name, value, ok := strings.Cut(strings.TrimLeft(arg, "-"), "="); ok {
			if b, err := strconv.ParseBool(value); err == nil && isBool[name] {
				parser.boolFlags[name] = b
			} else {
				parser.flags[name] = append(parser.flags[name], value)
			}
			continue
		}

		name := strings.TrimLeft(arg, "-")
		if !isBool[name] && i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-") {
			parser.flags[name] = append(parser.flags[name], raw[i+1])
			i++
			continue
		}
		parser.boolFlags[name] = true
	}

	return parser
}

// Flag returns the last value of a string flag, or "".
func (p *ArgParser) Flag(names ...string) string {
	for _, name := range names {
		if vals := p.flags[strings.TrimLeft(name, "-")]; len(vals) > 0 {
			return vals[len(vals)-1]
		}
	}
	return ""
}

// Flags returns every value given for a repeatable flag, in order.
func (p *ArgParser) Flags(names ...string) []string {
	var out []string
	for _, name := range names {
		out = append(out, p.flags[strings.TrimLeft(name, "-")]...)
	}
	return out
}

// FlagOrDefault returns the flag value or a default if not found.
func (p *ArgParser) FlagOrDefault(name, defaultValue string) string {
	if val := p.Flag(name); val != "" {
		return val
	}
	return defaultValue
}

// BoolFlag reports whether any of the named boolean flags is set.
//
// Example:
//
//	args.BoolFlag("json")         // --json
//	args.BoolFlag("quiet", "q")   // --quiet or -q
func (p *ArgParser) BoolFlag(names ...string) bool {
	for _, name := range names {
		if p.boolFlags[strings.TrimLeft(name, "-")] {
			return true
		}
	}
	return false
}

// Positional returns the positional argument at index, or "".
func (p *ArgParser) Positional(index int) string {
	if index < 0 || index >= len(p.positional) {
		return ""
	}
	return p.positional[index]
}

// PositionalFrom returns all positional arguments starting from index.
func (p *ArgParser) PositionalFrom(index int) []string {
	if index < 0 || index >= len(p.positional) {
		return []string{}
	}
	return p.positional[index:]
}

// PositionalCount returns the number of positional arguments.
func (p *ArgParser) PositionalCount() int {
	return len(p.positional)
}

// HasFlag returns true if the flag exists (either as string or bool flag).
func (p *ArgParser) HasFlag(name string) bool {
	name = strings.TrimLeft(name, "-")
	_, hasString := p.flags[name]
	_, hasBool := p.boolFlags[name]
	return hasString || hasBool
}

// Raw returns the original raw arguments.
func (p *ArgParser) Raw() []string {
	return p.raw
}

// =============================================================================
// HELPERS
// =============================================================================

// ParseBoolString parses a boolean from various string representations.
// Accepts: true/false, yes/no, y/n, 1/0, on/off (case-insensitive)
func ParseBoolString(s string) (bool, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	switch s {
	case "true", "yes", "y", "1", "on":
		return true, nil
	case "false", "no", "n", "0", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s", s)
	}
}

// JoinPositionalArgs joins positional arguments from startIndex with spaces.
func JoinPositionalArgs(parser *ArgParser, startIndex int) string {
	return strings.Join(parser.PositionalFrom(startIndex), " ")
}
