package command

import (
	"regexp"
	"strings"
)

// Parser extracts commands from generated text.
type Parser interface {
	Parse(text string) []Command
	Strip(text string) string
}

// BracketParser reads the inline grammar [NAME key: value, key2: value2].
type BracketParser struct{}

var commandPattern = regexp.MustCompile(`\[([A-Z_]+)(?:\s+([^\]]*))?\]`)

// Parse returns commands in left-to-right order.
func (BracketParser) Parse(text string) []Command {
	matches := commandPattern.FindAllStringSubmatch(text, -1)
	commands := make([]Command, 0, len(matches))
	for _, m := range matches {
		commands = append(commands, Command{
			Name:   m[1],
			Params: parseParams(m[2]),
		})
	}
	return commands
}

// Strip removes command tokens and leaves the surrounding text untouched.
func (BracketParser) Strip(text string) string {
	return commandPattern.ReplaceAllString(text, "")
}

// parseParams splits on commas, then on the first colon of each pair.
// Pairs without a colon are ignored.
func parseParams(raw string) map[string]string {
	params := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		params[key] = unquote(strings.TrimSpace(value))
	}
	return params
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return strings.TrimSpace(v[1 : len(v)-1])
		}
	}
	return v
}

// ParseCommands extracts commands with the default grammar.
func ParseCommands(text string) []Command {
	return BracketParser{}.Parse(text)
}

// RemoveCommands strips commands with the default grammar.
func RemoveCommands(text string) string {
	return BracketParser{}.Strip(text)
}
