// Package response turns generated assistant text into the reply a client
// sees: commands are executed and stripped, the text is cleaned and any
// failed command is reconciled into the wording.
package response

import (
	"regexp"
	"strings"
)

// DefaultFillerPhrases are "thinking aloud" phrases removed from replies.
var DefaultFillerPhrases = []string{
	"let me check",
	"one moment",
	"just a moment",
	"please wait",
	"сейчас проверю",
	"сейчас посмотрю",
	"одну минутку",
	"одну минуту",
	"минутку",
	"секундочку",
}

var (
	pipePattern        = regexp.MustCompile(`\s*\|\s*`)
	repeatedBang       = regexp.MustCompile(`!{2,}`)
	repeatedQuestion   = regexp.MustCompile(`\?{2,}`)
	repeatedDots       = regexp.MustCompile(`\.{2,}|…`)
	spaceBeforePunct   = regexp.MustCompile(`[ \t]+([.,!?;:])`)
	repeatedSpaces     = regexp.MustCompile(`[ \t]{2,}`)
	trailingLineSpaces = regexp.MustCompile(`[ \t]+\n`)
	repeatedBlankLines = regexp.MustCompile(`\n{3,}`)
	leadingPunctuation = regexp.MustCompile(`^[\s.,;:]+`)
)

// Cleaner normalizes display text.
type Cleaner struct {
	fillers []*regexp.Regexp
}

// NewCleaner compiles the filler phrases. No phrases means DefaultFillerPhrases.
func NewCleaner(phrases ...string) *Cleaner {
	if len(phrases) == 0 {
		phrases = DefaultFillerPhrases
	}
	c := &Cleaner{fillers: make([]*regexp.Regexp, 0, len(phrases))}
	for _, p := range phrases {
		c.fillers = append(c.fillers, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(p)+`[\s.,!…]*`))
	}
	return c
}

// Clean applies filler removal, pipe conversion, punctuation dedupe and
// whitespace normalization, in that order.
func (c *Cleaner) Clean(text string) string {
	for _, re := range c.fillers {
		text = re.ReplaceAllString(text, "")
	}
	text = replacePipes(text)

	text = repeatedBang.ReplaceAllString(text, "!")
	text = repeatedQuestion.ReplaceAllString(text, "?")
	text = repeatedDots.ReplaceAllString(text, ".")

	text = spaceBeforePunct.ReplaceAllString(text, "$1")
	text = repeatedSpaces.ReplaceAllString(text, " ")
	text = trailingLineSpaces.ReplaceAllString(text, "\n")
	text = repeatedBlankLines.ReplaceAllString(text, "\n\n")
	text = leadingPunctuation.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// replacePipes turns a separating | into a sentence break. A pipe that
// follows terminal punctuation becomes a space, a trailing pipe is dropped.
func replacePipes(text string) string {
	var b strings.Builder
	last := 0
	for _, loc := range pipePattern.FindAllStringIndex(text, -1) {
		before := strings.TrimRight(text[last:loc[0]], " \t")
		b.WriteString(before)
		last = loc[1]

		if last >= len(text) {
			continue
		}
		written := strings.TrimRight(b.String(), " \t")
		if written == "" || endsWithTerminal(written) {
			b.WriteString(" ")
			continue
		}
		b.WriteString(". ")
	}
	b.WriteString(text[last:])
	return b.String()
}

func endsWithTerminal(s string) bool {
	switch s[len(s)-1] {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}
