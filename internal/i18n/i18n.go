// Package i18n picks the best translation of a message for a requested locale.
package i18n

import (
	"sort"

	"golang.org/x/text/language"
)

// Translation is one rendering of a message.
type Translation struct {
	Tag  language.Tag
	Text string
}

// Text is a message in several languages. The first entry is the fallback
// when no supported language matches.
type Text []Translation

// In returns the translation best matching tag.
func (t Text) In(tag language.Tag) string {
	if len(t) == 0 {
		return ""
	}
	tags := make([]language.Tag, len(t))
	for i, tr := range t {
		tags[i] = tr.Tag
	}
	_, idx, _ := language.NewMatcher(tags).Match(tag)
	return t[idx].Text
}

// FromMap builds a Text from BCP 47 keyed strings, as stored in JSON columns.
// Unparseable tags are skipped. fallback, when present in m, is placed first;
// other entries follow in tag order so matching is deterministic.
func FromMap(m map[string]string, fallback language.Tag) Text {
	var text Text
	var rest []Translation
	for k, v := range m {
		tag, err := language.Parse(k)
		if err != nil {
			continue
		}
		if tag == fallback {
			text = append(text, Translation{Tag: tag, Text: v})
			continue
		}
		rest = append(rest, Translation{Tag: tag, Text: v})
	}
	sort.Slice(rest, func(i, j int) bool {
		return rest[i].Tag.String() < rest[j].Tag.String()
	})
	return append(text, rest...)
}

// ParseLocale parses a BCP 47 locale, falling back to def on empty or
// malformed input.
func ParseLocale(s string, def language.Tag) language.Tag {
	if s == "" {
		return def
	}
	tag, err := language.Parse(s)
	if err != nil {
		return def
	}
	return tag
}
