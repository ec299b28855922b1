package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestText_In(t *testing.T) {
	text := Text{
		{Tag: language.English, Text: "Page visited"},
		{Tag: language.Spanish, Text: "Página visitada"},
	}

	assert.Equal(t, "Page visited", text.In(language.AmericanEnglish))
	assert.Equal(t, "Página visitada", text.In(language.MustParse("es-ES")))
	assert.Equal(t, "Page visited", text.In(language.Japanese), "unsupported locale falls back to first entry")
	assert.Equal(t, "", Text(nil).In(language.English))
}

func TestFromMap(t *testing.T) {
	text := FromMap(map[string]string{
		"es":      "Inicio",
		"en":      "Home",
		"not a t": "ignored",
	}, language.English)

	if assert.Len(t, text, 2) {
		assert.Equal(t, language.English, text[0].Tag)
	}
	assert.Equal(t, "Inicio", text.In(language.Spanish))
	assert.Equal(t, "Home", text.In(language.German))
}

func TestParseLocale(t *testing.T) {
	assert.Equal(t, language.English, ParseLocale("", language.English))
	assert.Equal(t, language.English, ParseLocale("!!", language.English))
	assert.Equal(t, language.MustParse("es-ES"), ParseLocale("es-ES", language.English))
}
