package moderation

import (
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const replacementChar = '*'

// The dictionary uses specific words to avoid partial collisions (e.g., "he" inside "The")
func TestModerator_Inspect(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	mod, err := NewModerator([]string{"badger", "snake", "mushroom"}, replacementChar, log)
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
		words    []string
	}{
		{
			name:     "Simple word and space preservation",
			input:    "The badger is here",
			expected: "The ****** is here",
			words:    []string{"badger"},
		},
		{
			name:     "Multiple occurrences",
			input:    "badger badger badger",
			expected: "****** ****** ******",
			words:    []string{"badger", "badger", "badger"},
		},
		{
			name:     "Leet speak and internal punctuation",
			input:    "Look at B.4.d.g.€r !",
			expected: "Look at ********** !",
			words:    []string{"badger"},
		},
		{
			name:     "Uppercase and extreme noise",
			input:    "S-N-A-K-E is a B.A.D.G.E.R",
			expected: "********* is a ***********",
			words:    []string{"snake", "badger"},
		},
		{
			name:     "Accents are kept",
			input:    "Un été avec un badger",
			expected: "Un été avec un ******",
			words:    []string{"badger"},
		},
		{
			name:     "Nothing to censor",
			input:    "Study group starts at 9",
			expected: "Study group starts at 9",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, words := mod.Inspect(tt.input)
			require.Equal(t, tt.expected, content)
			require.Equal(t, tt.words, words)
			require.Equal(t, tt.expected, mod.Censor(tt.input))
		})
	}
}

func TestModerator_Noise_Only_Entries_Are_Skipped(t *testing.T) {
	req := require.New(t)

	// Given a dictionary polluted with punctuation
	mod, err := NewModerator([]string{"...", ",,,", "", "badger"}, replacementChar, slog.New(slog.DiscardHandler))
	req.NoError(err)

	// Then real words are censored and punctuation is left alone
	req.Equal("The ****** is safe", mod.Censor("The badger is safe"))
	content, words := mod.Inspect("Hello ...")
	req.Equal("Hello ...", content)
	req.Nil(words)
}

func TestModerator_Empty_Dictionary(t *testing.T) {
	req := require.New(t)
	mod, err := NewModerator(nil, replacementChar, slog.New(slog.DiscardHandler))
	req.NoError(err)

	req.Equal("anything goes", mod.Censor("anything goes"))
}

func TestLoadDictionary(t *testing.T) {
	req := require.New(t)
	fsys := fstest.MapFS{
		"words/en.txt":    {Data: []byte("badger\r\nsnake\n\n  badger  \n")},
		"words/fr.txt":    {Data: []byte("blaireau\n")},
		"words/README.md": {Data: []byte("not a dictionary")},
	}

	dictionary, err := LoadDictionary(fsys, "words")

	req.NoError(err)
	req.Equal([]string{"badger", "blaireau", "snake"}, dictionary.Words)
	req.ElementsMatch([]string{"en", "fr"}, dictionary.Languages)
}

func TestLoadDictionary_Empty(t *testing.T) {
	req := require.New(t)
	fsys := fstest.MapFS{"words/en.txt": {Data: []byte("\n\n")}}

	_, err := LoadDictionary(fsys, "words")

	req.Error(err)
}

func TestNewDefaultModerator(t *testing.T) {
	req := require.New(t)

	mod, err := NewDefaultModerator(replacementChar, slog.New(slog.DiscardHandler))

	req.NoError(err)
	req.Equal("what the ****", mod.Censor("what the fuck"))
	req.Equal("c'est de la *****", mod.Censor("c'est de la merde"))
}
