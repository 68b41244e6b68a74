package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
)

//go:embed censored/*.txt
var censoredFolder embed.FS

// Dictionary is the set of censored words and the languages they came from.
type Dictionary struct {
	Words     []string
	Languages []string
}

// LoadDictionary reads every <lang>.txt file of dir, one word per line.
func LoadDictionary(fsys fs.FS, dir string) (Dictionary, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return Dictionary{}, err
	}

	var languages []string
	unique := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".txt" {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return Dictionary{}, err
		}
		// Scanner copes with \r\n, strings.Split does not
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				unique[line] = struct{}{}
			}
		}
		if err := scanner.Err(); err != nil {
			return Dictionary{}, err
		}
	}
	if len(unique) == 0 {
		return Dictionary{}, fmt.Errorf("no censored words found in %s", dir)
	}

	words := make([]string, 0, len(unique))
	for w := range unique {
		words = append(words, w)
	}
	sort.Strings(words)
	return Dictionary{Words: words, Languages: languages}, nil
}

// NewDefaultModerator builds a moderator over the embedded dictionaries.
func NewDefaultModerator(censoredChar rune, log *slog.Logger) (*Moderator, error) {
	dictionary, err := LoadDictionary(censoredFolder, "censored")
	if err != nil {
		return nil, err
	}
	log.Info("Censored dictionaries loaded",
		"languages", strings.Join(dictionary.Languages, ","), "words", len(dictionary.Words))
	return NewModerator(dictionary.Words, censoredChar, log)
}
