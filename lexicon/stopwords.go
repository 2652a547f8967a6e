package lexicon

import (
	"bufio"
	"os"
	"strings"
)

// defaultStopWords is the built-in stop-word set, ported verbatim from
// original_source's Lexicon::load_default_stopwords.
var defaultStopWords = []string{
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for", "of", "with", "by", "from",
	"as", "is", "was", "are", "were", "be", "have", "has", "had", "do", "does", "did", "will", "would",
	"should", "could", "may", "might", "must", "can", "this", "that", "these", "those", "i", "you",
	"he", "she", "it", "we", "they", "what", "which", "who", "when", "where", "why", "how", "all",
	"each", "every", "both", "few", "more", "most", "other", "some", "such", "no", "not", "only",
	"own", "same", "so", "than", "too", "very", "now", "then", "there", "their", "them", "through",
	"under", "until", "up", "use", "using", "via", "year", "years", "your", "yours",
}

func defaultStopWordSet() map[string]bool {
	set := make(map[string]bool, len(defaultStopWords))
	for _, w := range defaultStopWords {
		set[w] = true
	}
	return set
}

// LoadStopWords reads one lower-cased stop word per line from path,
// matching Lexicon::load_stopwords_from_file. Blank lines are skipped.
func LoadStopWords(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	set := make(map[string]bool)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		w := strings.ToLower(strings.TrimSpace(sc.Text()))
		if w == "" {
			continue
		}
		set[w] = true
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return set, nil
}
