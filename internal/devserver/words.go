package devserver

import (
	"bufio"
	_ "embed"
	"io"
	"sort"
	"strings"
)

//go:embed words.txt
var defaultWords string

// Words is the dictionary a room scores against. It is read-only once built
// and safe to share between rooms.
type Words struct {
	set map[string]struct{}
}

// DefaultWords returns the small embedded dictionary.
func DefaultWords() *Words {
	w, _ := ReadWords(strings.NewReader(defaultWords))
	return w
}

// NewWords builds a dictionary from a list. Entries are lower-cased.
func NewWords(list ...string) *Words {
	w := &Words{set: make(map[string]struct{}, len(list))}
	for _, s := range list {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			w.set[s] = struct{}{}
		}
	}
	return w
}

// ReadWords reads one word per line.
func ReadWords(r io.Reader) (*Words, error) {
	var list []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		list = append(list, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return NewWords(list...), nil
}

func (w *Words) Valid(word string) bool {
	_, ok := w.set[word]
	return ok
}

// Score is len(word)-2 for a dictionary word, else 0.
func (w *Words) Score(word string) int {
	if !w.Valid(word) {
		return 0
	}
	return len(word) - 2
}

// Count is how many words start with atama and end with oshiri.
func (w *Words) Count(atama, oshiri string) int {
	n := 0
	for word := range w.set {
		if fits(word, atama, oshiri) {
			n++
		}
	}
	return n
}

// Top returns the three longest fitting words, padded with empty strings.
// Ties are broken alphabetically.
func (w *Words) Top(atama, oshiri string) []string {
	var fit []string
	for word := range w.set {
		if fits(word, atama, oshiri) {
			fit = append(fit, word)
		}
	}
	sort.Slice(fit, func(i, j int) bool {
		if len(fit[i]) != len(fit[j]) {
			return len(fit[i]) > len(fit[j])
		}
		return fit[i] < fit[j]
	})
	top := make([]string, 3)
	copy(top, fit)
	return top
}

func fits(word, atama, oshiri string) bool {
	return len(word) >= len(atama)+len(oshiri) &&
		strings.HasPrefix(word, atama) && strings.HasSuffix(word, oshiri)
}
