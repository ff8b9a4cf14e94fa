// Package textnorm canonicalizes query text before it is embedded.
package textnorm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
)

// maxLemmaPasses bounds repeated lemma reduction (e.g. "ran" -> "run").
const maxLemmaPasses = 4

var (
	nonWordRe  = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s$]`)
	nonTokenRe = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_$]`)
)

// Lemmatizer reduces a word to its dictionary form.
type Lemmatizer interface {
	Lemma(word string) string
}

// Normalizer lowercases, strips punctuation, removes stopwords and
// lemmatizes query text. It is safe for concurrent use.
type Normalizer struct {
	lemmatizer Lemmatizer
}

// New creates a Normalizer backed by the golem English dictionary.
func New() (*Normalizer, error) {
	lem, err := golem.New(en.New())
	if err != nil {
		return nil, fmt.Errorf("load english lemmas: %w", err)
	}
	return NewWithLemmatizer(lem), nil
}

// NewWithLemmatizer creates a Normalizer using l. A nil l leaves tokens as-is.
func NewWithLemmatizer(l Lemmatizer) *Normalizer {
	return &Normalizer{lemmatizer: l}
}

// Normalize returns the canonical form of raw. The result only contains
// lowercase lemmas separated by single spaces, and Normalize(Normalize(x))
// equals Normalize(x).
func (n *Normalizer) Normalize(raw string) string {
	s := strings.ToLower(raw)
	s = nonWordRe.ReplaceAllString(s, "")

	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, tok := range fields {
		if IsStopword(tok) {
			continue
		}
		tok = n.reduce(tok)
		if tok == "" || IsStopword(tok) {
			continue
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

func (n *Normalizer) reduce(tok string) string {
	if n.lemmatizer == nil {
		return tok
	}
	for i := 0; i < maxLemmaPasses; i++ {
		lemma := strings.ToLower(n.lemmatizer.Lemma(tok))
		lemma = nonTokenRe.ReplaceAllString(lemma, "")
		if lemma == tok || lemma == "" {
			return tok
		}
		tok = lemma
	}
	return tok
}
