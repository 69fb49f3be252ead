package retrieval

import (
	"regexp"
	"strings"
	"sync"

	"github.com/armon/go-radix"
)

// Blacklist drops documents from retrieval results. Rules are either plain
// terms, matched against tokenized document title and source path, or
// regular expressions matched against the source path. Individual documents
// can also be blocked outright by id.
type Blacklist struct {
	mu       sync.RWMutex
	terms    *radix.Tree // term -> struct{}
	patterns []*regexp.Regexp
	docIDs   map[string]struct{}
}

// NewBlacklist creates an empty blacklist.
func NewBlacklist() *Blacklist {
	return &Blacklist{
		terms:  radix.New(),
		docIDs: make(map[string]struct{}),
	}
}

// AddTerm blocks documents whose title or source path contains the term.
func (b *Blacklist) AddTerm(term string) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return
	}
	b.mu.Lock()
	b.terms.Insert(term, struct{}{})
	b.mu.Unlock()
}

// AddPattern blocks documents whose source path matches the regexp.
func (b *Blacklist) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.patterns = append(b.patterns, re)
	b.mu.Unlock()
	return nil
}

// AddDocument blocks one document by id.
func (b *Blacklist) AddDocument(docID string) {
	b.mu.Lock()
	b.docIDs[docID] = struct{}{}
	b.mu.Unlock()
}

// RemoveDocument unblocks a document id.
func (b *Blacklist) RemoveDocument(docID string) {
	b.mu.Lock()
	delete(b.docIDs, docID)
	b.mu.Unlock()
}

// Blocked reports whether the parent document must be dropped from results.
func (b *Blacklist) Blocked(parent *ParentDocument) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.docIDs[parent.DocID]; ok {
		return true
	}

	if b.terms.Len() > 0 {
		for _, tok := range Tokenize(parent.Title + " " + parent.SourceFile) {
			// prefix walk: a blocked term also blocks its extensions,
			// "secret" blocks "secrets"
			blocked := false
			b.terms.WalkPath(tok, func(string, interface{}) bool {
				blocked = true
				return true
			})
			if blocked {
				return true
			}
		}
	}

	for _, re := range b.patterns {
		if re.MatchString(parent.SourceFile) {
			return true
		}
	}
	return false
}
