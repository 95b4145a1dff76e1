package melody

import (
	"fmt"
	"sort"
)

// Reserved tokens. Padding must sit at id 0 so masking and the loss can
// recognize it by value alone.
const (
	PadToken = "<pad>"
	EndToken = "<eos>"
)

// Tokenizer maps melody event strings such as "C4-1.0" to integer ids and
// back. The mapping is fixed at construction; unknown events are errors
// rather than silently remapped.
type Tokenizer struct {
	tokenToID map[string]int
	idToToken []string
}

// NewTokenizer builds a vocabulary from the given melodies. Tokens are
// sorted before ids are assigned, so the same corpus always yields the
// same mapping regardless of melody order.
func NewTokenizer(melodies [][]string) *Tokenizer {
	seen := make(map[string]bool)
	for _, mel := range melodies {
		for _, tok := range mel {
			seen[tok] = true
		}
	}
	delete(seen, PadToken)

	tokens := make([]string, 0, len(seen))
	for tok := range seen {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)

	return FromVocab(append([]string{PadToken}, tokens...))
}

// FromVocab rebuilds a tokenizer from a stored vocabulary, as written into
// a checkpoint. The slice index is the token id; index 0 must be the pad
// token.
func FromVocab(vocab []string) *Tokenizer {
	t := &Tokenizer{
		tokenToID: make(map[string]int, len(vocab)),
		idToToken: append([]string(nil), vocab...),
	}
	for id, tok := range vocab {
		t.tokenToID[tok] = id
	}
	return t
}

// Encode maps each event to its id, failing on events outside the
// vocabulary.
func (t *Tokenizer) Encode(events []string) ([]int, error) {
	ids := make([]int, len(events))
	for i, ev := range events {
		id, ok := t.tokenToID[ev]
		if !ok {
			return nil, fmt.Errorf("melody: unknown event %q", ev)
		}
		ids[i] = id
	}
	return ids, nil
}

// Decode maps ids back to events, dropping padding. Ids outside the
// vocabulary panic: they can only come from a programming error, not from
// data.
func (t *Tokenizer) Decode(ids []int) []string {
	events := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		events = append(events, t.idToToken[id])
	}
	return events
}

// Vocab returns the id-ordered vocabulary for embedding in checkpoints.
func (t *Tokenizer) Vocab() []string {
	return append([]string(nil), t.idToToken...)
}

// VocabSize reports the number of ids, padding included.
func (t *Tokenizer) VocabSize() int {
	return len(t.idToToken)
}

// EndID returns the id of the end-of-sequence token when the vocabulary
// defines one.
func (t *Tokenizer) EndID() (int, bool) {
	id, ok := t.tokenToID[EndToken]
	return id, ok
}
