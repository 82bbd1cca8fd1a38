// Package blocking groups records by cheap keys so only records sharing a key are compared.
package blocking

import (
	"sort"
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/similarity"
)

// KeyFunc derives zero or more blocking keys from a record
type KeyFunc func(e models.EntityRecord) []string

// Block is a group of records sharing one key. Members are sorted ids.
type Block struct {
	Key     string
	Members []string
}

// Pair is an unordered pair of record ids with A < B
type Pair struct {
	A string
	B string
}

// NewPair orders the ids
func NewPair(a, b string) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

// Indexer builds blocks from a record collection
type Indexer struct {
	keyFuncs     []KeyFunc
	maxBlockSize int
}

// Option configures an Indexer
type Option func(*Indexer)

// WithKeyFuncs replaces the default key functions
func WithKeyFuncs(fns ...KeyFunc) Option {
	return func(ix *Indexer) {
		ix.keyFuncs = fns
	}
}

// WithMaxBlockSize drops blocks with more members than n (0 = unlimited)
func WithMaxBlockSize(n int) Option {
	return func(ix *Indexer) {
		ix.maxBlockSize = n
	}
}

// NewIndexer creates an Indexer using the default keys unless overridden
func NewIndexer(opts ...Option) *Indexer {
	ix := &Indexer{
		keyFuncs: DefaultKeyFuncs(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// DefaultKeyFuncs returns the name prefix, name Soundex, email domain and phone prefix keys
func DefaultKeyFuncs() []KeyFunc {
	return []KeyFunc{NameKeys, EmailDomainKey, PhonePrefixKey}
}

// NormalizedName is the name form used for blocking
func NormalizedName(e models.EntityRecord) string {
	return normalizers.ApplyChain(e.FieldString("name"), normalizers.StepLowercase, normalizers.StepRemoveSpecialChars)
}

// NameKeys returns the first character, first two characters and Soundex code of the name
func NameKeys(e models.EntityRecord) []string {
	name := []rune(NormalizedName(e))
	if len(name) == 0 {
		return nil
	}

	keys := []string{"n1:" + string(name[:1])}
	if len(name) >= 2 {
		keys = append(keys, "n2:"+string(name[:2]))
	}
	if code := similarity.Soundex(string(name)); code != "" {
		keys = append(keys, "sx:"+code)
	}
	return keys
}

// EmailDomainKey returns the part of the email after '@'
func EmailDomainKey(e models.EntityRecord) []string {
	email := strings.ToLower(strings.TrimSpace(e.FieldString("email")))
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return nil
	}
	return []string{"em:" + email[at+1:]}
}

// PhonePrefixKey returns the first three digits of the phone number
func PhonePrefixKey(e models.EntityRecord) []string {
	digits := normalizers.DigitsOnly(e.FieldString("phone"))
	if len(digits) < 3 {
		return nil
	}
	return []string{"ph:" + digits[:3]}
}

// Keys returns the distinct blocking keys of a record. Keys are scoped by
// entity type so records of different types never share a block.
func (ix *Indexer) Keys(e models.EntityRecord) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, fn := range ix.keyFuncs {
		for _, key := range fn(e) {
			if key == "" {
				continue
			}
			scoped := e.Type + "|" + key
			if _, ok := seen[scoped]; ok {
				continue
			}
			seen[scoped] = struct{}{}
			keys = append(keys, scoped)
		}
	}
	return keys
}

// Build groups the records into blocks. Blocks with fewer than two members are
// discarded, as are blocks above the size cap. The second return value counts
// blocks dropped for size.
func (ix *Indexer) Build(entities []models.EntityRecord) ([]Block, int) {
	members := make(map[string][]string)
	for _, e := range entities {
		for _, key := range ix.Keys(e) {
			members[key] = append(members[key], e.ID)
		}
	}

	blocks := make([]Block, 0, len(members))
	oversized := 0
	for key, ids := range members {
		if len(ids) < 2 {
			continue
		}
		if ix.maxBlockSize > 0 && len(ids) > ix.maxBlockSize {
			oversized++
			continue
		}
		sort.Strings(ids)
		blocks = append(blocks, Block{Key: key, Members: ids})
	}

	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].Key < blocks[j].Key
	})
	return blocks, oversized
}

// AssignPairs lists each block's intra-block pairs, giving every unordered pair
// to the first block (in key order) that contains it. The result is aligned with
// blocks; summing its lengths gives the number of distinct comparisons.
func AssignPairs(blocks []Block) [][]Pair {
	seen := make(map[Pair]struct{})
	assigned := make([][]Pair, len(blocks))
	for bi, block := range blocks {
		for i := 0; i < len(block.Members); i++ {
			for j := i + 1; j < len(block.Members); j++ {
				p := NewPair(block.Members[i], block.Members[j])
				if p.A == p.B {
					continue
				}
				if _, ok := seen[p]; ok {
					continue
				}
				seen[p] = struct{}{}
				assigned[bi] = append(assigned[bi], p)
			}
		}
	}
	return assigned
}
