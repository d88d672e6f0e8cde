/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: mutators.go
Description: Byte-level mutation strategies for deep-link payloads. Implements bit flipping,
byte substitution, arithmetic mutations, token insertion and block repeat/delete. Each mutator
works on a copy of its input and never modifies the seed.
*/

package strategies

import (
	"math/rand"
)

// Mutator transforms a byte sequence into a new one
type Mutator interface {
	Mutate(data []byte, rng *rand.Rand) []byte
	Name() string
	Description() string
}

// BitFlipMutator implements bit-level mutation strategy
// Flips individual bits in the payload for fine-grained mutations
type BitFlipMutator struct {
	mutationRate float64 // Probability of mutation per bit
}

// NewBitFlipMutator creates a new bit flip mutator
func NewBitFlipMutator(mutationRate float64) *BitFlipMutator {
	return &BitFlipMutator{mutationRate: mutationRate}
}

// Mutate flips bits in a copy of data
func (m *BitFlipMutator) Mutate(data []byte, rng *rand.Rand) []byte {
	mutated := clone(data)
	for i := 0; i < len(mutated)*8; i++ {
		if rng.Float64() < m.mutationRate {
			mutated[i/8] ^= 1 << (i % 8)
		}
	}
	return mutated
}

func (m *BitFlipMutator) Name() string { return "BitFlipMutator" }
func (m *BitFlipMutator) Description() string {
	return "Flips individual bits in payload data for fine-grained mutations"
}

// ByteSubstitutionMutator replaces bytes with random values
type ByteSubstitutionMutator struct {
	mutationRate float64 // Probability of mutation per byte
}

// NewByteSubstitutionMutator creates a new byte substitution mutator
func NewByteSubstitutionMutator(mutationRate float64) *ByteSubstitutionMutator {
	return &ByteSubstitutionMutator{mutationRate: mutationRate}
}

// Mutate substitutes bytes in a copy of data
func (m *ByteSubstitutionMutator) Mutate(data []byte, rng *rand.Rand) []byte {
	mutated := clone(data)
	for i := range mutated {
		if rng.Float64() < m.mutationRate {
			mutated[i] = byte(rng.Intn(256))
		}
	}
	return mutated
}

func (m *ByteSubstitutionMutator) Name() string { return "ByteSubstitutionMutator" }
func (m *ByteSubstitutionMutator) Description() string {
	return "Substitutes bytes with random values for coarse-grained mutations"
}

// ArithmeticMutator performs small arithmetic on individual bytes,
// which turns digits and letters into their neighbours and hits boundary values
type ArithmeticMutator struct {
	mutationRate float64
}

// NewArithmeticMutator creates a new arithmetic mutator
func NewArithmeticMutator(mutationRate float64) *ArithmeticMutator {
	return &ArithmeticMutator{mutationRate: mutationRate}
}

var arithmeticOps = []func(byte) byte{
	func(x byte) byte { return x + 1 },
	func(x byte) byte { return x - 1 },
	func(x byte) byte { return x * 2 },
	func(x byte) byte { return x / 2 },
	func(x byte) byte { return x ^ 0x7F },
	func(x byte) byte { return 0xFF },
	func(x byte) byte { return 0x00 },
}

// Mutate applies arithmetic operations to bytes of a copy of data
func (m *ArithmeticMutator) Mutate(data []byte, rng *rand.Rand) []byte {
	mutated := clone(data)
	for i := range mutated {
		if rng.Float64() < m.mutationRate {
			mutated[i] = arithmeticOps[rng.Intn(len(arithmeticOps))](mutated[i])
		}
	}
	return mutated
}

func (m *ArithmeticMutator) Name() string { return "ArithmeticMutator" }
func (m *ArithmeticMutator) Description() string {
	return "Performs arithmetic operations and boundary substitutions on payload bytes"
}

// DefaultTokens are fragments that commonly break URI parsing and deep-link handlers
var DefaultTokens = [][]byte{
	[]byte("%00"),
	[]byte("%0d%0a"),
	[]byte("../"),
	[]byte("..%2f"),
	[]byte("//"),
	[]byte("@"),
	[]byte("#"),
	[]byte("?"),
	[]byte("&"),
	[]byte("="),
	[]byte("'"),
	[]byte("\""),
	[]byte("<script>alert(1)</script>"),
	[]byte("javascript:"),
	[]byte("file:///"),
	[]byte("content://"),
	[]byte("%n%s%x"),
	[]byte("\x00"),
	[]byte("\xef\xbf\xbf"),
	[]byte("-1"),
	[]byte("2147483648"),
}

// TokenInsertionMutator inserts interesting tokens at random offsets
type TokenInsertionMutator struct {
	tokens    [][]byte
	maxInsert int
}

// NewTokenInsertionMutator creates a token insertion mutator. A nil token list uses DefaultTokens.
func NewTokenInsertionMutator(tokens [][]byte, maxInsert int) *TokenInsertionMutator {
	if len(tokens) == 0 {
		tokens = DefaultTokens
	}
	if maxInsert <= 0 {
		maxInsert = 1
	}
	return &TokenInsertionMutator{tokens: tokens, maxInsert: maxInsert}
}

// Mutate inserts between one and maxInsert tokens into a copy of data
func (m *TokenInsertionMutator) Mutate(data []byte, rng *rand.Rand) []byte {
	mutated := clone(data)
	n := 1 + rng.Intn(m.maxInsert)
	for i := 0; i < n; i++ {
		token := m.tokens[rng.Intn(len(m.tokens))]
		pos := rng.Intn(len(mutated) + 1)
		out := make([]byte, 0, len(mutated)+len(token))
		out = append(out, mutated[:pos]...)
		out = append(out, token...)
		out = append(out, mutated[pos:]...)
		mutated = out
	}
	return mutated
}

func (m *TokenInsertionMutator) Name() string { return "TokenInsertionMutator" }
func (m *TokenInsertionMutator) Description() string {
	return "Inserts URI-breaking tokens such as traversal sequences, encoded nulls and quotes"
}

// BlockMutator repeats or deletes a random block of the payload
type BlockMutator struct {
	maxRepeat int
}

// NewBlockMutator creates a block mutator. maxRepeat bounds block repetition.
func NewBlockMutator(maxRepeat int) *BlockMutator {
	if maxRepeat < 2 {
		maxRepeat = 2
	}
	return &BlockMutator{maxRepeat: maxRepeat}
}

// Mutate repeats or removes a block in a copy of data
func (m *BlockMutator) Mutate(data []byte, rng *rand.Rand) []byte {
	if len(data) == 0 {
		return clone(data)
	}
	start := rng.Intn(len(data))
	end := start + 1 + rng.Intn(len(data)-start)
	block := data[start:end]

	out := make([]byte, 0, len(data)+len(block)*m.maxRepeat)
	out = append(out, data[:start]...)
	if rng.Intn(2) == 0 {
		repeat := 2 + rng.Intn(m.maxRepeat-1)
		for i := 0; i < repeat; i++ {
			out = append(out, block...)
		}
	}
	out = append(out, data[end:]...)
	return out
}

func (m *BlockMutator) Name() string { return "BlockMutator" }
func (m *BlockMutator) Description() string {
	return "Repeats or deletes a random block to stress length handling"
}

func clone(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
