/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: composite.go
Description: Composite mutator. Chains several mutation strategies per call for payload
diversity. Supports both sequential and random chaining of mutators.
*/

package strategies

import (
	"math/rand"
)

// CompositeMutator composes multiple Mutator instances for chained mutation.
type CompositeMutator struct {
	mutators    []Mutator // List of mutators to chain
	chainLength int       // Number of mutators to apply per mutation
	randomOrder bool      // If true, apply mutators in random order
}

// NewCompositeMutator creates a new CompositeMutator.
// chainLength defaults to len(mutators) when zero or out of range.
func NewCompositeMutator(mutators []Mutator, chainLength int, randomOrder bool) *CompositeMutator {
	if chainLength <= 0 || chainLength > len(mutators) {
		chainLength = len(mutators)
	}
	return &CompositeMutator{
		mutators:    mutators,
		chainLength: chainLength,
		randomOrder: randomOrder,
	}
}

// Mutate applies a chain of mutators to data.
func (c *CompositeMutator) Mutate(data []byte, rng *rand.Rand) []byte {
	mutated := clone(data)
	if len(c.mutators) == 0 {
		return mutated
	}

	order := make([]int, len(c.mutators))
	for i := range order {
		order[i] = i
	}
	if c.randomOrder {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	for i := 0; i < c.chainLength; i++ {
		mutated = c.mutators[order[i]].Mutate(mutated, rng)
	}
	return mutated
}

// Name returns the name of this mutator.
func (c *CompositeMutator) Name() string {
	return "CompositeMutator"
}

// Description returns a description of this mutator.
func (c *CompositeMutator) Description() string {
	return "Chains multiple mutators for diverse mutations (sequential or random order)"
}
