/*
Copyright 2024 Settld Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package settld

import (
	"sort"
	"strings"

	"github.com/settld-io/settld/model"
)

// CandidateIndex holds one run's eligible payments keyed for approximate
// amount lookups and exact reference lookups. Candidates consumed by an
// earlier match are excluded from subsequent lookups, which enforces the
// at-most-one-match invariant without a second pass. Not safe for use across
// runs; each run builds its own index.
type CandidateIndex struct {
	step       int64
	buckets    map[int64][]*indexedCandidate
	references map[string][]*indexedCandidate
	ordinals   map[string]int
	consumed   map[string]bool
	size       int
}

// indexedCandidate carries the candidate's load order for deterministic
// tie-breaking across reruns of the same inputs.
type indexedCandidate struct {
	candidate *model.PaymentCandidate
	ordinal   int
}

// NewCandidateIndex builds the index for one run. The bucket step derives
// from the run's amount tolerance so a lookup touches only the buckets that
// can contain an in-tolerance candidate.
func NewCandidateIndex(candidates []*model.PaymentCandidate, toleranceMinorUnits int64) *CandidateIndex {
	step := toleranceMinorUnits
	if step < 1 {
		step = 1
	}
	idx := &CandidateIndex{
		step:       step,
		buckets:    make(map[int64][]*indexedCandidate),
		references: make(map[string][]*indexedCandidate),
		ordinals:   make(map[string]int),
		consumed:   make(map[string]bool),
		size:       len(candidates),
	}
	for i, c := range candidates {
		entry := &indexedCandidate{candidate: c, ordinal: i}
		idx.ordinals[c.PaymentID] = i
		key := bucketKey(c.Amount, step)
		idx.buckets[key] = append(idx.buckets[key], entry)
		if ref := normalizeReference(c.ProviderReference); ref != "" {
			idx.references[ref] = append(idx.references[ref], entry)
		}
	}
	return idx
}

func bucketKey(amount, step int64) int64 {
	if amount >= 0 {
		return amount / step
	}
	return (amount - step + 1) / step
}

// normalizeReference lowercases a reference and strips all whitespace.
func normalizeReference(ref string) string {
	return strings.ToLower(strings.Join(strings.Fields(ref), ""))
}

// Lookup returns all unconsumed candidates within tolerance of amount, in
// load order.
func (ci *CandidateIndex) Lookup(amount, toleranceMinorUnits int64) []*model.PaymentCandidate {
	low := bucketKey(amount-toleranceMinorUnits, ci.step)
	high := bucketKey(amount+toleranceMinorUnits, ci.step)

	var entries []*indexedCandidate
	for key := low; key <= high; key++ {
		for _, entry := range ci.buckets[key] {
			if ci.consumed[entry.candidate.PaymentID] {
				continue
			}
			diff := entry.candidate.Amount - amount
			if diff < 0 {
				diff = -diff
			}
			if diff <= toleranceMinorUnits {
				entries = append(entries, entry)
			}
		}
	}
	return sortedCandidates(entries)
}

// LookupReference returns all unconsumed candidates whose normalized provider
// reference equals the given settlement reference, in load order.
func (ci *CandidateIndex) LookupReference(reference string) []*model.PaymentCandidate {
	normalized := normalizeReference(reference)
	if normalized == "" {
		return nil
	}
	var entries []*indexedCandidate
	for _, entry := range ci.references[normalized] {
		if !ci.consumed[entry.candidate.PaymentID] {
			entries = append(entries, entry)
		}
	}
	return sortedCandidates(entries)
}

// Consume removes a matched candidate from all future lookups.
func (ci *CandidateIndex) Consume(paymentID string) {
	ci.consumed[paymentID] = true
}

// Consumed reports whether a candidate has already been claimed this run.
func (ci *CandidateIndex) Consumed(paymentID string) bool {
	return ci.consumed[paymentID]
}

// Len returns the number of candidates loaded into the index.
func (ci *CandidateIndex) Len() int {
	return ci.size
}

// Ordinal returns the candidate's position in the original load order, used
// as the final tie-break during selection.
func (ci *CandidateIndex) Ordinal(paymentID string) int {
	if ord, ok := ci.ordinals[paymentID]; ok {
		return ord
	}
	return -1
}

func sortedCandidates(entries []*indexedCandidate) []*model.PaymentCandidate {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ordinal < entries[j].ordinal
	})
	out := make([]*model.PaymentCandidate, len(entries))
	for i, entry := range entries {
		out[i] = entry.candidate
	}
	return out
}
