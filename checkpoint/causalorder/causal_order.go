// Package causalorder produces the canonical transaction order of a
// checkpoint. The order respects every dependency between the transactions of
// one batch, including the implicit ordering between readers and overwriters
// of the same shared object version, and is fully deterministic: any
// permutation of the same effects yields the identical output, so all nodes
// assemble bit-identical checkpoint contents.
package causalorder

import (
	"github.com/onstrata/strata-go/model/strata"
)

// Order returns the batch in canonical causal order. The output is a
// permutation of the input: if transaction X depends on transaction Y, within
// the batch, Y precedes X; transactions with no dependency relation appear in
// ascending digest order. Dependencies referencing digests outside the batch
// are treated as already satisfied.
func Order(batch []*strata.TransactionEffects) []*strata.TransactionEffects {
	o := &orderer{
		remaining: make(map[strata.Identifier]*strata.TransactionEffects, len(batch)),
		output:    make([]*strata.TransactionEffects, 0, len(batch)),
		shared:    newSharedAccessDeps(batch),
	}

	digests := make(strata.IdentifierList, 0, len(batch))
	for _, effects := range batch {
		if _, ok := o.remaining[effects.TransactionDigest]; !ok {
			digests = append(digests, effects.TransactionDigest)
		}
		o.remaining[effects.TransactionDigest] = effects
	}

	// repeatedly insert the smallest not-yet-emitted transaction; insertion
	// emits its whole dependency closure first
	for _, digest := range digests.Sorted() {
		effects, ok := o.remaining[digest]
		if !ok {
			continue
		}
		delete(o.remaining, digest)
		o.insert(effects)
	}

	return o.output
}

type orderer struct {
	// remaining holds the not-yet-emitted transactions of the batch, keyed by
	// digest. An entry is removed the moment its frame is pushed.
	remaining map[strata.Identifier]*strata.TransactionEffects
	output    []*strata.TransactionEffects
	shared    *sharedAccessDeps
}

// frame is one transaction whose dependencies are still being emitted. The
// deps list is sorted ascending and consumed from the back.
type frame struct {
	effects *strata.TransactionEffects
	deps    strata.IdentifierList
}

// insert emits the given transaction after everything it transitively depends
// on within the batch. Dependency chains in a real ledger can be arbitrarily
// long, so the descent uses an explicit frame stack rather than recursion.
func (o *orderer) insert(effects *strata.TransactionEffects) {
	stack := []*frame{o.newFrame(effects)}

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if len(top.deps) == 0 {
			o.output = append(o.output, top.effects)
			stack = stack[:len(stack)-1]
			continue
		}

		// pop one dependency; descend if it has not been emitted yet
		dep := top.deps[len(top.deps)-1]
		top.deps = top.deps[:len(top.deps)-1]

		depEffects, ok := o.remaining[dep]
		if !ok {
			// already emitted, currently on the stack, or finalized in an
			// earlier checkpoint
			continue
		}
		delete(o.remaining, dep)
		stack = append(stack, o.newFrame(depEffects))
	}
}

// newFrame collects the explicit and implied dependencies of the transaction
// into a deduplicated, ascending list.
func (o *orderer) newFrame(effects *strata.TransactionEffects) *frame {
	set := make(map[strata.Identifier]struct{}, len(effects.Dependencies))
	for _, dep := range effects.Dependencies {
		set[dep] = struct{}{}
	}
	o.shared.addImplied(effects.TransactionDigest, set)

	deps := make(strata.IdentifierList, 0, len(set))
	for dep := range set {
		deps = append(deps, dep)
	}

	return &frame{
		effects: effects,
		deps:    deps.Sorted(),
	}
}
