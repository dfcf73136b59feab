// Package classify turns raw fragments into classified items.
//
// Classification runs in two phases. Phase one applies deterministic
// heuristics and a domain-vocabulary gate to every fragment without calling
// the model. Fragments neither phase resolves are sent to the model in
// fixed-size batches (phase two), and model results pass through the
// confidence thresholder. Output order always matches input order.
package classify
