/*
Package chain implements a sequence classifier built on per-label,
first-order Markov chains.

A Model is trained by observing transitions (predecessor -> next symbol)
under a label. At inference time a sequence is scored against every trained
label with add-one smoothing, and the per-label likelihoods are normalized
into a posterior under a uniform prior.

The package performs no I/O and has no internal locking. Training must be
serialized by the caller; concurrent inference on a model that is no longer
being trained is safe.
*/
package chain
