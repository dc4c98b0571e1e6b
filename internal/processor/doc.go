// Package processor runs the vocabulary pipeline. Every row is looked up
// on the dictionary, its pronunciation is downloaded into the Anki media
// folder and the enriched rows are written as Anki import files. Failures
// for a single word are recorded and never stop the batch.
package processor
