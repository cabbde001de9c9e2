/*
Package store persists chain models in a SQLite database.

Labels, symbols and transition counts live in normalized tables. The start
of a sequence is stored as the reserved symbol row 0 ("<START>"). The store
can train labels directly from text streams, save and load whole models,
prune rare transitions, and export or import models as JSON.
*/
package store
