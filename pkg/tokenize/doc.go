/*
Package tokenize splits text streams into symbol sequences for training and
classifying chain models.

Two tokenizers are provided: Runes, which emits one symbol per character and
ends a sequence at every line break, and Words, which emits words and
punctuation and ends a sequence at sentence punctuation.
*/
package tokenize
