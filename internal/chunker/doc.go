// Package chunker splits a memory's text body into overlapping word
// windows suitable for independent embedding and retrieval.
//
// Short memories (<= 400 words) are returned as a single chunk. Longer
// ones are split into 400-word windows advancing 320 words at a time,
// giving an 80-word overlap between neighbors; the final window is
// extended backward so it still covers a full 400 words whenever the
// source has enough text.
package chunker
