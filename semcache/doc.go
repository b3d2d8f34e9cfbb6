// Package semcache implements a semantic cache for question/answer pairs.
//
// The cache short-circuits the full retrieval+generation path when a new
// question is close enough, in embedding space, to one answered before.
// Each entry stores the original prompt, the generated response, the
// document references backing it, and a popularity counter incremented on
// every hit.
package semcache
