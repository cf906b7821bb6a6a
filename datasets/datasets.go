// Package datasets reads video clip lists for the flow prefetcher.
//
// A clip list (manifest) is a flat sequence of entries. Each clip starts with
// a key entry whose label is the clip length L, followed by the L entries of
// the clip itself:
//
//	v_ApplyEyeMakeup_g01_c01/flow_x_0001.jpg 6
//	v_ApplyEyeMakeup_g01_c01/flow_x_0001.jpg 0
//	v_ApplyEyeMakeup_g01_c01/flow_y_0001.jpg 1
//	...
//
// The package provides loading (plain or zstd compressed), clip-granular
// shuffling and frame path arithmetic. Sampling and batching live in the
// prefetch package.
package datasets
