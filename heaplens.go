// ABOUTME: Main heaplens package providing version information and package documentation
// ABOUTME: This is the root package for the heap dump analysis tool

// Package heaplens provides a heap dump leak diagnostic tool with an HTTP
// API and CLI. Given a set of weakly-referenced objects expected to have been
// collected, it finds the shortest GC-root-retaining path to each one,
// applying a catalog of known-benign reference exclusions, and optionally
// computes each leak's retained heap size via best-effort dominator
// tracking.
package heaplens

// Version is the semantic version of the heaplens tool
const Version = "0.1.0-dev"