// Package internal holds non-exported plumbing shared by authcore packages:
// session token encoding and random material generation.
package internal
