// Package deps checks that the external executables lipidquant drives are
// installed and reachable on PATH.
package deps
