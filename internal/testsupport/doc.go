// Package testsupport provides configuration builders, stub tools, and
// fixtures shared by package tests.
package testsupport
