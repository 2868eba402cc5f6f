// Package features holds the Gherkin acceptance suite for the ordering
// core. Scenarios run against a full engine over a temporary SQLite store.
package features
