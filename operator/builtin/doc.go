// Package builtin provides deterministic, rule-based reference implementations
// of all seven operators. They keep the engine runnable end-to-end without
// external models and define the behavior the protocol tests pin down.
// External implementations replace them per operator through the registry.
package builtin
