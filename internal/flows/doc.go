// Package flows contains pure-function orchestrators for the Engine's
// request-path operations: authorize, login and refresh.
//
// Each Run function accepts a typed dependency struct of closures and returns
// a result carrying either the payload or a classified failure kind. The root
// package maps kinds onto its error taxonomy.
//
// Flows coordinate calls to the session registry, token manager, credential
// lookups and rate limiter. They do not own any of these resources, hold no
// state between calls and must not import the root auth package.
package flows
