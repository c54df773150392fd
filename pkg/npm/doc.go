// Package npm defines the identifier types used throughout dependency
// resolution: package name+version pairs, package requirements, version
// requirements (semver ranges or dist-tags), and fully-qualified package
// ids that encode attached peer dependencies.
//
// # Package ids
//
// A [PackageID] identifies one resolved copy of a package. Two copies of
// the same name and version that resolved different peer dependencies are
// different packages on disk, so the id carries the ordered list of peer
// ids. The serialized form is load-bearing: it is the key used in
// lockfiles and must round-trip exactly.
//
//	react-dom@18.2.0                      no peers
//	react-dom@18.2.0_react@18.2.0        one peer
//	a@1.0.0_b@2.0.0__c@3.0.0             b's own peer c, nested with "__"
//
// Each nesting level adds one underscore to the separator, and "/" in
// scoped names is replaced with "+" inside peer segments so that the
// separator scan stays unambiguous.
package npm
