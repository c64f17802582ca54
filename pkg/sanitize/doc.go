/*
Package sanitize is the shared input-safety primitive for DepotGate.

Every externally-sourced identifier, location URI, or shipping destination
flows through this package before it is allowed anywhere near the
filesystem namespace. The primitives are:

  - Component: coerce a free-form string into a single safe path component
  - ValidateTenantID / ValidateTaskID: strict identifier grammar
  - ResolveUnderBase: descendant-of-base containment check
  - NeutralizeSegments: strip "." and ".." from relative destinations
  - ParseLocation: scheme/body split for backend and sink dispatch

The containment check is the load-bearing guarantee: storage and sink paths
are always resolved absolute and verified to be descendants of their
configured base.
*/
package sanitize
