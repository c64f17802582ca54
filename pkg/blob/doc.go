/*
Package blob implements DepotGate's pluggable storage backends for opaque
artifact payloads.

A Backend stores bytes under the (tenant, task) namespace and addresses them
by a location URI whose scheme selects the backend (fs://, mem://). The
filesystem backend lays payloads out as

	<base>/<sanitized-tenant>/<sanitized-task>/<artifact_id>

writing through a temp file and rename, hashing (SHA-256) and counting
length in the same streaming pass. A configured maximum size is enforced
mid-stream; oversized partials are removed.

Retrieval and deletion parse the location, require the backend's scheme, and
verify the resolved path is a descendant of the configured base. Locations
without a scheme, or that escape the base, are rejected.

Backends are assembled into a Registry once at startup; the registry's
active backend receives all new writes, and reads dispatch by scheme.
*/
package blob
