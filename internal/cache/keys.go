package cache

import "time"

// Namespace partitions the keyspace by owning stage. Each stage reads and
// writes only its own namespace.
type Namespace string

const (
	NamespaceIdentifier Namespace = "identifier"
	NamespaceData       Namespace = "data"
	NamespaceResult     Namespace = "result"
)

// TTLs shrink down the pipeline: the response boundary tolerates the least staleness.
// Key names and TTLs are shared with other deployments of the pipeline and must not drift.
const (
	IdentifierTTL = 3600 * time.Second
	DataTTL       = 300 * time.Second
	ResultTTL     = 180 * time.Second
)

// IdentifierValue is the marker stored under identifier:<zipcode>.
const IdentifierValue = "valid"

// Key returns the cache key for zipcode in namespace ns, e.g. "data:90210".
func Key(ns Namespace, zipcode string) string {
	return string(ns) + ":" + zipcode
}
