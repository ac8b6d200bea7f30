package foreman

import "github.com/xraph/foreman/id"

// ID is the primary identifier type for all Foreman entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
