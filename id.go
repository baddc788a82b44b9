package telstar

import "github.com/Nityam-7/TELSTAR/id"

// ID is the identifier type for all TELSTAR records.
type ID = id.ID

// Prefix identifies the record kind encoded in a TypeID.
type Prefix = id.Prefix
