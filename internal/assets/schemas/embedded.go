// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time so catalog validation works in
// installed binaries regardless of the working directory.
package schemasassets

import _ "embed"

// CatalogSchema is the embedded job-catalog JSON schema.
//
//go:embed catalog.schema.json
var CatalogSchema []byte
