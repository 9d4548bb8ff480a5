// Package schemas embeds the JSON Schemas used to validate oracle replies
// and experiment files.
package schemas

import _ "embed"

//go:embed action.schema.json
var ActionSchemaJSON string

//go:embed final.schema.json
var FinalSchemaJSON string

//go:embed experiment.schema.json
var ExperimentSchemaJSON string
