package swagger

import _ "embed"

// OpenAPI contains the embedded OpenAPI document of the control API.
//
//go:embed openapi.yaml
var OpenAPI []byte
