package docs

import _ "embed"

//go:embed status.openapi.yaml
var embeddedStatusOpenAPI []byte

// StatusOpenAPI describes the dispatcher's status endpoints.
var StatusOpenAPI = embeddedStatusOpenAPI
