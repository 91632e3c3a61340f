package v1

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"

	fluxerr "github.com/fluxcd/circles/pkg/errors"
)

const createDeploymentSchema = `{
  "type": "object",
  "required": ["authorId", "circleId", "namespace", "callbackUrl", "defaultCircle", "components"],
  "properties": {
    "deploymentId":      {"type": "string", "minLength": 1},
    "authorId":          {"type": "string", "minLength": 1},
    "circleId":          {"type": "string", "minLength": 1, "maxLength": 36},
    "circleName":        {"type": "string"},
    "workspaceId":       {"type": "string"},
    "namespace":         {"type": "string", "maxLength": 63, "pattern": "^[a-z0-9]([-a-z0-9]*[a-z0-9])?$"},
    "callbackUrl":       {"type": "string", "format": "uri"},
    "cdConfigurationId": {"type": "string"},
    "defaultCircle":     {"type": "boolean"},
    "timeoutInSeconds":  {"type": "integer", "minimum": 1},
    "metadata": {
      "type": ["object", "null"],
      "properties": {
        "scope":   {"type": "string"},
        "content": {"type": ["object", "null"], "additionalProperties": {"type": "string"}}
      }
    },
    "components": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["componentId", "moduleId", "name", "imageUrl", "imageTag"],
        "properties": {
          "componentId":      {"type": "string", "minLength": 1},
          "moduleId":         {"type": "string", "minLength": 1},
          "name":             {"type": "string", "maxLength": 63, "pattern": "^[a-z0-9]([-a-z0-9]*[a-z0-9])?$"},
          "imageUrl":         {"type": "string", "minLength": 1},
          "imageTag":         {"type": "string", "minLength": 1},
          "hostValue":        {"type": "string"},
          "gatewayName":      {"type": "string"},
          "merged":           {"type": "boolean"},
          "latencyThreshold": {"type": "integer", "minimum": 0},
          "errorThreshold":   {"type": "integer", "minimum": 0}
        }
      }
    }
  }
}`

var createDeployment = mustSchema(createDeploymentSchema)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(errors.Wrap(err, "compiling request schema"))
	}
	return schema
}

// ValidateCreateDeployment checks a JSON request body before it is
// decoded.
func ValidateCreateDeployment(body []byte) error {
	return validate(createDeployment, gojsonschema.NewBytesLoader(body))
}

// Validate checks the request as it would be sent.
func (r CreateDeploymentRequest) Validate() error {
	return validate(createDeployment, gojsonschema.NewGoLoader(r))
}

func validate(schema *gojsonschema.Schema, doc gojsonschema.JSONLoader) error {
	result, err := schema.Validate(doc)
	if err != nil {
		return ValidationError([]string{err.Error()})
	}
	if result.Valid() {
		return nil
	}
	var problems []string
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return ValidationError(problems)
}

// ValidationError reports a request that does not have the shape the
// API expects.
func ValidationError(problems []string) *fluxerr.Error {
	sort.Strings(problems)
	return &fluxerr.Error{
		Type: fluxerr.User,
		Err:  errors.Errorf("invalid request: %s", strings.Join(problems, "; ")),
		Help: fmt.Sprintf(`The request was not valid:

    %s

Correct the request and try again.
`, strings.Join(problems, "\n    ")),
	}
}

// IsValidationError reports whether err came from validating a
// request.
func IsValidationError(err error) bool {
	e, ok := errors.Cause(err).(*fluxerr.Error)
	return ok && e.Type == fluxerr.User && strings.HasPrefix(e.Err.Error(), "invalid request")
}
