package endpoint

// JSON schemas of the endpoint resource types, registered with a
// schema.Registry by RegisterSchemas.
const (
	httpEndpointSchema = `{
  "type": "object",
  "required": ["type", "name", "url"],
  "properties": {
    "type": {"const": "http-endpoint"},
    "name": {"type": "string", "minLength": 1},
    "url": {"type": "string", "pattern": "^https?://"},
    "method": {"type": "string", "enum": ["GET", "HEAD"], "default": "GET"},
    "expect_status_min": {"type": "integer", "minimum": 100, "maximum": 599, "default": 200},
    "expect_status_max": {"type": "integer", "minimum": 100, "maximum": 599, "default": 399},
    "body_contains": {"type": "string"},
    "timeout_seconds": {"type": "integer", "minimum": 1, "maximum": 300, "default": 10}
  },
  "additionalProperties": false
}`

	tcpEndpointSchema = `{
  "type": "object",
  "required": ["type", "name", "address"],
  "properties": {
    "type": {"const": "tcp-endpoint"},
    "name": {"type": "string", "minLength": 1},
    "address": {"type": "string", "pattern": "^[^\\s]+:[0-9]{1,5}$"},
    "timeout_seconds": {"type": "integer", "minimum": 1, "maximum": 300, "default": 5}
  },
  "additionalProperties": false
}`
)
