package openapi

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const crmSpecJSON = `{
  "openapi": "3.0.0",
  "info": {"title": "Mock CRM", "version": "1.0"},
  "paths": {
    "/leads": {
      "get": {
        "operationId": "list_leads",
        "summary": "List leads",
        "tags": ["Leads"],
        "parameters": [{"name": "limit", "in": "query", "schema": {"type": "integer"}}]
      },
      "post": {
        "operationId": "create_lead",
        "summary": "Create lead",
        "tags": ["Leads"],
        "requestBody": {"required": true, "content": {"application/json": {}}}
      }
    },
    "/leads/{id}": {
      "parameters": [
        {"name": "id", "in": "path", "required": true, "description": "path level", "schema": {"type": "string"}}
      ],
      "get": {
        "operationId": "get_lead",
        "tags": ["Leads"],
        "parameters": [{"$ref": "#/components/parameters/LeadId"}]
      },
      "delete": {"tags": ["Leads"]}
    },
    "/accounts": {
      "post": {
        "summary": "Create account",
        "requestBody": {
          "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Account"}}}
        }
      }
    },
    "/notes": {
      "post": {
        "operationId": "add_note",
        "requestBody": {
          "required": true,
          "content": {"application/json": {"schema": {"type": "array", "items": {"type": "string"}}}}
        }
      }
    }
  },
  "components": {
    "parameters": {
      "LeadId": {
        "name": "id", "in": "path", "required": true, "description": "Lead id",
        "schema": {"$ref": "#/components/schemas/Id"}
      }
    },
    "schemas": {
      "Id": {"type": "string", "format": "uuid"},
      "Create Lead": {
        "type": "object",
        "required": ["email", "missing"],
        "properties": {
          "email": {"type": "string"},
          "name": {"$ref": "#/components/schemas/Name"}
        }
      },
      "Name": {"type": "string", "description": "Full name"},
      "Alias": {"$ref": "#/components/schemas/Id"},
      "Account": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string"},
          "owner": {"$ref": "#/components/schemas/Id"}
        }
      },
      "Node": {
        "type": "object",
        "properties": {"next": {"$ref": "#/components/schemas/Node"}, "value": {"type": "string"}}
      },
      "LoopA": {"$ref": "#/components/schemas/LoopB"},
      "LoopB": {"$ref": "#/components/schemas/LoopA"}
    }
  }
}`

func mustParse(t testing.TB, src string) *Document {
	t.Helper()
	doc, err := Parse([]byte(src), "/specs/crm.json")
	require.NoError(t, err)
	return doc
}

func newTestResolver() *Resolver {
	return NewResolver(DefaultResolverConfig(), nil, zap.NewNop())
}
