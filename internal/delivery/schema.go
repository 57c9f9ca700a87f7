package delivery

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const tokenSchemaJSON = `{
  "type": "object",
  "required": ["Token"],
  "properties": {
    "Token": {"type": "string", "minLength": 1}
  }
}`

var (
	tokenSchemaOnce sync.Once
	tokenSchema     *jsonschema.Schema
	tokenSchemaErr  error
)

func compiledTokenSchema() (*jsonschema.Schema, error) {
	tokenSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("token.json", strings.NewReader(tokenSchemaJSON)); err != nil {
			tokenSchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		tokenSchema, tokenSchemaErr = compiler.Compile("token.json")
	})
	return tokenSchema, tokenSchemaErr
}

// extractToken validates a login response body and returns its Token.
func extractToken(body []byte) (Token, error) {
	schema, err := compiledTokenSchema()
	if err != nil {
		return "", fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return "", fmt.Errorf("unmarshal login response: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return "", fmt.Errorf("login response does not match schema: %w", err)
	}
	return Token(v.(map[string]any)["Token"].(string)), nil
}
