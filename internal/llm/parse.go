package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// fieldSchema names the JSON keys one naming convention uses for the model
// list payload. Variants are tried in order against the decoded body; a
// variant matches only when it finds entries carrying both its id and
// context-length keys, so a camelCase body is never half-read by the
// snake_case variant.
type fieldSchema struct {
	name          string
	list          string
	id            string
	displayName   string
	description   string
	pricing       string
	promptPrice   string
	contextLength string
}

var schemaVariants = []fieldSchema{
	{
		name:          "snake_case",
		list:          "data",
		id:            "id",
		displayName:   "name",
		description:   "description",
		pricing:       "pricing",
		promptPrice:   "prompt",
		contextLength: "context_length",
	},
	{
		name:          "camelCase",
		list:          "data",
		id:            "id",
		displayName:   "name",
		description:   "description",
		pricing:       "pricing",
		promptPrice:   "prompt",
		contextLength: "contextLength",
	},
	{
		name:          "PascalCase",
		list:          "Data",
		id:            "Id",
		displayName:   "Name",
		description:   "Description",
		pricing:       "Pricing",
		promptPrice:   "Prompt",
		contextLength: "ContextLength",
	},
}

// ParseModels decodes a discovery response body by trying each schema
// variant in order, ending with a case-insensitive pass. It returns the
// parsed list and the name of the variant that produced it.
func ParseModels(body []byte) ([]Model, string, error) {
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, "", fmt.Errorf("decode model list: %w", err)
	}

	for _, schema := range schemaVariants {
		if models := parseWithSchema(root, schema); len(models) > 0 {
			return models, schema.name, nil
		}
	}
	if models := parseLoose(root); len(models) > 0 {
		return models, "case-insensitive", nil
	}
	return nil, "", fmt.Errorf("no schema variant matched model list")
}

func parseWithSchema(root any, schema fieldSchema) []Model {
	obj, ok := root.(map[string]any)
	if !ok {
		return nil
	}
	rawList, ok := obj[schema.list].([]any)
	if !ok {
		return nil
	}

	var models []Model
	for _, raw := range rawList {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		idValue, hasID := item[schema.id]
		ctxValue, hasCtx := item[schema.contextLength]
		if !hasID || !hasCtx {
			continue
		}
		id := asString(idValue)
		if id == "" {
			continue
		}
		model := Model{
			ID:            id,
			Name:          asString(item[schema.displayName]),
			Description:   asString(item[schema.description]),
			ContextLength: asInt(ctxValue),
		}
		if pricing, ok := item[schema.pricing].(map[string]any); ok {
			model.PromptPrice = asString(pricing[schema.promptPrice])
		}
		if model.Name == "" {
			model.Name = model.ID
		}
		models = append(models, model)
	}
	return models
}

// parseLoose matches keys case-insensitively ignoring underscores, and
// accepts either a wrapped list or a bare top-level array.
func parseLoose(root any) []Model {
	var rawList []any
	switch v := root.(type) {
	case []any:
		rawList = v
	case map[string]any:
		for _, key := range []string{"data", "models"} {
			if found, ok := lookupLoose(v, key).([]any); ok {
				rawList = found
				break
			}
		}
	}
	if len(rawList) == 0 {
		return nil
	}

	var models []Model
	for _, raw := range rawList {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id := asString(lookupLoose(item, "id"))
		if id == "" {
			continue
		}
		model := Model{
			ID:            id,
			Name:          asString(lookupLoose(item, "name")),
			Description:   asString(lookupLoose(item, "description")),
			ContextLength: asInt(lookupLoose(item, "contextlength")),
		}
		if pricing, ok := lookupLoose(item, "pricing").(map[string]any); ok {
			model.PromptPrice = asString(lookupLoose(pricing, "prompt"))
		}
		if model.Name == "" {
			model.Name = model.ID
		}
		models = append(models, model)
	}
	return models
}

func lookupLoose(obj map[string]any, want string) any {
	for key, value := range obj {
		if normalizeKey(key) == want {
			return value
		}
	}
	return nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, "_", ""))
}

func asString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func asInt(value any) int {
	switch v := value.(type) {
	case float64:
		return int(v)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return 0
}
