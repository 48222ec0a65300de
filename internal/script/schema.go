package script

const (
	ToolName        = "generate_psadt_script"
	ToolDescription = "Generates a structured PSADT script based on the provided installer metadata and requirements."
)

var sectionFields = []string{
	"pre_installation", "installation", "post_installation",
	"pre_uninstallation", "uninstallation", "post_uninstallation",
}

// Schema returns the JSON schema of Script used as the tool's parameters.
// Each call returns a fresh value so callers may mutate it.
func Schema() map[string]any {
	props := map[string]any{
		"variables": map[string]any{
			"type":                 "object",
			"description":          "PSADT variable declarations such as appVendor, appName and appVersion.",
			"additionalProperties": map[string]any{"type": "string"},
		},
		"custom_functions": map[string]any{
			"type":        "array",
			"description": "Full PowerShell function definitions used by the deployment.",
			"items":       map[string]any{"type": "string"},
		},
	}
	for _, f := range sectionFields {
		props[f] = sectionSchema()
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             []string{"installation"},
		"additionalProperties": false,
	}
}

func sectionSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
			"commands": map[string]any{
				"type":  "array",
				"items": commandSchema(),
			},
			"comment": map[string]any{"type": "string"},
		},
		"required":             []string{"name"},
		"additionalProperties": false,
	}
}

func commandSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{
				"type":        "string",
				"description": "PSADT cmdlet name, for example Execute-MSI or Execute-Process.",
			},
			"parameters": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": []string{"string", "boolean", "number"}},
			},
			"comment": map[string]any{"type": "string"},
		},
		"required":             []string{"name"},
		"additionalProperties": false,
	}
}
