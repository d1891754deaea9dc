// Package config provides configuration loading, merging, and path management for emigo.
//
// # Configuration Loading
//
// Load merges configuration from multiple sources in priority order:
//
//  1. Global config (~/.config/emigo/emigo.{json,jsonc,yaml,yml})
//  2. Project config (<dir>/.emigo/emigo.{json,jsonc,yaml,yml})
//  3. EMIGO_CONFIG file
//  4. EMIGO_CONFIG_CONTENT inline JSON
//  5. .env files in the project and global config directory
//  6. Environment variables (EMIGO_MODEL, EMIGO_BASE_URL, EMIGO_API_KEY,
//     EMIGO_MAP_TOKENS, EMIGO_TOKENIZER, EMIGO_LOG_LEVEL)
//
// JSONC comments are stripped with tidwall/jsonc; YAML files are decoded
// with yaml.v3.
//
// # Variable Interpolation
//
// Configuration files support two placeholders:
//   - {env:VAR_NAME} expands to an environment variable
//   - {file:path} expands to file contents (escaped for JSON)
//
// Example:
//
//	{
//	  "model": "openai/gpt-4o",
//	  "baseURL": "https://api.openai.com/v1",
//	  "apiKey": "{env:OPENAI_API_KEY}"
//	}
//
// # Lookups
//
// The session registry never reads Config directly. It asks a Provider for
// the keys it needs (emigo-model, emigo-base-url, emigo-api-key, ...) and
// treats empty answers as unset.
package config
