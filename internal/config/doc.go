// Package config handles configuration loading for teller.
//
// # Overview
//
// Configuration is loaded from YAML (or TOML, by file extension) with
// environment variable expansion. Load applies defaults and validates.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from the --config flag
//  2. Path from TELLER_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/teller/teller.yaml
//  4. ~/.config/teller/teller.yaml
//
// # Environment Variable Expansion
//
//	classifier:
//	  api_key: "${ANTHROPIC_API_KEY}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8000"
//
//	database:
//	  path: "~/.local/share/teller/teller.db"
//
//	classifier:
//	  provider: "anthropic"
//	  api_key: "${ANTHROPIC_API_KEY}"
//	  model: "claude-3-5-haiku-latest"
//	  max_tokens: 512
//	  temperature: 0.7
//	  timeout: "30s"
//
//	embedder:
//	  provider: "openai"       # openai, ollama, hash
//	  api_key: "${OPENAI_API_KEY}"
//	  model: "text-embedding-3-small"
//	  cache_size: 10000
//
//	retriever:
//	  index: "memory"          # memory, chromem
//	  top_k: 3
//	  timeout: "10s"
//
//	ledger:
//	  iban_attempts: 1000
//
//	chat:
//	  history_limit: 50
//	  rate_limit: 1.0          # messages per second per connection
//	  burst: 5
//
//	logging:
//	  level: "info"            # debug, info, warn, error
//	  format: "text"           # text, json
package config
