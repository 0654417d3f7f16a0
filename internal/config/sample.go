package config

// SampleConfig returns a fully commented configuration file with every
// option at its default value
func SampleConfig() string {
	return `# notedex configuration
version: "1.0"

vault:
  # Directory holding the notes; the command line argument wins over this
  root: "."
  # File name patterns that are indexed
  include: ["*.md", "*.markdown", "*.csv"]
  # Directory names that are never entered
  exclude: [".git", "node_modules", ".obsidian"]

index:
  # Background parse workers
  workers: 2
  # Quiet period before a write is reported as a modification
  watch_debounce: 250ms
  # Longest wait for the initial parse of the vault
  settle_timeout: 60s

cache:
  # CSV tables older than this are reloaded on next access
  expiry: 300s
  # Maximum number of cached tables
  capacity: 256
  # Remote (http/https) fetches per second, and the burst allowed above it
  fetch_rate: 2
  fetch_burst: 4
  fetch_timeout: 15s

output:
  # text|json|csv|markdown
  default_format: text
  # auto|always|never
  color_mode: auto
  verbose: false
  # text|json
  log_format: text

metrics:
  # Serve Prometheus metrics while watching
  enabled: false
  address: "127.0.0.1:9464"
`
}

// MinimalSampleConfig returns a compact configuration with the settings
// most often changed
func MinimalSampleConfig() string {
	return `version: "1.0"
vault:
  root: "."
index:
  workers: 2
output:
  default_format: text
`
}
