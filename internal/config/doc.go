// Package config loads the fluxstore YAML configuration file.
//
// The file tunes the store timings, the inspector server and the state
// storage backend, and declares seed stores the inspector exposes.
//
// Example configuration:
//
//	log_level: info
//
//	inspector:
//	  addr: 127.0.0.1:7070
//	  write_timeout: 10s
//	  token: ${FLUX_INSPECT_TOKEN:-}
//
//	timing:
//	  coalesce: 100ms
//	  load_debounce: 100ms
//	  grace_period: 50ms
//	  search_buffer: 300ms
//
//	state:
//	  backend: s3
//	  bucket: ${FLUX_STATE_BUCKET}
//	  prefix: ${FLUX_STATE_PREFIX:-fluxstore/}
//
//	stores:
//	  - name: todos
//	    defaults:
//	      filter: all
//	    capabilities: [sortable, searchable, stateful]
//	    state_key: todos
//	    state_properties: [sortProperty, sortDirection]
//
// Environment variables are expanded in the inspector address and token and
// in the state settings using ${VAR} or ${VAR:-default}.
package config
