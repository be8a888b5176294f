package mapping

// DefaultProducerID is the registry key for the fallback mapping applied to
// unknown producers. The fallback uses flat field names equal to the canonical
// field names, so well-behaved producers work without any configuration.
const DefaultProducerID = "default"

// builtinMappings are the compiled-in mappings for known producers.
// File-based configuration overlays these at startup; it never mutates them.
func builtinMappings() map[string]FieldMapping {
	return map[string]FieldMapping{
		"client_A": {
			ClientIDField:  "source",
			MetricField:    "payload.metric",
			AmountField:    "payload.amount",
			TimestampField: "payload.timestamp",
		},
		"client_B": {
			ClientIDField:  "client",
			MetricField:    "event_type",
			AmountField:    "value",
			TimestampField: "event_time",
		},
		DefaultProducerID: {
			ClientIDField:  "source",
			MetricField:    "metric",
			AmountField:    "amount",
			TimestampField: "timestamp",
		},
	}
}

// Registry resolves producer identifiers to field mappings.
//
// The registry is built once at startup and is immutable afterwards: Lookup is
// a pure function of the producer identifier, so a single Registry is safe to
// share across concurrent requests without locking.
type Registry struct {
	mappings map[string]FieldMapping
}

// NewRegistry builds a registry from the built-in producer mappings overlaid
// with the file-based configuration. Config entries win over built-ins for the
// same producer identifier, which allows operators to correct a mapping
// without a new build.
func NewRegistry(cfg *Config) *Registry {
	mappings := builtinMappings()

	if cfg != nil {
		for producerID, fieldMapping := range cfg.ProducerMappings {
			mappings[producerID] = fieldMapping
		}
	}

	return &Registry{mappings: mappings}
}

// Lookup returns the field mapping for the given producer identifier.
// Unknown producer identifiers resolve to the default mapping.
func (r *Registry) Lookup(producerID string) FieldMapping {
	if fieldMapping, ok := r.mappings[producerID]; ok {
		return fieldMapping
	}

	return r.mappings[DefaultProducerID]
}

// Producers returns the producer identifiers known to the registry.
// Intended for startup logging and diagnostics, not request-path use.
func (r *Registry) Producers() []string {
	producers := make([]string, 0, len(r.mappings))
	for producerID := range r.mappings {
		producers = append(producers, producerID)
	}

	return producers
}
