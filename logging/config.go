package logging

import "time"

// Config selects the sinks a Router fans out to and how it buffers events.
type Config struct {
	EnabledSinks     []string       `json:"enabledSinks,omitempty" jsonschema:"description=Sink names to enable (console json memory)"`
	BufferSize       int            `json:"bufferSize,omitempty" jsonschema:"minimum=0,description=Router queue capacity"`
	MinimumSeverity  Severity       `json:"minimumSeverity,omitempty" jsonschema:"minimum=0,maximum=3,description=0 debug 1 info 2 warn 3 error"`
	Fields           map[string]any `json:"fields,omitempty" jsonschema:"description=Static fields merged into every event"`
	JSON             JSONConfig     `json:"json,omitempty"`
	DropWarnInterval time.Duration  `json:"-"`
}

// JSONConfig configures the newline-delimited JSON sink.
type JSONConfig struct {
	FilePath      string        `json:"filePath,omitempty" jsonschema:"description=Destination file for the json sink"`
	FlushInterval time.Duration `json:"-"`
}

func DefaultConfig() Config {
	return Config{
		EnabledSinks:     []string{"console"},
		BufferSize:       512,
		MinimumSeverity:  SeverityInfo,
		DropWarnInterval: 5 * time.Second,
		JSON: JSONConfig{
			FlushInterval: 2 * time.Second,
		},
	}
}

func (c Config) HasSink(name string) bool {
	for _, s := range c.EnabledSinks {
		if s == name {
			return true
		}
	}
	return false
}

func (c Config) CloneFields() map[string]any {
	if len(c.Fields) == 0 {
		return nil
	}
	cloned := make(map[string]any, len(c.Fields))
	for k, v := range c.Fields {
		cloned[k] = v
	}
	return cloned
}
