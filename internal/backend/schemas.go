package backend

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const (
	schemaQuestions       = "questions"
	schemaUpload          = "upload"
	schemaAnalysis        = "analysis"
	schemaConversation    = "conversation"
	schemaChat            = "chat"
	schemaReport          = "report"
	schemaGeneratedReport = "generated_report"
	schemaLogin           = "login"
	schemaMessage         = "message"
	schemaHistory         = "history"
)

var (
	schemaOnce  sync.Once
	schemaCache map[string]*gojsonschema.Schema
	schemaErr   error
)

func loadSchemas() {
	schemaCache = make(map[string]*gojsonschema.Schema)
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		schemaErr = fmt.Errorf("read embedded schemas: %w", err)
		return
	}
	for _, e := range entries {
		data, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			schemaErr = fmt.Errorf("read schema %s: %w", e.Name(), err)
			return
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			schemaErr = fmt.Errorf("compile schema %s: %w", e.Name(), err)
			return
		}
		schemaCache[strings.TrimSuffix(e.Name(), ".schema.json")] = s
	}
}

// validateBody checks a 2xx response body against the named schema and
// returns a description of every violation.
func validateBody(name string, body []byte) error {
	schemaOnce.Do(loadSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	s, ok := schemaCache[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		msgs = append(msgs, fmt.Sprintf("%s: %s", field, desc.Description()))
	}
	return fmt.Errorf("response does not match %s schema: %s", name, strings.Join(msgs, "; "))
}
