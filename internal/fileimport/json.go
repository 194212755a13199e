package fileimport

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hochfrequenz/task-orchestrator/internal/runner"
)

// JSONImporter validates JSON files. A file holds one document, an array of
// documents, or one document per line. Every document must carry the
// RequiredFields (gjson paths).
type JSONImporter struct {
	RequiredFields []string

	// Handle, if set, is called for each valid document
	Handle func(ctx context.Context, c *runner.Controller, doc gjson.Result) error
}

func (j *JSONImporter) Import(ctx context.Context, c *runner.Controller, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	docs, err := parseDocuments(string(data))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	for i, doc := range docs {
		for _, field := range j.RequiredFields {
			if !doc.Get(field).Exists() {
				return fmt.Errorf("%s: record %d is missing field %s", path, i+1, field)
			}
		}
	}

	if j.Handle != nil {
		for _, doc := range docs {
			if err := j.Handle(ctx, c, doc); err != nil {
				return err
			}
		}
	}

	c.Logger().Info(fmt.Sprintf("Read %d record(s) from file: %s", len(docs), path))
	return nil
}

func parseDocuments(content string) ([]gjson.Result, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("file is empty")
	}

	if gjson.Valid(content) {
		doc := gjson.Parse(content)
		if doc.IsArray() {
			return doc.Array(), nil
		}
		return []gjson.Result{doc}, nil
	}

	var docs []gjson.Result
	for i, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !gjson.Valid(line) {
			return nil, fmt.Errorf("line %d is not valid JSON", i+1)
		}
		docs = append(docs, gjson.Parse(line))
	}
	return docs, nil
}
