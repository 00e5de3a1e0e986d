// Command schemagen reflects the protocol message types into JSON schemas.
// With -check it only reports where the embedded schemas under
// internal/protocol/schemas have drifted from the Go types.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/invopop/jsonschema"

	"lockstep.rts/internal/protocol"
)

var messages = map[string]struct {
	value       any
	description string
}{
	protocol.TypeHello:   {protocol.HelloMsg{}, "First message a client sends after connecting to the relay."},
	protocol.TypeWelcome: {protocol.WelcomeMsg{}, "Relay reply to HELLO: seat assignment and rule digests."},
	protocol.TypeCommand: {protocol.CommandMsg{}, "One player command submitted for the next tick batch."},
	protocol.TypeTick:    {protocol.TickMsg{}, "Ordered command batch every participant applies for one tick."},
}

func main() {
	var (
		outDir = flag.String("out", "internal/protocol/schemas", "directory to write <type>.schema.json files to")
		check  = flag.Bool("check", false, "compare against the embedded schemas instead of writing")
	)
	flag.Parse()

	failed := false
	for _, typ := range messageTypes() {
		schema := reflectMessage(typ)
		if *check {
			embedded, err := protocol.SchemaJSON(typ)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", typ, err)
				failed = true
				continue
			}
			problems, err := drift(schema, embedded)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", typ, err)
				failed = true
				continue
			}
			for _, p := range problems {
				fmt.Fprintf(os.Stderr, "%s: %s\n", typ, p)
				failed = true
			}
			continue
		}
		path := filepath.Join(*outDir, protocol.SchemaFiles[typ])
		if err := writeSchema(path, schema); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("wrote", path)
	}
	if failed {
		os.Exit(1)
	}
}

func messageTypes() []string {
	out := make([]string, 0, len(messages))
	for typ := range messages {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

func reflectMessage(typ string) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	m := messages[typ]
	schema := reflector.Reflect(m.value)
	schema.Version = jsonschema.Version
	schema.ID = ""
	schema.Title = typ
	schema.Description = m.description
	if p, ok := schema.Properties.Get("type"); ok {
		p.Const = typ
	}
	return schema
}

// drift lists the top-level properties and required fields on which the
// reflected schema and an embedded schema document disagree.
func drift(reflected *jsonschema.Schema, embedded []byte) ([]string, error) {
	var doc struct {
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	if err := json.Unmarshal(embedded, &doc); err != nil {
		return nil, fmt.Errorf("decode embedded schema: %w", err)
	}

	goProps := map[string]bool{}
	for pair := reflected.Properties.Oldest(); pair != nil; pair = pair.Next() {
		goProps[pair.Key] = true
	}
	var problems []string
	for name := range goProps {
		if _, ok := doc.Properties[name]; !ok {
			problems = append(problems, "property "+name+" missing from schema")
		}
	}
	for name := range doc.Properties {
		if !goProps[name] {
			problems = append(problems, "property "+name+" not in Go type")
		}
	}

	want := map[string]bool{}
	for _, r := range reflected.Required {
		want[r] = true
	}
	have := map[string]bool{}
	for _, r := range doc.Required {
		have[r] = true
	}
	for r := range want {
		if !have[r] {
			problems = append(problems, "field "+r+" should be required")
		}
	}
	for r := range have {
		if !want[r] {
			problems = append(problems, "field "+r+" is required but optional in Go type")
		}
	}
	sort.Strings(problems)
	return problems, nil
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}
	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}
