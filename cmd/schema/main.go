// Command schema emits a JSON schema for the websocket wire protocol so
// client tooling can validate messages without hand-maintaining types.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"tilebound/server"
)

// protocol gathers every message that crosses the websocket, both
// directions, into one schema document.
type protocol struct {
	JoinEnvelope server.JoinEnvelope       `json:"joinEnvelope"`
	Input        server.InputFrame         `json:"input"`
	Welcome      server.WelcomeMessage     `json:"welcome"`
	State        server.StateMessage       `json:"state"`
	IdleWarning  server.IdleWarningMessage `json:"idleWarning"`
	IdleKick     server.IdleKickMessage    `json:"idleKick"`
}

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	if err := writeSchema(outPath, buildSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(protocol))
	schema.Title = "Tilebound Wire Protocol"
	schema.Description = "Messages exchanged between the Tilebound client and the room server"
	return schema
}

func writeSchema(path string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
