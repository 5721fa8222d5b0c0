package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/ggoodman/kritor-gateway/config"
	"github.com/ggoodman/kritor-gateway/kritor"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

// schemaTypes are the documents plugin authors and operators ask for.
var schemaTypes = map[string]any{
	"config":           config.File{},
	"event":            kritor.Event{},
	"command-request":  kritor.CommandRequest{},
	"command-response": kritor.CommandResponse{},
	"send-message":     kritor.SendMessageRequest{},
	"elements":         kritor.Elements{},
}

func schemaNames() []string {
	names := make([]string, 0, len(schemaTypes))
	for name := range schemaTypes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "schema <" + strings.Join(schemaNames(), "|") + ">",
		Short:     "Print the JSON schema of a protocol or config type",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: schemaNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := reflectSchema(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}

func reflectSchema(name string) ([]byte, error) {
	v, ok := schemaTypes[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}
	r := &jsonschema.Reflector{ExpandedStruct: true}
	return json.MarshalIndent(r.Reflect(v), "", "  ")
}
