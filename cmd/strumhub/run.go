package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/strumhub/strumhub/agent-plane/internal/config"
	"github.com/strumhub/strumhub/agent-plane/pkg/models"
	"github.com/strumhub/strumhub/agent-plane/pkg/server"
)

func newRunCmd() *cobra.Command {
	var (
		fields     []string
		inputJSON  string
		userID     string
		role       string
		entityID   string
		entityType string
	)

	cmd := &cobra.Command{
		Use:   "run <agent-id>",
		Short: "Execute one agent and print the response",
		Long: `Runs a single agent through the full pipeline (rate limit, validation,
permission, context, provider) and prints the AgentResponse as JSON.

  strumhub run lesson-notes --user t-1 --role teacher -f student_name=Jane -f notes="G major scale"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := parseInput(inputJSON, fields)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			srv, err := server.New(ctx, config.Load())
			if err != nil {
				return err
			}
			defer srv.Close(context.Background())

			resp := srv.Registry.Execute(ctx, args[0], input, models.AgentContext{
				UserID:     userID,
				UserRole:   models.ParseRole(role),
				EntityID:   entityID,
				EntityType: entityType,
			})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("agent %s failed: %s", args[0], resp.Error.Code)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "Input field as key=value (repeatable)")
	cmd.Flags().StringVar(&inputJSON, "input", "", "Input as a JSON object, or @file.json")
	cmd.Flags().StringVar(&userID, "user", "", "Caller user ID")
	cmd.Flags().StringVar(&role, "role", "anonymous", "Caller role")
	cmd.Flags().StringVar(&entityID, "entity", "", "Entity ID the request is about")
	cmd.Flags().StringVar(&entityType, "entity-type", "", "Entity type (student, lesson)")
	return cmd
}

// parseInput merges a JSON object (literal or @file) with key=value fields.
// Fields win on conflict.
func parseInput(raw string, fields []string) (map[string]any, error) {
	input := map[string]any{}
	if raw != "" {
		data := []byte(raw)
		if path, ok := strings.CutPrefix(raw, "@"); ok {
			b, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read input: %w", err)
			}
			data = b
		}
		if err := json.Unmarshal(data, &input); err != nil {
			return nil, fmt.Errorf("parse --input: %w", err)
		}
	}
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --field %q: want key=value", f)
		}
		input[k] = v
	}
	return input, nil
}
