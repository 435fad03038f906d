package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/itchyny/gojq"
)

func runActions(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: quill actions <list|execute>")
	}
	switch args[0] {
	case "list":
		return runActionsList(args[1:])
	case "execute":
		return runActionsExecute(args[1:])
	default:
		return fmt.Errorf("unknown actions subcommand %q", args[0])
	}
}

// runActionsList prints the local catalog. It does not need a running server
// or a stored token; registration is static.
func runActionsList(args []string) error {
	fs := flag.NewFlagSet("actions list", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "print the catalog as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := buildApp(ctx, loadConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	if *asJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"actions": a.registry.ListActions(),
			"types":   a.registry.ListTypes(),
		})
	}

	for _, desc := range a.registry.ListActions() {
		rerun := " "
		if desc.CanRerun {
			rerun = "r"
		}
		fmt.Printf("%-20s [%s] cost=%.1f value=%.1f  %s\n",
			desc.Name, rerun, desc.Cost, desc.Value, desc.Description)
		if len(desc.Preconditions) > 0 || len(desc.Postconditions) > 0 {
			fmt.Printf("  pre: %s  post: %s\n",
				strings.Join(desc.Preconditions, ","), strings.Join(desc.Postconditions, ","))
		}
	}
	return nil
}

// runActionsExecute sends one execution to the running server. Params come
// from --params (inline JSON) or --params-file; --jq filters the result.
func runActionsExecute(args []string) error {
	fs := flag.NewFlagSet("actions execute", flag.ExitOnError)
	paramsJSON := fs.String("params", "", "action parameters as inline JSON")
	paramsFile := fs.String("params-file", "", "read action parameters from a JSON file")
	jqFilter := fs.String("jq", "", "jq expression applied to the result")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: quill actions execute <name> [--params JSON] [--jq EXPR]")
	}
	name := fs.Arg(0)

	var params map[string]any
	raw := *paramsJSON
	if *paramsFile != "" {
		data, err := os.ReadFile(*paramsFile)
		if err != nil {
			return err
		}
		raw = string(data)
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return fmt.Errorf("invalid params JSON: %w", err)
		}
	}

	cfg := loadConfig()
	client := newAPIClient(cfg.APIBase)

	result, err := client.executeAction(context.Background(), name, params)
	if err != nil {
		return err
	}

	out := any(result)
	if *jqFilter != "" {
		out, err = applyJQ(*jqFilter, result)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// applyJQ runs a jq expression over the result map. A single output is
// returned directly; multiple outputs collect into a slice.
func applyJQ(expression string, data map[string]any) (any, error) {
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("jq parse error in %q: %w", expression, err)
	}
	code, err := gojq.Compile(query,
		// Sandbox: return empty env to block $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, fmt.Errorf("jq compile error in %q: %w", expression, err)
	}

	iter := code.Run(data)
	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, fmt.Errorf("jq evaluation failed: %w", err)
		}
		results = append(results, val)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}
