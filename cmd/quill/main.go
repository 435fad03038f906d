package main

import (
	"fmt"
	"os"
)

const usageText = `quill - blog publishing agent

Usage:
  quill serve                      Run the HTTP API server and scheduler
  quill mcp                        Serve the action catalog as MCP tools on stdio
  quill actions list               List registered actions and types
  quill actions execute <name>     Execute an action via the running server
  quill push <draft.md>            Create or update a post from a draft file
  quill pull <draft.md>            Refresh a draft file from its published post
  quill auth login                 Obtain an OAuth token via device flow
  quill auth token [file]          Store a token from a file or stdin
  quill version                    Print version

Run 'quill <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "mcp":
		err = runMCP(os.Args[2:])
	case "actions":
		err = runActions(os.Args[2:])
	case "push":
		err = runPush(os.Args[2:])
	case "pull":
		err = runPull(os.Args[2:])
	case "auth":
		err = runAuth(os.Args[2:])
	case "version", "--version", "-v":
		printVersion()
	case "help", "--help", "-h":
		fmt.Print(usageText)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
