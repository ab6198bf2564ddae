package setup

import (
	"fmt"
	"io"
	"os"
)

// CLI provides command-line interface for setup operations.
type CLI struct {
	out io.Writer
}

// NewCLI creates a new setup CLI writing to out.
func NewCLI(out io.Writer) *CLI {
	return &CLI{out: out}
}

// Run executes the setup command based on the provided arguments.
func (c *CLI) Run(args []string) error {
	if len(args) == 0 {
		return c.showHelp()
	}

	switch args[0] {
	case "register":
		return c.register(args[1:])
	case "status":
		return c.showStatus(args[1:])
	case "help", "--help", "-h":
		return c.showHelp()
	default:
		fmt.Fprintf(c.out, "Unknown command: %s\n\n", args[0])
		return c.showHelp()
	}
}

func (c *CLI) showHelp() error {
	fmt.Fprint(c.out, `
SNP Search MCP Server Setup

Usage:
  mcp-server setup <command> [options]

Commands:
  register   Add the server to an MCP client config file
  status     Show whether the server is registered

Options:
  --config, -c     Client config file (required)
  --name, -n       Server name (default "snp-search")
  --binary, -b     Server binary (default: this executable)
  --search, -s     Elasticsearch address passed to the server
  --annotation, -a Annotation API base URL passed to the server
`)
	return nil
}

func parseOptions(args []string) Options {
	var opts Options
	for i := 0; i < len(args); i++ {
		if i+1 >= len(args) {
			break
		}
		switch args[i] {
		case "--config", "-c":
			opts.ConfigPath = args[i+1]
		case "--name", "-n":
			opts.ServerName = args[i+1]
		case "--binary", "-b":
			opts.BinaryPath = args[i+1]
		case "--search", "-s":
			opts.SearchAddress = args[i+1]
		case "--annotation", "-a":
			opts.AnnotationAPI = args[i+1]
		default:
			continue
		}
		i++
	}
	return opts
}

func (c *CLI) register(args []string) error {
	opts := parseOptions(args)
	if opts.BinaryPath == "" {
		if execPath, err := os.Executable(); err == nil {
			opts.BinaryPath = execPath
		}
	}

	if err := Register(opts); err != nil {
		return fmt.Errorf("failed to register server: %w", err)
	}

	fmt.Fprintf(c.out, "Registered %s in %s\n", opts.BinaryPath, opts.ConfigPath)
	return nil
}

func (c *CLI) showStatus(args []string) error {
	opts := parseOptions(args)
	if opts.ConfigPath == "" {
		return fmt.Errorf("config path is required")
	}

	status, err := GetStatus(opts.ConfigPath, opts.ServerName)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Config path: %s\n", status.ConfigPath)
	if status.Registered {
		fmt.Fprintf(c.out, "Status: registered (%s)\n", status.ServerPath)
	} else {
		fmt.Fprintln(c.out, "Status: not registered")
	}
	for _, issue := range status.Issues {
		fmt.Fprintf(c.out, "  - %s\n", issue)
	}

	return nil
}
