// Package cli implements the infernum-client command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix   = "INFERNUM"
	defaultHost = "localhost"
	defaultPort = 3000
)

// RootCommand holds the client command tree and its settings.
type RootCommand struct {
	cmd *cobra.Command
	v   *viper.Viper
	out io.Writer
}

// NewRootCommand builds the command tree. Flags may also be set from
// INFERNUM_-prefixed environment variables.
func NewRootCommand() *RootCommand {
	root := &RootCommand{
		v:   viper.New(),
		out: os.Stdout,
	}

	cmd := &cobra.Command{
		Use:   "infernum-client",
		Short: "Client for the Infernum inference server",
		Long: `infernum-client schedules inference on an Infernum server and
fetches the results.`,
		SilenceUsage: true,
	}

	pflags := cmd.PersistentFlags()
	pflags.String("host", defaultHost, "Server host (env INFERNUM_HOST)")
	pflags.Int("port", defaultPort, "Server port (env INFERNUM_PORT)")
	pflags.StringP("output", "o", string(FormatJSON), "Output format (json, yaml)")

	root.v.SetEnvPrefix(envPrefix)
	root.v.AutomaticEnv()
	_ = root.v.BindPFlag("host", pflags.Lookup("host"))
	_ = root.v.BindPFlag("port", pflags.Lookup("port"))
	_ = root.v.BindPFlag("output", pflags.Lookup("output"))

	root.cmd = cmd
	root.addSubCommands()

	return root
}

func (r *RootCommand) addSubCommands() {
	r.cmd.AddCommand(NewInferenceCommand(r))
	r.cmd.AddCommand(NewResultsCommand(r))
	r.cmd.AddCommand(NewStateCommand(r))
}

// Command returns the root cobra command.
func (r *RootCommand) Command() *cobra.Command {
	return r.cmd
}

// SetOutputWriter redirects command output.
func (r *RootCommand) SetOutputWriter(w io.Writer) {
	r.out = w
	r.cmd.SetOut(w)
}

// BaseURL is the server URL built from the host and port settings.
func (r *RootCommand) BaseURL() string {
	return "http://" + r.v.GetString("host") + ":" + strconv.Itoa(r.v.GetInt("port"))
}

// Client returns an API client for the configured server.
func (r *RootCommand) Client() *Client {
	return NewClient(r.BaseURL())
}

// ExecuteContext runs the command tree.
func (r *RootCommand) ExecuteContext(ctx context.Context) error {
	return r.cmd.ExecuteContext(ctx)
}

// Execute runs the client and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
