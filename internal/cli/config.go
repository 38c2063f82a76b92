package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/guardian/internal/config"
)

// resolvedConfig prints as key=value lines in text mode.
type resolvedConfig struct {
	*config.Config
	Source string `json:"source"`
}

func (c resolvedConfig) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "source=%s\n", c.Source)
	fmt.Fprintf(&b, "backend=%s\n", c.Backend)
	fmt.Fprintf(&b, "acquire_timeout=%s\n", c.Timeout())
	fmt.Fprintf(&b, "log_level=%s\n", c.LogLevel)
	fmt.Fprintf(&b, "journal=%s\n", c.Journal)
	fmt.Fprintf(&b, "stress.workers=%d\n", c.Stress.Workers)
	fmt.Fprintf(&b, "stress.ops=%d\n", c.Stress.Ops)
	fmt.Fprintf(&b, "stress.stock=%d\n", c.Stress.Stock)
	return b.String()
}

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Long: `Print the configuration after unifying --config with the built-in
schema. Fields the file omits show their defaults.

Examples:
  guardian config
  guardian config --config guardian.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			source := rootOpts.ConfigPath
			if source == "" {
				source = "defaults"
			}
			return rootOpts.formatter(cmd).Success(resolvedConfig{
				Config: rootOpts.config(),
				Source: source,
			})
		},
	}
}
