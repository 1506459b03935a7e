package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	port       string
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("QUIZROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "quiz-battle",
		Short: "Real-time multiplayer quiz battles over a shared state store",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// env values apply only to flags not given on the command line
			cmd.Flags().VisitAll(func(f *pflag.Flag) {
				if !f.Changed && v.IsSet(f.Name) {
					_ = cmd.Flags().Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
				}
			})
			return nil
		},
		SilenceUsage: true,
	}

	fs := cmd.PersistentFlags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.StringVar(&port, "port", "", "port to listen on, overrides server.port (env: QUIZROOM_PORT)")
	fs.StringVar(&configPath, "config", "config/config.yaml", "path to YAML config (env: QUIZROOM_CONFIG)")
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
	})

	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewSimulateCmd())
	return cmd
}
