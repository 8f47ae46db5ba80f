package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gatewaylab/agentrun/config"
	"github.com/gatewaylab/agentrun/store"

	// Step store backends, selected by the scheme of --store.
	_ "github.com/gatewaylab/agentrun/store/file"
	_ "github.com/gatewaylab/agentrun/store/memory"
	_ "github.com/gatewaylab/agentrun/store/postgres"
	_ "github.com/gatewaylab/agentrun/store/redis"
	_ "github.com/gatewaylab/agentrun/store/sqlite"
)

func newRootCmd(out io.Writer) *cobra.Command {
	v := config.NewViper()

	rootCmd := &cobra.Command{
		Use:           "agentrun",
		Short:         "agentrun runs LLM agents that act by writing code or calling tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(v.GetString(config.KeyEnvFile))
		},
	}
	rootCmd.SetOut(out)

	flags := rootCmd.PersistentFlags()
	flags.StringP(config.KeyModelID, "m", "", "Identifier of the model to use (e.g. 'Claude-Sonnet-4', 'Gemini-2.5-Flash'); defaults to $MODEL")
	flags.StringP(config.KeyAgentType, "a", config.AgentTypeCode, "Agent type: code or tool-calling")
	flags.String(config.KeyBaseURL, "", "Gateway base URL; defaults to $POE_BASE_URL, then $API_BASE_URL")
	flags.String(config.KeyBackend, config.BackendGateway, "Model client: gateway or langchain")
	flags.IntP(config.KeyVerbosity, "v", 2, "Console verbosity: 0 errors, 1 info, 2 debug")
	flags.Bool(config.KeyStream, false, "Stream model outputs")
	flags.String(config.KeyCodeBlockTags, "", "Code block tags of code agents: xml, markdown or 'open,close'")
	flags.String(config.KeyExtractor, "anchored", "Which code block of the output code agents run: anchored, unanchored or all")
	flags.String(config.KeyStore, "", fmt.Sprintf("Step store URL, one of the schemes %v", store.Schemes()))
	flags.String(config.KeyTranscriptFormat, "text", "Transcript format: text, json, yaml or html")
	flags.String(config.KeyEnvFile, ".env", "Environment file loaded before reading settings")
	flags.String(config.KeyStopPolicy, "never", "Which models receive stop sequences: never, always or except:model1,model2")
	flags.String(config.KeyLogLevel, "warn", "Log level of the agents' diagnostic log on stderr")
	cobra.CheckErr(v.BindPFlags(flags))

	rootCmd.AddCommand(
		newSimpleCmd(v),
		newToolsCmd(v),
		newStructuredCmd(v),
		newMultiCmd(v),
		newHistoryCmd(v),
	)
	return rootCmd
}

// runCommand builds the app from validated settings and runs fn.
func runCommand(v *viper.Viper, structured bool, fn func(cmd *cobra.Command, a *app) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load(v)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), settings, cmd.OutOrStdout(), structured)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a)
	}
}
