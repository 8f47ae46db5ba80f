package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gatewaylab/agentrun/agent"
	"github.com/gatewaylab/agentrun/config"
	"github.com/gatewaylab/agentrun/store"
	"github.com/gatewaylab/agentrun/tool"
	"github.com/gatewaylab/agentrun/transcript"
)

func newSimpleCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "simple",
		Short: "Run one agent without tools",
		Args:  cobra.NoArgs,
		RunE: runCommand(v, false, func(cmd *cobra.Command, a *app) error {
			ag, err := a.newAgent(agentSpec{name: a.agentName(""), maxSteps: 3})
			if err != nil {
				return err
			}
			a.track(ag)
			if _, err := ag.Run(cmd.Context(), "Tell me about you"); err != nil {
				return err
			}
			return a.finish(ag)
		}),
	}
}

func newToolsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Run one agent with the system information tool",
		Args:  cobra.NoArgs,
		RunE: runCommand(v, false, func(cmd *cobra.Command, a *app) error {
			ag, err := a.newAgent(agentSpec{
				name:     a.agentName(""),
				tools:    []tool.Tool{tool.NewExtendedSystemInfoTool(nil)},
				maxSteps: 3,
			})
			if err != nil {
				return err
			}
			a.track(ag)
			if _, err := ag.Run(cmd.Context(), "Tell me the system specs"); err != nil {
				return err
			}
			return a.finish(ag)
		}),
	}
}

func newStructuredCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "structured",
		Short: "Run a structured-output code agent twice without resetting its memory",
		Args:  cobra.NoArgs,
		RunE: runCommand(v, true, func(cmd *cobra.Command, a *app) error {
			ag, err := a.newAgent(agentSpec{
				name:       a.agentName(""),
				tools:      []tool.Tool{tool.NewSystemInfoTool(nil)},
				maxSteps:   3,
				structured: a.settings.AgentType == config.AgentTypeCode,
			})
			if err != nil {
				return err
			}
			a.track(ag)

			result, err := ag.Run(cmd.Context(), "What is the system information?")
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Result: %v\n", result.Output)
			fmt.Fprintf(a.out, "Result type: %T\n", result.Output)

			if _, err := ag.Run(cmd.Context(), "Are there more than 20 MB of memory free?", agent.WithReset(false)); err != nil {
				return err
			}
			return a.finish(ag)
		}),
	}
}

func newMultiCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "multi",
		Short: "Run a manager agent delegating to a provider agent",
		Args:  cobra.NoArgs,
		RunE: runCommand(v, false, func(cmd *cobra.Command, a *app) error {
			provider, err := a.newAgent(agentSpec{
				name:        a.agentName("provider"),
				description: "A provider agent, which can fetch system information.",
				tools:       []tool.Tool{tool.NewSystemInfoStringTool(nil)},
				maxSteps:    2,
			})
			if err != nil {
				return err
			}
			manager, err := a.newAgent(agentSpec{
				name:        a.agentName("manager"),
				description: "A manager agent, which can manage a provider agent",
				managed:     []*agent.Agent{provider},
				maxSteps:    2,
			})
			if err != nil {
				return err
			}
			a.track(manager)
			if _, err := manager.Run(cmd.Context(), "What is the system information?"); err != nil {
				return err
			}
			return a.finish(manager)
		}),
	}
}

func newHistoryCmd(v *viper.Viper) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the transcript of a recorded run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := config.Read(v)
			if settings.Store == "" {
				return errors.New("history needs a step store: pass --store")
			}
			format, err := transcript.ParseFormat(settings.TranscriptFormat)
			if err != nil {
				return err
			}

			s, err := store.Open(cmd.Context(), settings.Store)
			if err != nil {
				return err
			}
			defer s.Close()

			records, err := s.List(cmd.Context(), runID)
			if err != nil {
				return fmt.Errorf("failed to list steps of run %s: %w", runID, err)
			}
			if len(records) == 0 {
				return fmt.Errorf("no steps recorded for run %s", runID)
			}
			steps, err := store.Steps(records)
			if err != nil {
				return err
			}
			return transcript.Write(cmd.OutOrStdout(), steps, format)
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "Identifier of the recorded run")
	_ = cmd.MarkFlagRequired("run-id")
	return cmd
}
