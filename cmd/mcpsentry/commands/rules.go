package commands

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mcpsentry/mcpsentry/internal/audit"
	"github.com/mcpsentry/mcpsentry/internal/cfg"
	"github.com/mcpsentry/mcpsentry/internal/model"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage persisted proxy block and rate-limit rules",
	}
	cmd.AddCommand(newRulesListCmd(), newRulesAddCmd(), newRulesRemoveCmd(), newRulesExportCmd(), newRulesImportCmd())
	return cmd
}

func newRulesExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the persisted rule set as YAML",
		Long:  "Writes every persisted rule to stdout in the same YAML shape the config file's rules section uses, so a rule set can be versioned or moved between machines.",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openAuditStore()
			if err != nil {
				return err
			}
			defer store.Close()

			rules, err := store.LoadRules()
			if err != nil {
				return err
			}
			configs := make([]cfg.RuleConfig, len(rules))
			for i, r := range rules {
				configs[i] = cfg.RuleConfigFromModel(r)
			}
			out, err := yaml.Marshal(map[string][]cfg.RuleConfig{"rules": configs})
			if err != nil {
				return err
			}
			cmd.OutOrStdout().Write(out)
			return nil
		},
	}
}

func newRulesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load rules from a YAML file into the persisted rule set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			var doc struct {
				Rules []cfg.RuleConfig `yaml:"rules"`
			}
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}

			store, err := openAuditStore()
			if err != nil {
				return err
			}
			defer store.Close()

			for _, rc := range doc.Rules {
				r := rc.ToModel()
				if r.ID == "" {
					r.ID = uuid.NewString()
				}
				if err := store.PutRule(r); err != nil {
					return err
				}
			}
			fmt.Printf("Imported %d rule(s)\n", len(doc.Rules))
			return nil
		},
	}
}

func newRulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List persisted rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openAuditStore()
			if err != nil {
				return err
			}
			defer store.Close()

			rules, err := store.LoadRules()
			if err != nil {
				return err
			}
			if len(rules) == 0 {
				fmt.Println("No rules configured.")
				return nil
			}
			for _, r := range rules {
				fmt.Printf("%-36s %-11s %-6d %-20s %s\n", r.ID, r.Kind, r.Priority, r.Pattern, r.Reason)
			}
			return nil
		},
	}
}

func newRulesAddCmd() *cobra.Command {
	var (
		kind          string
		pattern       string
		scope         string
		priority      int
		reason        string
		maxCalls      int
		windowSeconds int
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a block or rate-limit rule",
		Example: `  mcpsentry rules add --kind block --pattern 'delete_*' --reason "destructive ops disabled"
  mcpsentry rules add --kind rate_limit --pattern '*' --max-calls 30 --window-seconds 60`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind != string(model.RuleBlock) && kind != string(model.RuleRateLimit) {
				return fmt.Errorf("--kind must be %q or %q", model.RuleBlock, model.RuleRateLimit)
			}
			if pattern == "" {
				return fmt.Errorf("--pattern is required")
			}

			store, err := openAuditStore()
			if err != nil {
				return err
			}
			defer store.Close()

			r := model.Rule{
				ID:            uuid.NewString(),
				Kind:          model.RuleKind(kind),
				Pattern:       pattern,
				Scope:         scope,
				Priority:      priority,
				Enabled:       true,
				Reason:        reason,
				MaxCalls:      maxCalls,
				WindowSeconds: windowSeconds,
			}
			if err := store.PutRule(r); err != nil {
				return err
			}
			fmt.Printf("Added rule %s\n", r.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(model.RuleBlock), "rule kind: block or rate_limit")
	cmd.Flags().StringVar(&pattern, "pattern", "", "glob pattern matched against the tool name")
	cmd.Flags().StringVar(&scope, "scope", "", "server name this rule applies to (empty = all servers)")
	cmd.Flags().IntVar(&priority, "priority", 0, "lower evaluates first")
	cmd.Flags().StringVar(&reason, "reason", "", "shown to the caller when a block rule fires")
	cmd.Flags().IntVar(&maxCalls, "max-calls", 0, "rate_limit: calls allowed per window")
	cmd.Flags().IntVar(&windowSeconds, "window-seconds", 60, "rate_limit: window size in seconds")

	return cmd
}

func newRulesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <rule-id>",
		Short: "Remove a persisted rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openAuditStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.DeleteRule(args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed rule %s\n", args[0])
			return nil
		},
	}
}

func openAuditStore() (*audit.Store, error) {
	config, err := cfg.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return audit.NewStore(config.Storage.AuditDBPath, nil)
}
