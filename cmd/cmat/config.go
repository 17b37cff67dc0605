package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// configPath is where "config set" persists values when no file was loaded.
func configPath() (string, error) {
	if used := viper.ConfigFileUsed(); used != "" {
		return used, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, ".cmat.yaml"), nil
}

func newConfigCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit cmat settings",
		Long: `Without a subcommand, print the effective settings as YAML. Values come from
the built-in defaults, ~/.cmat.yaml (or --config) and CMAT_* environment
variables, in increasing order of precedence.`,
		Example: `  cmat config
  cmat config keys
  cmat config set ensembl.requests_per_second 5
  cmat config get cache.path`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := yaml.Marshal(viper.AllSettings())
			if err != nil {
				return fmt.Errorf("encode settings: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(doc)
			return err
		},
	}

	keys := &cobra.Command{
		Use:   "keys",
		Short: "List the recognised setting names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names := make([]string, 0, len(defaults()))
			for k := range defaults() {
				names = append(names, k)
			}
			sort.Strings(names)
			for _, k := range names {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Persist a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, raw := args[0], args[1]
			if _, ok := defaults()[key]; !ok {
				return fmt.Errorf("unknown configuration key %q (see 'cmat config keys')", key)
			}
			path, err := configPath()
			if err != nil {
				return err
			}
			viper.Set(key, parseValue(raw))
			if err := viper.WriteConfigAs(path); err != nil {
				return fmt.Errorf("save %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s in %s\n", key, raw, path)
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !viper.IsSet(args[0]) {
				return fmt.Errorf("key %q is not set", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), viper.Get(args[0]))
			return nil
		},
	}

	root.AddCommand(keys, set, get)
	return root
}

// parseValue types a command-line value so the YAML file keeps numbers and
// booleans unquoted.
func parseValue(raw string) any {
	switch raw {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if x, err := strconv.ParseFloat(raw, 64); err == nil {
		return x
	}
	return raw
}
