package main

import (
	"fmt"

	"github.com/danmuck/snestrace/internal/config"
	"github.com/spf13/cobra"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check tracectl config files",
	}
	cmd.AddCommand(configValidateCmd(), configInitCmd())
	return cmd
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Load a config file and report the effective settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ok: %s\n", args[0])
			fmt.Fprintf(out, "  emulator:  %s:%d (%s)\n", cfg.Emulator.Host, cfg.Emulator.Port, cfg.Link.HandshakeMode)
			fmt.Fprintf(out, "  rom:       %q (%s)\n", cfg.ROM.Path, cfg.ROM.MapMode)
			fmt.Fprintf(out, "  stream:    %t\n", cfg.Link.Stream != nil)
			fmt.Fprintf(out, "  admin:     %q\n", cfg.Admin.Listen)
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a config file populated with defaults",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(args[0], force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}
