package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vellum-wm/vellum/internal/config"
)

func configCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the vellum configuration",
		Long: `Manage the vellum configuration file

The file lives at $XDG_CONFIG_HOME/vellum/vellum.toml (override with
$VELLUM_CONFIG). Layout and rule edits are picked up live by a running
daemon; workspace name changes need a restart.`,
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Path()
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the effective configuration

Reads the file (creating it with defaults when missing), applies defaults
for absent keys, and prints the result.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Path()
			if err != nil {
				return err
			}
			if _, err := config.LoadFrom(path); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}

	editCmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit the configuration in $EDITOR",
		RunE: func(cmd *cobra.Command, args []string) error {
			return editConfigFile()
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the configuration to defaults",
		Long: `Reset the configuration file to default settings

Overwrites the existing configuration after confirmation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return resetConfig()
		},
	}

	configCmd.AddCommand(pathCmd, showCmd, editCmd, resetCmd)
	return configCmd
}

func editConfigFile() error {
	path, err := config.Path()
	if err != nil {
		return err
	}
	// Make sure the file exists before handing it to an editor.
	if _, err := config.LoadFrom(path); err != nil {
		return err
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		for _, candidate := range []string{"vim", "vi", "nano", "emacs"} {
			if _, err := exec.LookPath(candidate); err == nil {
				editor = candidate
				break
			}
		}
	}
	if editor == "" {
		return fmt.Errorf("no editor found; set $EDITOR")
	}

	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func resetConfig() error {
	path, err := config.Path()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Overwrite %s with defaults? [y/N] ", path)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			fmt.Println("aborted")
			return nil
		}
	}
	if err := config.Write(path, config.Default()); err != nil {
		return err
	}
	fmt.Printf("wrote defaults to %s\n", path)
	return nil
}
