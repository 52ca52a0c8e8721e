package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harrison/auto-codex/internal/artifact"
	"github.com/harrison/auto-codex/internal/config"
	"github.com/harrison/auto-codex/internal/vcsgit"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold .auto-codex/ in the target repository",
	RunE:  runInit,
}

func init() {
	Root.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	git := vcsgit.New(flagRepoRoot)
	root, err := git.Root(ctx)
	if err != nil {
		return err
	}

	dotDir := filepath.Join(root, ".auto-codex")
	schemasDir := filepath.Join(dotDir, "schemas")
	if err := os.MkdirAll(schemasDir, 0o755); err != nil {
		return err
	}

	configPath := config.Path(root)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		data, err := json.MarshalIndent(config.Default(), "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(configPath, append(data, '\n'), 0o644); err != nil {
			return err
		}
	}

	for _, name := range []string{"plan", "task", "merge"} {
		dst := filepath.Join(schemasDir, name+".schema.json")
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		data, err := artifact.DefaultSchema(name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return err
		}
	}

	if err := vcsgit.EnsureIgnoreExcludes(root); err != nil {
		return err
	}

	logger.Success("initialized %s", dotDir)
	return nil
}
