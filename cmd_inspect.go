package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/yourusername/stockmeta/handlers"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <image>",
	Short: "Print dimensions, segments, EXIF and XMP of an image as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	out, err := json.MarshalIndent(handlers.BuildInspectResponse(filepath.Base(args[0]), data), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
