// ABOUTME: Logger construction from the shared CLI flags
// ABOUTME: Maps "off" levels to disabled sinks
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/megamicros/megamicros-go/internal/logx"
)

// buildLogger assembles a logger from the root command's persistent
// flags. A level of "off" disables that sink.
func buildLogger(cmd *cobra.Command) (*zap.Logger, error) {
	consoleLevel, _ := cmd.Flags().GetString("log-level")
	fileLevel, _ := cmd.Flags().GetString("file-log-level")
	filePath, _ := cmd.Flags().GetString("log-file")

	cfg := logx.Config{FilePath: filePath}

	if consoleLevel != "off" {
		if _, err := logx.ParseLevel(consoleLevel); err != nil {
			return nil, fmt.Errorf("invalid --log-level: %w", err)
		}
		cfg.ConsoleLevel = consoleLevel
	}
	if fileLevel != "off" {
		if _, err := logx.ParseLevel(fileLevel); err != nil {
			return nil, fmt.Errorf("invalid --file-log-level: %w", err)
		}
		cfg.FileLevel = fileLevel
	}

	return logx.New(cfg)
}
