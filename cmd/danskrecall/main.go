package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"codeberg.org/snonux/danskrecall/internal/archive"
	"codeberg.org/snonux/danskrecall/internal/cli"
	"codeberg.org/snonux/danskrecall/internal/processor"
)

func main() {
	flags := cli.NewFlags()
	rootCmd := cli.CreateRootCommand(flags)

	cobra.OnInitialize(func() {
		cli.InitConfig(flags.CfgFile)
	})

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, args, flags)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		stop()
		os.Exit(1)
	}
}

func runCommand(cmd *cobra.Command, args []string, flags *cli.Flags) error {
	if err := cli.ApplyConfig(flags); err != nil {
		return err
	}
	if len(args) > 0 {
		flags.InputFile = args[0]
	}
	cli.SetupLogging(flags.Verbose)

	// Handle --archive-cache flag
	if flags.ArchiveCache {
		archivePath, err := archive.ArchiveCache(flags.CacheDir)
		if err != nil {
			return fmt.Errorf("failed to archive page cache: %w", err)
		}
		fmt.Printf("Page cache archived to: %s\n", archivePath)
		return nil
	}

	if err := flags.Validate(); err != nil {
		return err
	}

	proc, err := processor.NewProcessor(flags)
	if err != nil {
		return err
	}
	defer proc.Close()

	if _, err := proc.Run(cmd.Context()); err != nil {
		return err
	}

	fmt.Printf("\nDone! Audio saved to: %s\n", flags.MediaDir)
	return nil
}
