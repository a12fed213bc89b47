package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tinkershack/fluffy-go"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "watchtree",
		Short: "Recursively watch directory trees for filesystem changes",
		Long:  "watchtree is a command-line front end over fluffy-go: it watches one or more directory trees and prints events as they happen.",
	}

	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(reinitiateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func watchCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "watch <root>...",
		Short: "Watch one or more directory trees and print events to stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := fluffy.Init(fluffy.PrintSink(func(format string, a ...any) {
				if !quiet {
					fmt.Printf(format, a...)
				}
			}), nil)
			if err != nil {
				return fmt.Errorf("init: %w", err)
			}
			defer fluffy.Destroy(h)

			for _, root := range args {
				if err := fluffy.AddRoot(h, root); err != nil {
					return fmt.Errorf("add_root %s: %w", root, err)
				}
				if !quiet {
					fmt.Printf("watching %s\n", root)
				}
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				_ = fluffy.Destroy(h)
			}()

			return fluffy.WaitUntilDone(h)
		},
	}

	cmd.Flags().BoolVar(&quiet, "quiet", false, "suppress event output, only report errors")
	return cmd
}

func reinitiateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reinitiate",
		Short: "Exercise the recovery path against a throwaway handle (diagnostic aid)",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := fluffy.Init(fluffy.PrintSink(func(format string, a ...any) { fmt.Printf(format, a...) }), nil)
			if err != nil {
				return fmt.Errorf("init: %w", err)
			}
			defer fluffy.Destroy(h)

			if err := fluffy.Reinitiate(h); err != nil {
				return fmt.Errorf("reinitiate: %w", err)
			}
			fmt.Println("reinitiate ok")
			return nil
		},
	}
}
