package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "worker",
	Short: "Clip-production worker — claims jobs and renders shorts",
	Long:  "A durable job-consumer that claims queued clip-production jobs, drives the audio/transcribe/segment/reframe/score/render pipeline, and writes clips back to the relational store.",
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reclaimCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
