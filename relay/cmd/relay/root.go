package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Call event relay",
	Long: `relay receives call-event webhooks from the telephony API, keeps a
per-call event history in memory and on disk, and streams each call's
events to browsers over server-sent events or WebSocket. It also proxies
two-leg call and hangup requests to the telephony API with the server-held
credential.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/callrelay/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
}
