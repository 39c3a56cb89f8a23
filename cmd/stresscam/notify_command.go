package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"stresscam/internal/auth"
	"stresscam/internal/notify"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test Telegram alert",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			bot := notify.NewTelegramBot(telegramConfig(cfg))
			if err := bot.SendTestMessage(cmd.Context()); err != nil {
				if errors.Is(err, notify.ErrDisabled) || errors.Is(err, notify.ErrNotConfigured) {
					fmt.Fprintln(cmd.OutOrStdout(), "Notification not sent")
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}

func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "hash-password <password>",
		Short:       "Print a bcrypt hash for auth.password",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
