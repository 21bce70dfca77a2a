package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hrygo/estatebot/plugin/ai"
	"github.com/hrygo/estatebot/plugin/ai/valuation"
	"github.com/hrygo/estatebot/server/telegram"
)

var checkTokenCmd = &cobra.Command{
	Use:   "check-token",
	Short: "Verify TELEGRAM_BOT_TOKEN with getMe",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		if p.TelegramBotToken == "" {
			return errors.New("TELEGRAM_BOT_TOKEN environment variable is required")
		}

		me, err := telegram.New(telegram.Config{Token: p.TelegramBotToken}).GetMe(cmd.Context())
		if err != nil {
			return errors.Wrap(err, "token check failed")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "token is valid: @%s (%s, id %d)\n", me.Username, me.FirstName, me.ID)
		return nil
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse <message>",
	Short: "Show the addresses and query type extracted from a message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}

		var llm valuation.LLM
		if cfg := ai.NewConfigFromProfile(p); cfg.Validate() == nil {
			llm = ai.NewProvider(cfg)
		}
		q := valuation.NewParser(llm).Parse(cmd.Context(), args[0])

		fmt.Fprintln(cmd.OutOrStdout(), valuation.Summary(q))
		valid, invalid := valuation.ValidateAddresses(q.Addresses)
		if len(invalid) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "\n⚠️ Implausible: %q (valid: %d)\n", invalid, len(valid))
		}
		return nil
	},
}
