package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/rehearse/internal/chat"
	"github.com/MikeSquared-Agency/rehearse/internal/report"
)

var chatMessage string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask the AI assistant about the latest report",
	Long:  "Starts from the conversation recorded during the interview. Type a message and press Enter; /quit or end of input exits.",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Send one message and exit")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		ctx := cmd.Context()
		if _, err := a.requireSession(ctx); err != nil {
			return err
		}
		result, err := report.NewRenderer(a.client, a.results, a.catalog, a.log).Load(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		session := chat.NewSession(a.client, a.log)
		sub := session.OnMessage(func(l chat.Line) {
			fmt.Fprintf(out, "%s: %s\n", l.Speaker, l.Text)
		})
		defer sub.Unsubscribe()
		session.SeedFromAnalysis(result.ConversationAnalysis)

		if chatMessage != "" {
			return session.Send(ctx, chatMessage)
		}

		scanner := bufio.NewScanner(cmd.InOrStdin())
		for {
			fmt.Fprint(out, "> ")
			if !scanner.Scan() {
				fmt.Fprintln(out)
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "/quit" || line == "/exit" {
				return nil
			}
			// Failures are already rendered as an apology line.
			if err := session.Send(ctx, line); err != nil && !errors.Is(err, chat.ErrBusy) {
				a.log.WithError(err).Debug("chat send failed")
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	})
}
