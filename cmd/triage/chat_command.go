package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"triage/internal/history"
	"triage/internal/logging"
	"triage/internal/request"
	"triage/internal/services/llm"
)

const chatContextLimit = 20

func newChatCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the health-information assistant",
		Long: `Send one message and print the reply, or start an interactive session
when no message is given. The transcript persists across invocations.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.openServices(true)
			if err != nil {
				return err
			}
			defer svc.Close()

			if len(args) == 1 {
				reply, err := sendChatMessage(cmd.Context(), svc, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), reply)
				return nil
			}
			return runChatSession(cmd, svc)
		},
	}
	return cmd
}

// sendChatMessage persists the user message, asks the assistant, and persists
// the reply. Transport failures degrade to the canned fallback.
func sendChatMessage(ctx context.Context, svc *services, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("message required")
	}

	recent, err := svc.store.Transcript(ctx, svc.session.UserID, chatContextLimit)
	if err != nil {
		return "", err
	}
	transcript := make([]llm.Turn, len(recent))
	for i, msg := range recent {
		transcript[i] = llm.Turn{Role: string(msg.Role), Text: msg.Content}
	}

	if err := svc.store.AppendMessage(ctx, &history.Message{
		UserID:  svc.session.UserID,
		Role:    history.RoleUser,
		Content: message,
	}); err != nil {
		return "", err
	}

	reply, err := svc.client.Chat(ctx, transcript, message)
	if err != nil {
		svc.metrics.RecordChat(false)
		var reqErr *request.Error
		if errors.As(err, &reqErr) {
			svc.logger.Warn("chat fallback", logging.Error(err))
			return llm.FallbackMessage, nil
		}
		return "", err
	}
	svc.metrics.RecordChat(true)

	if err := svc.store.AppendMessage(ctx, &history.Message{
		UserID:  svc.session.UserID,
		Role:    history.RoleAssistant,
		Content: reply,
	}); err != nil {
		svc.logger.Error("save assistant reply failed", logging.Error(err))
	}
	return reply, nil
}

func runChatSession(cmd *cobra.Command, svc *services) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Interactive chat. Empty line or Ctrl-D exits.")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			fmt.Fprintln(out)
			return nil
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			return nil
		}
		reply, err := sendChatMessage(cmd.Context(), svc, message)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, reply)
	}
}
