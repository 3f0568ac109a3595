package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eunoia-health/eunoia/backend/internal/client"
	"github.com/eunoia-health/eunoia/backend/internal/service/assistant"
)

const quitCommand = "/salir"

var sessionFlag string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start or resume a conversation with Ana",
	Long: `Reads messages from standard input, one per line. Type /salir to leave.

Without --session a new server-issued session is opened; with it the stored
transcript is loaded first.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&sessionFlag, "session", "", "resume an existing session id")
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	api := newAPIClient()
	outbox := client.NewOutbox(api, client.WithOutboxLogger(logger.Named("outbox")))
	controller := client.NewController(
		client.User{ID: userID, FirstName: firstName},
		sessionFlag,
		assistant.NewReplier(firstName),
		outbox,
		client.WithSessionAPI(api),
		client.WithControllerLogger(logger.Named("controller")),
	)

	if sessionFlag != "" {
		if err := controller.Resume(ctx, sessionFlag); err != nil {
			return fmt.Errorf("resume session: %w", err)
		}
		for _, message := range controller.Transcript() {
			printMessage(out, string(message.Sender), message.Content)
		}
	} else if _, err := controller.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	fmt.Fprintf(out, "(sesión %s, escribe %s para salir)\n", controller.SessionID(), quitCommand)

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for update := range controller.Updates() {
			if update.Err != nil {
				fmt.Fprintln(out, "Ana no pudo responder, inténtalo de nuevo.")
			} else {
				printMessage(out, string(update.Message.Sender), update.Message.Content)
			}
		}
	}()

	failed := make(chan struct{})
	go func() {
		defer close(failed)
		for failure := range outbox.Failures() {
			fmt.Fprintf(out, "(no se pudo guardar un mensaje: %v)\n", failure.Err)
		}
	}()

	readLoop(ctx, cmd.InOrStdin(), controller, out)

	waitForReply(ctx, controller, 5*time.Second)
	controller.Close()
	<-printed

	closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := outbox.Close(closeCtx); err != nil {
		logger.Warn("pending messages were not saved", zap.Error(err))
	}
	<-failed
	return nil
}

func readLoop(ctx context.Context, in io.Reader, controller *client.Controller, out io.Writer) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == quitCommand {
				return
			}
			err := controller.Submit(ctx, line)
			switch {
			case err == nil, errors.Is(err, client.ErrEmptyInput):
			case errors.Is(err, client.ErrAwaitingReply):
				fmt.Fprintln(out, "(Ana está escribiendo...)")
			default:
				fmt.Fprintf(out, "(error: %v)\n", err)
			}
		}
	}
}

// waitForReply lets a pending reply arrive before the controller is closed.
func waitForReply(ctx context.Context, controller *client.Controller, limit time.Duration) {
	deadline := time.After(limit)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for controller.State() == client.StateAwaitingReply {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-ticker.C:
		}
	}
}

func printMessage(out io.Writer, sender, content string) {
	label := "Tú"
	if sender != "user" {
		label = "Ana"
	}
	fmt.Fprintf(out, "%s: %s\n", label, content)
}
