package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/koompi/nimmit-assistant/pkg/audit"
	"github.com/koompi/nimmit-assistant/pkg/briefing"
	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
	"github.com/koompi/nimmit-assistant/pkg/models"
)

var chatClientID string

func init() {
	rootCmd.AddCommand(newChatCmd())
}

// chatService is the part of the briefing manager the chat loop drives.
type chatService interface {
	Send(ctx context.Context, clientID, message, sessionID string) (*briefing.TurnResult, error)
	GetActive(ctx context.Context, clientID string) (*models.BriefingSession, error)
	Abandon(ctx context.Context, clientID string) error
}

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Hold a briefing conversation in the terminal",
		Long: `Hold a briefing conversation against the local engine.

Each line you type is sent as one client message. An active session for the
client is resumed. Type /abandon to discard the session or /quit to leave it
open for later.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger()

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			manager, err := newBriefingManager(cfg, st, audit.NewRecorder(st, logger), logger)
			if err != nil {
				return err
			}

			interactive := term.IsTerminal(int(os.Stdin.Fd()))
			return runChat(cmd.Context(), manager, chatClientID, cfg.Briefing.OpeningMessage,
				os.Stdin, cmd.OutOrStdout(), interactive)
		},
	}

	cmd.Flags().StringVar(&chatClientID, "client", "", "client identity to converse as (required)")
	_ = cmd.MarkFlagRequired("client")

	return cmd
}

// runChat reads client messages from in, one per line, until the brief is
// complete, the client quits, or in is exhausted.
func runChat(ctx context.Context, svc chatService, clientID, opening string, in io.Reader, out io.Writer, interactive bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(clientID) == "" {
		return errors.New("--client is required")
	}

	sess, err := svc.GetActive(ctx, clientID)
	if err != nil {
		return err
	}
	sessionID := ""
	if sess != nil && len(sess.Messages) > 0 {
		sessionID = sess.ID
		fmt.Fprintf(out, "Resuming session %s\n", sess.ID)
		fmt.Fprintf(out, "Nimmit: %s\n", sess.Messages[len(sess.Messages)-1].Content)
	} else {
		fmt.Fprintf(out, "Nimmit: %s\n", opening)
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if interactive {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/abandon":
			if err := svc.Abandon(ctx, clientID); err != nil {
				return err
			}
			fmt.Fprintln(out, "Session abandoned.")
			return nil
		}

		res, err := svc.Send(ctx, clientID, line, sessionID)
		if err != nil {
			// Validation problems are the client's to fix; keep the loop going.
			if nimerrors.KindOf(err) == nimerrors.KindValidation {
				fmt.Fprintf(out, "Error: %s\n", nimerrors.FormatUserError(err))
				continue
			}
			return err
		}
		sessionID = res.SessionID

		fmt.Fprintf(out, "Nimmit: %s\n", res.Reply)
		if res.IsComplete {
			fmt.Fprintln(out, "Brief complete.")
			return nil
		}
	}

	return errors.Wrap(scanner.Err(), "failed to read input")
}
