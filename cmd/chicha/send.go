package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/chicha/internal/app/conversation"
	"github.com/PabloGalante/chicha/internal/app/dispatch"
	"github.com/PabloGalante/chicha/internal/domain"
)

var (
	sendUser    string
	sendSession string
	sendSearch  bool
	sendImage   bool
)

var sendCmd = &cobra.Command{
	Use:   "send [text...]",
	Short: "Dispatch one utterance and print the resulting messages",
	Long: `Dispatches the given text (or stdin when no text is given) the same way
the chat input does: navigation, weather or a plain chat reply. Use --search
or --image to run the web-search or image-generation action instead.`,
	Example: `  chicha send "From: Pune To: Mumbai"
  chicha send --search golang generics
  echo "weather in London" | chicha send`,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendUser, "user", "cli", "user the new session belongs to")
	sendCmd.Flags().StringVar(&sendSession, "session", "", "existing session id (default: start a new one)")
	sendCmd.Flags().BoolVar(&sendSearch, "search", false, "run a web search")
	sendCmd.Flags().BoolVar(&sendImage, "image", false, "generate an image from the text")
	sendCmd.MarkFlagsMutuallyExclusive("search", "image")
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	text := strings.Join(args, " ")
	if text == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		text = string(data)
	}

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	composer, err := openComposer(ctx, a, sendUser, sendSession)
	if err != nil {
		return err
	}
	composer.Dispatcher.SetInput(text)

	action := (*dispatch.Dispatcher).Send
	switch {
	case sendSearch:
		action = (*dispatch.Dispatcher).Search
	case sendImage:
		action = (*dispatch.Dispatcher).GenerateImage
	}

	return dispatchAndPrint(ctx, cmd.OutOrStdout(), a, composer, action)
}

// openComposer resumes sessionID, or starts a new session for userID.
func openComposer(ctx context.Context, a *app, userID, sessionID string) (*conversation.Composer, error) {
	if sessionID == "" {
		out, err := a.conversations.StartSession(ctx, conversation.StartSessionInput{UserID: domain.UserID(userID)})
		if err != nil {
			return nil, err
		}
		sessionID = string(out.Session.ID)
		fmt.Fprintf(os.Stderr, "session %s\n", sessionID)
	}
	return a.conversations.Composer(ctx, domain.SessionID(sessionID))
}

func dispatchAndPrint(
	ctx context.Context,
	w io.Writer,
	a *app,
	c *conversation.Composer,
	action func(*dispatch.Dispatcher, context.Context) (*dispatch.Outcome, error),
) error {
	out, err := action(c.Dispatcher, ctx)
	if err != nil {
		return err
	}

	msgs, err := a.conversations.GetMessages(ctx, c.SessionID, out.Messages)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		fmt.Fprintf(w, "%s: %s\n", m.Author, m.Text)
	}
	for _, n := range c.Inbox.Drain() {
		fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", n.Kind, n.Title, n.Description)
	}

	if out.Failed() {
		return out.Err
	}
	return nil
}
