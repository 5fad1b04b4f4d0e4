package main

import (
	"bufio"
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/chicha/internal/adapters/speech/stenod"
	"github.com/PabloGalante/chicha/internal/app/dictation"
	"github.com/PabloGalante/chicha/internal/app/dispatch"
)

var (
	dictateUser    string
	dictateSession string
	dictateSocket  string
	dictateNoSend  bool
)

var dictateCmd = &cobra.Command{
	Use:   "dictate",
	Short: "Dictate into the chat input through the local transcription daemon",
	Long: `Starts a dictation period on the transcription daemon. Finalized segments
are appended to the chat input. Press Enter (or Ctrl+C) to stop; the input is
then sent unless --no-send is given.`,
	Args: cobra.NoArgs,
	RunE: runDictate,
}

func init() {
	dictateCmd.Flags().StringVar(&dictateUser, "user", "cli", "user the new session belongs to")
	dictateCmd.Flags().StringVar(&dictateSession, "session", "", "existing session id (default: start a new one)")
	dictateCmd.Flags().StringVar(&dictateSocket, "socket", "", "daemon socket path (default: CHICHA_DAEMON_SOCKET or the daemon default)")
	dictateCmd.Flags().BoolVar(&dictateNoSend, "no-send", false, "print the transcript instead of sending it")
}

func runDictate(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	socket := dictateSocket
	if socket == "" {
		socket = cfg.DaemonSocket
	}

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	composer, err := openComposer(ctx, a, dictateUser, dictateSession)
	if err != nil {
		return err
	}

	sess := composer.AttachDictation(stenod.NewEngine(socket), dictation.WithLocale(cfg.SpeechLocale))
	defer composer.DetachDictation(sess)

	stderr := cmd.ErrOrStderr()
	sess.OnTranscript(func(u dictation.TranscriptUpdate) {
		fmt.Fprintf(stderr, "\r… %s\n", u.Transcript)
	})

	if err := sess.Start(ctx); err != nil {
		if msg := sess.Snapshot().ErrorMessage; msg != "" {
			return fmt.Errorf("%w (%s)", err, msg)
		}
		return err
	}
	fmt.Fprintln(stderr, "listening; press Enter to stop")

	enter := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		close(enter)
	}()

	select {
	case <-enter:
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sess.Stop(stopCtx); err != nil {
		return fmt.Errorf("stopping dictation: %w", err)
	}

	if snap := sess.Snapshot(); snap.IsError {
		return fmt.Errorf("speech recognition error: %s", snap.ErrorMessage)
	}

	input := composer.Dispatcher.Input()
	if dictateNoSend || input == "" {
		fmt.Fprintln(cmd.OutOrStdout(), input)
		return nil
	}

	return dispatchAndPrint(context.Background(), cmd.OutOrStdout(), a, composer, (*dispatch.Dispatcher).Send)
}
