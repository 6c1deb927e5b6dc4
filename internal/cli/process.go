package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/john/prayerlog/internal/message"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Extract prayer requests from a JSONL file of chat messages",
		Long: "Reads one chat message per line ({\"kind\", \"author\", \"text\", \"published_at\"}) " +
			"and prints one prayer request per line.",
		RunE: runProcess,
	}

	cmd.Flags().StringP("file", "f", "", "Input file (default: stdin)")

	RootCmd.AddCommand(cmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")

	cfg, closeLog, err := readConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	proc, err := newProcessor(cfg)
	if err != nil {
		return err
	}

	in := cmd.InOrStdin()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	msgs, err := readMessages(in)
	if err != nil {
		return err
	}

	requests, err := proc.ProcessBatch(msgs)
	for _, e := range unwrapJoined(err) {
		logger.Warn("skipped message", "error", e)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	for _, req := range requests {
		if err := enc.Encode(req); err != nil {
			return err
		}
	}

	logger.Info("processed messages", "messages", len(msgs), "detected", len(requests))
	return nil
}

// readMessages decodes one message per line; malformed lines are skipped
func readMessages(r io.Reader) ([]message.ChatMessage, error) {
	var msgs []message.ChatMessage
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var msg message.ChatMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			logger.Warn("skipping malformed line", "line", line, "error", err)
			continue
		}
		if msg.Kind == "" {
			msg.Kind = message.KindText
		}
		msgs = append(msgs, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return msgs, nil
}

func unwrapJoined(err error) []error {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return joined.Unwrap()
	}
	if err != nil {
		return []error{err}
	}
	return nil
}
