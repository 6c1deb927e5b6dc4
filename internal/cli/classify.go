package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

type classification struct {
	Text  string `json:"text"`
	Score int    `json:"score"`
	Tier  string `json:"tier"`
	Label string `json:"label"`
}

func init() {
	cmd := &cobra.Command{
		Use:   "classify [text]",
		Short: "Score a message, or each line of stdin",
		RunE:  runClassify,
	}

	cmd.Flags().Bool("json", false, "Print one JSON object per message")

	RootCmd.AddCommand(cmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, closeLog, err := readConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	proc, err := newProcessor(cfg)
	if err != nil {
		return err
	}

	var texts []string
	if len(args) > 0 {
		texts = []string{strings.Join(args, " ")}
	} else {
		texts, err = readLines(cmd.InOrStdin())
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	for _, text := range texts {
		r := proc.Classify(text)
		c := classification{Text: text, Score: r.Score, Tier: r.Tier.String(), Label: r.Tier.Label()}
		if asJSON {
			if err := enc.Encode(c); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(out, "%d\t%-6s\t%s\n", c.Score, c.Tier, c.Text)
	}
	return nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return lines, nil
}
