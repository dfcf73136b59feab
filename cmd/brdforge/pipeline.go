package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/brdforge/internal/http"
	"github.com/fyrsmithlabs/brdforge/internal/signal"
)

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	var sessionID string
	var generate bool
	cmd := &cobra.Command{
		Use:   "classify [file]",
		Short: "Classify fragments from a file or stdin",
		Long: `Classify fragments and store the resulting items.

The input is a JSON array of fragments, or one fragment object per line:

  {"source_ref": "mail-1", "speaker": "alice", "raw_text": "...", "cleaned_text": "..."}

With the memory store nothing outlives the process, so pass --generate to
synthesize and validate the document in the same run.

Examples:
  # Classify a file into a new session
  brdforge classify fragments.json

  # Append to an existing session from stdin
  cat more.jsonl | brdforge classify --session 4f0c... -

  # Classify, generate and validate in one pass
  brdforge classify --generate fragments.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fragments, err := readFragmentsArg(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			return runClassify(cmd.Context(), opts, cmd.OutOrStdout(), sessionID, fragments, generate)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (default: a new uuid)")
	cmd.Flags().BoolVar(&generate, "generate", false, "generate and validate the document after classifying")
	return cmd
}

func runClassify(ctx context.Context, opts *rootOptions, out io.Writer, sessionID string, fragments []signal.RawFragment, generate bool) error {
	rt, err := newRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	items, err := rt.pipeline.Classify(ctx, sessionID, fragments)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}
	if !generate {
		return writeJSON(out, http.SummarizeItems(sessionID, items))
	}
	if err := generateDocument(ctx, rt, sessionID); err != nil {
		return err
	}
	return writeDocument(ctx, rt, out, sessionID)
}

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate and validate the document for a session",
		Long: `Freeze a snapshot of the session's signals, run every section agent
against it, validate the result and print the document.

Sections locked by a human edit are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			if err := generateDocument(cmd.Context(), rt, sessionID); err != nil {
				return err
			}
			return writeDocument(cmd.Context(), rt, cmd.OutOrStdout(), sessionID)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the latest document of a session",
		Long: `Run the validation gates over the latest section contents and print the
new flags. Flags are additive; earlier runs are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			flags, err := rt.validator.Validate(cmd.Context(), sessionID)
			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), http.FlagsResponse{SessionID: sessionID, Flags: flags})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newRestoreCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <item-id>...",
		Short: "Restore suppressed noise items as active signals",
		Long: `Mark noise items as manually restored. Restored items join the next
snapshot; a restore is never reverted by reclassification.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newBaseRuntime(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			for _, id := range args {
				if err := rt.store.Restore(cmd.Context(), id); err != nil {
					return fmt.Errorf("restore %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "restored %s\n", id)
			}
			return nil
		},
	}
}

// generateDocument runs synthesis then validation.
func generateDocument(ctx context.Context, rt *app, sessionID string) error {
	if _, err := rt.synth.Run(ctx, sessionID); err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	if _, err := rt.validator.Validate(ctx, sessionID); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return nil
}

func writeDocument(ctx context.Context, rt *app, out io.Writer, sessionID string) error {
	latest, err := rt.store.LatestSectionVersions(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("read sections: %w", err)
	}
	flags, err := rt.store.ListFlags(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("read flags: %w", err)
	}
	return writeJSON(out, http.NewDocument(sessionID, latest, flags))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readFragmentsArg reads from the named file, or stdin for no argument or "-".
func readFragmentsArg(stdin io.Reader, args []string) ([]signal.RawFragment, error) {
	if len(args) == 0 || args[0] == "-" {
		return readFragments(stdin)
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", args[0], err)
	}
	defer f.Close()
	return readFragments(f)
}

// readFragments accepts a JSON array or a stream of JSON objects and
// validates every fragment.
func readFragments(r io.Reader) ([]signal.RawFragment, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, errors.New("no fragments to classify")
	}

	var fragments []signal.RawFragment
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &fragments); err != nil {
			return nil, fmt.Errorf("failed to decode fragments: %w", err)
		}
	} else {
		dec := json.NewDecoder(strings.NewReader(trimmed))
		for {
			var f signal.RawFragment
			err := dec.Decode(&f)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("failed to decode fragment %d: %w", len(fragments), err)
			}
			fragments = append(fragments, f)
		}
	}

	if len(fragments) == 0 {
		return nil, errors.New("no fragments to classify")
	}
	for i, f := range fragments {
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("fragment %d: %w", i, err)
		}
	}
	return fragments, nil
}
