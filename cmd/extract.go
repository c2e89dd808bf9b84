package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/curator"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
)

var (
	extractText      string
	extractURL       string
	extractFile      string
	extractSession   string
	extractMode      string
	extractTargets   []string
	extractCommit    bool
	extractMinConfid float64
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Propose knowledge-base changes for a piece of content",
	Long:  "Runs one extraction from --text, --url or --file (use - for stdin) and prints the proposed actions as JSON. With --commit, actions at or above --min-confidence are committed right away.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req, err := buildExtractRequest()
		if err != nil {
			return err
		}

		env, err := initCurator(ctx, "extract")
		if err != nil {
			return err
		}
		defer env.Close()

		resp, err := env.Service.Extract(ctx, req)
		if err != nil {
			return err
		}

		out := map[string]any{"extract": resp}
		if extractCommit && resp.SmartResult != nil {
			var items []model.CuratorAction
			for _, a := range resp.SmartResult.Actions {
				if a.Confidence >= extractMinConfid {
					items = append(items, a)
				}
			}
			if len(items) == 0 {
				zap.L().Info("no actions met the confidence threshold", zap.Float64("min_confidence", extractMinConfid))
			} else {
				commit, err := env.Service.Commit(ctx, curator.CommitRequest{SessionID: resp.SessionID, Items: items})
				if err != nil {
					return err
				}
				out["commit"] = commit
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func buildExtractRequest() (curator.ExtractRequest, error) {
	req := curator.ExtractRequest{
		SessionID: extractSession,
		Mode:      curator.Mode(extractMode),
	}
	for _, t := range extractTargets {
		req.TargetTypes = append(req.TargetTypes, model.EntityType(t))
	}

	set := 0
	for _, s := range []string{extractText, extractURL, extractFile} {
		if s != "" {
			set++
		}
	}
	if set != 1 {
		return req, eris.New("exactly one of --text, --url or --file is required")
	}

	switch {
	case extractText != "":
		req.Content = extractText
		req.ContentType = curator.ContentText
	case extractURL != "":
		req.Content = extractURL
		req.ContentType = curator.ContentURL
	default:
		var data []byte
		var err error
		if extractFile == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(extractFile)
			req.FileName = filepath.Base(extractFile)
		}
		if err != nil {
			return req, eris.Wrap(err, "read content")
		}
		req.Content = string(data)
		req.ContentType = curator.ContentFile
	}
	return req, nil
}

func init() {
	f := extractCmd.Flags()
	f.StringVar(&extractText, "text", "", "content to analyze")
	f.StringVar(&extractURL, "url", "", "URL to fetch and analyze")
	f.StringVar(&extractFile, "file", "", "file to analyze (- for stdin)")
	f.StringVar(&extractSession, "session", "", "continue an existing session")
	f.StringVar(&extractMode, "mode", "smart", "smart or legacy")
	f.StringSliceVar(&extractTargets, "target", nil, "restrict to entity types (repeatable)")
	f.BoolVar(&extractCommit, "commit", false, "commit proposed actions")
	f.Float64Var(&extractMinConfid, "min-confidence", 0.8, "minimum action confidence for --commit")
	rootCmd.AddCommand(extractCmd)
}
