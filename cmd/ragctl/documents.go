package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/samzhu/ragkit/chat"
	"github.com/samzhu/ragkit/document"
	"github.com/samzhu/ragkit/memory"
	"github.com/samzhu/ragkit/rag"
	httptool "github.com/samzhu/ragkit/tools/http"
)

func newIngestCmd(opts *options) *cobra.Command {
	var (
		meta       map[string]string
		extensions []string
	)
	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Split, embed and store text files",
		Long: `Split, embed and store text files. Directories are walked recursively.

Examples:
  # Ingest a directory of markdown notes
  ragctl ingest ./notes

  # Tag the chunks with extra metadata
  ragctl ingest --meta team=search handbook.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metadata := make(map[string]any, len(meta))
			for k, v := range meta {
				metadata[k] = v
			}
			reader := rag.NewTextReader(metadata)
			reader.Extensions = extensions

			var docs []document.Document
			for _, path := range args {
				read, err := reader.Read(path)
				if err != nil {
					return err
				}
				docs = append(docs, read...)
			}
			return withApp(cmd.Context(), opts, false, func(a *app) error {
				n, err := a.pipeline.Ingest(cmd.Context(), docs)
				if err != nil {
					return fmt.Errorf("ingested %d chunks before failing: %w", n, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ingested %d documents as %d chunks\n", len(docs), n)
				return nil
			})
		},
	}
	cmd.Flags().StringToStringVar(&meta, "meta", nil, "metadata added to every document (key=value)")
	cmd.Flags().StringSliceVar(&extensions, "ext", nil, "file extensions read from directories (default .txt,.md)")
	return cmd
}

func newQueryCmd(opts *options) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Search the vector store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return withApp(cmd.Context(), opts, false, func(a *app) error {
				results, err := a.pipeline.Query(cmd.Context(), text, topK)
				if err != nil {
					return err
				}
				printResults(cmd.OutOrStdout(), results)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", rag.DefaultTopK, "number of chunks to return")
	return cmd
}

func newChatCmd(opts *options) *cobra.Command {
	var (
		grounded  bool
		topK      int
		system    string
		functions []string
		fetch     bool
		model     string
	)
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send one message to the chat model",
		Long: `Send one message to the chat model and print the reply.

Examples:
  # Answer from the ingested documents
  ragctl chat --rag "How long should the dough rest?"

  # Let the model call the calculator
  ragctl chat --function calculator "What is 17 * 23?"

  # Let the model read a page
  ragctl chat --fetch "Summarize https://go.dev/doc/effective_go"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			return withApp(cmd.Context(), opts, true, func(a *app) error {
				if fetch {
					if err := a.registry.Register(httptool.NewFetchTool(httptool.NewFetcher(0, 0))); err != nil {
						return err
					}
					functions = append(functions, httptool.FetchName)
				}
				req := chat.Request{System: system, User: message, Functions: functions, Model: model}
				out := cmd.OutOrStdout()
				if !grounded {
					reply, err := a.chat.Call(cmd.Context(), req)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, reply.Content)
					return nil
				}
				ans, err := a.pipeline.Ask(cmd.Context(), message, topK, req)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, ans.Content)
				if len(ans.Sources) > 0 {
					fmt.Fprintln(out, "\nsources:")
					printResults(out, ans.Sources)
				}
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&grounded, "rag", false, "ground the answer in retrieved chunks")
	flags.IntVarP(&topK, "top-k", "k", rag.DefaultTopK, "number of chunks retrieved with --rag")
	flags.StringVar(&system, "system", "", "system prompt for this message")
	flags.StringSliceVar(&functions, "function", nil, "functions the model may call")
	flags.BoolVar(&fetch, "fetch", false, "let the model fetch web pages")
	flags.StringVar(&model, "model", "", "chat model for this message, e.g. claude-3-5-haiku-20241022")
	return cmd
}

// withApp builds the app, runs fn and releases the app, saving any snapshot.
func withApp(ctx context.Context, opts *options, withChat bool, fn func(*app) error) error {
	a, err := buildApp(ctx, opts.cfg, opts.logger, withChat)
	if err != nil {
		return err
	}
	runErr := fn(a)
	if err := a.close(context.Background()); err != nil {
		opts.logger.Error("cleanup", zap.Error(err))
		if runErr == nil {
			return err
		}
	}
	return runErr
}

func printResults(w io.Writer, results []memory.SearchResult) {
	for i, r := range results {
		fmt.Fprintf(w, "%d. %.4f %s#%d\n", i+1, r.Score, r.Chunk.DocumentID, r.Chunk.Index)
		fmt.Fprintf(w, "   %s\n", preview(r.Chunk.Text, 160))
	}
}

// preview flattens text to one line of at most n runes.
func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
