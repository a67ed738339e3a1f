package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/source-knowledge/internal/bootstrap"
	"github.com/kirillkom/source-knowledge/internal/core/domain"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/filewatcher"
)

type appFactory func(ctx context.Context) (*bootstrap.App, error)

type cli struct {
	newApp  appFactory
	logger  *slog.Logger
	app     *bootstrap.App
	loadDir string
	topK    int
}

func newRootCommand(newApp appFactory, logger *slog.Logger) *cobra.Command {
	c := &cli{newApp: newApp, logger: logger}

	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Retrieve source knowledge and chat with augmented prompts",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			slog.SetDefault(c.logger)
			app, err := c.newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			c.app = app
			if c.topK <= 0 {
				c.topK = app.Config.RAGTopK
			}
			if c.loadDir != "" {
				if _, err := c.app.IngestDir(cmd.Context(), c.loadDir); err != nil {
					return err
				}
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.app != nil {
				c.app.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.loadDir, "load", "", "ingest every supported file in this directory before running")
	root.PersistentFlags().IntVarP(&c.topK, "top-k", "k", 0, "number of documents to retrieve (default RAG_TOP_K)")

	root.AddCommand(
		c.ingestCmd(),
		c.addCmd(),
		c.watchCmd(),
		c.retrieveCmd(),
		c.composeCmd(),
		c.askCmd(),
		c.chatCmd(),
	)
	return root
}

func (c *cli) ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Upload corpus files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				key, err := c.app.IngestFile(cmd.Context(), path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", path, key)
			}
			return nil
		},
	}
}

func (c *cli) addCmd() *cobra.Command {
	var id, title string
	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Add one document with inline text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := domain.Document{ID: id, Text: args[0]}
			if title != "" {
				doc.Metadata = map[string]string{domain.MetadataTitle: title}
			}
			return c.app.IngestUC.AddDocuments(cmd.Context(), []domain.Document{doc})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "document id")
	cmd.Flags().StringVar(&title, "title", "", "optional document title")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <dir>",
		Short: "Ingest files as they appear in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			watcher, err := filewatcher.New(c.app.Extractor.Supported, filewatcher.DefaultDebounce)
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			defer watcher.Stop()

			events, err := watcher.Watch(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("watch %s: %w", args[0], err)
			}
			c.logger.Info("watching_corpus_dir", "dir", args[0])
			for path := range events {
				key, err := c.app.IngestFile(cmd.Context(), path)
				if err != nil {
					c.logger.Error("watch_ingest_failed", "path", path, "error", err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", path, key)
			}
			return nil
		},
	}
}

func (c *cli) retrieveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Print the top-k documents for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := c.app.Retriever.Retrieve(cmd.Context(), strings.Join(args, " "), c.topK)
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%.4f\t%s\t%s\n", r.Score, r.Document.ID, oneLine(r.Document.Text))
			}
			return nil
		},
	}
}

func (c *cli) composeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compose <query>",
		Short: "Print the augmented prompt for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			results, err := c.app.Retriever.Retrieve(cmd.Context(), query, c.topK)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.app.Composer.Compose(query, results))
			return nil
		},
	}
}

func (c *cli) askCmd() *cobra.Command {
	var augment bool
	var systemPrompt string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question in a fresh conversation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("system") {
				systemPrompt = c.app.SystemPrompt()
			}
			conv, err := c.app.Session.Start(cmd.Context(), systemPrompt)
			if err != nil {
				return err
			}
			question := strings.Join(args, " ")
			if augment {
				_, answer, err := c.app.Session.AskAugmented(cmd.Context(), conv, question, c.topK)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), answer)
				return nil
			}
			_, answer, err := c.app.Session.Ask(cmd.Context(), conv, question)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
	cmd.Flags().BoolVar(&augment, "augment", false, "retrieve source knowledge and send the augmented prompt")
	cmd.Flags().StringVar(&systemPrompt, "system", "", "system prompt (default from PROMPT_FILE)")
	return cmd
}

func (c *cli) chatCmd() *cobra.Command {
	var augment bool
	var systemPrompt, resume string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation; type /exit to quit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var (
				conv *domain.Conversation
				err  error
			)
			if resume != "" {
				conv, err = c.app.Session.Load(ctx, resume)
			} else {
				if !cmd.Flags().Changed("system") {
					systemPrompt = c.app.SystemPrompt()
				}
				conv, err = c.app.Session.Start(ctx, systemPrompt)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "conversation %s\n", conv.ID)
			return c.repl(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), conv, augment)
		},
	}
	cmd.Flags().BoolVar(&augment, "augment", false, "augment every question with retrieved source knowledge")
	cmd.Flags().StringVar(&systemPrompt, "system", "", "system prompt (default from PROMPT_FILE)")
	cmd.Flags().StringVar(&resume, "resume", "", "continue a stored conversation by id")
	return cmd
}

// repl reads one question per line. /augment toggles augmentation. A failed
// turn leaves the conversation as it was.
func (c *cli) repl(ctx context.Context, in io.Reader, out io.Writer, conv *domain.Conversation, augment bool) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/exit", "/quit":
			return nil
		case "/augment":
			augment = !augment
			fmt.Fprintf(out, "augment=%v\n", augment)
		default:
			var (
				answer string
				err    error
			)
			if augment {
				conv, answer, err = c.app.Session.AskAugmented(ctx, conv, line, c.topK)
			} else {
				conv, answer, err = c.app.Session.Ask(ctx, conv, line)
			}
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			} else {
				fmt.Fprintln(out, answer)
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 100 {
		return string(r[:100]) + "..."
	}
	return s
}
