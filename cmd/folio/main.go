package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pbaille/folio/internal/api"
	"github.com/pbaille/folio/internal/catalog"
	"github.com/pbaille/folio/internal/config"
	"github.com/pbaille/folio/internal/domain"
	"github.com/pbaille/folio/internal/importer"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfg    = config.Load()
	logger *logrus.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "folio",
		Short: "Document catalog with shared classification terms",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = cfg.Logger()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfg.DBPath, "db", cfg.DBPath, "database path")
	rootCmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")

	rootCmd.AddCommand(openCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(termsCmd())
	rootCmd.AddCommand(setCmd())
	rootCmd.AddCommand(tagCmd())
	rootCmd.AddCommand(renameCmd())
	rootCmd.AddCommand(deleteTermCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openCatalog() (*catalog.Catalog, error) {
	// Ensure directory exists
	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return catalog.Open(catalog.Options{
		DBPath:      cfg.DBPath,
		QuietPeriod: cfg.QuietPeriod,
		Logger:      logger,
	})
}

// withCatalog runs fn against an open catalog and flushes pending edits on the way out.
func withCatalog(ctx context.Context, fn func(c *catalog.Catalog) error) error {
	c, err := openCatalog()
	if err != nil {
		return err
	}
	runErr := fn(c)
	if err := c.Close(ctx); err != nil && runErr == nil {
		return fmt.Errorf("changes could not be saved: %w", err)
	}
	return runErr
}

func openCmd() *cobra.Command {
	var light bool

	cmd := &cobra.Command{
		Use:   "open [file-or-url]",
		Short: "Open a document and reconcile its classification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := importer.Load(args[0])
			if err != nil {
				return err
			}

			return withCatalog(cmd.Context(), func(c *catalog.Catalog) error {
				reconcile := c.Reconcile
				if light {
					reconcile = c.CreateOrUpdate
				}
				outcome, err := reconcile(cmd.Context(), src)
				if err != nil {
					return err
				}
				fmt.Printf("%s  %s (%s)\n", short(src.ID), src.Title, outcome)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&light, "no-terms", false, "record the document without resolving its terms")
	return cmd
}

func listCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recently updated documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd.Context(), func(c *catalog.Catalog) error {
				docs, err := c.Documents(cmd.Context(), limit, 0)
				if err != nil {
					return err
				}

				if len(docs) == 0 {
					fmt.Println("No documents yet. Use 'folio open' to add one.")
					return nil
				}

				for _, d := range docs {
					fmt.Printf("%s  %s\n", short(d.ID), truncate(d.Title, 60))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of documents to show")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show document details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd.Context(), func(c *catalog.Catalog) error {
				id, err := resolveDocumentID(cmd.Context(), c, args[0])
				if err != nil {
					return err
				}
				doc, err := c.Document(cmd.Context(), id)
				if err != nil {
					return err
				}

				fmt.Printf("ID:      %s\n", doc.ID)
				fmt.Printf("Title:   %s\n", doc.Title)
				fmt.Printf("Path:    %s\n", doc.Path)
				fmt.Printf("Updated: %s\n", doc.UpdatedAt.Format("2006-01-02 15:04:05"))
				fmt.Printf("Visible: %t\n", doc.Visible)

				for _, kind := range domain.SingletonKinds {
					if t := doc.Singleton(kind); t != nil {
						fmt.Printf("%-9s%s\n", kind+":", t.Name)
					}
				}
				for _, kind := range domain.MultiValuedKinds {
					terms := doc.Terms[kind]
					if len(terms) == 0 {
						continue
					}
					fmt.Printf("\n%ss:\n", kind)
					for _, t := range terms {
						fmt.Printf("  - %s\n", t.Name)
					}
				}
				return nil
			})
		},
	}
}

func termsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "terms [kind]",
		Short: "List terms, optionally of one kind",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var kind domain.Kind
			if len(args) == 1 {
				k, err := domain.ParseKind(args[0])
				if err != nil {
					return err
				}
				kind = k
			}

			return withCatalog(cmd.Context(), func(c *catalog.Catalog) error {
				terms, err := c.Terms(cmd.Context(), kind)
				if err != nil {
					return err
				}

				if len(terms) == 0 {
					fmt.Println("No terms yet. Terms emerge from document classification.")
					return nil
				}

				// Build hierarchy map
				children := make(map[string][]domain.Term)
				var roots []domain.Term
				for _, t := range terms {
					if t.ParentID == nil {
						roots = append(roots, t)
					} else {
						children[*t.ParentID] = append(children[*t.ParentID], t)
					}
				}

				for _, t := range roots {
					fmt.Printf("%s  %-8s %s\n", short(t.ID), t.Kind, t.Name)
					for _, child := range children[t.ID] {
						fmt.Printf("%s  %-8s   %s\n", short(child.ID), child.Kind, child.Name)
					}
				}
				// categories or phases whose parent was not listed
				if kind.Parent() != "" && len(roots) == 0 {
					for _, t := range terms {
						fmt.Printf("%s  %-8s %s\n", short(t.ID), t.Kind, t.Name)
					}
				}
				return nil
			})
		},
	}
}

func setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set [id] [field] [value]",
		Short: "Set title, visibility, domain, category, status or phase",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, err := domain.ParseField(args[1])
			if err != nil {
				return err
			}
			value := ""
			if len(args) == 3 {
				value = args[2]
			}

			return withCatalog(cmd.Context(), func(c *catalog.Catalog) error {
				id, err := resolveDocumentID(cmd.Context(), c, args[0])
				if err != nil {
					return err
				}
				if err := c.EnqueueSingleton(id, field, value); err != nil {
					return err
				}
				return c.Flush(cmd.Context(), id)
			})
		},
	}
}

func tagCmd() *cobra.Command {
	var (
		kindName string
		added    []string
		removed  []string
	)

	cmd := &cobra.Command{
		Use:   "tag [id]",
		Short: "Add or remove tags (or other multi-valued terms)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(kindName)
			if err != nil {
				return err
			}

			return withCatalog(cmd.Context(), func(c *catalog.Catalog) error {
				id, err := resolveDocumentID(cmd.Context(), c, args[0])
				if err != nil {
					return err
				}
				if err := c.EnqueueMultiValued(id, kind, added, removed); err != nil {
					return err
				}
				if err := c.Flush(cmd.Context(), id); err != nil {
					return err
				}
				for _, name := range added {
					fmt.Printf("  + %s\n", name)
				}
				for _, name := range removed {
					fmt.Printf("  - %s\n", name)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&kindName, "kind", "k", string(domain.KindTag), "tag, medium, genre, topic or subject")
	cmd.Flags().StringSliceVarP(&added, "add", "a", nil, "names to add")
	cmd.Flags().StringSliceVarP(&removed, "remove", "r", nil, "names to remove")
	return cmd
}

func renameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename [term-id] [name]",
		Short: "Rename a term",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd.Context(), func(c *catalog.Catalog) error {
				id, err := resolveTermID(cmd.Context(), c, args[0])
				if err != nil {
					return err
				}
				term, err := c.RenameTerm(cmd.Context(), id, args[1])
				if err != nil {
					return err
				}
				fmt.Printf("Renamed %s to %s (%s)\n", short(term.ID), term.Name, term.Slug)
				return nil
			})
		},
	}
}

func deleteTermCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-term [term-id]",
		Short: "Delete a term and its references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd.Context(), func(c *catalog.Catalog) error {
				id, err := resolveTermID(cmd.Context(), c, args[0])
				if err != nil {
					return err
				}
				return c.DeleteTerm(cmd.Context(), id)
			})
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed [kind] [name...]",
		Short: "Create system-provided terms",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(args[0])
			if err != nil {
				return err
			}
			return withCatalog(cmd.Context(), func(c *catalog.Catalog) error {
				terms, err := c.Seed(cmd.Context(), kind, args[1:])
				if err != nil {
					return err
				}
				for _, t := range terms {
					fmt.Printf("  + %s (%s)\n", t.Name, t.Slug)
				}
				return nil
			})
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Pending edits are flushed by withCatalog once the server stops.
			return withCatalog(context.Background(), func(c *catalog.Catalog) error {
				return api.New(c, cfg.Addr, logger).Run(ctx)
			})
		},
	}

	cmd.Flags().StringVarP(&cfg.Addr, "addr", "a", cfg.Addr, "server address")
	return cmd
}

// resolveDocumentID accepts a full ID or a unique prefix of a recent document
func resolveDocumentID(ctx context.Context, c *catalog.Catalog, prefix string) (string, error) {
	docs, err := c.Documents(ctx, 100, 0)
	if err != nil {
		return "", err
	}
	for _, d := range docs {
		if strings.HasPrefix(d.ID, prefix) {
			return d.ID, nil
		}
	}
	return "", fmt.Errorf("document not found: %s", prefix)
}

func resolveTermID(ctx context.Context, c *catalog.Catalog, prefix string) (string, error) {
	terms, err := c.Terms(ctx, "")
	if err != nil {
		return "", err
	}
	for _, t := range terms {
		if strings.HasPrefix(t.ID, prefix) {
			return t.ID, nil
		}
	}
	return "", fmt.Errorf("term not found: %s", prefix)
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	// Replace newlines with spaces for display
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
