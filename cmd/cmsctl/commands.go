package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sitecms/internal/auth"
	"sitecms/internal/cmsclient"
	"sitecms/internal/content"
	"sitecms/internal/docstore"
)

// withCoordinator opens the configured storage, builds a coordinator and
// closes the storage when fn returns.
func withCoordinator(fn func(ctx context.Context, c *cmsclient.Coordinator) error) error {
	persistent, session, err := OpenStorage(settings.Storage, settings.Session)
	if err != nil {
		return err
	}
	defer func() {
		_ = session.Close()
		_ = persistent.Close()
	}()

	c := cmsclient.New(cmsclient.Options{
		DocumentURL: settings.DocumentURL,
		Storage:     persistent,
		Session:     session,
		HTTPClient:  &http.Client{},
		Timeout:     settings.Timeout,
		Logger:      logger.Named("client"),
	})
	return fn(context.Background(), c)
}

func printJSON(w io.Writer, v any) error {
	raw, err := content.Encode(v)
	if err != nil {
		return err
	}
	_, err = w.Write(raw)
	return err
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Print the current document",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		output, _ := cmd.Flags().GetString("output")
		return withCoordinator(func(ctx context.Context, c *cmsclient.Coordinator) error {
			doc := c.Fetch(ctx, cmsclient.FetchOptions{Force: force})
			if dups := content.DuplicateIDs(doc); len(dups) > 0 {
				logger.Warn("document has duplicate entry ids", zap.Any("duplicates", dups))
			}
			if output == "" {
				return printJSON(cmd.OutOrStdout(), doc)
			}
			raw, err := content.Encode(doc)
			if err != nil {
				return err
			}
			return os.WriteFile(output, raw, 0o644)
		})
	},
}

var saveCmd = &cobra.Command{
	Use:   "save <file|->",
	Short: "Save a document through the edge service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}
		message, _ := cmd.Flags().GetString("message")
		key, _ := cmd.Flags().GetString("key")
		return withCoordinator(func(ctx context.Context, c *cmsclient.Coordinator) error {
			return save(ctx, cmd.OutOrStdout(), c, doc, key, message)
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Push legacy per-key records to the remote document",
	Long: `Reads the legacy per-collection records from local storage, saves them
as one document through the edge service and marks the site as migrated so
the remote document is preferred from then on.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")
		return withCoordinator(func(ctx context.Context, c *cmsclient.Coordinator) error {
			if c.Migrated(ctx) {
				fmt.Fprintln(cmd.OutOrStdout(), "already migrated")
				return nil
			}
			legacy := c.Legacy().Read(ctx)
			if legacy == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no legacy records found")
				return nil
			}
			if err := save(ctx, cmd.OutOrStdout(), c, legacy.Map(), "", message); err != nil {
				return err
			}
			if outcome := c.MarkMigrated(ctx); !outcome.OK() {
				return fmt.Errorf("saved, but could not record migration: %w", outcome.Err)
			}
			return nil
		})
	},
}

func save(ctx context.Context, out io.Writer, c *cmsclient.Coordinator, doc any, key, message string) error {
	if strings.TrimSpace(key) == "" {
		stored, err := c.AdminKey(ctx)
		if err != nil {
			return err
		}
		key = stored
	}
	result, err := c.Save(ctx, doc, cmsclient.SaveOptions{
		EndpointBase:  settings.Endpoint,
		Credential:    key,
		CommitMessage: message,
	})
	if err != nil {
		var remoteErr *cmsclient.RemoteWriteError
		if errors.As(err, &remoteErr) && remoteErr.Status == http.StatusUnauthorized {
			return fmt.Errorf("%w (run `cmsctl key set`)", err)
		}
		return err
	}
	return printJSON(out, result)
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(name)
}

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the admin key stored for this session",
}

var keySetCmd = &cobra.Command{
	Use:   "set [key]",
	Short: "Store the admin key (reads stdin when no argument is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value := ""
		if len(args) == 1 {
			value = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			value = line
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return cmsclient.ErrMissingCredential
		}
		return withCoordinator(func(ctx context.Context, c *cmsclient.Coordinator) error {
			return c.SetAdminKey(ctx, value)
		})
	},
}

var keyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Report whether an admin key is stored",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCoordinator(func(ctx context.Context, c *cmsclient.Coordinator) error {
			key, err := c.AdminKey(ctx)
			if err != nil {
				return err
			}
			if key == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "no admin key stored")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin key stored (%d characters)\n", len(key))
			return nil
		})
	},
}

var keyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the stored admin key",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCoordinator(func(ctx context.Context, c *cmsclient.Coordinator) error {
			return c.ClearAdminKey(ctx)
		})
	},
}

var keyHashCmd = &cobra.Command{
	Use:   "hash <key>",
	Short: "Print a bcrypt hash for CMS_ADMIN_KEY_BCRYPT",
	Args:  cobra.ExactArgs(1),
	// Needs neither storage nor config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashAdminKey(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the local document cache",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the cached document",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCoordinator(func(ctx context.Context, c *cmsclient.Coordinator) error {
			cached := c.Cache().Read(ctx)
			if cached == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "cache is empty")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), cached)
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the cached and in-memory document",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCoordinator(func(ctx context.Context, c *cmsclient.Coordinator) error {
			c.Reset()
			if outcome := c.Cache().Clear(ctx); !outcome.OK() {
				return outcome.Err
			}
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List commits of the document in a local site repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("repo")
		if dir == "" {
			dir = settings.RepoDir
		}
		limit, _ := cmd.Flags().GetInt("limit")

		repo := docstore.NewGitRepo(dir, settings.RepoBranch, settings.CMSPath)
		commits, err := repo.History(context.Background(), limit)
		if err != nil {
			return err
		}
		for _, commit := range commits {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %-16s %s\n",
				commit.ID[:7],
				commit.CreatedAt.Format("2006-01-02 15:04"),
				commit.Author,
				strings.TrimSpace(commit.Message),
			)
		}
		return nil
	},
}
