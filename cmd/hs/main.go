package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"hs-go/internal/app"
	"hs-go/internal/config"
	"hs-go/internal/model"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	userFlag    string
	verboseFlag bool
)

// newApp reads the config and creates an HSApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Mkdir", "Move").
func newApp(operation string) (*app.HSApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewHSApp(cfg, operation, userFlag, verboseFlag)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// withApp runs fn with a fresh app and closes it afterwards.
func withApp(operation string, fn func(a *app.HSApp) error) error {
	a, err := newApp(operation)
	if err != nil {
		return err
	}
	err = fn(a)
	if cerr := a.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

var rootCmd = &cobra.Command{
	Use:          "hs",
	Short:        "Personal file hosting catalog",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		cfg.User = userFlag

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Log Level: %s\n", cfg.LogLevel)
		fmt.Printf("User:      %s\n", cfg.User)
		fmt.Printf("Storage:   %s %s\n", cfg.Storage.Type, cfg.Storage.Root)
		fmt.Printf("Database:  %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Listing:   %d per page, sorted by %s\n", cfg.Listing.DefaultPageSize, cfg.Listing.DefaultSort)
		return nil
	},
}

// user command
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create a user and its storage tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("AddUser", func(a *app.HSApp) error {
			u, err := a.CreateUser(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("creating user: %w", err)
			}
			fmt.Printf("Created user %s (id %d)\n", u.Name, u.ID)
			return nil
		})
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("ListUsers", func(a *app.HSApp) error {
			users, err := a.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Println("No users.")
				return nil
			}
			for _, u := range users {
				fmt.Printf("%4d  %-20s  %s\n", u.ID, u.Name, formatTime(u.CreatedAt))
			}
			return nil
		})
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir PATH",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("Mkdir", func(a *app.HSApp) error {
			id, err := a.Mkdir(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("creating folder: %w", err)
			}
			fmt.Printf("Created folder %s (id %d)\n", args[0], id)
			return nil
		})
	},
}

var putCmd = &cobra.Command{
	Use:   "put LOCAL_FILE [PATH]",
	Short: "Upload a file, versioning an existing one",
	Long:  "Upload LOCAL_FILE to PATH. Without PATH the file is stored in the root folder under its own name. Use - to read from stdin.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			r    io.Reader = os.Stdin
			dest string
		)
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()
			r = f
			dest = filepath.Base(args[0])
		}
		if len(args) == 2 {
			dest = args[1]
		}
		if dest == "" {
			return fmt.Errorf("a destination path is required when reading from stdin")
		}

		return withApp("Put", func(a *app.HSApp) error {
			if _, err := a.Put(cmd.Context(), dest, r); err != nil {
				return fmt.Errorf("uploading: %w", err)
			}
			n, err := a.Stat(cmd.Context(), dest)
			if err != nil {
				return err
			}
			fmt.Printf("Stored %s (%s, %s, version %d)\n", n.FilesystemPath, humanize.Bytes(uint64(n.Size)), n.MimeType, n.Version)
			return nil
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get PATH",
	Short: "Write a file's content to stdout or a local file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		version, _ := cmd.Flags().GetInt64("version")

		var w io.Writer = os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			defer f.Close()
			w = f
		}

		return withApp("Get", func(a *app.HSApp) error {
			n, err := a.Get(cmd.Context(), args[0], version, w)
			if err != nil {
				return err
			}
			if output != "" {
				fmt.Printf("Wrote %s to %s\n", humanize.Bytes(uint64(n)), output)
			}
			return nil
		})
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [PATH]",
	Short: "List a folder",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sort, _ := cmd.Flags().GetString("sort")
		page, _ := cmd.Flags().GetInt("page")
		pageSize, _ := cmd.Flags().GetInt("page-size")

		target := ""
		if len(args) > 0 {
			target = args[0]
		}

		return withApp("List", func(a *app.HSApp) error {
			opts, err := a.ListOptions(sort, page, pageSize)
			if err != nil {
				return err
			}
			p, err := a.List(cmd.Context(), target, opts)
			if err != nil {
				return err
			}
			if p.Total == 0 {
				fmt.Println("Empty folder.")
				return nil
			}
			for _, n := range p.Items {
				fav := " "
				if n.IsFavorite {
					fav = "*"
				}
				size := "-"
				title := n.Title + "/"
				if n.Type == model.File {
					size = humanize.Bytes(uint64(n.Size))
					title = n.Title
				}
				fmt.Printf("%s %6d  %9s  %s  %-24s  %s\n", fav, n.ID, size, formatTime(n.ModifiedAt), n.MimeType, title)
			}
			if opts.PageSize > 0 {
				pages := (p.Total + opts.PageSize - 1) / opts.PageSize
				fmt.Printf("\npage %d of %d (%d items)\n", opts.Page, pages, p.Total)
			}
			return nil
		})
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree [PATH]",
	Short: "Show a folder's subtree",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := ""
		if len(args) > 0 {
			target = args[0]
		}
		return withApp("Tree", func(a *app.HSApp) error {
			entries, err := a.Tree(cmd.Context(), target)
			if err != nil {
				return err
			}
			for _, e := range entries {
				name := e.Node.Title
				if e.Node.Type == model.Folder {
					name += "/"
				} else {
					name += "  (" + humanize.Bytes(uint64(e.Node.Size)) + ")"
				}
				fmt.Printf("%s%s\n", strings.Repeat("  ", e.Depth), name)
			}
			return nil
		})
	},
}

var cpCmd = &cobra.Command{
	Use:   "cp SOURCE... DEST_FOLDER",
	Short: "Copy nodes into a folder",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("Copy", func(a *app.HSApp) error {
			srcs, dest := args[:len(args)-1], args[len(args)-1]
			if err := a.Copy(cmd.Context(), srcs, dest); err != nil {
				return fmt.Errorf("copying: %w", err)
			}
			fmt.Printf("Copied %d node(s) to %s\n", len(srcs), dest)
			return nil
		})
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv SOURCE... DEST_FOLDER",
	Short: "Move nodes into a folder",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("Move", func(a *app.HSApp) error {
			srcs, dest := args[:len(args)-1], args[len(args)-1]
			if err := a.Move(cmd.Context(), srcs, dest); err != nil {
				return fmt.Errorf("moving: %w", err)
			}
			fmt.Printf("Moved %d node(s) to %s\n", len(srcs), dest)
			return nil
		})
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename PATH TITLE",
	Short: "Rename a node",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("Rename", func(a *app.HSApp) error {
			if err := a.Rename(cmd.Context(), args[0], args[1]); err != nil {
				return fmt.Errorf("renaming: %w", err)
			}
			fmt.Printf("Renamed %s to %s\n", args[0], args[1])
			return nil
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm PATH...",
	Short: "Move nodes to the trash",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		permanent, _ := cmd.Flags().GetBool("permanent")
		operation := "Trash"
		if permanent {
			operation = "Delete"
		}
		return withApp(operation, func(a *app.HSApp) error {
			if err := a.Remove(cmd.Context(), args, permanent); err != nil {
				return fmt.Errorf("removing: %w", err)
			}
			if permanent {
				fmt.Printf("Deleted %d node(s)\n", len(args))
			} else {
				fmt.Printf("Moved %d node(s) to the trash\n", len(args))
			}
			return nil
		})
	},
}

// trash command
var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "Manage the trash",
}

var trashListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trashed nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("ListTrash", func(a *app.HSApp) error {
			nodes, err := a.ListTrash(cmd.Context())
			if err != nil {
				return err
			}
			if len(nodes) == 0 {
				fmt.Println("Trash is empty.")
				return nil
			}
			for _, n := range nodes {
				fmt.Printf("%6d  %-6s  %9s  %s  %s\n",
					n.ID, n.Type, humanize.Bytes(uint64(n.Size)), humanize.Time(n.DeletedAt), n.FilesystemPath)
			}
			return nil
		})
	},
}

var trashPurgeCmd = &cobra.Command{
	Use:   "purge [ID...]",
	Short: "Permanently remove trashed nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if all == (len(args) > 0) {
			return fmt.Errorf("pass trash ids or --all")
		}

		if all {
			return withApp("EmptyTrash", func(a *app.HSApp) error {
				n, err := a.EmptyTrash(cmd.Context())
				if err != nil {
					return fmt.Errorf("emptying trash: %w", err)
				}
				fmt.Printf("Purged %d node(s)\n", n)
				return nil
			})
		}

		ids := make([]int64, 0, len(args))
		for _, arg := range args {
			id, err := parseID(arg)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return withApp("PurgeTrash", func(a *app.HSApp) error {
			for _, id := range ids {
				if err := a.PurgeTrash(cmd.Context(), id); err != nil {
					return fmt.Errorf("purging %d: %w", id, err)
				}
			}
			fmt.Printf("Purged %d node(s)\n", len(ids))
			return nil
		})
	},
}

var trashRestoreCmd = &cobra.Command{
	Use:   "restore ID",
	Short: "Restore a trashed node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp("Restore", func(a *app.HSApp) error {
			if err := a.RestoreTrash(cmd.Context(), id); err != nil {
				return fmt.Errorf("restoring %d: %w", id, err)
			}
			fmt.Printf("Restored %d\n", id)
			return nil
		})
	},
}

var versionsCmd = &cobra.Command{
	Use:   "versions PATH",
	Short: "List stored versions of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("Versions", func(a *app.HSApp) error {
			versions, err := a.Versions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				fmt.Println("No stored versions.")
				return nil
			}
			for _, v := range versions {
				fmt.Printf("v%-4d  %s  %9s\n", v.Version, formatTime(v.CreatedAt), humanize.Bytes(uint64(v.Size)))
			}
			return nil
		})
	},
}

var versionsRestoreCmd = &cobra.Command{
	Use:   "restore PATH VERSION",
	Short: "Make a stored version the current content of a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.ParseInt(strings.TrimPrefix(args[1], "v"), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version %q", args[1])
		}
		return withApp("RestoreVersion", func(a *app.HSApp) error {
			if err := a.RestoreVersion(cmd.Context(), args[0], version); err != nil {
				return fmt.Errorf("restoring version: %w", err)
			}
			fmt.Printf("Restored %s to v%d\n", args[0], version)
			return nil
		})
	},
}

var pathCmd = &cobra.Command{
	Use:   "path PATH",
	Short: "Show the breadcrumb of a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("Ancestors", func(a *app.HSApp) error {
			crumbs, err := a.Ancestors(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			parts := make([]string, 0, len(crumbs)+1)
			parts = append(parts, "~")
			for _, c := range crumbs {
				parts = append(parts, fmt.Sprintf("%s(%d)", c.Title, c.ID))
			}
			fmt.Println(strings.Join(parts, " / "))
			return nil
		})
	},
}

// fav command
var favCmd = &cobra.Command{
	Use:   "fav",
	Short: "Manage favorites",
}

var favAddCmd = &cobra.Command{
	Use:   "add PATH",
	Short: "Mark a node as favorite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("SetFavorite", func(a *app.HSApp) error {
			return a.SetFavorite(cmd.Context(), args[0], true)
		})
	},
}

var favRmCmd = &cobra.Command{
	Use:   "rm PATH",
	Short: "Unmark a favorite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("UnsetFavorite", func(a *app.HSApp) error {
			return a.SetFavorite(cmd.Context(), args[0], false)
		})
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		return withApp("GetHistory", func(a *app.HSApp) error {
			ops, err := a.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(ops) == 0 {
				fmt.Println("No operations recorded.")
				return nil
			}
			for _, op := range ops {
				duration := ""
				if op.FinishedAt != nil {
					duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
				}
				fmt.Printf("#%d  %-13s  %s  %-8s  %-8s  %s\n",
					op.ID,
					op.Operation,
					formatTime(op.StartedAt),
					op.Status,
					duration,
					op.Parameters,
				)
			}
			return nil
		})
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Catalog maintenance",
}

var dbExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a snapshot of the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		recipient, _ := cmd.Flags().GetString("recipient")
		output, _ := cmd.Flags().GetString("output")

		var w io.Writer = os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			defer f.Close()
			w = f
		}

		return withApp("Export", func(a *app.HSApp) error {
			if err := a.Export(cmd.Context(), w, recipient); err != nil {
				return fmt.Errorf("exporting catalog: %w", err)
			}
			if output != "" {
				fmt.Printf("Catalog exported to %s\n", output)
			}
			return nil
		})
	},
}

var dbSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the catalog schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("Schema", func(a *app.HSApp) error {
			schema, err := a.Schema(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Print(schema)
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "User to act as (default: user from config)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log at debug level")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// user subcommands
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)

	// trash subcommands
	trashCmd.AddCommand(trashListCmd)
	trashCmd.AddCommand(trashPurgeCmd)
	trashPurgeCmd.Flags().Bool("all", false, "Purge every trashed node")
	trashCmd.AddCommand(trashRestoreCmd)

	// fav subcommands
	favCmd.AddCommand(favAddCmd)
	favCmd.AddCommand(favRmCmd)

	// db subcommands
	dbCmd.AddCommand(dbExportCmd)
	dbExportCmd.Flags().StringP("recipient", "r", "", "age recipient (age1...) to encrypt the export to")
	dbExportCmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")
	dbCmd.AddCommand(dbSchemaCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().StringP("output", "o", "", "Write to a local file instead of stdout")
	getCmd.Flags().Int64("version", 0, "Read a stored version instead of the current content")
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().StringP("sort", "s", "", "Sort column[:desc] (title, modified_at, node_size, mime_type, id)")
	lsCmd.Flags().IntP("page", "p", 1, "Page number")
	lsCmd.Flags().Int("page-size", -1, "Items per page (0 lists everything; default from config)")
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(cpCmd)
	rootCmd.AddCommand(mvCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(rmCmd)
	rmCmd.Flags().Bool("permanent", false, "Delete without passing through the trash")
	rootCmd.AddCommand(trashCmd)
	rootCmd.AddCommand(versionsCmd)
	versionsCmd.AddCommand(versionsRestoreCmd)
	rootCmd.AddCommand(pathCmd)
	rootCmd.AddCommand(favCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(dbCmd)
}
