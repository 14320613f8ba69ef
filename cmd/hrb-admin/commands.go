// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/nestal/hearty-rabbit/auth"
	"github.com/nestal/hearty-rabbit/lib/blob"
	"github.com/nestal/hearty-rabbit/lib/config"
	"github.com/nestal/hearty-rabbit/lib/secret"
	"github.com/nestal/hearty-rabbit/ownership"
	"github.com/nestal/hearty-rabbit/redis"
)

const defaultConfigPath = "/etc/hearty-rabbit/hearty-rabbit.jsonc"

// session is the shared state of one admin invocation: configuration,
// a store connection, and a context that ends on SIGINT/SIGTERM.
type session struct {
	ctx    context.Context
	config *config.Config
	db     *redis.Conn
	logger *slog.Logger
}

// withStore loads the configuration, connects to the store, and runs
// fn. The connection and signal handlers are torn down afterwards.
func withStore(configPath string, fn func(*session) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := redis.NewPool(redis.PoolConfig{Address: cfg.RedisAddress, Logger: logger})
	defer pool.Close()

	db, err := pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.RedisAddress, err)
	}
	defer pool.Put(db)

	return fn(&session{ctx: ctx, config: cfg, db: db, logger: logger})
}

// configFlag adds the shared --config flag to a flag set.
func configFlag(flags *pflag.FlagSet, configPath *string) {
	flags.StringVarP(configPath, "config", "c", defaultConfigPath, "configuration file")
}

// readPassword reads a password from the given file, from stdin ("-"),
// or with a hidden terminal prompt when stdin is a terminal.
func readPassword(path string) (*secret.Buffer, error) {
	if path == "-" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("reading password: %w", err)
		}
		return secret.NewFromBytes(line)
	}
	return secret.ReadFromPath(path)
}

func newAuthenticator(cfg *config.Config) (*auth.Authenticator, error) {
	return auth.New(auth.Config{
		SessionLength:  cfg.SessionLength(),
		SessionGrace:   cfg.SessionGrace(),
		PasswordHash:   cfg.PasswordHash,
		PasswordRounds: cfg.PasswordRounds,
	})
}

func userCommand() *command {
	var configPath, passwordFile string

	add := &command{
		Name:    "add",
		Summary: "create a user or reset a password",
		Usage:   "hrb-admin user add <username> [flags]",
	}
	add.Flags = func() *pflag.FlagSet {
		flags := pflag.NewFlagSet("user add", pflag.ContinueOnError)
		configFlag(flags, &configPath)
		flags.StringVar(&passwordFile, "password-file", "-", "file holding the password, or - for stdin/prompt")
		return flags
	}
	add.Run = func(args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("usage: %s", add.Usage)
		}
		password, err := readPassword(passwordFile)
		if err != nil {
			return err
		}
		defer password.Close()

		return withStore(configPath, func(s *session) error {
			authenticator, err := newAuthenticator(s.config)
			if err != nil {
				return err
			}
			return authenticator.AddUser(s.ctx, s.db, args[0], password)
		})
	}

	check := &command{
		Name:    "check",
		Summary: "verify a password without opening a session",
		Usage:   "hrb-admin user check <username> [flags]",
	}
	check.Flags = func() *pflag.FlagSet {
		flags := pflag.NewFlagSet("user check", pflag.ContinueOnError)
		configFlag(flags, &configPath)
		flags.StringVar(&passwordFile, "password-file", "-", "file holding the password, or - for stdin/prompt")
		return flags
	}
	check.Run = func(args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("usage: %s", check.Usage)
		}
		password, err := readPassword(passwordFile)
		if err != nil {
			return err
		}
		defer password.Close()

		return withStore(configPath, func(s *session) error {
			authenticator, err := newAuthenticator(s.config)
			if err != nil {
				return err
			}
			login, err := authenticator.Login(s.ctx, s.db, args[0], password)
			if err != nil {
				return err
			}
			defer authenticator.Logout(s.ctx, s.db, login.Token)
			fmt.Printf("password of %s verified\n", login.User.Username())
			return nil
		})
	}

	return &command{
		Name:        "user",
		Summary:     "manage user accounts",
		Subcommands: []*command{add, check},
	}
}

func linkCommand() *command {
	var configPath, collection, permName string

	cmd := &command{
		Name:    "link",
		Summary: "hash files and link them into a user's collection",
		Usage:   "hrb-admin link <user> <file>... [flags]",
	}
	cmd.Flags = func() *pflag.FlagSet {
		flags := pflag.NewFlagSet("link", pflag.ContinueOnError)
		configFlag(flags, &configPath)
		flags.StringVar(&collection, "collection", "", "target collection (default: the unnamed collection)")
		flags.StringVar(&permName, "permission", "private", "initial permission: private, shared, or public")
		return flags
	}
	cmd.Run = func(args []string) error {
		if len(args) < 2 {
			return fmt.Errorf("usage: %s", cmd.Usage)
		}
		perm, err := ownership.ParsePermission(permName)
		if err != nil {
			return err
		}
		user, files := args[0], args[1:]

		return withStore(configPath, func(s *session) error {
			view := ownership.New(user)
			for _, path := range files {
				id, inode, err := inodeFromFile(path)
				if err != nil {
					return err
				}
				inode.Perm = perm
				if err := view.Link(s.ctx, s.db, collection, id, inode); err != nil {
					return err
				}
				if perm == ownership.Public {
					if err := view.SetPermission(s.ctx, s.db, id, perm); err != nil {
						return err
					}
				}
				fmt.Printf("%s  %s\n", id, inode.Filename)
			}
			return nil
		})
	}
	return cmd
}

// inodeFromFile hashes a file and builds its inode: filename from the
// path, MIME type from the extension, timestamp from the modification
// time.
func inodeFromFile(path string) (blob.ID, ownership.Inode, error) {
	file, err := os.Open(path)
	if err != nil {
		return blob.ID{}, ownership.Inode{}, err
	}
	defer file.Close()

	id, err := blob.HashReader(file)
	if err != nil {
		return blob.ID{}, ownership.Inode{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		return blob.ID{}, ownership.Inode{}, err
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return id, ownership.Inode{
		Filename:  filepath.Base(path),
		Mime:      mimeType,
		Timestamp: info.ModTime(),
	}, nil
}

// blobArg parses a positional hex object ID.
func blobArg(text string) (blob.ID, error) {
	id, err := blob.ParseHex(text)
	if err != nil {
		return blob.ID{}, fmt.Errorf("bad object ID %q: %w", text, err)
	}
	return id, nil
}

func unlinkCommand() *command {
	var configPath, collection string

	cmd := &command{
		Name:    "unlink",
		Summary: "remove a blob from a collection",
		Usage:   "hrb-admin unlink <user> <blob> [flags]",
	}
	cmd.Flags = func() *pflag.FlagSet {
		flags := pflag.NewFlagSet("unlink", pflag.ContinueOnError)
		configFlag(flags, &configPath)
		flags.StringVar(&collection, "collection", "", "collection to remove from")
		return flags
	}
	cmd.Run = func(args []string) error {
		if len(args) != 2 {
			return fmt.Errorf("usage: %s", cmd.Usage)
		}
		id, err := blobArg(args[1])
		if err != nil {
			return err
		}
		return withStore(configPath, func(s *session) error {
			return ownership.New(args[0]).Unlink(s.ctx, s.db, collection, id)
		})
	}
	return cmd
}

func moveCommand() *command {
	var configPath string

	cmd := &command{
		Name:    "move",
		Summary: "move a blob between two collections of a user",
		Usage:   "hrb-admin move <user> <src> <dst> <blob> [flags]",
	}
	cmd.Flags = func() *pflag.FlagSet {
		flags := pflag.NewFlagSet("move", pflag.ContinueOnError)
		configFlag(flags, &configPath)
		return flags
	}
	cmd.Run = func(args []string) error {
		if len(args) != 4 {
			return fmt.Errorf("usage: %s", cmd.Usage)
		}
		id, err := blobArg(args[3])
		if err != nil {
			return err
		}
		return withStore(configPath, func(s *session) error {
			return ownership.New(args[0]).Move(s.ctx, s.db, args[1], args[2], id)
		})
	}
	return cmd
}

func renameCommand() *command {
	var configPath, collection string

	cmd := &command{
		Name:    "rename",
		Summary: "change a blob's filename within a collection",
		Usage:   "hrb-admin rename <user> <blob> <filename> [flags]",
	}
	cmd.Flags = func() *pflag.FlagSet {
		flags := pflag.NewFlagSet("rename", pflag.ContinueOnError)
		configFlag(flags, &configPath)
		flags.StringVar(&collection, "collection", "", "collection holding the blob")
		return flags
	}
	cmd.Run = func(args []string) error {
		if len(args) != 3 {
			return fmt.Errorf("usage: %s", cmd.Usage)
		}
		id, err := blobArg(args[1])
		if err != nil {
			return err
		}
		return withStore(configPath, func(s *session) error {
			return ownership.New(args[0]).Rename(s.ctx, s.db, collection, id, args[2])
		})
	}
	return cmd
}

func setPermissionCommand() *command {
	var configPath string

	cmd := &command{
		Name:    "set-permission",
		Summary: "change a blob's permission",
		Usage:   "hrb-admin set-permission <user> <blob> <private|shared|public> [flags]",
	}
	cmd.Flags = func() *pflag.FlagSet {
		flags := pflag.NewFlagSet("set-permission", pflag.ContinueOnError)
		configFlag(flags, &configPath)
		return flags
	}
	cmd.Run = func(args []string) error {
		if len(args) != 3 {
			return fmt.Errorf("usage: %s", cmd.Usage)
		}
		id, err := blobArg(args[1])
		if err != nil {
			return err
		}
		perm, err := ownership.ParsePermission(args[2])
		if err != nil {
			return err
		}
		return withStore(configPath, func(s *session) error {
			return ownership.New(args[0]).SetPermission(s.ctx, s.db, id, perm)
		})
	}
	return cmd
}

func setCoverCommand() *command {
	var configPath string

	cmd := &command{
		Name:    "set-cover",
		Summary: "set a collection's cover image",
		Usage:   "hrb-admin set-cover <user> <collection> <blob> [flags]",
	}
	cmd.Flags = func() *pflag.FlagSet {
		flags := pflag.NewFlagSet("set-cover", pflag.ContinueOnError)
		configFlag(flags, &configPath)
		return flags
	}
	cmd.Run = func(args []string) error {
		if len(args) != 3 {
			return fmt.Errorf("usage: %s", cmd.Usage)
		}
		id, err := blobArg(args[2])
		if err != nil {
			return err
		}
		return withStore(configPath, func(s *session) error {
			ok, err := ownership.New(args[0]).SetCover(s.ctx, s.db, args[1], id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("collection %q of %s does not contain %s", args[1], args[0], id)
			}
			return nil
		})
	}
	return cmd
}

func listCommand() *command {
	var configPath, collection string

	cmd := &command{
		Name:    "list",
		Summary: "list the blobs of a collection",
		Usage:   "hrb-admin list <user> [flags]",
	}
	cmd.Flags = func() *pflag.FlagSet {
		flags := pflag.NewFlagSet("list", pflag.ContinueOnError)
		configFlag(flags, &configPath)
		flags.StringVar(&collection, "collection", "", "collection to list")
		return flags
	}
	cmd.Run = func(args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("usage: %s", cmd.Usage)
		}
		return withStore(configPath, func(s *session) error {
			// The admin sees everything: list as the owner.
			listing, err := ownership.New(args[0]).GetCollection(s.ctx, s.db, auth.User(args[0]), collection)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "BLOB\tPERM\tMIME\tTIMESTAMP\tFILENAME\n")
			for _, entry := range listing.Entries {
				timestamp := ""
				if !entry.Inode.Timestamp.IsZero() {
					timestamp = entry.Inode.Timestamp.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					entry.Blob, entry.Inode.Perm, entry.Inode.Mime, timestamp, entry.Filename)
			}
			return tw.Flush()
		})
	}
	return cmd
}

func collectionsCommand() *command {
	var configPath string

	cmd := &command{
		Name:    "collections",
		Summary: "list collections, of one user or of everyone",
		Usage:   "hrb-admin collections [user] [flags]",
	}
	cmd.Flags = func() *pflag.FlagSet {
		flags := pflag.NewFlagSet("collections", pflag.ContinueOnError)
		configFlag(flags, &configPath)
		return flags
	}
	cmd.Run = func(args []string) error {
		if len(args) > 1 {
			return fmt.Errorf("usage: %s", cmd.Usage)
		}
		return withStore(configPath, func(s *session) error {
			all := make(map[string][]ownership.CollectionInfo)
			if len(args) == 1 {
				colls, err := ownership.New(args[0]).ScanCollections(s.ctx, s.db)
				if err != nil {
					return err
				}
				all[args[0]] = colls
			} else {
				var err error
				all, err = ownership.ScanAllCollections(s.ctx, s.db)
				if err != nil {
					return err
				}
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "USER\tCOLLECTION\tCOVER\n")
			for user, colls := range all {
				for _, info := range colls {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", user, info.Name, info.Cover)
				}
			}
			return tw.Flush()
		})
	}
	return cmd
}

func queryBlobCommand() *command {
	var configPath string

	cmd := &command{
		Name:    "query-blob",
		Summary: "find every collection referencing a blob",
		Usage:   "hrb-admin query-blob <blob> [flags]",
	}
	cmd.Flags = func() *pflag.FlagSet {
		flags := pflag.NewFlagSet("query-blob", pflag.ContinueOnError)
		configFlag(flags, &configPath)
		return flags
	}
	cmd.Run = func(args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("usage: %s", cmd.Usage)
		}
		id, err := blobArg(args[0])
		if err != nil {
			return err
		}
		return withStore(configPath, func(s *session) error {
			refs, err := ownership.QueryBlob(s.ctx, s.db, id)
			if err != nil {
				return err
			}
			if len(refs) == 0 {
				return errors.New("blob is not referenced by anyone")
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "USER\tCOLLECTION\tPERM\tMIME\n")
			for _, ref := range refs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ref.User, ref.Collection, ref.Inode.Perm, ref.Inode.Mime)
			}
			return tw.Flush()
		})
	}
	return cmd
}

func publicCommand() *command {
	var configPath string

	cmd := &command{
		Name:    "public",
		Summary: "show the front-page public blob list",
		Usage:   "hrb-admin public [flags]",
	}
	cmd.Flags = func() *pflag.FlagSet {
		flags := pflag.NewFlagSet("public", pflag.ContinueOnError)
		configFlag(flags, &configPath)
		return flags
	}
	cmd.Run = func(args []string) error {
		if len(args) != 0 {
			return fmt.Errorf("usage: %s", cmd.Usage)
		}
		return withStore(configPath, func(s *session) error {
			public, err := ownership.ListPublicBlobs(s.ctx, s.db)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "USER\tBLOB\tMIME\tFILENAME\n")
			for _, entry := range public {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					entry.User, entry.Blob, entry.Inode.Mime, entry.Inode.Filename)
			}
			return tw.Flush()
		})
	}
	return cmd
}
