// Package main is the postengine command line. It loads configuration,
// connects to the database and the optional Valkey page cache, and runs one
// posts operation per invocation.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"postengine/internal/cache"
	"postengine/internal/collections"
	"postengine/internal/config"
	"postengine/internal/database"
	"postengine/internal/email"
	"postengine/internal/models"
	"postengine/internal/posts"
	"postengine/internal/router"
	"postengine/internal/store"
)

const usage = `usage: postengine <command> [flags]

commands:
  migrate              run pending migrations (and seed in development)
  browse               list posts
  bulk-edit            apply a bulk action to posts matching a filter
  bulk-destroy         delete posts matching a filter
  edit                 edit one post
  copy                 duplicate one post as a draft
  refresh-collection   rebuild an automatic collection
  invalidations        show recent cache invalidations
`

// app holds the services a command runs against.
type app struct {
	cfg         *config.Config
	posts       *posts.Service
	collections *collections.Service
	invalidated *store.InvalidationLogStore
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:]); err != nil {
		slog.Error("command failed", "command", os.Args[1], "error", err)
		stop()
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context, command string, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	slog.Debug("configuration loaded", "env", cfg.Env, "driver", cfg.DBDriver)

	db, err := database.Connect(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	if command == "migrate" {
		if err := database.Migrate(db, cfg.DBDriver); err != nil {
			return err
		}
		if cfg.IsDev() {
			return database.Seed(db)
		}
		return nil
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           router.New(db),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("ops server listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("metrics server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	a := &app{cfg: cfg, invalidated: store.NewInvalidationLogStore(db)}
	coord := store.NewCoordinator(db)
	a.collections = collections.NewService(db, coord)
	opts := posts.Options{
		Coordinator:        coord,
		Emails:             email.NewService(coord),
		Collections:        a.collections,
		SiteURL:            cfg.SiteURL,
		CollectionsEnabled: cfg.CollectionsEnabled,
	}

	if cfg.CacheEnabled() {
		client, err := cache.ConnectValkey(ctx, cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword, 0)
		if err != nil {
			return err
		}
		defer client.Close()
		inv := cache.NewInvalidator(cache.NewPageCache(client, cache.DefaultPageTTL), cfg.SiteURL, a.invalidated)
		opts.OnEvent = inv.HandleEvent
	} else {
		slog.Warn("valkey not configured, page cache invalidation disabled")
	}
	a.posts = posts.NewService(db, opts)

	switch command {
	case "browse":
		return a.browse(ctx, args)
	case "bulk-edit":
		return a.bulkEdit(ctx, args)
	case "bulk-destroy":
		return a.bulkDestroy(ctx, args)
	case "edit":
		return a.edit(ctx, args)
	case "copy":
		return a.copy(ctx, args)
	case "refresh-collection":
		return a.refreshCollection(ctx, args)
	case "invalidations":
		return a.invalidations(ctx, args)
	}
	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", command)
}

// exitCode maps caller mistakes to 2 and everything else to 1.
func exitCode(err error) int {
	switch {
	case errors.Is(err, posts.ErrInvalidArgument),
		errors.Is(err, posts.ErrInvalidFilter),
		errors.Is(err, posts.ErrUnsupportedAction),
		errors.Is(err, posts.ErrNotFound):
		return 2
	}
	return 1
}

func actorFlag(fs *flag.FlagSet) *string {
	return fs.String("actor", "", "id of the user performing the change (default internal)")
}

func actor(id string) models.Actor {
	if id == "" {
		return models.InternalActor
	}
	return models.Actor{ID: id, Type: "user"}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) browse(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("browse", flag.ContinueOnError)
	filterExpr := fs.String("filter", "", "post filter expression")
	collection := fs.String("collection", "", "collection id or slug")
	all := fs.Bool("all", false, "include drafts and scheduled posts")
	limit := fs.Int("limit", 15, "posts per page")
	page := fs.Int("page", 1, "page number")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := a.posts.Browse(ctx, posts.BrowseOptions{
		Filter:      *filterExpr,
		Collection:  *collection,
		AllStatuses: *all,
		Limit:       *limit,
		Page:        *page,
	})
	if err != nil {
		return err
	}
	return printJSON(res)
}

func (a *app) bulkEdit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bulk-edit", flag.ContinueOnError)
	filterExpr := fs.String("filter", "", "post filter expression (required)")
	action := fs.String("action", "", "unpublish, feature, unfeature, access or addTag")
	meta := fs.String("meta", "", `action payload, e.g. {"visibility":"tiers","tiers":[{"id":"..."}]}`)
	actorID := actorFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	var raw json.RawMessage
	if *meta != "" {
		raw = json.RawMessage(*meta)
	}
	act, err := posts.ParseBulkAction(*action, raw)
	if err != nil {
		return err
	}
	res, err := a.posts.BulkEdit(ctx, act, posts.BulkRequest{Filter: *filterExpr, Actor: actor(*actorID)}, nil)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func (a *app) bulkDestroy(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bulk-destroy", flag.ContinueOnError)
	filterExpr := fs.String("filter", "", "post filter expression (required)")
	actorID := actorFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := a.posts.BulkDestroy(ctx, posts.BulkRequest{Filter: *filterExpr, Actor: actor(*actorID)}, nil)
	if err != nil {
		return err
	}
	return printJSON(res)
}

// optional is a string flag that remembers whether it was given, so an
// explicit empty value can be told apart from an absent one.
type optional struct {
	value string
	set   bool
}

func (o *optional) String() string { return o.value }

func (o *optional) Set(v string) error {
	o.value, o.set = v, true
	return nil
}

func (o *optional) ptr() *string {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}

// list splits a comma separated flag value, dropping blanks.
func (o *optional) list() *[]string {
	if !o.set {
		return nil
	}
	out := []string{}
	for _, v := range strings.Split(o.value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return &out
}

func (a *app) edit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	id := fs.String("id", "", "post id (required)")
	var title, slugFlag, status, featured, visibility, tiers, newsletter, segment, publishedAt, cols optional
	fs.Var(&title, "title", "new title")
	fs.Var(&slugFlag, "slug", "new slug")
	fs.Var(&status, "status", "draft, published, scheduled or sent")
	fs.Var(&featured, "featured", "true or false")
	fs.Var(&visibility, "visibility", "public, members, paid or tiers")
	fs.Var(&tiers, "tiers", "comma separated tier ids, in order")
	fs.Var(&newsletter, "newsletter", "newsletter id; empty detaches")
	fs.Var(&segment, "segment", `member filter the email goes to, or "all"`)
	fs.Var(&publishedAt, "published-at", "RFC 3339 publication time")
	fs.Var(&cols, "collections", "comma separated manual collection ids")
	withCollections := fs.Bool("with-collections", false, "include collections in the output")
	actorID := actorFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: -id is required", posts.ErrInvalidArgument)
	}

	patch := posts.PostPatch{
		Title:        title.ptr(),
		Slug:         slugFlag.ptr(),
		Tiers:        tiers.list(),
		NewsletterID: newsletter.ptr(),
		EmailSegment: segment.ptr(),
		Collections:  cols.list(),
	}
	if status.set {
		s := models.PostStatus(status.value)
		patch.Status = &s
	}
	if visibility.set {
		v := models.Visibility(visibility.value)
		patch.Visibility = &v
	}
	if featured.set {
		var b bool
		if err := json.Unmarshal([]byte(featured.value), &b); err != nil {
			return fmt.Errorf("%w: -featured must be true or false", posts.ErrInvalidArgument)
		}
		patch.Featured = &b
	}
	if publishedAt.set {
		at, err := time.Parse(time.RFC3339, publishedAt.value)
		if err != nil {
			return fmt.Errorf("%w: -published-at: %v", posts.ErrInvalidArgument, err)
		}
		patch.PublishedAt = &at
	}

	view, err := a.posts.Edit(ctx, *id, patch, posts.EditOptions{
		IncludeCollections: *withCollections,
		Actor:              actor(*actorID),
	}, nil)
	if err != nil {
		return err
	}
	return printJSON(struct {
		*posts.PostView
		Event posts.Event `json:"event"`
	}{view, view.Event})
}

func (a *app) copy(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("copy", flag.ContinueOnError)
	id := fs.String("id", "", "post id (required)")
	actorID := actorFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	view, err := a.posts.Copy(ctx, *id, actor(*actorID), nil)
	if err != nil {
		return err
	}
	return printJSON(view)
}

func (a *app) refreshCollection(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("refresh-collection", flag.ContinueOnError)
	id := fs.String("id", "", "automatic collection id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	n, err := a.collections.Refresh(ctx, nil, *id)
	if err != nil {
		return err
	}
	return printJSON(map[string]int{"posts": n})
}

func (a *app) invalidations(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("invalidations", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "entries to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	items, err := a.invalidated.Recent(ctx, *limit)
	if err != nil {
		return err
	}
	return printJSON(items)
}
