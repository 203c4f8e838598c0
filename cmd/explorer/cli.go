package main

import (
	"bufio"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/disiqueira/gotree/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/fruitsalade/explorer/internal/config"
	"github.com/fruitsalade/explorer/internal/logging"
	"github.com/fruitsalade/explorer/pkg/backend"
	"github.com/fruitsalade/explorer/pkg/backend/demo"
	"github.com/fruitsalade/explorer/pkg/backend/remote"
	"github.com/fruitsalade/explorer/pkg/explorer"
	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/pathkey"
	"github.com/fruitsalade/explorer/pkg/retry"
	"github.com/fruitsalade/explorer/pkg/upload"
)

// session is one mounted explorer for the duration of a command.
type session struct {
	ctl    *explorer.Controller
	remote *remote.Client // nil in demo mode
	demo   *demo.Adapter  // nil in remote mode
	logger *zap.Logger
	in     *bufio.Reader
	out    io.Writer

	snapshot string
	persist  bool
	progress bool
	last     map[string]int
}

// newCLIApp creates the CLI application with all commands. cfg supplies
// the flag defaults.
func newCLIApp(cfg *config.ClientConfig, in io.Reader, out io.Writer) *cli.App {
	if cfg == nil {
		cfg = &config.ClientConfig{Mode: config.ModeDemo, Bucket: "default", LogLevel: "warn"}
	}
	r := &runner{cfg: cfg, in: bufio.NewReader(in), out: out}

	app := &cli.App{
		Name:    "explorer",
		Usage:   "Browse and edit a bucket namespace",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: cfg.Mode, Usage: "Adapter: demo|remote"},
			&cli.StringFlag{Name: "url", Value: cfg.URL, Usage: "Namespace API base URL (remote mode)"},
			&cli.StringFlag{Name: "token", Value: cfg.Token, Usage: "Bearer token (remote mode)"},
			&cli.StringFlag{Name: "snapshot", Value: cfg.Snapshot, Usage: "Snapshot file or URL (demo mode)"},
			&cli.StringFlag{Name: "bucket", Aliases: []string{"b"}, Value: cfg.Bucket, Usage: "Bucket label"},
			&cli.StringFlag{Name: "log-level", Value: cfg.LogLevel, Usage: "debug|info|warn|error"},
			&cli.DurationFlag{Name: "timeout", Value: cfg.Timeout, Usage: "Per-request timeout (remote mode)"},
			&cli.StringFlag{Name: "cwd", Aliases: []string{"C"}, Value: pathkey.Root, Usage: "Folder to start in"},
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Accept every confirmation prompt"},
			&cli.BoolFlag{Name: "persist", Usage: "Write demo changes back to the --snapshot file"},
		},
		Commands: []*cli.Command{
			r.lsCmd(),
			r.treeCmd(),
			r.findCmd(),
			r.catCmd(),
			r.editCmd(),
			r.previewCmd(),
			r.getCmd(),
			r.putCmd(),
			r.mkdirCmd(),
			r.rmCmd(),
			r.loginCmd(),
			r.watchCmd(),
		},
	}
	// Errors are printed once by main.
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

type runner struct {
	cfg *config.ClientConfig
	in  *bufio.Reader
	out io.Writer
}

// run mounts a session from the global flags, calls fn and, in demo mode
// with --persist, writes the resulting tree back to the snapshot file.
func (r *runner) run(c *cli.Context, fn func(ctx context.Context, s *session) error) error {
	ctx := c.Context
	s, err := r.open(c)
	if err != nil {
		return err
	}
	defer s.logger.Sync()

	if err := fn(ctx, s); err != nil {
		return err
	}
	if s.persist && s.demo != nil {
		return writeSnapshot(s.snapshot, s.demo)
	}
	return nil
}

func (r *runner) open(c *cli.Context) (*session, error) {
	cfg := *r.cfg
	cfg.Mode = strings.ToLower(c.String("mode"))
	cfg.URL = c.String("url")
	cfg.Token = c.String("token")
	cfg.Snapshot = c.String("snapshot")
	cfg.Bucket = c.String("bucket")
	cfg.LogLevel = c.String("log-level")
	cfg.Timeout = c.Duration("timeout")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, _, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: "console", OutputPath: "stderr"})
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	s := &session{
		logger:   logger,
		in:       r.in,
		out:      r.out,
		snapshot: cfg.Snapshot,
		persist:  c.Bool("persist"),
		last:     make(map[string]int),
	}

	var adapter backend.Adapter
	if cfg.Mode == config.ModeRemote {
		s.remote = remote.New(remote.Config{
			BaseURL:   cfg.URL,
			Timeout:   cfg.Timeout,
			AuthToken: cfg.Token,
			Logger:    logger,
		})
		adapter = s.remote
	} else {
		seed, err := loadDemo(c.Context, cfg.Snapshot, s.persist, logger)
		if err != nil {
			return nil, err
		}
		s.demo = demo.New(seed, demo.WithLogger(logger))
		adapter = s.demo
	}

	var confirmer explorer.Confirmer = explorer.ConfirmFunc(s.prompt)
	if c.Bool("yes") {
		confirmer = explorer.AlwaysConfirm
	}

	s.ctl = explorer.New(cfg.Bucket, adapter,
		explorer.WithLogger(logger),
		explorer.WithConfirmer(confirmer),
		explorer.WithRetry(retry.DefaultConfig()),
		explorer.WithUploadOptions(upload.WithObserver(s.report)),
	)
	if err := s.ctl.Mount(c.Context); err != nil {
		return nil, err
	}
	if cwd := c.String("cwd"); pathkey.Normalize(cwd) != pathkey.Root {
		if err := s.ctl.Navigate(c.Context, cwd); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// loadDemo loads the demo tree. Browsing falls back to the embedded
// default when the snapshot cannot be read. With persist it must not,
// since the default tree would then be written over the snapshot file.
func loadDemo(ctx context.Context, source string, persist bool, logger *zap.Logger) (models.Snapshot, error) {
	if !persist {
		return demo.Load(ctx, source, logger), nil
	}
	if source == "" {
		return nil, errors.New("--persist needs --snapshot")
	}
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return nil, errors.New("--persist needs a local --snapshot file")
	}
	snap, err := demo.LoadFile(source)
	if err != nil {
		return nil, fmt.Errorf("--persist: %w", err)
	}
	return snap, nil
}

// prompt asks on the terminal. Anything but y or yes declines.
func (s *session) prompt(_ context.Context, p explorer.Prompt) (bool, error) {
	fmt.Fprintf(s.out, "%s [y/N] ", p.Message)
	line, err := s.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// report prints a progress line whenever a task advances.
func (s *session) report(tasks []upload.Task) {
	if !s.progress {
		return
	}
	for _, t := range tasks {
		if t.Status == upload.Queued {
			continue
		}
		if p, seen := s.last[t.ID]; seen && p == t.Progress {
			continue
		}
		s.last[t.ID] = t.Progress
		fmt.Fprintf(s.out, "%s: %d%%\n", t.FileName, t.Progress)
	}
}

// resolve turns a CLI argument into an absolute slash path relative to
// the current folder.
func (s *session) resolve(arg string) string {
	if strings.HasPrefix(arg, "/") {
		return path.Clean(arg)
	}
	return path.Join(s.ctl.Path(), arg)
}

// cd navigates to the folder named by arg.
func (s *session) cd(ctx context.Context, arg string) error {
	return s.ctl.Navigate(ctx, pathkey.Normalize(s.resolve(arg)))
}

// enter navigates to the parent of arg and returns its last segment.
func (s *session) enter(ctx context.Context, arg string) (string, error) {
	p := s.resolve(arg)
	dir, name := pathkey.Split(p)
	if name == "" {
		return "", fmt.Errorf("%q does not name a file or folder", arg)
	}
	if dir != s.ctl.Path() {
		if err := s.ctl.Navigate(ctx, dir); err != nil {
			return "", err
		}
	}
	return name, nil
}

func requireArgs(c *cli.Context, n int, usage string) error {
	if c.NArg() < n {
		return fmt.Errorf("usage: explorer %s %s", c.Command.Name, usage)
	}
	return nil
}

func (r *runner) lsCmd() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "List a folder",
		ArgsUsage: "[folder]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "long", Aliases: []string{"l"}, Usage: "Show size, date and type"},
			&cli.StringFlag{Name: "sort", Aliases: []string{"s"}, Usage: "Order files by name, size or date (largest and newest first)"},
		},
		Action: func(c *cli.Context) error {
			return r.run(c, func(ctx context.Context, s *session) error {
				if c.NArg() > 0 {
					if err := s.cd(ctx, c.Args().First()); err != nil {
						return err
					}
				}
				v := s.ctl.View()
				if err := sortEntry(&v.Entry, c.String("sort")); err != nil {
					return err
				}
				if !c.Bool("long") {
					for _, f := range v.Entry.Folders {
						fmt.Fprintln(s.out, f+"/")
					}
					for _, f := range v.Entry.Files {
						fmt.Fprintln(s.out, f.Name)
					}
					return nil
				}
				tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
				for _, f := range v.Entry.Folders {
					fmt.Fprintf(tw, "%s/\t-\t-\tfolder\n", f)
				}
				for _, f := range v.Entry.Files {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Name, f.Size, f.LastModified, f.Type)
				}
				return tw.Flush()
			})
		},
	}
}

// sortEntry reorders e for listing. An empty key keeps display order.
func sortEntry(e *models.NamespaceEntry, key string) error {
	var less func(a, b models.FileRecord) int
	switch key {
	case "":
		return nil
	case "name":
		less = func(a, b models.FileRecord) int { return strings.Compare(a.Name, b.Name) }
	case "size":
		less = func(a, b models.FileRecord) int {
			return cmp.Compare(models.ParseSize(b.Size), models.ParseSize(a.Size))
		}
	case "date":
		less = func(a, b models.FileRecord) int { return strings.Compare(b.LastModified, a.LastModified) }
	default:
		return fmt.Errorf("unknown sort key %q (name, size or date)", key)
	}
	slices.Sort(e.Folders)
	slices.SortStableFunc(e.Files, less)
	return nil
}

func (r *runner) treeCmd() *cli.Command {
	return &cli.Command{
		Name:      "tree",
		Usage:     "Print a folder and everything below it",
		ArgsUsage: "[folder]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "depth", Aliases: []string{"d"}, Usage: "Maximum depth (0 = unlimited)"},
		},
		Action: func(c *cli.Context) error {
			return r.run(c, func(ctx context.Context, s *session) error {
				if c.NArg() > 0 {
					if err := s.cd(ctx, c.Args().First()); err != nil {
						return err
					}
				}
				start := s.ctl.Path()
				root := gotree.New(s.ctl.Bucket() + ":" + start)
				if err := s.tree(ctx, start, root, 1, c.Int("depth")); err != nil {
					return err
				}
				fmt.Fprint(s.out, root.Print())
				return nil
			})
		},
	}
}

func (s *session) tree(ctx context.Context, dir string, node gotree.Tree, depth, max int) error {
	if err := s.ctl.Navigate(ctx, dir); err != nil {
		return err
	}
	entry, _ := s.ctl.Store().Get(dir)
	for _, f := range entry.Folders {
		child := node.Add(f + "/")
		if max > 0 && depth >= max {
			continue
		}
		if err := s.tree(ctx, pathkey.Join(dir, f), child, depth+1, max); err != nil {
			return err
		}
	}
	for _, f := range entry.Files {
		node.Add(f.Name)
	}
	return nil
}

func (r *runner) findCmd() *cli.Command {
	return &cli.Command{
		Name:      "find",
		Usage:     "Fuzzy-match names in a folder, best match first",
		ArgsUsage: "[query]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Usage: "Folder to search (default: current)"},
		},
		Action: func(c *cli.Context) error {
			return r.run(c, func(ctx context.Context, s *session) error {
				if in := c.String("in"); in != "" {
					if err := s.cd(ctx, in); err != nil {
						return err
					}
				}
				for _, it := range s.ctl.Filter(c.Args().First()) {
					name := it.Name
					if it.IsFolder {
						name += "/"
					}
					fmt.Fprintln(s.out, name)
				}
				return nil
			})
		},
	}
}

func (r *runner) catCmd() *cli.Command {
	return &cli.Command{
		Name:      "cat",
		Usage:     "Print a file",
		ArgsUsage: "<file>",
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 1, "<file>"); err != nil {
				return err
			}
			return r.run(c, func(ctx context.Context, s *session) error {
				name, err := s.enter(ctx, c.Args().First())
				if err != nil {
					return err
				}
				res, err := s.ctl.Open(ctx, name)
				if err != nil {
					return err
				}
				if res.Kind == explorer.ResultSession {
					_, err = io.WriteString(s.out, res.Session.File.Text())
					return err
				}
				rc, _, err := s.ctl.Download(ctx, name)
				if err != nil {
					return err
				}
				defer rc.Close()
				_, err = io.Copy(s.out, rc)
				return err
			})
		},
	}
}

func (r *runner) editCmd() *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Replace the content of an editable file (reads stdin unless --content is set)",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "content", Usage: "New content"},
		},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 1, "<file>"); err != nil {
				return err
			}
			return r.run(c, func(ctx context.Context, s *session) error {
				content := c.String("content")
				if !c.IsSet("content") {
					b, err := io.ReadAll(s.in)
					if err != nil {
						return fmt.Errorf("read stdin: %w", err)
					}
					content = string(b)
				}

				name, err := s.enter(ctx, c.Args().First())
				if err != nil {
					return err
				}
				res, err := s.ctl.Open(ctx, name)
				if err != nil {
					return err
				}
				if res.Kind != explorer.ResultSession {
					return fmt.Errorf("%s is not editable; use get", name)
				}
				if _, err := s.ctl.Edit(res.Session.ID, content); err != nil {
					return err
				}
				saved, err := s.ctl.Save(ctx, res.Session.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(s.out, "saved %s (%s)\n", saved.Key(), saved.File.Size)
				return nil
			})
		},
	}
}

func (r *runner) previewCmd() *cli.Command {
	return &cli.Command{
		Name:      "preview",
		Usage:     "Render an editable file as HTML",
		ArgsUsage: "<file>",
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 1, "<file>"); err != nil {
				return err
			}
			return r.run(c, func(ctx context.Context, s *session) error {
				name, err := s.enter(ctx, c.Args().First())
				if err != nil {
					return err
				}
				res, err := s.ctl.Open(ctx, name)
				if err != nil {
					return err
				}
				if res.Kind != explorer.ResultSession {
					return fmt.Errorf("%s cannot be previewed; use get", name)
				}
				html, err := s.ctl.Preview(res.Session.ID)
				if err != nil {
					return err
				}
				_, err = io.WriteString(s.out, html)
				return err
			})
		},
	}
}

func (r *runner) getCmd() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Download a file",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Local path, - for stdout (default: the file name)"},
		},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 1, "<file>"); err != nil {
				return err
			}
			return r.run(c, func(ctx context.Context, s *session) error {
				name, err := s.enter(ctx, c.Args().First())
				if err != nil {
					return err
				}
				rc, _, err := s.ctl.Download(ctx, name)
				if err != nil {
					return err
				}
				defer rc.Close()

				dest := c.String("output")
				if dest == "-" {
					_, err = io.Copy(s.out, rc)
					return err
				}
				if dest == "" {
					dest = name
				}
				n, err := writeFileAtomic(dest, rc)
				if err != nil {
					return err
				}
				fmt.Fprintf(s.out, "downloaded %s (%d bytes)\n", dest, n)
				return nil
			})
		},
	}
}

func (r *runner) putCmd() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Usage:     "Upload local files into a folder",
		ArgsUsage: "<local-file>...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "to", Usage: "Destination folder (default: current)"},
		},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 1, "<local-file>..."); err != nil {
				return err
			}
			return r.run(c, func(ctx context.Context, s *session) error {
				if to := c.String("to"); to != "" {
					if err := s.cd(ctx, to); err != nil {
						return err
					}
				}

				var files []backend.File
				for _, p := range c.Args().Slice() {
					f, err := os.Open(p)
					if err != nil {
						return err
					}
					defer f.Close()
					info, err := f.Stat()
					if err != nil {
						return err
					}
					if info.IsDir() {
						return fmt.Errorf("%s is a directory", p)
					}
					files = append(files, backend.File{Name: filepath.Base(p), Size: info.Size(), Body: f})
				}

				s.progress = true
				tasks, err := s.ctl.Upload(ctx, files)
				s.progress = false
				if err != nil {
					return err
				}

				failed := 0
				for _, t := range tasks {
					if t.Status == upload.Failed {
						failed++
						fmt.Fprintf(s.out, "%s: failed: %s\n", t.FileName, t.Message)
						continue
					}
					fmt.Fprintf(s.out, "%s: uploaded to %s\n", t.FileName, s.ctl.Uploads().Dest())
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d uploads failed", failed, len(tasks))
				}
				return nil
			})
		},
	}
}

func (r *runner) mkdirCmd() *cli.Command {
	return &cli.Command{
		Name:      "mkdir",
		Usage:     "Create a folder",
		ArgsUsage: "<folder>",
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 1, "<folder>"); err != nil {
				return err
			}
			return r.run(c, func(ctx context.Context, s *session) error {
				name, err := s.enter(ctx, c.Args().First())
				if err != nil {
					return err
				}
				if err := s.ctl.CreateFolder(ctx, name); err != nil {
					return err
				}
				fmt.Fprintf(s.out, "created %s\n", pathkey.Join(s.ctl.Path(), name))
				return nil
			})
		},
	}
}

func (r *runner) rmCmd() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "Delete a file, or a folder with -r",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "Delete a folder and everything below it"},
		},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 1, "<path>"); err != nil {
				return err
			}
			return r.run(c, func(ctx context.Context, s *session) error {
				name, err := s.enter(ctx, c.Args().First())
				if err != nil {
					return err
				}
				entry, _ := s.ctl.Store().Get(s.ctl.Path())
				isFolder := entry.HasFolder(name)
				if isFolder && !c.Bool("recursive") {
					return fmt.Errorf("%s is a folder; use rm -r", name)
				}
				if err := s.ctl.Delete(ctx, name, isFolder); err != nil {
					if errors.Is(err, explorer.ErrDeclined) {
						fmt.Fprintln(s.out, "cancelled")
					}
					return err
				}
				fmt.Fprintf(s.out, "deleted %s\n", s.resolve(name))
				return nil
			})
		},
	}
}

func (r *runner) loginCmd() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Get a bearer token from a remote server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Value: "admin", Usage: "Account name"},
			&cli.BoolFlag{Name: "password-stdin", Usage: "Read the password from stdin"},
		},
		Action: func(c *cli.Context) error {
			return r.run(c, func(ctx context.Context, s *session) error {
				if s.remote == nil {
					return fmt.Errorf("login needs --mode remote")
				}
				password, err := s.readPassword(c.Bool("password-stdin"))
				if err != nil {
					return err
				}
				resp, err := s.remote.Login(ctx, c.String("username"), password)
				if err != nil {
					return err
				}
				fmt.Fprintf(s.out, "export EXPLORER_TOKEN=%s\n", resp.Token)
				return nil
			})
		},
	}
}

func (s *session) readPassword(fromStdin bool) (string, error) {
	fd := int(os.Stdin.Fd())
	if fromStdin || !term.IsTerminal(fd) {
		line, err := s.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func (r *runner) watchCmd() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Follow change notifications from a remote server",
		Action: func(c *cli.Context) error {
			return r.run(c, func(ctx context.Context, s *session) error {
				if s.remote == nil {
					return fmt.Errorf("watch needs --mode remote")
				}
				events, errs := s.remote.Subscribe(ctx)
				for {
					select {
					case <-ctx.Done():
						return nil
					case err, ok := <-errs:
						if !ok {
							errs = nil
							continue
						}
						s.logger.Debug("event stream error", zap.Error(err))
					case ev, ok := <-events:
						if !ok {
							return nil
						}
						fmt.Fprintf(s.out, "%s %s\n", ev.Type, ev.Path)
						if err := s.ctl.HandleEvent(ctx, ev); err != nil {
							s.logger.Warn("refresh after event failed",
								zap.String("path", ev.Path), zap.Error(err))
						}
					}
				}
			})
		},
	}
}
