// Command cargohold deploys, inspects and removes artifacts of the configured
// repository store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"cargohold/internal/config"
	"cargohold/internal/core"
	"cargohold/pkg/domain"
)

var exitFunc = os.Exit

const usage = `usage: cargohold [-config file] <command> [flags] [args]

commands:
  put     -storage S -repo R [-layout raw|maven|nuget] [-tag t1,t2] [-overwrite] <path> <file|->
  get     -storage S -repo R [-o file] <path>
  show    -storage S -repo R <path>
  ls      -storage S -repo R
  rm      -storage S -repo R <path>
  groups  [list|show|add|rm] -storage S -repo R [name] [path]
  tags
`

// main runs the command-line interface and exits with the status code
// returned by cli.
func main() {
	code := cli(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	exitFunc(code)
}

// env holds what every command needs.
type env struct {
	svc    *core.Service
	stdin  io.Reader
	stdout io.Writer
}

type command func(ctx context.Context, e env, args []string) error

var commands = map[string]command{
	"put":    runPut,
	"get":    runGet,
	"show":   runShow,
	"ls":     runList,
	"rm":     runRemove,
	"groups": runGroups,
	"tags":   runTags,
}

func cli(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cargohold", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { _, _ = fmt.Fprint(stderr, usage) }
	var configPath string
	fs.StringVar(&configPath, "config", "", "path to a YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", fs.Arg(0))
		fs.Usage()
		return 2
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "cargohold: %v\n", err)
		return 1
	}
	opts := []core.Option{core.WithLogger(cfg.Logger(stderr))}
	if cfg.Observability.Trace {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(stderr)))
	}
	svc, closeFn, err := core.Open(ctx, cfg, opts...)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "cargohold: open store: %v\n", err)
		return 1
	}
	err = cmd(ctx, env{svc: svc, stdin: stdin, stdout: stdout}, fs.Args()[1:])
	if closeErr := closeFn(); closeErr != nil && err == nil {
		err = fmt.Errorf("close store: %w", closeErr)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "cargohold %s: %v\n", fs.Arg(0), err)
		var usageErr usageError
		if errors.As(err, &usageErr) {
			return 2
		}
		return 1
	}
	return 0
}

type usageError string

func (u usageError) Error() string { return string(u) }

// repoFlags parses -storage and -repo plus extra flags registered by setup,
// and checks the positional argument count.
func repoFlags(name string, args []string, nargs int, setup func(*flag.FlagSet)) (storageID, repositoryID string, rest []string, err error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&storageID, "storage", "", "storage id")
	fs.StringVar(&repositoryID, "repo", "", "repository id")
	if setup != nil {
		setup(fs)
	}
	if err := fs.Parse(args); err != nil {
		return "", "", nil, usageError(err.Error())
	}
	if storageID == "" || repositoryID == "" {
		return "", "", nil, usageError("-storage and -repo are required")
	}
	if fs.NArg() != nargs {
		return "", "", nil, usageError(fmt.Sprintf("expected %d argument(s), got %d", nargs, fs.NArg()))
	}
	return storageID, repositoryID, fs.Args(), nil
}

func runPut(ctx context.Context, e env, args []string) (err error) {
	var (
		layout      string
		tags        string
		contentType string
		overwrite   bool
	)
	storageID, repositoryID, rest, err := repoFlags("put", args, 2, func(fs *flag.FlagSet) {
		fs.StringVar(&layout, "layout", string(domain.LayoutRaw), "repository layout")
		fs.StringVar(&tags, "tag", "", "comma separated tags")
		fs.StringVar(&contentType, "type", "", "content type")
		fs.BoolVar(&overwrite, "overwrite", false, "replace existing content")
	})
	if err != nil {
		return err
	}
	coordinates, err := domain.ParseCoordinates(domain.Layout(layout), rest[0])
	if err != nil {
		return err
	}
	content := e.stdin
	if rest[1] != "-" {
		f, err := os.Open(filepath.Clean(rest[1]))
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		content = f
	}
	req := core.DeployRequest{
		StorageID:    storageID,
		RepositoryID: repositoryID,
		Coordinates:  coordinates,
		Content:      content,
		ContentType:  contentType,
		Overwrite:    overwrite,
	}
	if tags != "" {
		req.Tags = strings.Split(tags, ",")
	}
	node, err := e.svc.Deploy(ctx, req)
	if err != nil {
		return err
	}
	return writeJSON(e.stdout, viewOf(node))
}

func runGet(ctx context.Context, e env, args []string) (err error) {
	var out string
	storageID, repositoryID, rest, err := repoFlags("get", args, 1, func(fs *flag.FlagSet) {
		fs.StringVar(&out, "o", "", "write content to file instead of stdout")
	})
	if err != nil {
		return err
	}
	_, body, err := e.svc.Fetch(ctx, storageID, repositoryID, rest[0])
	if err != nil {
		return err
	}
	defer func() {
		if cerr := body.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	w := e.stdout
	if out != "" {
		f, err := os.Create(filepath.Clean(out))
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		w = f
	}
	_, err = io.Copy(w, body)
	return err
}

func runShow(ctx context.Context, e env, args []string) error {
	storageID, repositoryID, rest, err := repoFlags("show", args, 1, nil)
	if err != nil {
		return err
	}
	node, err := e.svc.FindArtifact(ctx, storageID, repositoryID, rest[0])
	if err != nil {
		return err
	}
	return writeJSON(e.stdout, viewOf(node))
}

func runList(ctx context.Context, e env, args []string) error {
	storageID, repositoryID, _, err := repoFlags("ls", args, 0, nil)
	if err != nil {
		return err
	}
	nodes, err := e.svc.ListArtifacts(ctx, storageID, repositoryID)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PATH\tLAYOUT\tSIZE\tDOWNLOADS\tTAGS")
	for _, node := range nodes {
		v := viewOf(node)
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", v.Path, v.Layout, v.SizeInBytes, v.DownloadCount, strings.Join(v.Tags, ","))
	}
	return tw.Flush()
}

func runRemove(ctx context.Context, e env, args []string) error {
	storageID, repositoryID, rest, err := repoFlags("rm", args, 1, nil)
	if err != nil {
		return err
	}
	node, err := e.svc.FindArtifact(ctx, storageID, repositoryID, rest[0])
	if err != nil {
		return err
	}
	if err := e.svc.DeleteArtifact(ctx, domain.ArtifactOf(node).UUID); err != nil {
		return err
	}
	_, err = fmt.Fprintf(e.stdout, "removed %s/%s/%s\n", storageID, repositoryID, rest[0])
	return err
}

func runGroups(ctx context.Context, e env, args []string) error {
	sub := "list"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub, args = args[0], args[1:]
	}
	switch sub {
	case "list":
		storageID, repositoryID, _, err := repoFlags("groups list", args, 0, nil)
		if err != nil {
			return err
		}
		groups, err := e.svc.ListGroups(ctx, storageID, repositoryID)
		if err != nil {
			return err
		}
		for _, g := range groups {
			if _, err := fmt.Fprintf(e.stdout, "%s\t%d\n", g.Name, len(g.Artifacts)); err != nil {
				return err
			}
		}
		return nil
	case "show":
		storageID, repositoryID, rest, err := repoFlags("groups show", args, 1, nil)
		if err != nil {
			return err
		}
		g, err := e.svc.FindGroup(ctx, storageID, repositoryID, rest[0])
		if err != nil {
			return err
		}
		return writeJSON(e.stdout, groupViewOf(g))
	case "add":
		storageID, repositoryID, rest, err := repoFlags("groups add", args, 2, nil)
		if err != nil {
			return err
		}
		node, err := e.svc.FindArtifact(ctx, storageID, repositoryID, rest[1])
		if err != nil {
			return err
		}
		g, err := e.svc.AddArtifactToGroup(ctx, rest[0], domain.ArtifactOf(node).UUID)
		if err != nil {
			return err
		}
		return writeJSON(e.stdout, groupViewOf(g))
	case "rm":
		storageID, repositoryID, rest, err := repoFlags("groups rm", args, 1, nil)
		if err != nil {
			return err
		}
		if err := e.svc.DeleteGroup(ctx, storageID, repositoryID, rest[0]); err != nil {
			return err
		}
		_, err = fmt.Fprintf(e.stdout, "removed group %s\n", rest[0])
		return err
	default:
		return usageError(fmt.Sprintf("unknown groups command %q", sub))
	}
}

func runTags(ctx context.Context, e env, args []string) error {
	if len(args) != 0 {
		return usageError("tags takes no arguments")
	}
	tags, err := e.svc.ListTags(ctx)
	if err != nil {
		return err
	}
	for _, tag := range tags {
		if _, err := fmt.Fprintln(e.stdout, tag.Name); err != nil {
			return err
		}
	}
	return nil
}

type artifactView struct {
	UUID          string            `json:"uuid"`
	StorageID     string            `json:"storage_id"`
	RepositoryID  string            `json:"repository_id"`
	Path          string            `json:"path"`
	Layout        string            `json:"layout"`
	Version       string            `json:"version,omitempty"`
	SizeInBytes   int64             `json:"size_in_bytes"`
	DownloadCount int64             `json:"download_count"`
	Checksums     map[string]string `json:"checksums,omitempty"`
	Filenames     []string          `json:"filenames,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	FileExists    bool              `json:"artifact_file_exists"`
	Remote        bool              `json:"remote,omitempty"`
	Created       time.Time         `json:"created"`
	LastUpdated   time.Time         `json:"last_updated"`
	LastUsed      *time.Time        `json:"last_used,omitempty"`
}

func viewOf(node domain.HierarchyNode) artifactView {
	a := domain.ArtifactOf(node)
	if a == nil {
		return artifactView{}
	}
	v := artifactView{
		UUID:          a.UUID,
		StorageID:     a.StorageID,
		RepositoryID:  a.RepositoryID,
		Path:          a.Path(),
		SizeInBytes:   a.SizeInBytes,
		DownloadCount: a.DownloadCount,
		Checksums:     a.Checksums,
		Filenames:     a.Filenames,
		Tags:          a.TagNames(),
		FileExists:    a.ArtifactFileExists,
		Created:       a.Created,
		LastUpdated:   a.LastUpdated,
	}
	if c := a.ArtifactCoordinates; c != nil {
		v.Layout = string(c.Layout())
		v.Version = c.Generic().Version
	}
	if !a.LastUsed.IsZero() {
		used := a.LastUsed
		v.LastUsed = &used
	}
	_, v.Remote = domain.Leaf(node, 8).(*domain.RemoteArtifact)
	return v
}

type groupView struct {
	UUID         string   `json:"uuid"`
	StorageID    string   `json:"storage_id"`
	RepositoryID string   `json:"repository_id"`
	Name         string   `json:"name"`
	Artifacts    []string `json:"artifacts"`
}

func groupViewOf(g *domain.ArtifactIDGroup) groupView {
	v := groupView{UUID: g.UUID, StorageID: g.StorageID, RepositoryID: g.RepositoryID, Name: g.Name, Artifacts: []string{}}
	for _, node := range g.Artifacts {
		if a := domain.ArtifactOf(node); a != nil {
			v.Artifacts = append(v.Artifacts, a.Path())
		}
	}
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
