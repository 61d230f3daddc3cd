package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"docuchat-backend/internal/client"
	"docuchat-backend/internal/documents"
	"docuchat-backend/internal/reconcile"
)

const usage = `usage: docctl [--url URL] [--token TOKEN] <command> [flags]

commands:
  upload [--watch] FILE...   submit files and optionally wait for processing
  watch  --id ID | --name N  poll until a document leaves processing
  list                       show your documents, newest first
  delete --id ID [--yes]     forward a deletion to the pipeline
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type cli struct {
	api    *client.Client
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("docctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	baseURL := global.String("url", envOr("DOCUCHAT_URL", "http://localhost:8080"), "API base URL")
	token := global.String("token", os.Getenv("DOCUCHAT_TOKEN"), "bearer token")
	timeout := global.Duration("http-timeout", 60*time.Second, "per-request timeout")
	if err := global.Parse(args); err != nil {
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return 2
	}

	c := &cli{
		api:    client.New(*baseURL, *token, &http.Client{Timeout: *timeout}),
		in:     bufio.NewReader(stdin),
		out:    stdout,
		errOut: stderr,
	}

	var err error
	switch rest[0] {
	case "upload":
		err = c.upload(ctx, rest[1:])
	case "watch":
		err = c.watch(ctx, rest[1:])
	case "list":
		err = c.list(ctx)
	case "delete":
		err = c.delete(ctx, rest[1:])
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", rest[0])
		fmt.Fprint(stderr, usage)
		return 2
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func (c *cli) upload(ctx context.Context, args []string) error {
	fs := c.flagSet("upload")
	watch := fs.Bool("watch", false, "wait until every uploaded document leaves processing")
	interval := fs.Duration("interval", reconcile.DefaultInterval, "poll interval for --watch")
	maxPolls := fs.Int("max-polls", 0, "stop watching after this many polls (0 = no limit)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("upload needs at least one file")
	}

	resp, err := c.api.UploadPaths(ctx, fs.Args())
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, resp.Message)
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDOCUMENT ID\tDISPATCH\tERROR")
	var ids []reconcile.Target
	for _, f := range resp.Files {
		id := "-"
		if f.DocumentID != nil {
			id = *f.DocumentID
			ids = append(ids, reconcile.Target{ID: id, Name: f.Name})
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Name, id, f.Dispatch, f.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "jobs triggered: %d/%d\n", resp.JobsTriggered, resp.JobsAttempted)

	if !*watch {
		return nil
	}
	session := c.session(*interval, *maxPolls)
	for _, target := range ids {
		if err := c.awaitTarget(ctx, session, target); err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) watch(ctx context.Context, args []string) error {
	fs := c.flagSet("watch")
	id := fs.String("id", "", "document id to watch")
	name := fs.String("name", "", "display name to watch (first match)")
	interval := fs.Duration("interval", reconcile.DefaultInterval, "poll interval")
	maxPolls := fs.Int("max-polls", 0, "stop after this many polls (0 = no limit)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	target := reconcile.Target{ID: strings.TrimSpace(*id)}
	if target.ID == "" {
		target.Name = strings.TrimSpace(*name)
	}
	if target.ID == "" && target.Name == "" {
		return errors.New("watch needs --id or --name")
	}
	return c.awaitTarget(ctx, c.session(*interval, *maxPolls), target)
}

func (c *cli) session(interval time.Duration, maxPolls int) *reconcile.Session {
	return reconcile.NewSession(reconcile.NewWatcher(c.api.Lister(), reconcile.Options{
		Interval:    interval,
		MaxAttempts: maxPolls,
		OnPoll: func(attempt int, entry *reconcile.Entry) {
			if entry == nil {
				fmt.Fprintf(c.errOut, "poll %d: not listed yet\n", attempt)
				return
			}
			fmt.Fprintf(c.errOut, "poll %d: %s\n", attempt, entry.Status)
		},
	}))
}

func (c *cli) awaitTarget(ctx context.Context, session *reconcile.Session, target reconcile.Target) error {
	label := target.Name
	if target.ID != "" {
		label = target.ID
	}
	fmt.Fprintf(c.out, "watching %s\n", label)
	res := <-session.Start(ctx, target)
	switch res.State {
	case reconcile.StateConverged:
		fmt.Fprintf(c.out, "%s: %s after %d poll(s)\n", label, res.Entry.Status, res.Polls)
		return nil
	case reconcile.StateTimedOut:
		return fmt.Errorf("%s still processing after %d poll(s)", label, res.Polls)
	case reconcile.StateCancelled:
		return fmt.Errorf("watch of %s cancelled", label)
	default:
		return fmt.Errorf("watch of %s did not start", label)
	}
}

func (c *cli) list(ctx context.Context) error {
	docs, err := c.api.List(ctx)
	if err != nil {
		return err
	}
	return c.printDocuments(docs)
}

func (c *cli) delete(ctx context.Context, args []string) error {
	fs := c.flagSet("delete")
	id := fs.String("id", "", "document id to delete")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	documentID := strings.TrimSpace(*id)
	if documentID == "" && fs.NArg() > 0 {
		documentID = strings.TrimSpace(fs.Arg(0))
	}
	if documentID == "" {
		return errors.New("delete needs --id")
	}

	doc, err := c.api.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if !*yes {
		ok, err := c.confirm(fmt.Sprintf("Delete %q (%s)? [y/N] ", doc.Name, doc.DocumentID))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(c.out, "aborted")
			return nil
		}
	}

	if err := c.api.Delete(ctx, documentID); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "deletion of %s requested\n", doc.Name)
	return c.list(ctx)
}

func (c *cli) confirm(prompt string) (bool, error) {
	fmt.Fprint(c.out, prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (c *cli) printDocuments(docs []documents.DocumentResponse) error {
	if len(docs) == 0 {
		fmt.Fprintln(c.out, "no documents")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOCUMENT ID\tNAME\tSIZE\tSTATUS\tVECTORIZED\tCREATED")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%t\t%s\n",
			d.DocumentID, d.Name, d.Size, d.Status, d.Vectorized, d.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func (c *cli) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	return fs
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
