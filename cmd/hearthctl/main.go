// Command hearthctl drives a Hearth server from the shell.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/dukerupert/hearth/internal/backup"
	"github.com/dukerupert/hearth/internal/client"
	"github.com/dukerupert/hearth/internal/model"
)

const defaultURL = "http://localhost:8080"

type app struct {
	getenv func(string) string
	stdout io.Writer
}

type command struct {
	name  string
	usage string
	run   func(a *app, ctx context.Context, args []string) error
}

var commands = []command{
	{"register", "register -household NAME -house-password PW -name NAME -username U -password PW", (*app).register},
	{"join", "join -household NAME -house-password PW -name NAME -username U -password PW", (*app).join},
	{"join-invite", "join-invite -code CODE -name NAME -username U -password PW", (*app).joinInvite},
	{"login", "login -username U -password PW", (*app).login},
	{"logout", "logout", (*app).logout},
	{"whoami", "whoami", (*app).whoami},
	{"data", "data", (*app).data},
	{"list", "list COLLECTION", (*app).list},
	{"get", "get COLLECTION ID", (*app).get},
	{"add", "add COLLECTION key=value key:=json ...", (*app).add},
	{"update", "update COLLECTION ID key=value key:=json ...", (*app).update},
	{"delete", "delete COLLECTION ID", (*app).delete},
	{"search", "search QUERY", (*app).search},
	{"alerts", "alerts", (*app).alerts},
	{"service", "service ASSET_ID -date YYYY-MM-DD [-note TEXT]", (*app).service},
	{"upload", "upload DOCUMENT_ID FILE", (*app).upload},
	{"download", "download DOCUMENT_ID FILE", (*app).download},
	{"invite", "invite [-email ADDRESS]", (*app).invite},
	{"export", "export -passphrase PW -out FILE", (*app).export},
	{"backup", "backup -passphrase PW", (*app).backup},
	{"backups", "backups", (*app).backups},
	{"decrypt", "decrypt -passphrase PW FILE", (*app).decrypt},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{getenv: os.Getenv, stdout: os.Stdout}
	if err := a.run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "hearthctl:", err)
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" {
		a.usage()
		return nil
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.run(a, ctx, args[1:])
		}
	}
	a.usage()
	return fmt.Errorf("unknown command %q", args[0])
}

func (a *app) usage() {
	fmt.Fprintln(a.stdout, "usage: hearthctl COMMAND [flags]")
	fmt.Fprintln(a.stdout)
	for _, c := range commands {
		fmt.Fprintln(a.stdout, "  "+c.usage)
	}
	fmt.Fprintln(a.stdout)
	fmt.Fprintf(a.stdout, "collections: %s\n", strings.Join(client.Collections, ", "))
	fmt.Fprintln(a.stdout, "HEARTH_URL selects the server; HEARTH_SESSION overrides the session file.")
}

func (a *app) baseURL(s *session) string {
	if u := a.getenv("HEARTH_URL"); u != "" {
		return u
	}
	if s != nil && s.URL != "" {
		return s.URL
	}
	return defaultURL
}

// authed returns a client carrying the saved session's token.
func (a *app) authed() (*client.Client, error) {
	path, err := sessionPath(a.getenv)
	if err != nil {
		return nil, err
	}
	s, err := loadSession(path)
	if err != nil {
		return nil, err
	}
	c := client.New(a.baseURL(s))
	c.SetToken(s.Token)
	return c, nil
}

func (a *app) remember(url string, s *client.Session) error {
	path, err := sessionPath(a.getenv)
	if err != nil {
		return err
	}
	if err := saveSession(path, &session{URL: url, Token: s.Token, Username: s.Username, HouseholdName: s.HouseholdName}); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Logged in as %s (%s) in %s\n", s.Username, s.Role, s.HouseholdName)
	return nil
}

func (a *app) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, string(data))
	return err
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("hearthctl "+name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func requireFlags(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("-%s is required", pairs[i])
		}
	}
	return nil
}

func collectionArg(name string) (string, error) {
	if !slices.Contains(client.Collections, name) {
		return "", fmt.Errorf("unknown collection %q (want one of %s)", name, strings.Join(client.Collections, ", "))
	}
	return name, nil
}

// parseFields turns key=value into a string field and key:=json into a
// decoded JSON value.
func parseFields(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		if k, v, ok := strings.Cut(arg, ":="); ok && k != "" && !strings.Contains(k, "=") {
			var raw any
			if err := json.Unmarshal([]byte(v), &raw); err != nil {
				return nil, fmt.Errorf("field %s: invalid JSON: %w", k, err)
			}
			fields[k] = raw
			continue
		}
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("field %q: want key=value or key:=json", arg)
		}
		fields[k] = v
	}
	return fields, nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := newFlags("register")
	var req client.RegisterRequest
	fs.StringVar(&req.HouseholdName, "household", "", "household name")
	fs.StringVar(&req.HousePassword, "house-password", "", "shared house password")
	fs.StringVar(&req.AdminName, "name", "", "your display name")
	fs.StringVar(&req.Username, "username", "", "username")
	fs.StringVar(&req.Password, "password", "", "password")
	fs.StringVar(&req.Avatar, "avatar", "", "avatar")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("household", req.HouseholdName, "house-password", req.HousePassword, "name", req.AdminName, "username", req.Username, "password", req.Password); err != nil {
		return err
	}

	url := a.baseURL(nil)
	s, err := client.New(url).RegisterHousehold(ctx, req)
	if err != nil {
		return err
	}
	return a.remember(url, s)
}

func (a *app) join(ctx context.Context, args []string) error {
	fs := newFlags("join")
	var req client.JoinRequest
	fs.StringVar(&req.HouseholdName, "household", "", "household name")
	fs.StringVar(&req.HousePassword, "house-password", "", "shared house password")
	fs.StringVar(&req.Name, "name", "", "your display name")
	fs.StringVar(&req.Username, "username", "", "username")
	fs.StringVar(&req.Password, "password", "", "password")
	fs.StringVar(&req.Avatar, "avatar", "", "avatar")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("household", req.HouseholdName, "house-password", req.HousePassword, "name", req.Name, "username", req.Username, "password", req.Password); err != nil {
		return err
	}

	url := a.baseURL(nil)
	s, err := client.New(url).JoinHousehold(ctx, req)
	if err != nil {
		return err
	}
	return a.remember(url, s)
}

func (a *app) joinInvite(ctx context.Context, args []string) error {
	fs := newFlags("join-invite")
	var req client.JoinInviteRequest
	fs.StringVar(&req.Code, "code", "", "invitation code")
	fs.StringVar(&req.Name, "name", "", "your display name")
	fs.StringVar(&req.Username, "username", "", "username")
	fs.StringVar(&req.Password, "password", "", "password")
	fs.StringVar(&req.Avatar, "avatar", "", "avatar")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("code", req.Code, "name", req.Name, "username", req.Username, "password", req.Password); err != nil {
		return err
	}

	url := a.baseURL(nil)
	s, err := client.New(url).JoinInvite(ctx, req)
	if err != nil {
		return err
	}
	return a.remember(url, s)
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := newFlags("login")
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("username", *username, "password", *password); err != nil {
		return err
	}

	url := a.baseURL(nil)
	s, err := client.New(url).Login(ctx, *username, *password)
	if err != nil {
		return err
	}
	return a.remember(url, s)
}

func (a *app) logout(ctx context.Context, args []string) error {
	path, err := sessionPath(a.getenv)
	if err != nil {
		return err
	}
	return removeSession(path)
}

func (a *app) whoami(ctx context.Context, args []string) error {
	c, err := a.authed()
	if err != nil {
		return err
	}
	me, err := c.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s %s (%s) in %s\n", me.Avatar, me.Username, me.Role, me.HouseholdName)
	return nil
}

func (a *app) data(ctx context.Context, args []string) error {
	c, err := a.authed()
	if err != nil {
		return err
	}
	snap, err := c.Data(ctx)
	if err != nil {
		return err
	}
	return a.printJSON(snap)
}

func (a *app) list(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: list COLLECTION")
	}
	collection, err := collectionArg(args[0])
	if err != nil {
		return err
	}
	c, err := a.authed()
	if err != nil {
		return err
	}
	var recs []json.RawMessage
	if err := c.List(ctx, collection, &recs); err != nil {
		return err
	}
	return a.printJSON(recs)
}

func (a *app) get(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: get COLLECTION ID")
	}
	collection, err := collectionArg(args[0])
	if err != nil {
		return err
	}
	c, err := a.authed()
	if err != nil {
		return err
	}
	var rec json.RawMessage
	if err := c.Get(ctx, collection, args[1], &rec); err != nil {
		return err
	}
	return a.printJSON(rec)
}

func (a *app) add(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: add COLLECTION key=value ...")
	}
	collection, err := collectionArg(args[0])
	if err != nil {
		return err
	}
	fields, err := parseFields(args[1:])
	if err != nil {
		return err
	}
	c, err := a.authed()
	if err != nil {
		return err
	}
	var rec json.RawMessage
	if err := c.Create(ctx, collection, fields, &rec); err != nil {
		return err
	}
	return a.printJSON(rec)
}

// update sends only the given fields. The server keeps the rest.
func (a *app) update(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: update COLLECTION ID key=value ...")
	}
	collection, err := collectionArg(args[0])
	if err != nil {
		return err
	}
	fields, err := parseFields(args[2:])
	if err != nil {
		return err
	}
	c, err := a.authed()
	if err != nil {
		return err
	}
	var rec json.RawMessage
	if err := c.Update(ctx, collection, args[1], fields, &rec); err != nil {
		return err
	}
	return a.printJSON(rec)
}

func (a *app) delete(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: delete COLLECTION ID")
	}
	collection, err := collectionArg(args[0])
	if err != nil {
		return err
	}
	c, err := a.authed()
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, collection, args[1]); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Removed %s/%s\n", collection, args[1])
	return nil
}

func (a *app) search(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: search QUERY")
	}
	c, err := a.authed()
	if err != nil {
		return err
	}
	hits, err := c.Search(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, h := range hits {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", h.Kind, h.Label, h.ID)
	}
	return tw.Flush()
}

func (a *app) alerts(ctx context.Context, args []string) error {
	c, err := a.authed()
	if err != nil {
		return err
	}
	alerts, err := c.Alerts(ctx)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(a.stdout, "Nothing urgent.")
		return nil
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, al := range alerts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", al.Kind, al.Title, al.Message)
	}
	return tw.Flush()
}

func (a *app) service(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: service ASSET_ID -date YYYY-MM-DD [-note TEXT]")
	}
	fs := newFlags("service")
	var entry model.ServiceEntry
	fs.StringVar(&entry.Date, "date", "", "service date")
	fs.StringVar(&entry.Note, "note", "", "what was done")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if err := requireFlags("date", entry.Date); err != nil {
		return err
	}
	c, err := a.authed()
	if err != nil {
		return err
	}
	asset, err := c.AppendService(ctx, args[0], entry)
	if err != nil {
		return err
	}
	return a.printJSON(asset)
}

func (a *app) upload(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: upload DOCUMENT_ID FILE")
	}
	f, err := os.Open(args[1])
	if err != nil {
		return err
	}
	defer f.Close()

	c, err := a.authed()
	if err != nil {
		return err
	}
	doc, err := c.UploadFile(ctx, args[0], mime.TypeByExtension(filepath.Ext(args[1])), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Attached %s to %s\n", filepath.Base(args[1]), doc.Title)
	return nil
}

func (a *app) download(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: download DOCUMENT_ID FILE")
	}
	c, err := a.authed()
	if err != nil {
		return err
	}
	body, err := c.DownloadFile(ctx, args[0])
	if err != nil {
		return err
	}
	defer body.Close()

	out, err := os.Create(args[1])
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", args[1], err)
	}
	return out.Close()
}

func (a *app) invite(ctx context.Context, args []string) error {
	fs := newFlags("invite")
	to := fs.String("email", "", "also e-mail the code to this address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := a.authed()
	if err != nil {
		return err
	}
	inv, err := c.CreateInvitation(ctx, *to)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Invitation code %s (valid until %s)\n", inv.Code, inv.ExpiresAt.Local().Format("2006-01-02 15:04"))
	if inv.EmailSent {
		fmt.Fprintf(a.stdout, "Sent to %s\n", *to)
	}
	return nil
}

func (a *app) export(ctx context.Context, args []string) error {
	fs := newFlags("export")
	passphrase := fs.String("passphrase", "", "encryption passphrase")
	out := fs.String("out", "", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("passphrase", *passphrase, "out", *out); err != nil {
		return err
	}
	c, err := a.authed()
	if err != nil {
		return err
	}
	data, err := c.Export(ctx, *passphrase)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Wrote %d bytes to %s\n", len(data), *out)
	return nil
}

func (a *app) backup(ctx context.Context, args []string) error {
	fs := newFlags("backup")
	passphrase := fs.String("passphrase", "", "encryption passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("passphrase", *passphrase); err != nil {
		return err
	}
	c, err := a.authed()
	if err != nil {
		return err
	}
	b, err := c.CreateBackup(ctx, *passphrase)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Stored %s (%d bytes)\n", b.ObjectKey, b.SizeBytes)
	return nil
}

func (a *app) backups(ctx context.Context, args []string) error {
	c, err := a.authed()
	if err != nil {
		return err
	}
	list, err := c.ListBackups(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, b := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", b.CreatedAt.Local().Format("2006-01-02 15:04"), b.ObjectKey, b.SizeBytes)
	}
	return tw.Flush()
}

// decrypt opens an export file locally; it needs no server.
func (a *app) decrypt(ctx context.Context, args []string) error {
	fs := newFlags("decrypt")
	passphrase := fs.String("passphrase", "", "encryption passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: decrypt -passphrase PW FILE")
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	exp, err := backup.Open(data, *passphrase)
	if err != nil {
		return err
	}
	return a.printJSON(exp)
}
