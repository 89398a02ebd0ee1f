package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/DataProRU/Auto-transfers-accounting/internal/application/settlement"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/entry"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/invoice"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/shared"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/validation"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/api"
)

func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "USAGE:\n    entryctl %s %s\n\nOPTIONS:\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

func runLogin(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("login", "-u <username> [-p <password>]")
	username := fs.String("u", "", "Username")
	password := fs.String("p", "", "Password (default: $ENTRY_PASSWORD)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *password == "" {
		*password = os.Getenv("ENTRY_PASSWORD")
	}
	if *username == "" || *password == "" {
		fs.Usage()
		return errUsage
	}

	if err := e.app.Guard.Login(ctx, *username, *password); err != nil {
		return err
	}
	info, err := e.app.Guard.Current()
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Signed in as %s\n", info.Username)
	if info.ExpiresAt != nil {
		fmt.Fprintf(e.out, "Token expires at %s\n", info.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runLogout(ctx context.Context, e *env, args []string) error {
	if err := parse(newFlagSet("logout", ""), args); err != nil {
		return err
	}
	e.app.Guard.Logout(ctx)
	fmt.Fprintln(e.out, "Signed out")
	return nil
}

func runWhoami(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("whoami", "[-verify]")
	verify := fs.Bool("verify", false, "Check the token with the backend")
	if err := parse(fs, args); err != nil {
		return err
	}

	if *verify {
		valid, err := e.app.Guard.Check(ctx)
		if err != nil {
			return err
		}
		if !valid {
			return shared.ErrUnauthorized
		}
	}
	info, err := e.app.Guard.Current()
	if err != nil {
		return err
	}
	return printJSON(e.out, info)
}

func runRefdata(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("refdata", "[-kind <options key>]")
	kind := fs.String("kind", "", "Only print one option list (companies, operations, wallets, ...)")
	if err := parse(fs, args); err != nil {
		return err
	}

	ref, err := e.app.Form.Reference(ctx)
	if err != nil {
		return err
	}
	opts := ref.Options()
	if *kind != "" {
		list, ok := opts[*kind]
		if !ok {
			keys := make([]string, 0, len(opts))
			for k := range opts {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return fmt.Errorf("unknown option list %q, have: %s", *kind, strings.Join(keys, ", "))
		}
		return printJSON(e.out, list)
	}
	if len(ref.Unbound) > 0 {
		fmt.Fprintf(os.Stderr, "Warning: operation types without a known kind: %s\n", strings.Join(ref.Unbound, ", "))
	}
	return printJSON(e.out, opts)
}

// fieldValues collects repeated -set field=value flags.
type fieldValues map[entry.Field]string

func (v fieldValues) String() string {
	parts := make([]string, 0, len(v))
	for f, val := range v {
		parts = append(parts, string(f)+"="+val)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func (v fieldValues) Set(kv string) error {
	name, value, ok := strings.Cut(kv, "=")
	if !ok {
		return fmt.Errorf("expected field=value, got %q", kv)
	}
	f, err := entry.ParseField(strings.TrimSpace(name))
	if err != nil {
		return err
	}
	v[f] = value
	return nil
}

// loadDraft reads a YAML draft. Empty fields are left out so the form keeps its
// defaults for them.
func loadDraft(r io.Reader) (fieldValues, error) {
	var d entry.Draft
	if err := yaml.NewDecoder(r).Decode(&d); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid draft file: %w", err)
	}
	out := fieldValues{}
	for f, val := range d.Values() {
		if val != "" {
			out[f] = val
		}
	}
	return out, nil
}

func runSubmit(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("submit", "[-f <draft.yaml>] [-set field=value ...]")
	file := fs.String("f", "", "YAML file with the draft fields")
	set := fieldValues{}
	fs.Var(set, "set", "Set one field, field=value (repeatable, applied after -f)")
	if err := parse(fs, args); err != nil {
		return err
	}

	values := fieldValues{}
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		values, err = loadDraft(f)
		_ = f.Close()
		if err != nil {
			return err
		}
	}
	for k, v := range set {
		values[k] = v
	}
	if len(values) == 0 {
		fs.Usage()
		return errUsage
	}

	e.app.Form.UpdateMany(values)
	out, err := e.app.Form.Submit(ctx)
	if err != nil {
		return err
	}
	if err := printJSON(e.out, out); err != nil {
		return err
	}
	if out.Warning != "" {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", out.Warning)
	}
	if out.Invoice != nil {
		fmt.Fprintf(os.Stderr, "Invoice %d issued; settle it with: entryctl settle -invoice %d\n", out.Invoice.ID, out.Invoice.ID)
	}
	return nil
}

func runInvoices(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("invoices", "[-unpaid] [-summary [-ids 1,2,3]] [-json]")
	unpaid := fs.Bool("unpaid", false, "Hide paid invoices")
	summary := fs.Bool("summary", false, "Print the statement instead of the list")
	ids := fs.String("ids", "", "Comma separated invoice ids for the statement")
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := parse(fs, args); err != nil {
		return err
	}

	l, err := e.app.Invoices.Invoices(ctx)
	if err != nil {
		return err
	}
	items := make([]invoice.Invoice, 0, len(l.Items))
	for _, inv := range l.Items {
		if *unpaid && inv.IsPaid {
			continue
		}
		items = append(items, inv)
	}

	if *summary {
		selected, err := selectInvoices(items, *ids)
		if err != nil {
			return err
		}
		s := invoice.Summarize(selected)
		if *asJSON {
			return printJSON(e.out, s)
		}
		fmt.Fprintf(e.out, "%s\n", s.Issuer)
		for _, line := range s.Items {
			fmt.Fprintf(e.out, "%d. %s\n", line.Number, line.Description)
		}
		fmt.Fprintf(e.out, "Итого: %s\n", s.Amount)
		return nil
	}

	if *asJSON {
		return printJSON(e.out, items)
	}
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tCOUNTERPARTY\tAMOUNT\tPAID")
	for _, inv := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s %s\t%v\n", inv.ID, invoice.FormatDate(inv.Date),
			inv.Counterparty.FullName, invoice.FormatAmount(inv.Amount), inv.Currency.Symbol, inv.IsPaid)
	}
	return tw.Flush()
}

func selectInvoices(items []invoice.Invoice, raw string) ([]invoice.Invoice, error) {
	if strings.TrimSpace(raw) == "" {
		return items, nil
	}
	l := invoice.List{Items: items}
	var out []invoice.Invoice
	for _, p := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid invoice id %q", p)
		}
		inv, ok := l.Find(id)
		if !ok {
			return nil, fmt.Errorf("invoice %d not found", id)
		}
		out = append(out, inv)
	}
	return out, nil
}

func runSettle(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("settle", "-invoice <id> [-out <file.pdf>] [-share] [-wallets | -wallet <id>]")
	id := fs.Int64("invoice", 0, "Invoice id")
	outPath := fs.String("out", "", "Save the invoice PDF to this file")
	share := fs.Bool("share", false, "Upload the PDF and print a download link")
	listWallets := fs.Bool("wallets", false, "List the wallets the invoice can be settled with")
	walletID := fs.Int64("wallet", 0, "Pay the invoice from this wallet")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id <= 0 {
		fs.Usage()
		return errUsage
	}

	l, err := e.app.Invoices.Invoices(ctx)
	if err != nil {
		return err
	}
	inv, ok := l.Find(*id)
	if !ok {
		return fmt.Errorf("invoice %d not found", *id)
	}

	wf := e.app.Settlement
	defer wf.Close()
	if err := wf.Open(ctx, inv); err != nil {
		return err
	}

	if *outPath != "" {
		_, data, err := wf.ReadDocument()
		if err != nil {
			return err
		}
		if err := os.WriteFile(*outPath, data, 0o600); err != nil {
			return err
		}
		fmt.Fprintf(e.out, "Saved %s (%d bytes)\n", *outPath, len(data))
	}

	if *share {
		link, err := wf.ShareLink(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(e.out, link)
	}

	if !*listWallets && *walletID == 0 {
		return nil
	}
	if err := wf.BeginPayment(ctx); err != nil {
		return err
	}
	view := wf.View()
	if view.WalletState != settlement.WalletsReady {
		return errors.New(view.WalletError)
	}

	if *walletID == 0 {
		fmt.Fprintln(e.out, view.Prompt)
		for _, w := range view.Wallets {
			fmt.Fprintf(e.out, "  %d\t%s\n", w.ID, w.Name)
		}
		return nil
	}

	if err := wf.SelectWallet(*walletID); err != nil {
		return err
	}
	if err := wf.Confirm(ctx); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Invoice %d paid from wallet %d\n", inv.ID, *walletID)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe renders err for the terminal, one line per invalid field.
func describe(err error) string {
	var valErr *validation.Error
	if errors.As(err, &valErr) {
		fields := make([]string, 0, len(valErr.Fields))
		for f := range valErr.Fields {
			fields = append(fields, string(f))
		}
		sort.Strings(fields)
		var b strings.Builder
		b.WriteString(valErr.Error())
		for _, f := range fields {
			fmt.Fprintf(&b, "\n  %s: %s", f, valErr.Fields[entry.Field(f)])
		}
		return b.String()
	}
	if api.IsUnauthorized(err) {
		return api.Message(err, shared.ErrUnauthorized.Message)
	}
	return err.Error()
}
