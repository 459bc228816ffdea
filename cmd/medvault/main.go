// Command medvault is a local-first encrypted health record vault.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	u "github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/medvault/medvault/internal/audit"
	"github.com/medvault/medvault/internal/config"
	"github.com/medvault/medvault/internal/enrich"
	"github.com/medvault/medvault/internal/keyring"
	"github.com/medvault/medvault/internal/limiter"
	"github.com/medvault/medvault/internal/migrate"
	"github.com/medvault/medvault/internal/model"
	"github.com/medvault/medvault/internal/repository/encrypted"
	"github.com/medvault/medvault/internal/securestore"
	"github.com/medvault/medvault/internal/securestore/postgres"
	"github.com/medvault/medvault/internal/seed"
	"github.com/medvault/medvault/internal/service"
	"github.com/medvault/medvault/internal/session"
	"github.com/medvault/medvault/internal/vaultcrypto"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `medvault CLI
Usage:
  medvault [-store DIR | -dsn DSN] [-legacy] <cmd> [args]

Commands:
  version
  register     -email <e> -password <p> [-first <name>] [-last <name>]
  login        -email <e> -password <p>
  logout
  whoami
  upload       -title <t> -date <YYYY-MM-DD> -type <lab|imaging|visit|prescription|immunization|other> [-provider <p>] [-desc <d>]
  import       -file <fhir.json>
  list         [-recent <n>]
  show         -id <uuid>
  rm           -id <uuid>
  providers
  provider-add -name <n> [-specialty <s>] [-facility <f>] [-phone <p>]
  provider-rm  -id <uuid>
  links
  link-add     -first <name> -last <name> -rel <relationship> [-dob <YYYY-MM-DD>]
  link-rm      -id <uuid>
  settings
  settings-set [-dark t|f] [-notifications t|f] [-autolock t|f] [-fontsize <s>]
  interactions
  recommend
  ask          -q <question>
  seed

Record commands accept -account <uuid> to act on a linked account.
`)
	os.Exit(2)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// app bundles everything a subcommand needs.
type app struct {
	sess  *session.Store
	vault *service.VaultServiceImpl
	store securestore.Store
	repo  *encrypted.Vault
	log   *zap.Logger
	close func()
}

func buildApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	var (
		store   securestore.Store
		closeFn = func() {}
	)
	if cfg.DatabaseDSN != "" {
		if err := migrate.Up(ctx, cfg.DatabaseDSN); err != nil {
			return nil, fmt.Errorf("migrate up: %w", err)
		}
		db, err := postgres.New(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		store = postgres.NewKV(db)
		closeFn = db.Close
	} else {
		fs, err := securestore.NewFile(cfg.StoreDir)
		if err != nil {
			return nil, err
		}
		store = fs
	}

	key, err := keyring.New(store, log).Key(ctx)
	if err != nil {
		closeFn()
		return nil, err
	}
	var codec vaultcrypto.Codec
	if cfg.LegacyCipher {
		codec, err = vaultcrypto.NewLegacyCodec(key)
	} else {
		codec, err = vaultcrypto.NewAEADCodec(key)
	}
	if err != nil {
		closeFn()
		return nil, err
	}

	lim := limiter.NewMemory(time.Minute, 5, 5*time.Minute)
	sess := session.New(store, codec, session.NewArgonVerifier(store), lim, signKey(cfg), cfg.SessionTTL, log)
	if _, err := sess.Restore(ctx); err != nil {
		closeFn()
		return nil, err
	}

	repo := encrypted.New(store, codec, log)
	var enricher enrich.Enricher
	if cfg.EnrichURL != "" {
		enricher = enrich.NewHTTP(cfg.EnrichURL, cfg.EnrichTimeout, sess.Token, log)
	}
	vault := service.NewVaultService(
		repo.Records(), repo.Providers(), repo.Linked(), repo.Settings(),
		enricher, cfg.EnrichTimeout, audit.New(log), log,
	)
	return &app{sess: sess, vault: vault, store: store, repo: repo, log: log, close: closeFn}, nil
}

// signKey prefers the configured key and falls back to one derived from
// the hostname, which is fine for a single-user local vault.
func signKey(cfg *config.Config) []byte {
	if cfg.SessionKey != "" {
		sum := sha256.Sum256([]byte(cfg.SessionKey))
		return sum[:]
	}
	host, _ := os.Hostname()
	sum := sha256.Sum256([]byte("medvault." + host))
	return sum[:]
}

// accountID resolves the acting account: an explicit -account uuid, or
// the signed-in user.
func (a *app) accountID(override string) (u.UUID, error) {
	if override != "" {
		id, err := u.FromString(override)
		if err != nil {
			return u.Nil, fmt.Errorf("bad -account: %w", err)
		}
		return id, nil
	}
	usr := a.sess.User()
	if usr == nil {
		return u.Nil, errors.New("not logged in (run: medvault login)")
	}
	return usr.ID, nil
}

func parseID(raw string) u.UUID {
	id, err := u.FromString(raw)
	if err != nil {
		fail(fmt.Errorf("bad -id: %w", err))
	}
	return id
}

func main() {
	storeDir := flag.String("store", "", "secure store directory (default: user config dir)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides -store)")
	enrichURL := flag.String("enrich-url", "", "analysis endpoint base URL")
	legacy := flag.Bool("legacy", false, "use the legacy XOR blob format")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}
	if *storeDir != "" {
		cfg.StoreDir = *storeDir
	}
	if *dsn != "" {
		cfg.DatabaseDSN = *dsn
	}
	if *enrichURL != "" {
		cfg.EnrichURL = *enrichURL
	}
	if *legacy {
		cfg.LegacyCipher = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if cmd == "version" {
		fmt.Printf("medvault %s (%s)\n", version, buildDate)
		return
	}

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		fail(err)
	}
	defer a.close()

	switch cmd {

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		email := fs.String("email", "", "email")
		password := fs.String("password", "", "password")
		first := fs.String("first", "", "first name")
		last := fs.String("last", "", "last name")
		_ = fs.Parse(args)
		if *email == "" || *password == "" {
			fail(errors.New("need -email and -password"))
		}
		usr, err := a.sess.Register(ctx, session.RegisterInput{
			FirstName: *first,
			LastName:  *last,
			Email:     *email,
			Password:  *password,
			Provider:  "email",
		})
		if err != nil {
			fail(err)
		}
		printJSON(usr)

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		email := fs.String("email", "", "email")
		password := fs.String("password", "", "password")
		_ = fs.Parse(args)
		if *email == "" || *password == "" {
			fail(errors.New("need -email and -password"))
		}
		usr, err := a.sess.Login(ctx, *email, *password, "email")
		if err != nil {
			fail(err)
		}
		printJSON(usr)

	case "logout":
		if err := a.sess.Logout(ctx); err != nil {
			fail(err)
		}

	case "whoami":
		usr := a.sess.User()
		if usr == nil {
			fail(errors.New("not logged in"))
		}
		printJSON(usr)

	case "upload":
		fs := flag.NewFlagSet("upload", flag.ExitOnError)
		account := fs.String("account", "", "account uuid")
		title := fs.String("title", "", "record title")
		date := fs.String("date", "", "record date (YYYY-MM-DD)")
		typ := fs.String("type", "", "record type")
		provider := fs.String("provider", "", "provider name")
		desc := fs.String("desc", "", "description")
		_ = fs.Parse(args)
		acc, err := a.accountID(*account)
		if err != nil {
			fail(err)
		}
		rec, err := a.vault.Upload(ctx, acc, model.RecordInput{
			Title:       *title,
			Date:        *date,
			Type:        model.RecordType(*typ),
			Provider:    *provider,
			Description: *desc,
		})
		if err != nil {
			fail(err)
		}
		printJSON(rec)

	case "import":
		fs := flag.NewFlagSet("import", flag.ExitOnError)
		account := fs.String("account", "", "account uuid")
		file := fs.String("file", "", "FHIR JSON document ('-' for stdin)")
		_ = fs.Parse(args)
		acc, err := a.accountID(*account)
		if err != nil {
			fail(err)
		}
		doc, err := readAll(*file)
		if err != nil {
			fail(err)
		}
		recs, err := a.vault.ImportFHIR(ctx, acc, doc)
		if err != nil {
			fail(err)
		}
		printJSON(recs)

	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		account := fs.String("account", "", "account uuid")
		recent := fs.Int("recent", 0, "limit to N most recent")
		_ = fs.Parse(args)
		acc, err := a.accountID(*account)
		if err != nil {
			fail(err)
		}
		var recs []model.MedicalRecord
		if *recent > 0 {
			recs, err = a.vault.RecentRecords(ctx, acc, *recent)
		} else {
			recs, err = a.vault.ListRecords(ctx, acc)
		}
		if err != nil {
			fail(err)
		}
		printJSON(recs)

	case "show":
		fs := flag.NewFlagSet("show", flag.ExitOnError)
		account := fs.String("account", "", "account uuid")
		id := fs.String("id", "", "record uuid")
		_ = fs.Parse(args)
		acc, err := a.accountID(*account)
		if err != nil {
			fail(err)
		}
		rec, err := a.vault.GetRecord(ctx, acc, parseID(*id))
		if err != nil {
			fail(err)
		}
		printJSON(rec)

	case "rm":
		fs := flag.NewFlagSet("rm", flag.ExitOnError)
		account := fs.String("account", "", "account uuid")
		id := fs.String("id", "", "record uuid")
		_ = fs.Parse(args)
		acc, err := a.accountID(*account)
		if err != nil {
			fail(err)
		}
		if err := a.vault.DeleteRecord(ctx, acc, parseID(*id)); err != nil {
			fail(err)
		}

	case "providers":
		acc, err := a.accountID("")
		if err != nil {
			fail(err)
		}
		provs, err := a.vault.Providers(ctx, acc)
		if err != nil {
			fail(err)
		}
		printJSON(provs)

	case "provider-add":
		fs := flag.NewFlagSet("provider-add", flag.ExitOnError)
		name := fs.String("name", "", "provider name")
		specialty := fs.String("specialty", "", "specialty")
		facility := fs.String("facility", "", "facility")
		phone := fs.String("phone", "", "phone")
		_ = fs.Parse(args)
		acc, err := a.accountID("")
		if err != nil {
			fail(err)
		}
		p, err := a.vault.UpsertProvider(ctx, acc, model.ProviderInput{
			Name:      *name,
			Specialty: *specialty,
			Facility:  *facility,
			Phone:     *phone,
		})
		if err != nil {
			fail(err)
		}
		printJSON(p)

	case "provider-rm":
		fs := flag.NewFlagSet("provider-rm", flag.ExitOnError)
		id := fs.String("id", "", "provider uuid")
		_ = fs.Parse(args)
		acc, err := a.accountID("")
		if err != nil {
			fail(err)
		}
		if err := a.vault.DeleteProvider(ctx, acc, parseID(*id)); err != nil {
			fail(err)
		}

	case "links":
		acc, err := a.accountID("")
		if err != nil {
			fail(err)
		}
		links, err := a.vault.LinkedAccounts(ctx, acc)
		if err != nil {
			fail(err)
		}
		printJSON(links)

	case "link-add":
		fs := flag.NewFlagSet("link-add", flag.ExitOnError)
		first := fs.String("first", "", "first name")
		last := fs.String("last", "", "last name")
		rel := fs.String("rel", "", "relationship")
		dob := fs.String("dob", "", "date of birth")
		_ = fs.Parse(args)
		acc, err := a.accountID("")
		if err != nil {
			fail(err)
		}
		la, err := a.vault.AddLinkedAccount(ctx, acc, model.LinkedAccountInput{
			FirstName:    *first,
			LastName:     *last,
			Relationship: *rel,
			DateOfBirth:  *dob,
		})
		if err != nil {
			fail(err)
		}
		printJSON(la)

	case "link-rm":
		fs := flag.NewFlagSet("link-rm", flag.ExitOnError)
		id := fs.String("id", "", "linked account uuid")
		_ = fs.Parse(args)
		acc, err := a.accountID("")
		if err != nil {
			fail(err)
		}
		if err := a.vault.RemoveLinkedAccount(ctx, acc, parseID(*id)); err != nil {
			fail(err)
		}

	case "settings":
		acc, err := a.accountID("")
		if err != nil {
			fail(err)
		}
		st, err := a.vault.Settings(ctx, acc)
		if err != nil {
			fail(err)
		}
		printJSON(st)

	case "settings-set":
		fs := flag.NewFlagSet("settings-set", flag.ExitOnError)
		dark := fs.String("dark", "", "dark mode (t|f)")
		notif := fs.String("notifications", "", "notifications (t|f)")
		autolock := fs.String("autolock", "", "auto lock (t|f)")
		fontsize := fs.String("fontsize", "", "font size")
		_ = fs.Parse(args)
		acc, err := a.accountID("")
		if err != nil {
			fail(err)
		}
		patch := model.SettingsPatch{
			DarkMode:      parseBoolFlag(*dark),
			Notifications: parseBoolFlag(*notif),
			AutoLock:      parseBoolFlag(*autolock),
		}
		if *fontsize != "" {
			patch.FontSize = fontsize
		}
		st, err := a.vault.UpdateSettings(ctx, acc, patch)
		if err != nil {
			fail(err)
		}
		printJSON(st)

	case "interactions":
		acc, err := a.accountID("")
		if err != nil {
			fail(err)
		}
		out, err := a.vault.MedicationInteractions(ctx, acc)
		if err != nil {
			fail(err)
		}
		printJSON(out)

	case "recommend":
		acc, err := a.accountID("")
		if err != nil {
			fail(err)
		}
		out, err := a.vault.Recommendations(ctx, acc)
		if err != nil {
			fail(err)
		}
		for _, r := range out {
			fmt.Println("-", r)
		}

	case "ask":
		fs := flag.NewFlagSet("ask", flag.ExitOnError)
		q := fs.String("q", "", "question")
		_ = fs.Parse(args)
		if *q == "" {
			fail(errors.New("need -q"))
		}
		acc, err := a.accountID("")
		if err != nil {
			fail(err)
		}
		ans, err := a.vault.Ask(ctx, acc, *q)
		if err != nil {
			fail(err)
		}
		fmt.Println(ans)

	case "seed":
		acc, err := a.accountID("")
		if err != nil {
			fail(err)
		}
		if err := seed.Apply(ctx, acc, a.repo.Records(), a.repo.Providers(), a.log); err != nil {
			fail(err)
		}
		fmt.Println("seeded demo data")

	default:
		usage()
	}
}

func readAll(p string) ([]byte, error) {
	if p == "" {
		return nil, errors.New("need -file")
	}
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func parseBoolFlag(raw string) *bool {
	switch strings.ToLower(raw) {
	case "t", "true", "1", "on", "yes":
		v := true
		return &v
	case "f", "false", "0", "off", "no":
		v := false
		return &v
	}
	return nil
}
