package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/jdapena/iwkmail/internal/accounts"
	"github.com/jdapena/iwkmail/internal/conf"
	"github.com/jdapena/iwkmail/internal/credential"
	"github.com/jdapena/iwkmail/internal/model"
	"github.com/jdapena/iwkmail/internal/netmon"
	"github.com/jdapena/iwkmail/internal/protocol"
	"github.com/jdapena/iwkmail/internal/session"
	"github.com/jdapena/iwkmail/internal/transport"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "configuration file")
	flag.Parse()

	if err := run(*configPath, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).With().Timestamp().Str("app", "iwkmail").Logger().Level(lvl)
}

func run(configPath string, args []string) error {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}
	log := initLogger(cfg.LogLevel)

	store, err := conf.NewSQLiteStore(cfg.DBPath, cfg.RootNamespace)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := accounts.New(store, log)
	protocols := protocol.NewDefaultRegistry()

	ctx := context.Background()
	cmd := "list-accounts"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "list-accounts":
		return listAccounts(ctx, registry)
	case "add-account":
		return addAccount(ctx, registry, protocols, args[1:])
	case "remove-account":
		if len(args) < 2 {
			return fmt.Errorf("usage: remove-account <name>")
		}
		return registry.RemoveAccount(ctx, args[1])
	case "default":
		if len(args) < 2 {
			def, err := registry.DefaultAccountName(ctx)
			if err != nil {
				return err
			}
			fmt.Println(def)
			return nil
		}
		return registry.SetDefaultAccount(ctx, args[1])
	case "run":
		return runManager(ctx, cfg, log, registry, protocols)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func listAccounts(ctx context.Context, registry *accounts.Registry) error {
	names, err := registry.AccountNames(ctx, false)
	if err != nil {
		return err
	}
	def, err := registry.DefaultAccountName(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		marker := " "
		if name == def {
			marker = "*"
		}
		state := "disabled"
		if registry.IsEnabled(ctx, name) {
			state = "enabled"
		}
		fmt.Printf("%s %s\t%s\t%s\n", marker, name, registry.DisplayName(ctx, name), state)
	}
	return nil
}

func addAccount(ctx context.Context, registry *accounts.Registry, protocols *protocol.Registry, args []string) error {
	fs := flag.NewFlagSet("add-account", flag.ExitOnError)
	display := fs.String("display-name", "", "account display name")
	email := fs.String("email", "", "address")
	storeHost := fs.String("store-host", "", "incoming server hostname")
	storeProto := fs.String("store-proto", protocol.ProtocolIMAP, "incoming protocol")
	smtpHost := fs.String("smtp-host", "", "outgoing server hostname")
	user := fs.String("user", "", "server username")
	security := fs.String("security", protocol.SecuritySSL, "security kind")
	auth := fs.String("auth", protocol.AuthPassword, "auth kind")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: add-account [flags] <name>")
	}
	if protocols.ByName(protocol.TagStore, *storeProto) == nil {
		return fmt.Errorf("unknown store protocol %q", *storeProto)
	}

	name, err := registry.UnusedAccountName(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	storeAccount := name + "_store"
	transportAccount := name + "_transport"
	err = registry.AddServerAccount(ctx, accounts.ServerAccountArgs{
		Name:     storeAccount,
		Hostname: *storeHost,
		Protocol: *storeProto,
		Security: *security,
		Auth:     *auth,
		Username: *user,
	})
	if err != nil {
		return err
	}
	err = registry.AddServerAccount(ctx, accounts.ServerAccountArgs{
		Name:     transportAccount,
		Hostname: *smtpHost,
		Protocol: protocol.ProtocolSMTP,
		Security: *security,
		Auth:     *auth,
		Username: *user,
	})
	if err != nil {
		return err
	}
	if err := registry.AddAccount(ctx, name, storeAccount, transportAccount, true); err != nil {
		return err
	}

	if *display != "" {
		if err := registry.SetDisplayName(ctx, name, *display); err != nil {
			return err
		}
	}
	if *email != "" {
		if err := registry.SetEmail(ctx, name, *email); err != nil {
			return err
		}
	}

	fmt.Println(name)
	return nil
}

func runManager(ctx context.Context, cfg *model.AppConfig, log zerolog.Logger, registry *accounts.Registry, protocols *protocol.Registry) error {
	monitor := netmon.NewProbeMonitor(cfg.ProbeAddr, time.Duration(cfg.ProbeIntervalSec)*time.Second)
	prompter := session.NewChannelPrompter(time.Duration(cfg.PromptTimeoutSec) * time.Second)

	manager, err := session.NewManager(session.Config{
		Registry:    registry,
		Protocols:   protocols,
		Credentials: credential.NewKeyringStore(cfg.KeyringService),
		Providers:   transport.DefaultProviders(cfg.MailDir),
		Prompter:    prompter,
		Monitor:     monitor,
		MailDir:     cfg.MailDir,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	if err := manager.Start(ctx); err != nil {
		return err
	}
	monitor.Start()
	defer monitor.Stop()
	defer manager.Stop()

	manager.AddListener(func(account string, kind session.EventKind) {
		log.Info().Str("account", account).Int("event", int(kind)).Msg("session event")
	})

	// Answer credential prompts on the terminal.
	go servePrompts(prompter, log)

	refresher := session.NewRefresher(manager, time.Duration(cfg.RefreshIntervalSec)*time.Second)
	refresher.Start()
	defer refresher.Stop()
	go func() {
		for result := range refresher.Results() {
			ev := log.Info().Str("account", result.Account)
			switch {
			case result.AuthError != nil:
				ev.Err(result.AuthError).Msg("refresh needs credentials")
			case result.Error != nil:
				ev.Err(result.Error).Msg("refresh failed")
			default:
				ev.Int("folders", len(result.Folders)).Msg("refreshed")
			}
		}
	}()

	log.Info().Int("accounts", len(manager.Accounts())).Msg("session manager running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")
	return nil
}

func servePrompts(prompter *session.ChannelPrompter, log zerolog.Logger) {
	reader := bufio.NewReader(os.Stdin)
	for job := range prompter.Requests() {
		if job.Request.Reprompt {
			fmt.Printf("Password for %s was rejected, try again: ", job.Request.Key)
		} else {
			fmt.Printf("Password for %s: ", job.Request.Key)
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			log.Warn().Err(err).Msg("reading password failed")
			job.Reply("", true, nil)
			continue
		}
		secret := strings.TrimRight(line, "\r\n")
		job.Reply(secret, secret == "", nil)
	}
}
