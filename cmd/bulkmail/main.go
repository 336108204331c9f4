// Command bulkmail dispatches one message to a list of recipients, rotating
// sends across a pool of SMTP relay credentials and reporting live progress.
//
// Configuration comes from flags, with environment variables (optionally via
// a .env file) and an optional YAML config file as fallbacks, in that order.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/lattiq/bulkmail"
	sesgate "github.com/lattiq/bulkmail/internal/gate/ses"
	"github.com/lattiq/bulkmail/internal/source"
	sgtransport "github.com/lattiq/bulkmail/internal/transport/sendgrid"
	smtptransport "github.com/lattiq/bulkmail/internal/transport/smtp"
)

const banner = `
---------------------------
 bulkmail dispatcher
---------------------------
`

// fileConfig mirrors the flag surface for the optional YAML config file.
type fileConfig struct {
	RelayFile       string `yaml:"relay_file"`
	RecipientFile   string `yaml:"recipient_file"`
	Subject         string `yaml:"subject"`
	MessageFile     string `yaml:"message_file"`
	HTMLMessageFile string `yaml:"html_message_file"`
	Threads         int    `yaml:"threads"`
	MailFrom        string `yaml:"mail_from"`
	Transport       string `yaml:"transport"`
	RatePerSec      int    `yaml:"rate_per_sec"`
	LogLevel        string `yaml:"log_level"`
	SkipStatusCheck bool   `yaml:"skip_status_check"`
}

func main() {
	var (
		configPath      = flag.String("config", "", "optional YAML config file")
		relayFile       = flag.String("relay-file", "", "file of relay credentials (format: server|port|username|password|region)")
		recipientFile   = flag.String("recipient-file", "", "file of recipient addresses, one per line")
		subject         = flag.String("subject", "", "message subject")
		messageFile     = flag.String("message-file", "", "file containing the plain text body")
		htmlMessageFile = flag.String("html-message-file", "", "optional file containing the HTML body")
		threads         = flag.Int("threads", 0, "number of concurrent dispatch workers")
		mailFrom        = flag.String("mail-from", "", "sender address (must be verified with the provider)")
		transportName   = flag.String("transport", "", "delivery transport: smtp or sendgrid (default smtp)")
		ratePerSec      = flag.Int("rate", 0, "optional global sends-per-second limit (0 disables)")
		logLevel        = flag.String("log-level", "", "log level: debug, info, warn, error (default info)")
		skipStatusCheck = flag.Bool("skip-status-check", false, "skip the provider account status gate")
		insecureTLS     = flag.Bool("insecure-tls", false, "skip TLS certificate verification (development only)")
		showVersion     = flag.Bool("version", false, "print version information and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(bulkmail.GetVersionInfo().String())
		return
	}

	fmt.Print(banner)

	// .env fallback for the environment lookups below; absence is fine.
	_ = godotenv.Load()

	var fc fileConfig
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			fatalf("reading config file: %v", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			fatalf("parsing config file: %v", err)
		}
	}

	// Resolution order: flag, then environment, then config file.
	relayPath := resolve(*relayFile, "SMTP_FILE", fc.RelayFile)
	recipientPath := resolve(*recipientFile, "EMAIL_LIST", fc.RecipientFile)
	subj := resolve(*subject, "SUBJECT", fc.Subject)
	messagePath := resolve(*messageFile, "MESSAGE_FILE", fc.MessageFile)
	htmlPath := resolve(*htmlMessageFile, "HTML_MESSAGE_FILE", fc.HTMLMessageFile)
	from := resolve(*mailFrom, "MAIL_FROM", fc.MailFrom)
	transport := resolve(*transportName, "TRANSPORT", fc.Transport)
	workers := resolveInt(*threads, "THREADS", fc.Threads)
	rate := resolveInt(*ratePerSec, "RATE_PER_SEC", fc.RatePerSec)
	level := resolve(*logLevel, "LOG_LEVEL", fc.LogLevel)

	missing := missingRequired(map[string]string{
		"relay-file":     relayPath,
		"recipient-file": recipientPath,
		"subject":        subj,
		"message-file":   messagePath,
		"mail-from":      from,
	})
	if len(missing) > 0 {
		fatalf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	log := newLogger(level)

	relays, err := source.LoadRelays(relayPath)
	if err != nil {
		fatalf("loading relays: %v", err)
	}
	recipients, err := source.LoadRecipients(recipientPath)
	if err != nil {
		fatalf("loading recipients: %v", err)
	}
	textBody, err := source.LoadBody(messagePath)
	if err != nil {
		fatalf("loading message: %v", err)
	}
	htmlBody := ""
	if htmlPath != "" {
		if htmlBody, err = source.LoadBody(htmlPath); err != nil {
			fatalf("loading HTML message: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []bulkmail.Option{
		bulkmail.WithRelays(relays),
		bulkmail.WithMessage(bulkmail.Message{
			From:     from,
			Subject:  subj,
			TextBody: textBody,
			HTMLBody: htmlBody,
		}),
		bulkmail.WithLogger(log),
	}
	if workers > 0 {
		opts = append(opts, bulkmail.WithWorkers(workers))
	}
	if rate > 0 {
		opts = append(opts, bulkmail.WithRateLimit(rate, rate))
	}

	switch transport {
	case "", "smtp":
		var smtpOpts []smtptransport.Option
		if *insecureTLS || os.Getenv("INSECURE_TLS") == "true" {
			smtpOpts = append(smtpOpts, smtptransport.WithInsecureSkipVerify())
		}
		opts = append(opts, bulkmail.WithTransport(smtptransport.NewTransport(smtpOpts...)))
	case "sendgrid":
		opts = append(opts, bulkmail.WithTransport(sgtransport.NewTransport()))
	default:
		fatalf("unknown transport %q (want smtp or sendgrid)", transport)
	}

	if !*skipStatusCheck && !fc.SkipStatusCheck {
		// The account status gate queries the region of the first relay,
		// matching how the credentials were provisioned.
		checker, err := sesgate.NewChecker(ctx, sesgate.Config{
			Region:    relays[0].Region,
			AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		})
		if err != nil {
			fatalf("creating provider status checker: %v", err)
		}
		opts = append(opts, bulkmail.WithStatusChecker(checker))
	}

	client, err := bulkmail.New(bulkmail.DefaultConfig(), opts...)
	if err != nil {
		fatalf("configuring dispatcher: %v", err)
	}
	defer client.Close()

	fmt.Printf(`
Configuration Summary:
- Region:          %s (from relay configuration)
- Relays:          %d
- Recipients:      %d
- Subject:         %s
- From Address:    %s
- Workers:         %d
- Transport:       %s
- Message File:    %s
- HTML File:       %s

`, relays[0].Region, len(relays), len(recipients), subj, from,
		pickWorkers(workers), pickTransport(transport), messagePath, orNone(htmlPath))

	// Live progress line, updated twice per second until all outcomes land.
	watchCtx, stopWatch := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				s := client.Progress()
				fmt.Printf("\rProgress: %d/%d | Success: %d | Failed: %d",
					s.Completed(), s.Total, s.Success, s.Failure)
			}
		}
	}()

	report, runErr := client.Run(ctx, recipients)
	stopWatch()
	<-watchDone
	fmt.Println()

	if report != nil {
		fmt.Println("\nDispatch completed!")
		fmt.Printf("Total time: %.2f seconds\n", report.Elapsed.Seconds())
		fmt.Printf("Successfully sent: %d\n", report.Success)
		fmt.Printf("Failed to send: %d\n", report.Failure)

		if len(report.Failures) > 0 {
			fmt.Println("\nFailed deliveries:")
			for _, f := range report.Failures {
				fmt.Printf("%s: %v\n", f.Recipient, f.Err)
			}
		}
	}

	if runErr != nil {
		log.Error().Err(runErr).Msg("run aborted")
		os.Exit(1)
	}
}

// resolve returns the first non-empty value among flag, environment
// variable and config file entry.
func resolve(flagVal, envKey, fileVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return fileVal
}

func resolveInt(flagVal int, envKey string, fileVal int) int {
	if flagVal > 0 {
		return flagVal
	}
	if v := os.Getenv(envKey); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			fatalf("%s must be an integer, got %q", envKey, v)
		}
		return n
	}
	return fileVal
}

func missingRequired(fields map[string]string) []string {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

func newLogger(level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			fatalf("invalid log level %q", level)
		}
		lvl = parsed
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
}

func pickWorkers(n int) int {
	if n > 0 {
		return n
	}
	return bulkmail.DefaultWorkers
}

func pickTransport(name string) string {
	if name == "" {
		return "smtp"
	}
	return name
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
