package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfchat/internal/app"
	"github.com/local/pdfchat/internal/chat"
	"github.com/local/pdfchat/internal/cli"
	cfgpkg "github.com/local/pdfchat/internal/config"
	logpkg "github.com/local/pdfchat/internal/logger"
	"github.com/local/pdfchat/internal/pdf"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load")
	page := flag.Int("page", 1, "page to open")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <pdf path | file:// | http(s):// | s3:// url>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := cfgpkg.Load(*envFile)
	// The terminal user owns the files it opens.
	cfg.Import.AllowLocal = true
	if err := app.InitLogging(cfg, logpkg.Options{Service: "pdfchat-cli", Console: io.Discard}); err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
	}
	defer logpkg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	deps := app.Build(ctx, cfg)
	defer deps.Close()

	fmt.Printf("Loading %s...\n", flag.Arg(0))
	doc, err := deps.Loader.Load(ctx, flag.Arg(0))
	if err != nil {
		log.Error().Err(err).Str("document", flag.Arg(0)).Msg("load failed")
		fmt.Fprintf(os.Stderr, "cannot open document: %v\n", err)
		os.Exit(1)
	}

	reader := pdfReader(doc, *page)
	clip := cli.SystemClipboard{}
	if !clip.Available() {
		fmt.Println("Clipboard unavailable; /copy will only be logged.")
	}
	session := chat.NewSession(chat.Options{
		Completer:       deps.Completer,
		Context:         chat.ViewContext(reader),
		Clipboard:       clip,
		MaxContextChars: cfg.Context.MaxChars,
	})
	defer session.Close()

	fmt.Printf("%s: %d pages. Type /help for commands.\n", doc.Name, doc.PageCount())
	term := cli.NewTerminal()
	runner := &cli.Runner{Session: session, Reader: reader, Out: os.Stdout}
	err = runner.Run(term)
	term.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "input: %v\n", err)
		os.Exit(1)
	}
}

func pdfReader(doc *pdf.Document, page int) *pdf.Reader {
	r := pdf.NewReader(doc)
	if err := r.SetPage(page - 1); err != nil {
		fmt.Fprintf(os.Stderr, "page %d not found, starting at page 1\n", page)
	}
	return r
}
