package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"textbook-chat-be/internal/config"
	"textbook-chat-be/internal/repository/memory"
	"textbook-chat-be/pkg/chat"
	"textbook-chat-be/pkg/ragapi"

	"github.com/fatih/color"
)

const cliSession = "cli"

func main() {
	cfg := config.Load()

	client := ragapi.NewClient(ragapi.Config{
		BaseURL: cfg.Rag.BaseURL,
		Timeout: cfg.Rag.Timeout(),
	})
	storage := memory.NewSessionRepository(cfg.Session.TTL()).Scope(cliSession)
	manager := chat.NewManager(context.Background(), client, storage)

	unsubscribe := manager.Subscribe(func(u chat.Update) {
		switch u.Kind {
		case chat.ChangeMessageSent:
			color.New(color.Faint).Println("  thinking...")
		case chat.ChangeAnswerReceived:
			printAnswer(u.Message)
		case chat.ChangeRequestFailed:
			printError(u.State.Error)
		}
	})
	defer unsubscribe()

	color.Cyan("📚 Textbook assistant (%s)", client.Config().BaseURL)
	color.New(color.Faint).Println("Ask a question, or use /retry, /clear, /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		color.New(color.FgGreen, color.Bold).Print("you> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit":
			return
		case "/clear":
			manager.ClearError()
			color.New(color.Faint).Println("  error cleared")
			continue
		case "/retry":
			if manager.LastQuery() == "" {
				color.Yellow("  nothing to retry")
				continue
			}
			if err := manager.Retry(context.Background()); err != nil {
				color.Red("  %v", err)
			}
			continue
		}

		if err := manager.SendMessage(context.Background(), line); err != nil {
			color.Red("  %v", err)
		}
	}

	if err := scanner.Err(); err != nil {
		color.Red("read input: %v", err)
		os.Exit(1)
	}
}

func printAnswer(msg *chat.Message) {
	if msg == nil {
		return
	}
	color.New(color.FgBlue, color.Bold).Print("bot> ")
	fmt.Println(msg.Content)

	if len(msg.Sources) > 0 {
		color.New(color.Faint).Println("  sources:")
		for _, src := range msg.Sources {
			color.New(color.Faint).Printf("    - %s\n", src)
		}
	}
	for _, chunk := range msg.MatchedChunks {
		color.New(color.Faint).Printf("    [%s] %.2f\n", chunk.ChunkID, chunk.RelevanceScore)
	}
	color.New(color.Faint).Printf("  %s\n", msg.Timestamp.Local().Format(time.Kitchen))
}

func printError(chatErr *ragapi.ChatError) {
	if chatErr == nil {
		return
	}
	color.Red("  ✗ %s (%s)", chatErr.Message, chatErr.Code)
	if chatErr.Retryable {
		color.Yellow("  type /retry to try again")
	}
}
