package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	chathttp "github.com/nanooro/dagnerai/adapters/http"
	chatws "github.com/nanooro/dagnerai/adapters/websocket"
	"github.com/nanooro/dagnerai/domain"
	"github.com/nanooro/dagnerai/usecase"
)

var (
	serverURL string
	apiKey    string
	apiSecret string
	character string
)

var rootCmd = &cobra.Command{
	Use:   "replica",
	Short: "Terminal client for the character chat server",
	Long: `replica browses the character carousel and chats with a character
over the server websocket.`,
	SilenceUsage: true,
}

var charactersCmd = &cobra.Command{
	Use:   "characters",
	Short: "List the characters of the carousel",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := newAPIClient(serverURL, apiKey, apiSecret).characters()
		if err != nil {
			return err
		}
		for i, e := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%d. %s - %s\n", i+1, e.Name, e.Description)
		}
		return nil
	},
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse the carousel and start a chat",
	Long: `Browse the carousel one card at a time.

Commands:
  n, next     - next card
  p, prev     - previous card
  <number>    - jump to a card
  c, chat     - chat with the current card
  q, quit     - leave`,
	RunE: runBrowse,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a character",
	RunE: func(cmd *cobra.Command, args []string) error {
		api := newAPIClient(serverURL, apiKey, apiSecret)
		in := bufio.NewScanner(cmd.InOrStdin())
		return chat(api, usecase.ChatTarget(chathttp.ChatViewPath, character), in, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "server base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "John", "API key used to request a token")
	rootCmd.PersistentFlags().StringVar(&apiSecret, "api-secret", "Doe", "API secret used to request a token")
	chatCmd.Flags().StringVarP(&character, "character", "c", "", "character to chat with (server default when empty)")

	rootCmd.AddCommand(charactersCmd, browseCmd, chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBrowse(cmd *cobra.Command, args []string) error {
	api := newAPIClient(serverURL, apiKey, apiSecret)
	return browse(api, bufio.NewScanner(cmd.InOrStdin()), cmd.OutOrStdout())
}

// browse reads carousel commands from in. Choosing a card hands the same
// scanner over to chat.
func browse(api *apiClient, in *bufio.Scanner, out io.Writer) error {
	entries, err := api.characters()
	if err != nil {
		return err
	}
	carousel, err := usecase.NewCarousel(entries)
	if err != nil {
		return err
	}

	unsubscribe := carousel.OnChange(func(e domain.CarouselEntry) { printCard(out, carousel.Index(), carousel.Len(), e) })
	defer unsubscribe()

	printCard(out, carousel.Index(), carousel.Len(), carousel.Current())

	for {
		fmt.Fprint(out, "carousel> ")
		if !in.Scan() {
			return in.Err()
		}

		input := strings.TrimSpace(in.Text())
		switch input {
		case "":
		case "n", "next":
			carousel.Next()
		case "p", "prev":
			carousel.Prev()
		case "c", "chat":
			target := usecase.ChatTarget(chathttp.ChatViewPath, carousel.Current().Name)
			return chat(api, target, in, out)
		case "q", "quit":
			return nil
		default:
			n, err := strconv.Atoi(input)
			if err != nil {
				fmt.Fprintf(out, "unknown command %q\n", input)
				continue
			}
			carousel.Seek(n - 1)
		}
	}
}

func printCard(out io.Writer, index, size int, e domain.CarouselEntry) {
	fmt.Fprintf(out, "\n[%d/%d] %s\n  %s\n  theme: %s\n", index+1, size, e.Name, e.Description, e.Theme)
}

func chat(api *apiClient, target string, in *bufio.Scanner, out io.Writer) error {
	token, err := api.token()
	if err != nil {
		return err
	}
	conn, err := api.dial(target, token)
	if err != nil {
		return err
	}
	defer conn.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		if _, ok := <-sigChan; ok {
			conn.Close()
		}
	}()

	fmt.Fprintln(out, "Type a message, /switch <name> to change character, /exit to quit.")

	reading := make(chan struct{})
	go func() {
		defer close(reading)
		readFrames(conn, out)
	}()

	err = sendLines(conn, in)
	hangUp(conn, reading)
	return err
}

// sendLines forwards every input line until /exit or the end of input.
func sendLines(conn *websocket.Conn, in *bufio.Scanner) error {
	for in.Scan() {
		text := in.Text()

		msg := chatws.ClientMessage{Type: chatws.TypeMessage, Text: text}
		switch {
		case text == "/exit":
			return nil
		case strings.HasPrefix(text, "/switch "):
			msg = chatws.ClientMessage{Type: chatws.TypeCharacter, Character: strings.TrimSpace(strings.TrimPrefix(text, "/switch "))}
		}

		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("sending message: %w", err)
		}
	}
	return in.Err()
}

// hangUp sends a normal closure, waits a moment for the server to answer it
// and returns once the reader has stopped.
func hangUp(conn *websocket.Conn, reading <-chan struct{}) {
	closing := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, closing, time.Now().Add(time.Second)); err == nil {
		select {
		case <-reading:
		case <-time.After(time.Second):
		}
	}
	conn.Close()
	<-reading
}

func readFrames(conn *websocket.Conn, out io.Writer) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg chatws.ServerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			fmt.Fprintf(out, "? %s\n", raw)
			continue
		}
		fmt.Fprint(out, render(msg))
	}
}

func render(msg chatws.ServerMessage) string {
	switch msg.Type {
	case chatws.TypeSession:
		var b strings.Builder
		fmt.Fprintf(&b, "--- chatting with %s ---\n", msg.Character)
		if msg.Session != nil {
			for _, t := range msg.Session.Turns {
				b.WriteString(renderTurn(msg.Character, t))
			}
		}
		return b.String()
	case chatws.TypeTurn:
		// Resets are followed by a session frame that carries the greeting.
		if msg.Turn == nil || msg.Reset {
			return ""
		}
		return renderTurn(msg.Character, *msg.Turn)
	case chatws.TypeRejected:
		return fmt.Sprintf("(not sent: %s)\n", msg.Reason)
	default:
		return ""
	}
}

func renderTurn(character string, t domain.Turn) string {
	if t.Role == domain.UserRole {
		return fmt.Sprintf("you: %s\n", t.Content)
	}
	return fmt.Sprintf("%s: %s\n", character, t.Content)
}
