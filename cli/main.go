// Package main provides a terminal client for the task agent.
//
// By default it chats with a running server over WebSocket. With -local it
// runs the conversation loop in-process against the configured database, and
// with -populate it resets the database to the sample tasks.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/taskagent/internal/adapter/llm"
	"github.com/xiaot623/taskagent/internal/agent"
	"github.com/xiaot623/taskagent/internal/config"
	"github.com/xiaot623/taskagent/internal/logging"
	"github.com/xiaot623/taskagent/internal/repository"
	"github.com/xiaot623/taskagent/internal/tools"
	"github.com/xiaot623/taskagent/internal/transport/ws"
	"github.com/xiaot623/taskagent/policy"
)

// chatter sends one user turn and returns the assistant's reply.
type chatter interface {
	Send(ctx context.Context, text string) (string, error)
	Close() error
}

// Client represents a WebSocket client.
type Client struct {
	conn      *websocket.Conn
	sessionID string
	seq       int

	// frames is fed by readMessages, which also answers server pings while
	// the user is typing.
	frames  chan []byte
	readErr error
}

// NewClient creates a new client and connects to the server.
func NewClient(addr string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	c := &Client{conn: conn, frames: make(chan []byte, 16)}
	go c.readMessages()
	return c, nil
}

// readMessages reads frames from the server until the connection closes.
func (c *Client) readMessages() {
	defer close(c.frames)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.readErr = err
			return
		}
		c.frames <- data
	}
}

// Close closes the client connection.
func (c *Client) Close() error {
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// SendHello sends a hello message and waits for hello_ack.
func (c *Client) SendHello(sessionID string) error {
	msg := ws.HelloMessage{
		BaseMessage: ws.BaseMessage{
			Type:      ws.TypeHello,
			Ts:        time.Now().UnixMilli(),
			SessionID: sessionID,
		},
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write hello: %w", err)
	}

	var ack ws.HelloAckMessage
	if err := c.read(ws.TypeHelloAck, &ack); err != nil {
		return fmt.Errorf("hello failed: %w", err)
	}
	c.sessionID = ack.SessionID
	return nil
}

// Send sends a chat message and waits for the reply.
func (c *Client) Send(ctx context.Context, text string) (string, error) {
	c.seq++
	msg := ws.ChatMessage{
		BaseMessage: ws.BaseMessage{
			Type:      ws.TypeMessage,
			Ts:        time.Now().UnixMilli(),
			SessionID: c.sessionID,
			RequestID: fmt.Sprintf("req_%d", c.seq),
		},
		Content: text,
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return "", fmt.Errorf("write message: %w", err)
	}

	var reply ws.ReplyMessage
	if err := c.readContext(ctx, ws.TypeReply, msg.RequestID, &reply); err != nil {
		return "", err
	}
	return reply.Content, nil
}

func (c *Client) read(want string, v any) error {
	return c.readContext(context.Background(), want, "", v)
}

// readContext waits for the next frame of the wanted type, decoding it into v.
// With a request id, frames answering earlier requests (a reply that arrived
// after its turn timed out) are dropped.
func (c *Client) readContext(ctx context.Context, want, requestID string, v any) error {
	for {
		var data []byte
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-c.frames:
			if !ok {
				return fmt.Errorf("read: %w", c.readErr)
			}
			data = frame
		}

		var base ws.BaseMessage
		if err := json.Unmarshal(data, &base); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		if requestID != "" && base.RequestID != "" && base.RequestID != requestID {
			continue
		}
		switch base.Type {
		case want:
			return json.Unmarshal(data, v)
		case ws.TypeError:
			var errMsg ws.ErrorMessage
			json.Unmarshal(data, &errMsg)
			return fmt.Errorf("%s - %s", errMsg.Code, errMsg.Message)
		default:
			return fmt.Errorf("expected %s, got: %s", want, base.Type)
		}
	}
}

// localChat runs the conversation loop in this process.
type localChat struct {
	conv    *agent.Conversation
	newConv func() *agent.Conversation
	store   *store.SQLiteStore
	close   io.Closer
}

func newLocalChat(cfg *config.Config) (*localChat, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// Console output would interleave with the prompt; logs go to files only.
	logger, closer := logging.New(logging.Options{Level: cfg.LogLevel, Dir: cfg.LogDir, Console: io.Discard})

	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		closer.Close()
		return nil, err
	}
	engine, err := policy.NewDefaultEngine(context.Background())
	if err != nil {
		db.Close()
		closer.Close()
		return nil, err
	}

	client := llm.NewLLMClient(cfg, logger)
	registry := tools.NewDefaultRegistry(db, nil)
	prompt := agent.LoadSystemPrompt(cfg.SystemPromptPath, logger)
	newConv := func() *agent.Conversation {
		return agent.New(client, registry,
			agent.WithModel(cfg.Model),
			agent.WithTemperature(cfg.Temperature),
			agent.WithMaxTokens(cfg.MaxTokens),
			agent.WithMaxIterations(cfg.MaxIterations),
			agent.WithSystemPrompt(prompt),
			agent.WithGate(engine),
			agent.WithLogger(logging.Component(logger, "cli")),
		)
	}
	return &localChat{conv: newConv(), newConv: newConv, store: db, close: closer}, nil
}

// Send runs one turn. An interrupted turn may leave unanswered tool calls in
// the transcript, so the conversation starts over.
func (l *localChat) Send(ctx context.Context, text string) (string, error) {
	reply, err := l.conv.Submit(ctx, text)
	if err != nil && ctx.Err() != nil {
		l.conv = l.newConv()
	}
	return reply, err
}

func (l *localChat) Close() error {
	err := l.store.Close()
	l.close.Close()
	return err
}

// populate replaces the stored tasks with the sample set.
func populate(cfg *config.Config) error {
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	removed, err := db.ClearAllTasks(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Cleared %d existing tasks.\n", removed)

	added, err := db.PopulateSampleTasks(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Successfully added %d sample tasks to the database.\n", added)
	return nil
}

func main() {
	addr := flag.String("addr", "ws://localhost:8080/v1/ws", "WebSocket server address")
	sessionID := flag.String("session", "", "Session to resume")
	local := flag.Bool("local", false, "Run the conversation in-process instead of connecting to a server")
	seed := flag.Bool("populate", false, "Replace all tasks with the sample tasks and exit")
	flag.Parse()

	log.SetFlags(log.Ltime)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *seed {
		if err := populate(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error populating database: %v\n", err)
			os.Exit(1)
		}
		return
	}

	var chat chatter
	if *local {
		lc, err := newLocalChat(cfg)
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		chat = lc
	} else {
		fmt.Printf("Connecting to %s...\n", *addr)
		client, err := NewClient(*addr)
		if err != nil {
			log.Fatalf("Failed to connect: %v", err)
		}
		if err := client.SendHello(*sessionID); err != nil {
			client.Close()
			log.Fatalf("Hello failed: %v", err)
		}
		fmt.Printf("Session established: %s\n", client.sessionID)
		chat = client
	}
	defer chat.Close()

	run(chat, os.Stdin, os.Stdout, cfg.TurnTimeout())
}

// run is the read-eval-print loop. It returns on exit/quit, end of input or Ctrl+C.
func run(chat chatter, in io.Reader, out io.Writer, turnTimeout time.Duration) {
	fmt.Fprintln(out, "AI Task Manager - Type 'exit' to quit")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, "\nYou: ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\nGoodbye!")
			return
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out, "\nGoodbye!")
				return
			}
			line = strings.TrimSpace(l)
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(out, "Goodbye!")
			return
		}

		turnCtx, cancel := ctx, context.CancelFunc(func() {})
		if turnTimeout > 0 {
			turnCtx, cancel = context.WithTimeout(ctx, turnTimeout)
		}
		reply, err := chat.Send(turnCtx, line)
		cancel()
		if err != nil && reply == "" {
			fmt.Fprintln(out, "\nSorry, I encountered an error. Please try again.")
			continue
		}
		fmt.Fprintf(out, "\nAssistant: %s\n", reply)
	}
}
