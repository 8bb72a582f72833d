package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/yk9331/logseq-rag-chatbot/internal/models"
	"github.com/yk9331/logseq-rag-chatbot/internal/types"
	"github.com/yk9331/logseq-rag-chatbot/pkg/chain"
	"github.com/yk9331/logseq-rag-chatbot/pkg/graph"
	"github.com/yk9331/logseq-rag-chatbot/pkg/indexer"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message is the wire format in both directions. Client types:
// "list_pages", "select_page" and "question". Server types: "pages",
// "status", "scope", "stream", "response" and "error".
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Data    any    `json:"data,omitempty"`
}

type Config struct {
	HistoryTurns  int
	IncludeLinked bool
	Streaming     bool
}

// Server exposes the chat chain over WebSocket. Each connection is one
// session: its own scope and history. Messages are handled sequentially
// per connection so a stale in-flight answer can never interleave into a
// newer turn.
type Server struct {
	config Config
	chain  *chain.ChatChain
	index  *indexer.Indexer
	graph  types.Graph
}

func New(ragChain *chain.ChatChain, index *indexer.Indexer, graphClient types.Graph, config Config) *Server {
	return &Server{
		config: config,
		chain:  ragChain,
		index:  index,
		graph:  graphClient,
	}
}

type session struct {
	scope   []string
	history *models.ChatHistory
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sess := &session{
		history: models.NewChatHistory(s.config.HistoryTurns),
	}

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Error reading message: %v", err)
			}
			break
		}

		s.handleMessage(r.Context(), conn, sess, msg)
	}
}

func (s *Server) handleMessage(ctx context.Context, conn *websocket.Conn, sess *session, msg Message) {
	switch msg.Type {
	case "list_pages":
		s.handleListPages(ctx, conn)
	case "select_page":
		s.handleSelectPage(ctx, conn, sess, msg.Content)
	case "question":
		s.handleQuestion(ctx, conn, sess, msg.Content)
	default:
		s.sendMessage(conn, "error", fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

func (s *Server) handleListPages(ctx context.Context, conn *websocket.Conn) {
	pages, err := s.graph.GetAllPages(ctx)
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("Failed to list pages: %v", err))
		return
	}

	selectable := graph.SelectablePages(pages)
	names := make([]string, len(selectable))
	for i, page := range selectable {
		names[i] = graph.DisplayName(page)
	}
	s.send(conn, Message{Type: "pages", Data: names})
}

func (s *Server) handleSelectPage(ctx context.Context, conn *websocket.Conn, sess *session, pageName string) {
	s.sendMessage(conn, "status", fmt.Sprintf("Indexing %s", pageName))

	pages, err := s.index.Sync(ctx, pageName, s.config.IncludeLinked)
	if err != nil {
		// A failed sync blocks querying for this scope until it succeeds.
		sess.scope = nil
		if errors.Is(err, models.ErrPageNotFound) {
			s.sendMessage(conn, "error", fmt.Sprintf("Page not found: %s", pageName))
			return
		}
		s.sendMessage(conn, "error", fmt.Sprintf("Failed to index page: %v", err))
		return
	}

	scope := make([]string, len(pages))
	names := make([]string, len(pages))
	for i, page := range pages {
		scope[i] = page.ID
		names[i] = page.Name
	}
	sess.scope = scope
	sess.history.Clear()

	s.send(conn, Message{Type: "scope", Data: names})
}

func (s *Server) handleQuestion(ctx context.Context, conn *websocket.Conn, sess *session, question string) {
	if len(sess.scope) == 0 {
		s.sendMessage(conn, "error", "No page selected")
		return
	}

	var opts []chain.AskOption
	if s.config.Streaming {
		opts = append(opts, chain.WithStream(func(chunk []byte) {
			s.sendMessage(conn, "stream", string(chunk))
		}))
	}

	result, err := s.chain.Ask(ctx, question, sess.scope, sess.history, opts...)
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("Error: %v", err))
		return
	}

	sources := make([]map[string]string, 0, len(result.Answer.Citations))
	for _, idx := range result.Answer.Citations {
		if idx < 0 || idx >= len(result.Fragments) {
			continue
		}
		fragment := result.Fragments[idx]
		sources = append(sources, map[string]string{
			"index":    fmt.Sprintf("%d", idx),
			"block_id": fragment.BlockID,
			"page_id":  fragment.PageID,
			"text":     fragment.Text,
		})
	}

	s.send(conn, Message{
		Type:    "response",
		Content: result.Answer.Answer,
		Data:    sources,
	})

	sess.history.AppendTurn(question, result.Answer.Answer)
}

func (s *Server) sendMessage(conn *websocket.Conn, msgType string, content string) {
	s.send(conn, Message{Type: msgType, Content: content})
}

func (s *Server) send(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

// Run serves the WebSocket endpoint and a health check until the
// listener fails.
func (s *Server) Run(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return http.ListenAndServe(addr, mux)
}
