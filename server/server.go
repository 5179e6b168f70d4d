package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/room4-2/voicechat/config"
	"github.com/room4-2/voicechat/messages"
)

const (
	replyTimeout  = 60 * time.Second
	cleanupPeriod = 1 * time.Minute
)

// Deps are the pluggable parts of the chat backend
type Deps struct {
	Manager   *Manager
	Responder Responder
	Voice     VoiceGenerator // optional, audio replies are skipped without it
	Store     AudioStore
}

// Server is the chat backend: /ws, /audio/{name}, /chat and /health
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	upgrader   websocket.Upgrader
	config     *config.Config

	manager   *Manager
	responder Responder
	voice     VoiceGenerator
	store     AudioStore
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		config:    cfg,
		manager:   deps.Manager,
		responder: deps.Responder,
		voice:     deps.Voice,
		store:     deps.Store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    64 * 1024,
			WriteBufferSize:   64 * 1024,
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// non-browser clients send no Origin
				if origin == "" {
					return true
				}
				for _, allowed := range cfg.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}
	if s.responder == nil {
		s.responder = EchoResponder{}
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws", s.handleWebSocket)
	router.HandleFunc(messages.AudioRoute+"{name}", s.handleAudio).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	s.handler = c.Handler(router)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Handler exposes the routed handler, e.g. for httptest
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for connections
func (s *Server) Start() error {
	log.Printf("🚀 Chat server starting on port %d", s.config.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost:%d/ws", s.config.Port)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("🛑 Shutting down server...")
	s.manager.Shutdown()
	return s.httpServer.Shutdown(ctx)
}

// StartCleanupRoutine periodically drops idle connections and expired clips
func (s *Server) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(cleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup(ctx)
		}
	}
}

func (s *Server) cleanup(ctx context.Context) {
	s.manager.CleanupInactive(ctx)

	if dir, ok := s.store.(*DirStore); ok {
		if n, err := dir.Cleanup(s.config.AudioTTL); err != nil {
			log.Printf("❌ Audio cleanup failed: %v", err)
		} else if n > 0 {
			log.Printf("🧹 Removed %d expired audio clips", n)
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Upgrade HTTP to WebSocket
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn, err := s.manager.CreateConnection(r.Context(), ws)
	if err != nil {
		log.Printf("Failed to create session: %v", err)
		_ = ws.WriteJSON(messages.NewErrorResponse(messages.ErrSessionsExceeded))
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		ws.Close()
		return
	}

	log.Printf("✅ [%s] New session from %s", conn.ID[:8], r.RemoteAddr)

	conn.Start(func(ctx context.Context, kind int, data []byte) {
		s.handleFrame(ctx, conn, kind, data)
	})

	// Wait for the connection to close
	<-conn.CloseChan

	s.manager.RemoveConnection(context.Background(), conn.ID)
	log.Printf("🔌 [%s] Session closed", conn.ID[:8])
}

func (s *Server) handleFrame(ctx context.Context, conn *Connection, kind int, data []byte) {
	s.manager.Touch(ctx, conn.ID)

	if kind != websocket.TextMessage {
		conn.Send(messages.NewErrorResponse("Error: " + messages.ErrInvalidMessage))
		return
	}

	req, err := messages.DecodeRequest(data)
	if err != nil {
		log.Printf("❌ [%s] Failed to parse message: %v", conn.ID[:8], err)
		conn.Send(messages.NewErrorResponse("Error: " + messages.ErrInvalidMessage))
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		conn.Send(messages.NewErrorResponse("Error: " + messages.ErrEmptyMessage))
		return
	}

	log.Printf("📥 [%s] Received: %q (audio=%v)", conn.ID[:8], text, req.RequireAudio)

	ctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()

	reply, err := s.responder.Reply(ctx, conn.History(), text)
	if err != nil {
		log.Printf("❌ [%s] Responder error: %v", conn.ID[:8], err)
		conn.Send(messages.NewErrorResponse("Error: " + messages.ErrResponderFailed))
		return
	}
	conn.Remember(text, reply)

	audioPath := ""
	var inline []byte
	if req.RequireAudio {
		if s.config.AudioDelivery == config.AudioDeliveryInline {
			inline = s.generate(ctx, conn.ID, reply).Data
		} else {
			audioPath = s.speak(ctx, conn.ID, reply)
		}
	}

	conn.Send(messages.NewTextResponse(reply, audioPath))
	if len(inline) > 0 {
		// the clip follows its text so the transcript shows first
		conn.SendBinary(inline)
	}
	log.Printf("📤 [%s] Replied: %d chars, audio=%q, inline=%d bytes", conn.ID[:8], len(reply), audioPath, len(inline))
}

// generate synthesizes the reply, an empty clip means no audio
func (s *Server) generate(ctx context.Context, id, text string) messages.Clip {
	if s.voice == nil {
		return messages.Clip{}
	}
	clip, err := s.voice.Generate(ctx, text)
	if err != nil {
		log.Printf("❌ [%s] Failed to generate speech: %v", id[:8], err)
		return messages.Clip{}
	}
	return clip
}

// speak synthesizes and stores the reply, failures only cost the audio
func (s *Server) speak(ctx context.Context, id, text string) string {
	if s.store == nil {
		return ""
	}

	clip := s.generate(ctx, id, text)
	if len(clip.Data) == 0 {
		return ""
	}

	path, err := s.store.Save(ctx, clip)
	if err != nil {
		log.Printf("❌ [%s] Failed to store speech: %v", id[:8], err)
		return ""
	}
	return path
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, messages.NewErrorResponse("Audio file not found"))
		return
	}

	clip, err := s.store.Load(r.Context(), name)
	if errors.Is(err, ErrAudioNotFound) {
		writeJSON(w, http.StatusNotFound, messages.NewErrorResponse("Audio file not found"))
		return
	}
	if err != nil {
		log.Printf("❌ Failed to load audio %q: %v", name, err)
		writeJSON(w, http.StatusInternalServerError, messages.NewErrorResponse("Failed to load audio"))
		return
	}

	w.Header().Set("Content-Type", clip.MIMEType)
	w.Header().Set("Content-Length", fmt.Sprint(len(clip.Data)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(clip.Data)
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageSize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &messages.ChatResponse{Error: messages.ErrInvalidMessage})
		return
	}

	var req messages.ChatRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, &messages.ChatResponse{Error: messages.ErrInvalidMessage})
		return
	}

	reply, err := s.responder.Reply(r.Context(), nil, req.Message)
	if err != nil {
		log.Printf("❌ Chat error: %v", err)
		writeJSON(w, http.StatusInternalServerError, &messages.ChatResponse{Error: messages.ErrResponderFailed})
		return
	}
	writeJSON(w, http.StatusOK, &messages.ChatResponse{Response: reply})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &messages.HealthResponse{
		Status:   "healthy",
		Sessions: s.manager.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := messages.Encode(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
