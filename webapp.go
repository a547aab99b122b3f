package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"gamereview/chessanalysis"
)

func stdoutLogger(next http.Handler) http.Handler {
	return handlers.LoggingHandler(os.Stdout, next)
}

type Client struct {
	conn        *websocket.Conn
	application *Application
	writeLock   sync.Mutex
}

// send serializes writes to the connection; gorilla/websocket allows only
// one concurrent writer, and broadcasts arrive from every analysis worker.
func (c *Client) send(messageType int, payload []byte) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	return c.conn.WriteMessage(messageType, payload)
}

type Application struct {
	router      *mux.Router
	config      *Config
	clients     map[*Client]interface{}
	clientsLock sync.RWMutex
	upgrader    websocket.Upgrader
}

func NewApplication(config *Config) *Application {
	result := Application{
		router:  mux.NewRouter(),
		config:  config,
		clients: make(map[*Client]interface{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	result.router.NotFoundHandler = stdoutLogger(http.HandlerFunc(notFoundHandler))
	result.router.Use(stdoutLogger)

	result.router.HandleFunc("/api/analyze", result.analyzeHandler).Methods(http.MethodPost)
	result.router.HandleFunc("/ws", result.wsHandler)
	return &result
}

type analyzeRequest struct {
	Positions []chessanalysis.PositionStub `json:"positions"`
	Depth     int                          `json:"depth"`
}

type progressMessage struct {
	JobID     string `json:"jobId"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

func (app *Application) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	var request analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if len(request.Positions) == 0 {
		http.Error(w, "no positions provided", http.StatusBadRequest)
		return
	}

	depth := request.Depth
	if depth == 0 {
		depth = app.config.Depth
	}

	jobID := uuid.NewString()
	report, err := chessanalysis.AnalyzeGame(r.Context(), request.Positions,
		chessanalysis.WithDepth(depth),
		chessanalysis.WithWorkers(app.config.Workers),
		chessanalysis.WithEnginePath(app.config.EnginePath),
		chessanalysis.WithProgress(func(completed, total int) {
			app.broadcast(progressMessage{JobID: jobID, Completed: completed, Total: total})
		}),
	)
	if err != nil {
		http.Error(w, fmt.Sprintf("analysis failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		fmt.Printf("Error encoding report: %v\n", err)
	}
}

func (application *Application) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := application.upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	client := &Client{
		conn:        conn,
		application: application,
	}
	application.clientsLock.Lock()
	application.clients[client] = nil
	application.clientsLock.Unlock()

	// Subscribers only receive; the read loop exists to notice closes.
	go func() {
		for {
			if _, _, err := client.conn.ReadMessage(); err != nil {
				application.clientsLock.Lock()
				delete(application.clients, client)
				application.clientsLock.Unlock()
				client.conn.Close()
				return
			}
		}
	}()
}

func (app *Application) broadcast(message interface{}) {
	payload, err := json.Marshal(message)
	if err != nil {
		return
	}
	app.clientsLock.RLock()
	defer app.clientsLock.RUnlock()
	for client := range app.clients {
		client.send(websocket.TextMessage, payload)
	}
}

func (app *Application) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	app.router.ServeHTTP(w, r)
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "File Not Found", http.StatusNotFound)
}

func main() {
	var port uint
	var configPath string
	flag.UintVar(&port, "port", 0, "Port to listen on (overrides config)")
	flag.StringVar(&configPath, "config", "", "Optional config file")
	flag.Parse()

	config, err := LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if port != 0 {
		config.Port = port
	}
	if config.Port == 0 || config.Port > 65535 {
		fmt.Println("Invalid port number")
		os.Exit(1)
	}

	fmt.Printf("Starting server on :%d\n", config.Port)
	app := NewApplication(config)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", config.Port), app); err != nil {
		fmt.Printf("Server error: %v\n", err)
		os.Exit(1)
	}
}
