package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"teamchat/internal/config"
	"teamchat/internal/domain"
	"teamchat/internal/gateway"
	"teamchat/internal/syncengine"
)

func main() {
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	if cfg.ChatAPIToken == "" {
		log.Fatal("CHAT_API_TOKEN no configurado")
	}

	gw := gateway.NewHTTPGateway(cfg.ChatAPIBaseURL, cfg.ChatAPIToken, logger)
	engine := syncengine.NewEngine(gw, logger, time.Duration(cfg.PollIntervalMS)*time.Millisecond)
	defer engine.Deactivate()

	fmt.Println("===== Team Chat =====")
	fmt.Print("Equipo: ")
	teamID, _ := reader.ReadString('\n')
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		log.Fatal("equipo vacio")
	}

	tracker := newPrintTracker()
	engine.Activate(teamID)
	waitInitialLoad(engine, tracker)

	go renderLoop(engine, tracker)

	fmt.Println("---- Modo Chat ----")
	fmt.Println("Comandos: /equipo <id>  /borrar <msg-id>  /borrarme <msg-id>  /salir")
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case line == "/salir":
			return
		case strings.HasPrefix(line, "/equipo "):
			newTeam := strings.TrimSpace(strings.TrimPrefix(line, "/equipo "))
			if newTeam == "" {
				fmt.Println("Uso: /equipo <id>")
				continue
			}
			tracker.reset()
			engine.Activate(newTeam)
			waitInitialLoad(engine, tracker)
		case strings.HasPrefix(line, "/borrar "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/borrar "))
			if err := engine.DeleteForEveryone(context.Background(), id); err != nil {
				fmt.Printf("Error borrando mensaje: %v\n", err)
			}
		case strings.HasPrefix(line, "/borrarme "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/borrarme "))
			if err := engine.DeleteForMe(context.Background(), id); err != nil {
				fmt.Printf("Error ocultando mensaje: %v\n", err)
			}
		default:
			msg, err := engine.Send(context.Background(), line)
			if err != nil {
				fmt.Printf("Error enviando mensaje: %v\n", err)
				continue
			}
			if tracker.markPrinted(msg.ID) {
				printMessage(msg)
			}
		}
	}
}

// printTracker recuerda qué ids ya se imprimieron; lo comparten el loop de
// input y el de render.
type printTracker struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newPrintTracker() *printTracker {
	return &printTracker{seen: make(map[string]struct{})}
}

// markPrinted reporta true si el id no estaba impreso y lo marca.
func (t *printTracker) markPrinted(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.seen[id]; ok {
		return false
	}
	t.seen[id] = struct{}{}
	return true
}

func (t *printTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = make(map[string]struct{})
}

// waitInitialLoad bloquea hasta que el fetch inicial termine (con o sin
// exito), que es el momento en que la UI deja de mostrar spinner.
func waitInitialLoad(engine *syncengine.Engine, tracker *printTracker) {
	for !engine.HasLoadedOnce() {
		time.Sleep(50 * time.Millisecond)
	}
	if err := engine.Err(); err != nil {
		fmt.Printf("(carga inicial fallo, reintentando en segundo plano: %v)\n", err)
	}
	for _, msg := range engine.Messages() {
		if tracker.markPrinted(msg.ID) {
			printMessage(msg)
		}
	}
}

// renderLoop imprime los mensajes nuevos a medida que el motor los observa.
func renderLoop(engine *syncengine.Engine, tracker *printTracker) {
	for {
		time.Sleep(500 * time.Millisecond)
		for _, msg := range engine.Messages() {
			if tracker.markPrinted(msg.ID) {
				printMessage(msg)
			}
		}
	}
}

func printMessage(msg domain.Message) {
	name := msg.AuthorName
	if name == "" {
		name = msg.AuthorID
	}
	fmt.Printf("[%s] %s (%s): %s\n", msg.CreatedAt.Local().Format("15:04:05"), name, msg.ID, msg.Body)
}
