// Command client is a terminal voice client for the relay. It streams a WAV
// file through the session as if it were microphone input, plays the
// assistant's answer into a raw PCM file, and prints transcripts and command
// dispatches as they happen.
package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suarakita/server/adapters/ledger"
	"github.com/suarakita/server/domain/entities"
	"github.com/suarakita/server/domain/repositories"
	"github.com/suarakita/server/internal/config"
	"github.com/suarakita/server/internal/voice"
	"github.com/suarakita/server/pkg/pcm"
)

// captureChunk is 100ms of audio per frame.
const captureChunk = pcm.SampleRate / 10

func main() {
	var (
		serverURL = flag.String("server", "http://localhost:8080", "relay server base URL")
		voterID   = flag.String("voter", "0xdemo", "voter id to authenticate as")
		role      = flag.String("role", "voter", "voter or admin")
		wavPath   = flag.String("wav", "", "WAV file to stream as microphone input")
		outPath   = flag.String("out", "assistant.pcm", "file receiving assistant audio (raw PCM16)")
	)
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		// The client only needs ledger settings; run without the rest.
		cfg = &config.Config{}
	}

	token, err := fetchToken(*serverURL, *voterID, *role)
	if err != nil {
		log.Fatal("Failed to fetch token:", err)
	}
	log.Printf("Authenticated as %s (%s)", *voterID, *role)

	capture, err := newWavCapture(*wavPath)
	if err != nil {
		log.Fatal("Failed to open WAV input:", err)
	}
	playback, err := newFilePlayback(*outPath)
	if err != nil {
		log.Fatal("Failed to open playback output:", err)
	}

	wsURL := "ws" + serverURL2ws(*serverURL) + "/ws"
	manager := voice.NewManager(voice.Config{
		URL:    wsURL,
		Token:  token,
		Ledger: buildLedger(cfg, logger),
		Navigate: func(route string) {
			log.Printf(">> navigate to %s", route)
		},
		OnTranscript: func(role entities.UtteranceRole, text string) {
			log.Printf("[%s] %s", role, text)
		},
		OnStateChange: func(state voice.State) {
			log.Printf("-- state: %s", state)
		},
		OnError: func(err error) {
			log.Printf("!! session ended: %v", err)
		},
	}, capture, playback, logger)

	if err := manager.Connect(context.Background()); err != nil {
		log.Fatal("Connect failed:", err)
	}
	log.Printf("Session %s ready, streaming %s", manager.SessionID(), *wavPath)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	select {
	case <-capture.done:
		// Give the assistant time to answer before hanging up.
		select {
		case <-time.After(30 * time.Second):
		case <-interrupt:
		}
	case <-interrupt:
	}

	log.Println("Disconnecting")
	manager.Disconnect()
	manager.Dispatcher().Wait()
}

func serverURL2ws(base string) string {
	if len(base) > 4 && base[:4] == "http" {
		return base[4:]
	}
	return base
}

func fetchToken(serverURL, voterID, role string) (string, error) {
	body, _ := json.Marshal(map[string]string{"voter_id": voterID, "role": role})
	resp, err := http.Post(serverURL+"/api/v1/token", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %s", resp.Status)
	}

	var parsed struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	return parsed.Token, nil
}

func buildLedger(cfg *config.Config, logger *zap.Logger) repositories.ElectionLedger {
	if !cfg.LedgerConfigured() {
		logger.Warn("Ledger not configured, using in-memory mock")
		mock := ledger.NewMockLedger()
		mock.Seed(entities.Election{
			Title:  "Demo Election",
			Active: true,
			Candidates: []entities.Candidate{
				{ID: 0, Name: "Alice"},
				{ID: 1, Name: "Bob"},
			},
		})
		return mock
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	notifier := func(confirmation entities.TxConfirmation) {
		if confirmation.Confirmed {
			log.Printf(">> transaction %s confirmed", confirmation.TxHash)
		} else {
			log.Printf("!! transaction %s failed: %v", confirmation.TxHash, confirmation.Err)
		}
	}

	evm, err := ledger.NewEVMLedger(ctx, ledger.EVMConfig{
		RPCURL:          cfg.LedgerRPCURL,
		ContractAddress: cfg.LedgerContract,
		PrivateKeyHex:   cfg.LedgerPrivateKey,
		ChainID:         cfg.LedgerChainID,
	}, notifier, logger)
	if err != nil {
		log.Fatal("Failed to connect to election ledger:", err)
	}
	return evm
}

// wavCapture replays a WAV file as microphone input at roughly real time.
// An empty path yields a capture device that produces silence until
// released, useful for listening-only sessions.
type wavCapture struct {
	samples []float32

	mu       sync.Mutex
	acquired bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func newWavCapture(path string) (*wavCapture, error) {
	c := &wavCapture{done: make(chan struct{})}
	if path == "" {
		close(c.done)
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// Canonical 44-byte header; the payload is assumed PCM16 mono 24kHz.
	if len(data) < 44 || !bytes.HasPrefix(data, []byte("RIFF")) {
		return nil, fmt.Errorf("%s is not a WAV file", path)
	}
	payload := data[44:]

	c.samples = make([]float32, len(payload)/2)
	for i := range c.samples {
		sample := int16(binary.LittleEndian.Uint16(payload[i*2:]))
		c.samples[i] = float32(sample) / 0x8000
	}
	return c, nil
}

func (c *wavCapture) Acquire(ctx context.Context, fn func(samples []float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acquired {
		return nil
	}
	c.acquired = true

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for offset := 0; offset < len(c.samples); offset += captureChunk {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
			}
			end := offset + captureChunk
			if end > len(c.samples) {
				end = len(c.samples)
			}
			fn(c.samples[offset:end])
		}
		select {
		case <-c.done:
		default:
			close(c.done)
		}
	}()
	return nil
}

func (c *wavCapture) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.acquired = false
}

// filePlayback appends assistant PCM frames to a file in receipt order.
type filePlayback struct {
	mu   sync.Mutex
	file *os.File
}

func newFilePlayback(path string) (*filePlayback, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &filePlayback{file: file}, nil
}

func (p *filePlayback) Enqueue(raw []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return
	}
	if _, err := p.file.Write(raw); err != nil {
		log.Printf("Failed to write playback frame: %v", err)
	}
}

func (p *filePlayback) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file != nil {
		p.file.Close()
		p.file = nil
	}
}

var _ voice.CaptureDevice = (*wavCapture)(nil)
var _ voice.PlaybackQueue = (*filePlayback)(nil)
